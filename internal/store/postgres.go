package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hestia-platform/esign/internal/signing"
)

// Postgres persists pipeline state in PostgreSQL via a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// NewPostgres wraps an existing connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Schema is the DDL for the store's tables. Applied by Migrate; exported
// so operators can review it.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	id           UUID PRIMARY KEY,
	title        TEXT NOT NULL,
	status       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS signature_requests (
	id           UUID PRIMARY KEY,
	document_id  UUID NOT NULL REFERENCES documents(id),
	signer_id    UUID NOT NULL,
	signer_name  TEXT NOT NULL,
	signer_email TEXT NOT NULL,
	field        TEXT NOT NULL,
	link_token   UUID NOT NULL UNIQUE,
	otp_ref      TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS signature_requests_document_idx
	ON signature_requests (document_id);

CREATE TABLE IF NOT EXISTS signature_metadata (
	id                  UUID PRIMARY KEY,
	document_id         UUID NOT NULL REFERENCES documents(id),
	signer_id           UUID NOT NULL,
	signer_name         TEXT NOT NULL,
	field               TEXT NOT NULL,
	cert_serial         TEXT NOT NULL,
	cert_subject        TEXT NOT NULL,
	cert_not_before     TIMESTAMPTZ NOT NULL,
	cert_not_after      TIMESTAMPTZ NOT NULL,
	digest_before       BYTEA NOT NULL,
	digest_after        BYTEA NOT NULL,
	token               BYTEA NOT NULL,
	signed_at           TIMESTAMPTZ NOT NULL,
	confirmation_method TEXT NOT NULL DEFAULT '',
	confirmation_ref    TEXT NOT NULL DEFAULT '',
	ip_address          TEXT NOT NULL DEFAULT '',
	user_agent          TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS signature_metadata_document_idx
	ON signature_metadata (document_id);

CREATE TABLE IF NOT EXISTS journals (
	document_id UUID PRIMARY KEY REFERENCES documents(id),
	sealed      BYTEA NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);
`

// Migrate creates the tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (p *Postgres) SaveDocument(ctx context.Context, rec *DocumentRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO documents (id, title, status, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at`,
		rec.ID, rec.Title, rec.Status, rec.CreatedAt, rec.UpdatedAt, rec.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

func (p *Postgres) GetDocument(ctx context.Context, id uuid.UUID) (*DocumentRecord, error) {
	var rec DocumentRecord
	err := p.pool.QueryRow(ctx, `
		SELECT id, title, status, created_at, updated_at, completed_at
		FROM documents WHERE id = $1`, id).
		Scan(&rec.ID, &rec.Title, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt, &rec.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return &rec, nil
}

func (p *Postgres) UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status DocumentStatus, completedAt *time.Time) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE documents
		SET status = $2, updated_at = now(), completed_at = COALESCE($3, completed_at)
		WHERE id = $1`, id, status, completedAt)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SaveRequest(ctx context.Context, req *SignatureRequest) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO signature_requests
			(id, document_id, signer_id, signer_name, signer_email, field,
			 link_token, otp_ref, status, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at`,
		req.ID, req.DocumentID, req.SignerID, req.SignerName, req.SignerEmail,
		req.Field, req.LinkToken, req.OTPRef, req.Status, req.CreatedAt, req.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to save signature request: %w", err)
	}
	return nil
}

func (p *Postgres) GetRequestByToken(ctx context.Context, token uuid.UUID) (*SignatureRequest, error) {
	var req SignatureRequest
	err := p.pool.QueryRow(ctx, `
		SELECT id, document_id, signer_id, signer_name, signer_email, field,
		       link_token, otp_ref, status, created_at, completed_at
		FROM signature_requests WHERE link_token = $1`, token).
		Scan(&req.ID, &req.DocumentID, &req.SignerID, &req.SignerName, &req.SignerEmail,
			&req.Field, &req.LinkToken, &req.OTPRef, &req.Status, &req.CreatedAt, &req.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load signature request: %w", err)
	}
	return &req, nil
}

func (p *Postgres) ListRequests(ctx context.Context, documentID uuid.UUID) ([]*SignatureRequest, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, document_id, signer_id, signer_name, signer_email, field,
		       link_token, otp_ref, status, created_at, completed_at
		FROM signature_requests WHERE document_id = $1
		ORDER BY created_at`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list signature requests: %w", err)
	}
	defer rows.Close()

	var out []*SignatureRequest
	for rows.Next() {
		var req SignatureRequest
		if err := rows.Scan(&req.ID, &req.DocumentID, &req.SignerID, &req.SignerName,
			&req.SignerEmail, &req.Field, &req.LinkToken, &req.OTPRef, &req.Status,
			&req.CreatedAt, &req.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan signature request: %w", err)
		}
		out = append(out, &req)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateRequestStatus(ctx context.Context, id uuid.UUID, status RequestStatus, completedAt *time.Time) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE signature_requests
		SET status = $2, completed_at = COALESCE($3, completed_at)
		WHERE id = $1`, id, status, completedAt)
	if err != nil {
		return fmt.Errorf("failed to update signature request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SaveMetadata(ctx context.Context, meta *signing.SignatureMetadata) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO signature_metadata
			(id, document_id, signer_id, signer_name, field, cert_serial,
			 cert_subject, cert_not_before, cert_not_after, digest_before,
			 digest_after, token, signed_at, confirmation_method,
			 confirmation_ref, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		meta.ID, meta.DocumentID, meta.SignerID, meta.SignerName, meta.Field,
		meta.CertSerial, meta.CertSubject, meta.CertNotBefore, meta.CertNotAfter,
		meta.DigestBefore, meta.DigestAfter, meta.Token, meta.SignedAt,
		meta.ConfirmationMethod, meta.ConfirmationRef, meta.IPAddress, meta.UserAgent)
	if err != nil {
		return fmt.Errorf("failed to save signature metadata: %w", err)
	}
	return nil
}

func (p *Postgres) ListMetadata(ctx context.Context, documentID uuid.UUID) ([]*signing.SignatureMetadata, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, document_id, signer_id, signer_name, field, cert_serial,
		       cert_subject, cert_not_before, cert_not_after, digest_before,
		       digest_after, token, signed_at, confirmation_method,
		       confirmation_ref, ip_address, user_agent
		FROM signature_metadata WHERE document_id = $1
		ORDER BY signed_at`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list signature metadata: %w", err)
	}
	defer rows.Close()

	var out []*signing.SignatureMetadata
	for rows.Next() {
		var meta signing.SignatureMetadata
		if err := rows.Scan(&meta.ID, &meta.DocumentID, &meta.SignerID, &meta.SignerName,
			&meta.Field, &meta.CertSerial, &meta.CertSubject, &meta.CertNotBefore,
			&meta.CertNotAfter, &meta.DigestBefore, &meta.DigestAfter, &meta.Token,
			&meta.SignedAt, &meta.ConfirmationMethod, &meta.ConfirmationRef,
			&meta.IPAddress, &meta.UserAgent); err != nil {
			return nil, fmt.Errorf("failed to scan signature metadata: %w", err)
		}
		out = append(out, &meta)
	}
	return out, rows.Err()
}

func (p *Postgres) SaveJournal(ctx context.Context, documentID uuid.UUID, sealed []byte) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO journals (document_id, sealed, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (document_id) DO UPDATE SET sealed = EXCLUDED.sealed`,
		documentID, sealed)
	if err != nil {
		return fmt.Errorf("failed to save journal: %w", err)
	}
	return nil
}

func (p *Postgres) GetJournal(ctx context.Context, documentID uuid.UUID) ([]byte, error) {
	var sealed []byte
	err := p.pool.QueryRow(ctx,
		`SELECT sealed FROM journals WHERE document_id = $1`, documentID).Scan(&sealed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load journal: %w", err)
	}
	return sealed, nil
}
