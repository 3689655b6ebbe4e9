// Package store persists the pipeline's durable state: document status,
// signature requests, signature metadata and sealed journals. Document
// bytes themselves live in the ceremony aggregate; the store holds the
// facts needed to resume and audit.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hestia-platform/esign/internal/signing"
)

// ErrNotFound reports a missing record.
var ErrNotFound = errors.New("record not found")

// DocumentStatus is the orchestrator state persisted per document.
type DocumentStatus string

const (
	StatusDraft     DocumentStatus = "draft"
	StatusCertified DocumentStatus = "certified"
	StatusSigning   DocumentStatus = "signing"
	StatusSigned    DocumentStatus = "signed"
	StatusCancelled DocumentStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s DocumentStatus) Terminal() bool {
	return s == StatusSigned || s == StatusCancelled
}

// DocumentRecord is the persisted view of one document.
type DocumentRecord struct {
	ID          uuid.UUID
	Title       string
	Status      DocumentStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// RequestStatus is the lifecycle of one signature request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestCompleted RequestStatus = "completed"
	RequestCancelled RequestStatus = "cancelled"
)

// SignatureRequest is one signer's pending or completed invitation to
// sign a field. LinkToken is the unguessable token in the signing link.
type SignatureRequest struct {
	ID          uuid.UUID
	DocumentID  uuid.UUID
	SignerID    uuid.UUID
	SignerName  string
	SignerEmail string
	Field       string
	LinkToken   uuid.UUID
	OTPRef      string
	Status      RequestStatus
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Store is the persistence boundary of the pipeline.
type Store interface {
	SaveDocument(ctx context.Context, rec *DocumentRecord) error
	GetDocument(ctx context.Context, id uuid.UUID) (*DocumentRecord, error)
	UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status DocumentStatus, completedAt *time.Time) error

	SaveRequest(ctx context.Context, req *SignatureRequest) error
	GetRequestByToken(ctx context.Context, token uuid.UUID) (*SignatureRequest, error)
	ListRequests(ctx context.Context, documentID uuid.UUID) ([]*SignatureRequest, error)
	UpdateRequestStatus(ctx context.Context, id uuid.UUID, status RequestStatus, completedAt *time.Time) error

	SaveMetadata(ctx context.Context, meta *signing.SignatureMetadata) error
	ListMetadata(ctx context.Context, documentID uuid.UUID) ([]*signing.SignatureMetadata, error)

	SaveJournal(ctx context.Context, documentID uuid.UUID, sealed []byte) error
	GetJournal(ctx context.Context, documentID uuid.UUID) ([]byte, error)
}
