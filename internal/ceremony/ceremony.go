// Package ceremony orchestrates the document lifecycle: Draft, Certified,
// Signing, Signed, Cancelled. It owns the per-document aggregate (revision
// bytes plus certification) and drives the engines in the right order;
// nothing signs a document that was not certified first.
package ceremony

import (
	"context"
	"crypto"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hestia-platform/esign/internal/audit"
	"github.com/hestia-platform/esign/internal/authority"
	"github.com/hestia-platform/esign/internal/document"
	"github.com/hestia-platform/esign/internal/identity"
	"github.com/hestia-platform/esign/internal/journal"
	"github.com/hestia-platform/esign/internal/metrics"
	"github.com/hestia-platform/esign/internal/signing"
	"github.com/hestia-platform/esign/internal/store"
	"github.com/hestia-platform/esign/internal/tsa"
)

// Participant binds one signature field to the person expected to sign it.
type Participant struct {
	Field  string
	Signer identity.Signer
	OTPRef string
}

// session is the in-memory aggregate for one document: the revision chain,
// its certification and the completion clock. Guarded by its own mutex so
// concurrent mutations of different documents never serialize on each other.
type session struct {
	mu            sync.Mutex
	doc           *document.Document
	certification *signing.Certification
	lastCompleted time.Time
}

// nextCompletion turns a token generation time into this document's next
// completion timestamp. Token times are whole seconds, so a signature
// landing in the same second as the certification (or a prior signature)
// would tie; completion times must come strictly after what preceded them,
// so ties are bumped by the smallest step the store resolves.
func (s *session) nextCompletion(genTime time.Time) time.Time {
	completed := genTime.UTC()
	if !completed.After(s.lastCompleted) {
		completed = s.lastCompleted.Add(time.Microsecond)
	}
	s.lastCompleted = completed
	return completed
}

// Ceremony is the signature orchestrator.
type Ceremony struct {
	store     store.Store
	manager   *authority.Manager
	tsaClient tsa.Client
	certifier *signing.Certifier
	signer    *signing.Signer
	mutator   *document.Mutator
	audit     audit.Writer
	logger    zerolog.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*session
}

// New builds a Ceremony. The audit writer is mandatory: an operation whose
// audit event cannot be recorded fails.
func New(
	st store.Store,
	manager *authority.Manager,
	tsaClient tsa.Client,
	auditWriter audit.Writer,
	logger zerolog.Logger,
) *Ceremony {
	return &Ceremony{
		store:     st,
		manager:   manager,
		tsaClient: tsaClient,
		certifier: signing.NewCertifier(manager, tsaClient, logger),
		signer:    signing.NewSigner(manager, tsaClient, logger),
		mutator:   document.NewMutator(),
		audit:     auditWriter,
		logger:    logger,
		sessions:  make(map[uuid.UUID]*session),
	}
}

func (c *Ceremony) session(id uuid.UUID) (*session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[id]
	return s, ok
}

// Register creates a draft document with one pending signature request per
// participant. Each request carries a fresh unguessable link token.
func (c *Ceremony) Register(
	ctx context.Context,
	title string,
	base []byte,
	participants []Participant,
) (*store.DocumentRecord, []*store.SignatureRequest, error) {
	if len(participants) == 0 {
		return nil, nil, fmt.Errorf("at least one participant is required")
	}

	id := uuid.New()
	fields := make([]document.Field, 0, len(participants))
	for _, p := range participants {
		fields = append(fields, document.Field{Name: p.Field, Owner: p.Signer.ID})
	}
	doc, err := document.New(id, title, base, fields)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	rec := &store.DocumentRecord{
		ID:        id,
		Title:     title,
		Status:    store.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.store.SaveDocument(ctx, rec); err != nil {
		return nil, nil, err
	}

	requests := make([]*store.SignatureRequest, 0, len(participants))
	for _, p := range participants {
		req := &store.SignatureRequest{
			ID:          uuid.New(),
			DocumentID:  id,
			SignerID:    p.Signer.ID,
			SignerName:  p.Signer.DisplayName(),
			SignerEmail: p.Signer.Email,
			Field:       p.Field,
			LinkToken:   uuid.New(),
			OTPRef:      p.OTPRef,
			Status:      store.RequestPending,
			CreatedAt:   now,
		}
		if err := c.store.SaveRequest(ctx, req); err != nil {
			return nil, nil, err
		}
		requests = append(requests, req)
	}

	c.mu.Lock()
	c.sessions[id] = &session{doc: doc}
	c.mu.Unlock()

	if err := c.emit(audit.NewEvent(audit.EventDocRegistered, audit.ResultSuccess).
		WithObject(audit.Object{Type: "document", DocumentID: id.String()})); err != nil {
		return nil, nil, err
	}

	c.logger.Info().
		Str("document_id", id.String()).
		Int("participants", len(participants)).
		Msg("document registered")
	return rec, requests, nil
}

// Certify locks the document. Allowed exactly once, from Draft.
func (c *Ceremony) Certify(ctx context.Context, id uuid.UUID) error {
	s, ok := c.session(id)
	if !ok {
		return store.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := c.store.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	switch rec.Status {
	case store.StatusDraft:
	case store.StatusCertified, store.StatusSigning, store.StatusSigned:
		return signing.ErrAlreadyCertified
	default:
		return fmt.Errorf("%w: document is %s", signing.ErrOrderingViolation, rec.Status)
	}

	certified, certification, err := c.certifier.Certify(ctx, s.doc)
	if err != nil {
		metrics.FailuresTotal.WithLabelValues("certify").Inc()
		return err
	}

	if err := c.store.UpdateDocumentStatus(ctx, id, store.StatusCertified, nil); err != nil {
		return err
	}
	s.doc = certified
	s.certification = certification
	s.lastCompleted = certification.CertifiedAt

	metrics.CertificationsTotal.Inc()
	if err := c.emit(audit.NewEvent(audit.EventTSASign, audit.ResultSuccess).
		WithObject(audit.Object{Type: "token", DocumentID: id.String()}).
		WithContext(audit.Context{GenTime: certification.CertifiedAt.UTC().Format(time.RFC3339)})); err != nil {
		return err
	}
	return c.emit(audit.NewEvent(audit.EventDocCertified, audit.ResultSuccess).
		WithObject(audit.Object{Type: "document", DocumentID: id.String()}).
		WithContext(audit.Context{GenTime: certification.CertifiedAt.UTC().Format(time.RFC3339)}))
}

// Sign completes one signature request, addressed by its link token. The
// confirmation must already be verified by the identity layer. When the
// last required field is filled, the document is finalized: validation
// info embedded, final timestamp applied, journal built and sealed.
func (c *Ceremony) Sign(
	ctx context.Context,
	linkToken uuid.UUID,
	confirmation identity.Confirmation,
	reqCtx identity.RequestContext,
) (*signing.SignatureMetadata, error) {
	req, err := c.store.GetRequestByToken(ctx, linkToken)
	if err != nil {
		return nil, err
	}
	s, ok := c.session(req.DocumentID)
	if !ok {
		return nil, store.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := c.store.GetDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	switch rec.Status {
	case store.StatusCertified, store.StatusSigning:
	case store.StatusDraft:
		return nil, fmt.Errorf("%w: document not certified", signing.ErrOrderingViolation)
	default:
		return nil, fmt.Errorf("%w: document is %s", signing.ErrOrderingViolation, rec.Status)
	}
	if req.Status != store.RequestPending {
		return nil, fmt.Errorf("%w: request is %s", signing.ErrOrderingViolation, req.Status)
	}

	signerIdent := identity.Signer{
		ID:    req.SignerID,
		Kind:  identity.KindExternal,
		Name:  req.SignerName,
		Email: req.SignerEmail,
	}
	signed, meta, err := c.signer.Sign(ctx, s.doc, req.Field, signerIdent, confirmation, reqCtx)
	if err != nil {
		metrics.FailuresTotal.WithLabelValues("sign").Inc()
		if auditErr := c.emit(audit.NewEvent(audit.EventAuthFailed, audit.ResultFailure).
			WithObject(audit.Object{Type: "document", DocumentID: req.DocumentID.String(), Field: req.Field}).
			WithContext(audit.Context{
				SignerID:  req.SignerID.String(),
				Reason:    err.Error(),
				IPAddress: reqCtx.IPAddress,
				UserAgent: reqCtx.UserAgent,
			})); auditErr != nil {
			return nil, auditErr
		}
		return nil, err
	}

	if err := c.emit(audit.NewEvent(audit.EventCertIssued, audit.ResultSuccess).
		WithObject(audit.Object{Type: "certificate", Serial: meta.CertSerial, Subject: meta.CertSubject}).
		WithContext(audit.Context{SignerID: req.SignerID.String()})); err != nil {
		return nil, err
	}
	if err := c.emit(audit.NewEvent(audit.EventTSASign, audit.ResultSuccess).
		WithObject(audit.Object{Type: "token", DocumentID: req.DocumentID.String(), Field: req.Field}).
		WithContext(audit.Context{GenTime: meta.SignedAt.UTC().Format(time.RFC3339)})); err != nil {
		return nil, err
	}

	if err := c.store.SaveMetadata(ctx, meta); err != nil {
		return nil, err
	}

	completed := s.nextCompletion(meta.SignedAt)
	if err := c.store.UpdateRequestStatus(ctx, req.ID, store.RequestCompleted, &completed); err != nil {
		return nil, err
	}

	s.doc = signed
	metrics.SignaturesTotal.Inc()

	if err := c.emit(audit.NewEvent(audit.EventDocSigned, audit.ResultSuccess).
		WithObject(audit.Object{Type: "document", DocumentID: req.DocumentID.String(), Field: req.Field}).
		WithContext(audit.Context{
			SignerID:  req.SignerID.String(),
			GenTime:   meta.SignedAt.UTC().Format(time.RFC3339),
			IPAddress: reqCtx.IPAddress,
			UserAgent: reqCtx.UserAgent,
		})); err != nil {
		return nil, err
	}

	if rec.Status != store.StatusSigning {
		if err := c.store.UpdateDocumentStatus(ctx, req.DocumentID, store.StatusSigning, nil); err != nil {
			return nil, err
		}
	}
	if len(signed.UnfilledFields()) > 0 {
		return meta, nil
	}

	if err := c.finalize(ctx, s, req.DocumentID); err != nil {
		metrics.FailuresTotal.WithLabelValues("finalize").Inc()
		return nil, err
	}
	return meta, nil
}

// Finalize retries finalization of a fully signed document that an earlier
// failure (an unreachable timestamp authority, incomplete anchors) left in
// Signing. The signatures themselves are never redone.
func (c *Ceremony) Finalize(ctx context.Context, id uuid.UUID) error {
	s, ok := c.session(id)
	if !ok {
		return store.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := c.store.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status == store.StatusSigned {
		return nil
	}
	if rec.Status != store.StatusSigning {
		return fmt.Errorf("%w: document is %s", signing.ErrOrderingViolation, rec.Status)
	}
	if len(s.doc.UnfilledFields()) > 0 {
		return fmt.Errorf("%w: unsigned fields remain", signing.ErrOrderingViolation)
	}

	if err := c.finalize(ctx, s, id); err != nil {
		metrics.FailuresTotal.WithLabelValues("finalize").Inc()
		return err
	}
	return nil
}

// finalize runs once all fields are filled: embed trust anchors, apply the
// document-level timestamp, transition to Signed, build and seal the
// journal. Caller holds the session lock.
func (c *Ceremony) finalize(ctx context.Context, s *session, id uuid.UUID) error {
	withAnchors, err := signing.EmbedValidationInfo(s.doc, signing.TrustAnchors{
		Root: c.manager.Root().Cert,
		TSA:  c.manager.TSA().Cert,
	})
	if err != nil {
		return err
	}

	digest := withAnchors.Digest()
	token, err := tsa.Timestamp(ctx, c.tsaClient, digest[:], crypto.SHA256)
	if err != nil {
		return fmt.Errorf("failed to timestamp final document: %w", err)
	}
	final, err := c.mutator.ApplyRevision(withAnchors, document.DocTimestamp{Token: token.SignedData})
	if err != nil {
		return err
	}
	if err := c.emit(audit.NewEvent(audit.EventTSASign, audit.ResultSuccess).
		WithObject(audit.Object{Type: "token", DocumentID: id.String(), Serial: token.SerialNumber().String()}).
		WithContext(audit.Context{GenTime: token.GenTime().UTC().Format(time.RFC3339)})); err != nil {
		return err
	}

	metadata, err := c.store.ListMetadata(ctx, id)
	if err != nil {
		return err
	}
	proof, err := journal.Build(final, s.certification, metadata)
	if err != nil {
		return err
	}
	sealed, err := journal.Seal(proof, c.manager.Root())
	if err != nil {
		return err
	}
	if err := c.store.SaveJournal(ctx, id, sealed); err != nil {
		return err
	}

	completed := s.nextCompletion(token.GenTime())
	if err := c.store.UpdateDocumentStatus(ctx, id, store.StatusSigned, &completed); err != nil {
		return err
	}
	s.doc = final

	metrics.JournalsSealedTotal.Inc()
	if err := c.emit(audit.NewEvent(audit.EventDocCompleted, audit.ResultSuccess).
		WithObject(audit.Object{Type: "document", DocumentID: id.String()}).
		WithContext(audit.Context{GenTime: completed.Format(time.RFC3339)})); err != nil {
		return err
	}
	if err := c.emit(audit.NewEvent(audit.EventJournalSealed, audit.ResultSuccess).
		WithObject(audit.Object{Type: "journal", DocumentID: id.String()})); err != nil {
		return err
	}

	c.logger.Info().
		Str("document_id", id.String()).
		Time("completed_at", completed).
		Msg("document signed and sealed")
	return nil
}

// Cancel aborts the ceremony from any non-terminal state and voids the
// pending requests. Cancelling a cancelled document is a no-op.
func (c *Ceremony) Cancel(ctx context.Context, id uuid.UUID, reason string) error {
	s, ok := c.session(id)
	if !ok {
		return store.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := c.store.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status == store.StatusCancelled {
		return nil
	}
	if rec.Status == store.StatusSigned {
		return fmt.Errorf("%w: document is signed", signing.ErrOrderingViolation)
	}

	now := s.nextCompletion(time.Now())

	requests, err := c.store.ListRequests(ctx, id)
	if err != nil {
		return err
	}
	for _, req := range requests {
		if req.Status != store.RequestPending {
			continue
		}
		if err := c.store.UpdateRequestStatus(ctx, req.ID, store.RequestCancelled, &now); err != nil {
			return err
		}
	}
	if err := c.store.UpdateDocumentStatus(ctx, id, store.StatusCancelled, &now); err != nil {
		return err
	}

	if err := c.emit(audit.NewEvent(audit.EventDocCancelled, audit.ResultSuccess).
		WithObject(audit.Object{Type: "document", DocumentID: id.String()}).
		WithContext(audit.Context{Reason: reason})); err != nil {
		return err
	}

	c.logger.Info().
		Str("document_id", id.String()).
		Str("reason", reason).
		Msg("ceremony cancelled")
	return nil
}

// Request resolves a signature request by its link token.
func (c *Ceremony) Request(ctx context.Context, linkToken uuid.UUID) (*store.SignatureRequest, error) {
	return c.store.GetRequestByToken(ctx, linkToken)
}

// Status returns the persisted record and signature requests for id.
func (c *Ceremony) Status(ctx context.Context, id uuid.UUID) (*store.DocumentRecord, []*store.SignatureRequest, error) {
	rec, err := c.store.GetDocument(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	requests, err := c.store.ListRequests(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return rec, requests, nil
}

// Journal returns the sealed proof journal for a signed document.
func (c *Ceremony) Journal(ctx context.Context, id uuid.UUID) ([]byte, error) {
	return c.store.GetJournal(ctx, id)
}

// Document returns the current revision-chain bytes, for download.
func (c *Ceremony) Document(id uuid.UUID) ([]byte, error) {
	s, ok := c.session(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Bytes(), nil
}

func (c *Ceremony) emit(event *audit.Event) error {
	if err := c.audit.Write(event); err != nil {
		return fmt.Errorf("audit write failed: %w", err)
	}
	return nil
}
