// Package signing implements the certification and signer engines and the
// validation-context embedder. Each engine mutates documents only through
// the document mutator; aggregate state transitions belong to ceremony.
package signing

import (
	"context"
	"crypto"
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"

	"github.com/hestia-platform/esign/internal/authority"
	"github.com/hestia-platform/esign/internal/cms"
	"github.com/hestia-platform/esign/internal/document"
	"github.com/hestia-platform/esign/internal/tsa"
)

// PermissionsFillForms locks a document to form filling only: declared
// signature fields may still be signed, nothing else may change.
const PermissionsFillForms = "fill-forms"

// lockPayload is what the root authority signs when certifying.
type lockPayload struct {
	DocumentID  string `cbor:"1,keyasint"`
	BaseDigest  []byte `cbor:"2,keyasint"`
	Permissions string `cbor:"3,keyasint"`
}

// Certifier locks documents with the root authority identity.
type Certifier struct {
	manager *authority.Manager
	tsa     tsa.Client
	mutator *document.Mutator
	logger  zerolog.Logger
}

// NewCertifier builds a Certifier.
func NewCertifier(manager *authority.Manager, tsaClient tsa.Client, logger zerolog.Logger) *Certifier {
	return &Certifier{
		manager: manager,
		tsa:     tsaClient,
		mutator: document.NewMutator(),
		logger:  logger,
	}
}

// Certify applies the lock revision: a root-authority envelope over the
// base payload digest plus the permission set, and a timestamp token over
// the envelope. Must be the first revision.
func (c *Certifier) Certify(ctx context.Context, doc *document.Document) (*document.Document, *Certification, error) {
	if doc.Certified() {
		return nil, nil, ErrAlreadyCertified
	}
	if doc.RevisionCount() != 0 {
		return nil, nil, fmt.Errorf("%w: certification must be the first revision", ErrOrderingViolation)
	}

	baseDigest := doc.BaseDigest()
	payload, err := cbor.Marshal(lockPayload{
		DocumentID:  doc.ID().String(),
		BaseDigest:  baseDigest[:],
		Permissions: PermissionsFillForms,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode lock payload: %w", err)
	}

	root := c.manager.Root()
	envelope, err := cms.Sign(payload, &cms.SignerConfig{
		Certificate:  root.Cert,
		Signer:       root.Signer,
		IncludeCerts: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to sign lock envelope: %w", err)
	}

	envelopeDigest := sha256.Sum256(envelope)
	token, err := tsa.Timestamp(ctx, c.tsa, envelopeDigest[:], crypto.SHA256)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to timestamp certification: %w", err)
	}

	locked, err := c.mutator.ApplyRevision(doc, document.LockAndCertify{
		Permissions: PermissionsFillForms,
		Envelope:    envelope,
		Token:       token.SignedData,
	})
	if err != nil {
		return nil, nil, err
	}

	cert := &Certification{
		DocumentID:  doc.ID(),
		Permissions: PermissionsFillForms,
		BaseDigest:  baseDigest[:],
		Envelope:    envelope,
		Token:       token.SignedData,
		CertifiedAt: token.GenTime(),
	}

	c.logger.Info().
		Str("document_id", doc.ID().String()).
		Time("certified_at", cert.CertifiedAt).
		Msg("document certified")
	return locked, cert, nil
}
