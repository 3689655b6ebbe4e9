package signing

import (
	"context"
	"crypto"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hestia-platform/esign/internal/authority"
	"github.com/hestia-platform/esign/internal/cms"
	"github.com/hestia-platform/esign/internal/document"
	"github.com/hestia-platform/esign/internal/identity"
	"github.com/hestia-platform/esign/internal/tsa"
)

// Signer executes one field signature end to end: certificate issuance,
// envelope, revision, timestamp, metadata.
type Signer struct {
	manager *authority.Manager
	tsa     tsa.Client
	mutator *document.Mutator
	logger  zerolog.Logger
}

// NewSigner builds a Signer engine.
func NewSigner(manager *authority.Manager, tsaClient tsa.Client, logger zerolog.Logger) *Signer {
	return &Signer{
		manager: manager,
		tsa:     tsaClient,
		mutator: document.NewMutator(),
		logger:  logger,
	}
}

// Sign fills one field on behalf of signer. Steps, in order: verify the
// identity confirmation, check the field, issue a short-lived certificate,
// digest the pre-signature image, build the signer's envelope over it,
// append the signature revision, digest the new image, obtain a timestamp
// token over it, and assemble the metadata record.
func (s *Signer) Sign(
	ctx context.Context,
	doc *document.Document,
	fieldName string,
	signer identity.Signer,
	confirmation identity.Confirmation,
	reqCtx identity.RequestContext,
) (*document.Document, *SignatureMetadata, error) {
	if !doc.Certified() {
		return nil, nil, fmt.Errorf("%w: document not certified", ErrOrderingViolation)
	}
	if !confirmation.Confirmed {
		return nil, nil, identity.ErrIdentityNotConfirmed
	}

	field, err := doc.Field(fieldName)
	if err != nil {
		return nil, nil, err
	}
	if field.Filled() {
		return nil, nil, fmt.Errorf("%w: %q", document.ErrFieldAlreadySigned, fieldName)
	}
	if field.Owner != signer.ID {
		return nil, nil, fmt.Errorf("%w: %q", document.ErrNotAssignedToSigner, fieldName)
	}

	cert, certSigner, err := s.manager.IssueSignerCertificate(ctx, authority.SubjectInfo{
		Name:     signer.DisplayName(),
		SignerID: signer.ID.String(),
		Email:    signer.Email,
	})
	if err != nil {
		return nil, nil, err
	}

	digestBefore := doc.Digest()

	envelope, err := cms.Sign(digestBefore[:], &cms.SignerConfig{
		Certificate:  cert,
		Signer:       certSigner,
		IncludeCerts: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build signature envelope: %w", err)
	}

	signed, err := s.mutator.ApplyRevision(doc, document.SignField{
		Field:      fieldName,
		SignerID:   signer.ID,
		Envelope:   envelope,
		CertSerial: cert.SerialNumber.String(),
	})
	if err != nil {
		return nil, nil, err
	}

	digestAfter := signed.Digest()

	token, err := tsa.Timestamp(ctx, s.tsa, digestAfter[:], crypto.SHA256)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to timestamp signature: %w", err)
	}

	meta := &SignatureMetadata{
		ID:                 uuid.New(),
		DocumentID:         doc.ID(),
		SignerID:           signer.ID,
		SignerName:         signer.DisplayName(),
		Field:              fieldName,
		CertSerial:         cert.SerialNumber.String(),
		CertSubject:        cert.Subject.String(),
		CertNotBefore:      cert.NotBefore,
		CertNotAfter:       cert.NotAfter,
		DigestBefore:       digestBefore[:],
		DigestAfter:        digestAfter[:],
		Token:              token.SignedData,
		SignedAt:           token.GenTime(),
		ConfirmationMethod: confirmation.Method,
		ConfirmationRef:    confirmation.Reference,
		IPAddress:          reqCtx.IPAddress,
		UserAgent:          reqCtx.UserAgent,
	}

	s.logger.Info().
		Str("document_id", doc.ID().String()).
		Str("field", fieldName).
		Str("signer_id", signer.ID.String()).
		Str("cert_serial", meta.CertSerial).
		Time("signed_at", meta.SignedAt).
		Msg("field signed")
	return signed, meta, nil
}
