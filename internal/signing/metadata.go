package signing

import (
	"time"

	"github.com/google/uuid"
)

// Certification records the outcome of locking a document.
type Certification struct {
	DocumentID  uuid.UUID `json:"document_id"`
	Permissions string    `json:"permissions"`

	// BaseDigest is the SHA-256 of the base payload the lock covers.
	BaseDigest []byte `json:"base_digest"`

	// Envelope is the root authority's CMS SignedData over the lock payload.
	Envelope []byte `json:"envelope"`

	// Token is the DER timestamp token over the envelope digest.
	Token []byte `json:"token"`

	// CertifiedAt is the token's generation time.
	CertifiedAt time.Time `json:"certified_at"`
}

// SignatureMetadata records one field signature for the forensic journal.
type SignatureMetadata struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	SignerID   uuid.UUID `json:"signer_id"`
	SignerName string    `json:"signer_name"`
	Field      string    `json:"field"`

	// Issued certificate facts.
	CertSerial    string    `json:"cert_serial"`
	CertSubject   string    `json:"cert_subject"`
	CertNotBefore time.Time `json:"cert_not_before"`
	CertNotAfter  time.Time `json:"cert_not_after"`

	// Document digests around the signature revision.
	DigestBefore []byte `json:"digest_before"`
	DigestAfter  []byte `json:"digest_after"`

	// Token is the DER timestamp token over the post-signature digest.
	Token []byte `json:"token"`

	// SignedAt is the token's generation time.
	SignedAt time.Time `json:"signed_at"`

	// Identity confirmation facts.
	ConfirmationMethod string `json:"confirmation_method,omitempty"`
	ConfirmationRef    string `json:"confirmation_ref,omitempty"`

	// Request facts.
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}
