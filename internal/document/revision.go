package document

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// RevisionKind identifies what a revision block carries.
type RevisionKind string

const (
	// KindLock is the certification revision: permissions plus the root
	// authority's envelope over the base payload.
	KindLock RevisionKind = "lock"

	// KindSignature fills one signature field.
	KindSignature RevisionKind = "signature"

	// KindValidationInfo embeds the trust anchors needed for offline
	// verification.
	KindValidationInfo RevisionKind = "validation-info"

	// KindTimestamp is the final document-level timestamp. Terminal.
	KindTimestamp RevisionKind = "timestamp"
)

// RevisionSpec describes a revision to append. Exactly one of the
// constructors below produces a valid spec.
type RevisionSpec interface {
	kind() RevisionKind
	payload() (cbor.RawMessage, error)
}

// LockAndCertify locks the document for form-filling-only changes.
type LockAndCertify struct {
	// Permissions names what remains allowed after certification.
	Permissions string

	// Envelope is the CMS SignedData by the root authority over the
	// base payload digest.
	Envelope []byte

	// Token is the timestamp token over the envelope.
	Token []byte
}

// SignField fills one signature field with a signer's envelope.
type SignField struct {
	Field    string
	SignerID uuid.UUID

	// Envelope is the signer's CMS SignedData over the pre-signature
	// document digest.
	Envelope []byte

	// CertSerial is the issued certificate's serial, recorded for the
	// journal.
	CertSerial string
}

// ValidationInfo embeds trust anchors in the document.
type ValidationInfo struct {
	// Anchors holds DER certificates: root, TSA, optional intermediates.
	Anchors [][]byte

	// CRLs holds optional DER revocation lists.
	CRLs [][]byte
}

// DocTimestamp applies the final document-level timestamp.
type DocTimestamp struct {
	// Token is the DER timestamp token over the full document image.
	Token []byte
}

func (s LockAndCertify) kind() RevisionKind { return KindLock }
func (s SignField) kind() RevisionKind      { return KindSignature }
func (s ValidationInfo) kind() RevisionKind { return KindValidationInfo }
func (s DocTimestamp) kind() RevisionKind   { return KindTimestamp }

func (s LockAndCertify) payload() (cbor.RawMessage, error) { return encodePayload(s) }
func (s SignField) payload() (cbor.RawMessage, error)      { return encodePayload(s) }
func (s ValidationInfo) payload() (cbor.RawMessage, error) { return encodePayload(s) }
func (s DocTimestamp) payload() (cbor.RawMessage, error)   { return encodePayload(s) }

// revisionBlock is the CBOR frame appended to the document image. PrevLen
// and PrevDigest pin the exact byte image the block was appended to.
type revisionBlock struct {
	Kind       RevisionKind    `cbor:"1,keyasint"`
	Index      int             `cbor:"2,keyasint"`
	PrevLen    int             `cbor:"3,keyasint"`
	PrevDigest []byte          `cbor:"4,keyasint"`
	Payload    cbor.RawMessage `cbor:"5,keyasint"`
}

// Revision is one applied revision: its decoded frame plus the encoded
// block bytes exactly as appended.
type Revision struct {
	Kind       RevisionKind
	Index      int
	PrevLen    int
	PrevDigest []byte
	Payload    cbor.RawMessage
	Block      []byte
}

// DecodePayload decodes the revision payload into out.
func (r *Revision) DecodePayload(out any) error {
	if err := cbor.Unmarshal(r.Payload, out); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", r.Kind, err)
	}
	return nil
}

var encMode cbor.EncMode

func init() {
	opts := cbor.CanonicalEncOptions()
	var err error
	encMode, err = opts.EncMode()
	if err != nil {
		panic(err)
	}
}

func encodePayload(v any) (cbor.RawMessage, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode revision payload: %w", err)
	}
	return cbor.RawMessage(data), nil
}

func encodeBlock(block revisionBlock) ([]byte, error) {
	data, err := encMode.Marshal(block)
	if err != nil {
		return nil, fmt.Errorf("failed to encode revision block: %w", err)
	}
	return data, nil
}
