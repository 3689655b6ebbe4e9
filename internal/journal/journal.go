// Package journal builds and seals the forensic proof journal: the
// self-contained evidence record produced when a document reaches its
// final state.
package journal

import (
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/hestia-platform/esign/internal/document"
	"github.com/hestia-platform/esign/internal/signing"
	"github.com/hestia-platform/esign/internal/tsa"
)

// SignatureEntry is one signature as recorded in the journal.
type SignatureEntry struct {
	SignerID           string `cbor:"1,keyasint" json:"signer_id"`
	SignerName         string `cbor:"2,keyasint" json:"signer_name"`
	Field              string `cbor:"3,keyasint" json:"field"`
	CertSerial         string `cbor:"4,keyasint" json:"cert_serial"`
	CertSubject        string `cbor:"5,keyasint" json:"cert_subject"`
	DigestBefore       string `cbor:"6,keyasint" json:"digest_before"`
	DigestAfter        string `cbor:"7,keyasint" json:"digest_after"`
	SignedAt           string `cbor:"8,keyasint" json:"signed_at"`
	Token              []byte `cbor:"9,keyasint" json:"token"`
	ConfirmationMethod string `cbor:"10,keyasint,omitempty" json:"confirmation_method,omitempty"`
	ConfirmationRef    string `cbor:"11,keyasint,omitempty" json:"confirmation_ref,omitempty"`
	IPAddress          string `cbor:"12,keyasint,omitempty" json:"ip_address,omitempty"`
	UserAgent          string `cbor:"13,keyasint,omitempty" json:"user_agent,omitempty"`
}

// ProofJournal is the complete evidence record for one document.
type ProofJournal struct {
	DocumentID    string           `cbor:"1,keyasint" json:"document_id"`
	DocumentTitle string           `cbor:"2,keyasint" json:"document_title"`
	BaseDigest    string           `cbor:"3,keyasint" json:"base_digest"`
	FinalDigest   string           `cbor:"4,keyasint" json:"final_digest"`
	Permissions   string           `cbor:"5,keyasint" json:"permissions"`
	CertifiedAt   string           `cbor:"6,keyasint" json:"certified_at"`
	CertifyToken  []byte           `cbor:"7,keyasint" json:"certify_token"`
	Signatures    []SignatureEntry `cbor:"8,keyasint" json:"signatures"`
	FinalToken    []byte           `cbor:"9,keyasint" json:"final_token,omitempty"`
	GeneratedAt   string           `cbor:"10,keyasint" json:"generated_at"`
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

// Build assembles the journal from the final document, its certification
// and its signature metadata. Pure and deterministic: the same inputs
// always produce the same canonical bytes. GeneratedAt comes from the
// final timestamp token, not the wall clock.
func Build(
	doc *document.Document,
	certification *signing.Certification,
	metadata []*signing.SignatureMetadata,
) (*ProofJournal, error) {
	if certification == nil {
		return nil, fmt.Errorf("certification is required")
	}

	entries := make([]SignatureEntry, 0, len(metadata))
	for _, m := range metadata {
		entries = append(entries, SignatureEntry{
			SignerID:           m.SignerID.String(),
			SignerName:         m.SignerName,
			Field:              m.Field,
			CertSerial:         m.CertSerial,
			CertSubject:        m.CertSubject,
			DigestBefore:       hex.EncodeToString(m.DigestBefore),
			DigestAfter:        hex.EncodeToString(m.DigestAfter),
			SignedAt:           m.SignedAt.UTC().Format(time.RFC3339),
			Token:              m.Token,
			ConfirmationMethod: m.ConfirmationMethod,
			ConfirmationRef:    m.ConfirmationRef,
			IPAddress:          m.IPAddress,
			UserAgent:          m.UserAgent,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].SignedAt != entries[j].SignedAt {
			return entries[i].SignedAt < entries[j].SignedAt
		}
		return entries[i].Field < entries[j].Field
	})

	finalDigest := doc.Digest()
	journal := &ProofJournal{
		DocumentID:    doc.ID().String(),
		DocumentTitle: doc.Title(),
		BaseDigest:    hex.EncodeToString(certification.BaseDigest),
		FinalDigest:   hex.EncodeToString(finalDigest[:]),
		Permissions:   certification.Permissions,
		CertifiedAt:   certification.CertifiedAt.UTC().Format(time.RFC3339),
		CertifyToken:  certification.Token,
		Signatures:    entries,
	}

	if doc.Locked() {
		revs := doc.Revisions()
		var final document.DocTimestamp
		if err := revs[len(revs)-1].DecodePayload(&final); err != nil {
			return nil, err
		}
		journal.FinalToken = final.Token

		token, err := tsa.ParseToken(final.Token)
		if err != nil {
			return nil, fmt.Errorf("failed to parse final token: %w", err)
		}
		journal.GeneratedAt = token.GenTime().UTC().Format(time.RFC3339)
	} else if len(entries) > 0 {
		journal.GeneratedAt = entries[len(entries)-1].SignedAt
	} else {
		journal.GeneratedAt = journal.CertifiedAt
	}

	return journal, nil
}

// CanonicalCBOR returns the journal's deterministic CBOR encoding, the
// payload the seal covers.
func (j *ProofJournal) CanonicalCBOR() ([]byte, error) {
	data, err := encMode.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("failed to encode journal: %w", err)
	}
	return data, nil
}

// ID derives a stable identifier for the journal record.
func (j *ProofJournal) ID() uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(j.DocumentID+"/"+j.FinalDigest))
}
