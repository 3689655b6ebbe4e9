package journal

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hestia-platform/esign/internal/authority"
	esigncrypto "github.com/hestia-platform/esign/internal/crypto"
	"github.com/hestia-platform/esign/internal/document"
	"github.com/hestia-platform/esign/internal/signing"
)

func journalFixture(t *testing.T) (*document.Document, *signing.Certification, []*signing.SignatureMetadata) {
	t.Helper()

	alice := uuid.New()
	doc, err := document.New(uuid.MustParse("3f8a0e9c-0000-4000-8000-000000000001"),
		"Lease", []byte("base"), []document.Field{{Name: "tenant", Owner: alice}})
	if err != nil {
		t.Fatalf("document.New: %v", err)
	}

	mutator := document.NewMutator()
	doc, err = mutator.ApplyRevision(doc, document.LockAndCertify{Permissions: "fill-forms"})
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	doc, err = mutator.ApplyRevision(doc, document.SignField{Field: "tenant", SignerID: alice})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	baseDigest := make([]byte, 32)
	cert := &signing.Certification{
		DocumentID:  doc.ID(),
		Permissions: "fill-forms",
		BaseDigest:  baseDigest,
		CertifiedAt: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
	}
	metadata := []*signing.SignatureMetadata{{
		ID:           uuid.MustParse("3f8a0e9c-0000-4000-8000-000000000002"),
		DocumentID:   doc.ID(),
		SignerID:     alice,
		SignerName:   "Alice Martin",
		Field:        "tenant",
		CertSerial:   "42",
		DigestBefore: make([]byte, 32),
		DigestAfter:  make([]byte, 32),
		SignedAt:     time.Date(2026, 2, 1, 10, 5, 0, 0, time.UTC),
	}}
	return doc, cert, metadata
}

func TestU_BuildDeterministic(t *testing.T) {
	doc, cert, metadata := journalFixture(t)

	j1, err := Build(doc, cert, metadata)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	j2, err := Build(doc, cert, metadata)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	b1, err := j1.CanonicalCBOR()
	if err != nil {
		t.Fatalf("CanonicalCBOR: %v", err)
	}
	b2, err := j2.CanonicalCBOR()
	if err != nil {
		t.Fatalf("CanonicalCBOR: %v", err)
	}
	if !bytes.Equal(b1, b2) {
		t.Error("journal encoding is not deterministic")
	}
	if j1.ID() != j2.ID() {
		t.Error("journal ID is not stable")
	}
}

func TestU_BuildOrdersSignaturesByTime(t *testing.T) {
	doc, cert, metadata := journalFixture(t)

	second := *metadata[0]
	second.Field = "landlord"
	second.SignedAt = metadata[0].SignedAt.Add(-time.Hour)

	j, err := Build(doc, cert, []*signing.SignatureMetadata{metadata[0], &second})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if j.Signatures[0].Field != "landlord" {
		t.Errorf("signatures not ordered by time: first is %s", j.Signatures[0].Field)
	}
}

func TestU_SealAndVerify(t *testing.T) {
	doc, cert, metadata := journalFixture(t)

	j, err := Build(doc, cert, metadata)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	store := authority.NewStore(t.TempDir())
	manager, err := authority.Initialize(store, authority.Config{
		CommonName:   "Seal Root",
		Organization: "Test Org",
		Country:      "FR",
		Algorithm:    esigncrypto.AlgEd25519,
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	sealed, err := Seal(j, manager.Root())
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	recovered, err := VerifySeal(sealed, manager.Root().Cert)
	if err != nil {
		t.Fatalf("VerifySeal: %v", err)
	}
	if recovered.DocumentID != j.DocumentID || recovered.FinalDigest != j.FinalDigest {
		t.Error("recovered journal differs from sealed journal")
	}

	sealed[len(sealed)-1] ^= 0xFF
	if _, err := VerifySeal(sealed, manager.Root().Cert); err == nil {
		t.Error("expected seal verification failure after tampering")
	}
}
