package document

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func newTestDocument(t *testing.T, owners ...uuid.UUID) *Document {
	t.Helper()

	fields := make([]Field, len(owners))
	for i, owner := range owners {
		fields[i] = Field{Name: fieldName(i), Owner: owner}
	}
	doc, err := New(uuid.New(), "Lease agreement", []byte("base payload bytes"), fields)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return doc
}

func fieldName(i int) string {
	return []string{"tenant", "landlord", "guarantor"}[i]
}

func TestU_BytesAtPreservesPriorImage(t *testing.T) {
	signer := uuid.New()
	doc := newTestDocument(t, signer)
	mutator := NewMutator()

	imageBefore := doc.Bytes()

	doc1, err := mutator.ApplyRevision(doc, LockAndCertify{Permissions: "fill-forms", Envelope: []byte{1}})
	if err != nil {
		t.Fatalf("ApplyRevision lock: %v", err)
	}
	doc2, err := mutator.ApplyRevision(doc1, SignField{Field: "tenant", SignerID: signer, Envelope: []byte{2}})
	if err != nil {
		t.Fatalf("ApplyRevision sign: %v", err)
	}

	if !bytes.Equal(doc2.BytesAt(0), imageBefore) {
		t.Error("BytesAt(0) does not match original base image")
	}
	if !bytes.Equal(doc2.BytesAt(1), doc1.BytesAt(1)) {
		t.Error("BytesAt(1) differs between snapshots")
	}
	if !bytes.HasPrefix(doc2.Bytes(), doc1.Bytes()) {
		t.Error("new image is not an extension of the prior image")
	}
	if err := doc2.VerifyChain(); err != nil {
		t.Errorf("VerifyChain: %v", err)
	}
}

func TestU_PreImageDigestRoundTrip(t *testing.T) {
	signer := uuid.New()
	doc := newTestDocument(t, signer)
	mutator := NewMutator()

	doc1, err := mutator.ApplyRevision(doc, LockAndCertify{Permissions: "fill-forms"})
	if err != nil {
		t.Fatalf("ApplyRevision: %v", err)
	}

	rev := doc1.Revisions()[0]
	base := doc.Bytes()
	if rev.PrevLen != len(base) {
		t.Errorf("PrevLen: got %d, want %d", rev.PrevLen, len(base))
	}
	image := doc1.BytesAt(0)
	if !bytes.Equal(image, base) {
		t.Error("recorded pre-image does not round-trip")
	}
}

func TestU_ApplyRevisionDoesNotMutateInput(t *testing.T) {
	signer := uuid.New()
	doc := newTestDocument(t, signer)
	mutator := NewMutator()

	doc1, err := mutator.ApplyRevision(doc, LockAndCertify{Permissions: "fill-forms"})
	if err != nil {
		t.Fatalf("ApplyRevision: %v", err)
	}
	if doc.RevisionCount() != 0 {
		t.Error("input document gained revisions")
	}
	if doc1.RevisionCount() != 1 {
		t.Errorf("expected 1 revision, got %d", doc1.RevisionCount())
	}
}

func TestU_FieldRules(t *testing.T) {
	alice, bob := uuid.New(), uuid.New()
	doc := newTestDocument(t, alice, bob)
	mutator := NewMutator()

	doc, err := mutator.ApplyRevision(doc, LockAndCertify{Permissions: "fill-forms"})
	if err != nil {
		t.Fatalf("ApplyRevision lock: %v", err)
	}

	if _, err := mutator.ApplyRevision(doc, SignField{Field: "missing", SignerID: alice}); !errors.Is(err, ErrFieldNotFound) {
		t.Errorf("expected ErrFieldNotFound, got %v", err)
	}
	if _, err := mutator.ApplyRevision(doc, SignField{Field: "tenant", SignerID: bob}); !errors.Is(err, ErrNotAssignedToSigner) {
		t.Errorf("expected ErrNotAssignedToSigner, got %v", err)
	}

	doc, err = mutator.ApplyRevision(doc, SignField{Field: "tenant", SignerID: alice})
	if err != nil {
		t.Fatalf("ApplyRevision sign: %v", err)
	}
	if _, err := mutator.ApplyRevision(doc, SignField{Field: "tenant", SignerID: alice}); !errors.Is(err, ErrFieldAlreadySigned) {
		t.Errorf("expected ErrFieldAlreadySigned, got %v", err)
	}

	field, err := doc.Field("tenant")
	if err != nil {
		t.Fatalf("Field: %v", err)
	}
	if !field.Filled() {
		t.Error("tenant field should be filled")
	}
	if got := doc.UnfilledFields(); len(got) != 1 || got[0] != "landlord" {
		t.Errorf("unexpected unfilled fields: %v", got)
	}
}

func TestU_LockedAfterFinalTimestamp(t *testing.T) {
	signer := uuid.New()
	doc := newTestDocument(t, signer)
	mutator := NewMutator()

	doc, err := mutator.ApplyRevision(doc, LockAndCertify{Permissions: "fill-forms"})
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	doc, err = mutator.ApplyRevision(doc, SignField{Field: "tenant", SignerID: signer})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	doc, err = mutator.ApplyRevision(doc, DocTimestamp{Token: []byte{0xAA}})
	if err != nil {
		t.Fatalf("timestamp: %v", err)
	}
	if !doc.Locked() {
		t.Fatal("document should be locked")
	}

	if _, err := mutator.ApplyRevision(doc, ValidationInfo{}); !errors.Is(err, ErrDocumentLocked) {
		t.Errorf("expected ErrDocumentLocked, got %v", err)
	}
}

func TestU_ChainIntegrityDetection(t *testing.T) {
	signer := uuid.New()
	doc := newTestDocument(t, signer)
	mutator := NewMutator()

	doc, err := mutator.ApplyRevision(doc, LockAndCertify{Permissions: "fill-forms"})
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	// Corrupt the recorded pre-image digest.
	doc.revisions[0].PrevDigest[0] ^= 0xFF

	if err := doc.VerifyChain(); !errors.Is(err, ErrIntegrity) {
		t.Errorf("expected ErrIntegrity, got %v", err)
	}
	if _, err := mutator.ApplyRevision(doc, SignField{Field: "tenant", SignerID: signer}); !errors.Is(err, ErrIntegrity) {
		t.Errorf("expected ErrIntegrity on apply, got %v", err)
	}
}

func TestU_RevisionPayloadRoundTrip(t *testing.T) {
	signer := uuid.New()
	doc := newTestDocument(t, signer)
	mutator := NewMutator()

	doc, err := mutator.ApplyRevision(doc, LockAndCertify{
		Permissions: "fill-forms",
		Envelope:    []byte{1, 2, 3},
		Token:       []byte{4, 5},
	})
	if err != nil {
		t.Fatalf("ApplyRevision: %v", err)
	}

	var lock LockAndCertify
	rev := doc.Revisions()[0]
	if err := rev.DecodePayload(&lock); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if lock.Permissions != "fill-forms" || !bytes.Equal(lock.Envelope, []byte{1, 2, 3}) {
		t.Errorf("payload round-trip mismatch: %+v", lock)
	}
}

func TestU_DuplicateFieldRejected(t *testing.T) {
	owner := uuid.New()
	_, err := New(uuid.New(), "doc", nil, []Field{
		{Name: "tenant", Owner: owner},
		{Name: "tenant", Owner: owner},
	})
	if err == nil {
		t.Error("expected error for duplicate field names")
	}
}
