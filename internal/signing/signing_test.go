package signing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hestia-platform/esign/internal/authority"
	esigncrypto "github.com/hestia-platform/esign/internal/crypto"
	"github.com/hestia-platform/esign/internal/document"
	"github.com/hestia-platform/esign/internal/identity"
	"github.com/hestia-platform/esign/internal/tsa"
)

type testRig struct {
	manager   *authority.Manager
	tsaClient tsa.Client
	certifier *Certifier
	signer    *Signer
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	store := authority.NewStore(t.TempDir())
	manager, err := authority.Initialize(store, authority.Config{
		CommonName:   "Test Root",
		Organization: "Test Org",
		Country:      "FR",
		Algorithm:    esigncrypto.AlgEd25519,
	}, authority.WithSignerAlgorithm(esigncrypto.AlgECDSAP256))
	if err != nil {
		t.Fatalf("Initialize authority: %v", err)
	}

	responder := tsa.NewResponder(manager.TSA().Cert, manager.TSA().Signer)
	client := &tsa.ResponderClient{Responder: responder}

	return &testRig{
		manager:   manager,
		tsaClient: client,
		certifier: NewCertifier(manager, client, zerolog.Nop()),
		signer:    NewSigner(manager, client, zerolog.Nop()),
	}
}

func newLeaseDocument(t *testing.T, owners ...uuid.UUID) *document.Document {
	t.Helper()

	names := []string{"tenant", "landlord", "guarantor"}
	fields := make([]document.Field, len(owners))
	for i, owner := range owners {
		fields[i] = document.Field{Name: names[i], Owner: owner}
	}
	doc, err := document.New(uuid.New(), "Lease", []byte("rendered lease document"), fields)
	if err != nil {
		t.Fatalf("document.New: %v", err)
	}
	return doc
}

func confirmed() identity.Confirmation {
	return identity.Confirmation{Confirmed: true, Method: "otp", Reference: "otp-123"}
}

func TestU_CertifyFirstRevision(t *testing.T) {
	rig := newTestRig(t)
	doc := newLeaseDocument(t, uuid.New())

	locked, cert, err := rig.certifier.Certify(context.Background(), doc)
	if err != nil {
		t.Fatalf("Certify: %v", err)
	}
	if !locked.Certified() {
		t.Error("document not certified after Certify")
	}
	if locked.RevisionCount() != 1 {
		t.Errorf("expected 1 revision, got %d", locked.RevisionCount())
	}
	if cert.CertifiedAt.IsZero() {
		t.Error("certification missing timestamp time")
	}

	baseDigest := doc.BaseDigest()
	if !bytes.Equal(cert.BaseDigest, baseDigest[:]) {
		t.Error("certification digest does not match base payload")
	}

	token, err := tsa.ParseToken(cert.Token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if err := tsa.VerifyToken(token, &tsa.VerifyOpts{Roots: rig.manager.TrustPool()}); err != nil {
		t.Errorf("certification token invalid: %v", err)
	}
}

func TestU_DoubleCertifyRejected(t *testing.T) {
	rig := newTestRig(t)
	doc := newLeaseDocument(t, uuid.New())

	locked, _, err := rig.certifier.Certify(context.Background(), doc)
	if err != nil {
		t.Fatalf("Certify: %v", err)
	}

	_, _, err = rig.certifier.Certify(context.Background(), locked)
	if !errors.Is(err, ErrAlreadyCertified) {
		t.Errorf("expected ErrAlreadyCertified, got %v", err)
	}
	if !errors.Is(err, ErrOrderingViolation) {
		t.Errorf("ErrAlreadyCertified must be an ordering violation, got %v", err)
	}
}

func TestU_SignBeforeCertifyRejected(t *testing.T) {
	rig := newTestRig(t)
	alice := identity.Signer{ID: uuid.New(), Kind: identity.KindExternal, Name: "Alice", Email: "alice@example.org"}
	doc := newLeaseDocument(t, alice.ID)

	_, _, err := rig.signer.Sign(context.Background(), doc, "tenant", alice, confirmed(), identity.RequestContext{})
	if !errors.Is(err, ErrOrderingViolation) {
		t.Errorf("expected ErrOrderingViolation, got %v", err)
	}
}

func TestU_SignRequiresConfirmation(t *testing.T) {
	rig := newTestRig(t)
	alice := identity.Signer{ID: uuid.New(), Name: "Alice", Email: "alice@example.org"}
	doc := newLeaseDocument(t, alice.ID)

	doc, _, err := rig.certifier.Certify(context.Background(), doc)
	if err != nil {
		t.Fatalf("Certify: %v", err)
	}

	_, _, err = rig.signer.Sign(context.Background(), doc, "tenant", alice,
		identity.Confirmation{Confirmed: false}, identity.RequestContext{})
	if !errors.Is(err, identity.ErrIdentityNotConfirmed) {
		t.Errorf("expected ErrIdentityNotConfirmed, got %v", err)
	}
}

func TestU_SignProducesMetadataAndRevision(t *testing.T) {
	rig := newTestRig(t)
	alice := identity.Signer{ID: uuid.New(), Name: "Alice Martin", Email: "alice@example.org"}
	doc := newLeaseDocument(t, alice.ID)

	doc, _, err := rig.certifier.Certify(context.Background(), doc)
	if err != nil {
		t.Fatalf("Certify: %v", err)
	}

	digestBefore := doc.Digest()
	signed, meta, err := rig.signer.Sign(context.Background(), doc, "tenant", alice, confirmed(),
		identity.RequestContext{IPAddress: "203.0.113.7", UserAgent: "test-agent"})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if !bytes.Equal(meta.DigestBefore, digestBefore[:]) {
		t.Error("DigestBefore does not match pre-signature image")
	}
	digestAfter := signed.Digest()
	if !bytes.Equal(meta.DigestAfter, digestAfter[:]) {
		t.Error("DigestAfter does not match post-signature image")
	}
	if meta.SignedAt.IsZero() {
		t.Error("metadata missing timestamp time")
	}
	if meta.CertSerial == "" || meta.CertSubject == "" {
		t.Error("metadata missing certificate facts")
	}
	if meta.IPAddress != "203.0.113.7" {
		t.Errorf("unexpected IP address: %s", meta.IPAddress)
	}

	field, err := signed.Field("tenant")
	if err != nil {
		t.Fatalf("Field: %v", err)
	}
	if !field.Filled() {
		t.Error("field not filled after Sign")
	}

	token, err := tsa.ParseToken(meta.Token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if err := tsa.VerifyToken(token, &tsa.VerifyOpts{
		Roots:  rig.manager.TrustPool(),
		Digest: meta.DigestAfter,
	}); err != nil {
		t.Errorf("signature token invalid: %v", err)
	}
}

func TestU_SignWrongOwnerRejected(t *testing.T) {
	rig := newTestRig(t)
	alice := identity.Signer{ID: uuid.New(), Name: "Alice", Email: "alice@example.org"}
	bob := identity.Signer{ID: uuid.New(), Name: "Bob", Email: "bob@example.org"}
	doc := newLeaseDocument(t, alice.ID)

	doc, _, err := rig.certifier.Certify(context.Background(), doc)
	if err != nil {
		t.Fatalf("Certify: %v", err)
	}

	_, _, err = rig.signer.Sign(context.Background(), doc, "tenant", bob, confirmed(), identity.RequestContext{})
	if !errors.Is(err, document.ErrNotAssignedToSigner) {
		t.Errorf("expected ErrNotAssignedToSigner, got %v", err)
	}
}

func TestU_EmbedValidationInfo(t *testing.T) {
	rig := newTestRig(t)
	alice := identity.Signer{ID: uuid.New(), Name: "Alice", Email: "alice@example.org"}
	doc := newLeaseDocument(t, alice.ID)

	doc, _, err := rig.certifier.Certify(context.Background(), doc)
	if err != nil {
		t.Fatalf("Certify: %v", err)
	}

	_, err = EmbedValidationInfo(doc, TrustAnchors{Root: rig.manager.Root().Cert})
	if !errors.Is(err, ErrValidationContextIncomplete) {
		t.Errorf("expected ErrValidationContextIncomplete, got %v", err)
	}

	embedded, err := EmbedValidationInfo(doc, TrustAnchors{
		Root: rig.manager.Root().Cert,
		TSA:  rig.manager.TSA().Cert,
	})
	if err != nil {
		t.Fatalf("EmbedValidationInfo: %v", err)
	}

	revs := embedded.Revisions()
	last := revs[len(revs)-1]
	if last.Kind != document.KindValidationInfo {
		t.Fatalf("expected validation-info revision, got %s", last.Kind)
	}
	var info document.ValidationInfo
	if err := last.DecodePayload(&info); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if len(info.Anchors) != 2 {
		t.Errorf("expected 2 anchors, got %d", len(info.Anchors))
	}
}
