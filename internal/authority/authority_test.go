package authority

import (
	"context"
	"crypto/x509"
	"errors"
	"sync"
	"testing"
	"time"

	esigncrypto "github.com/hestia-platform/esign/internal/crypto"
)

func initTestAuthority(t *testing.T, opts ...Option) *Manager {
	t.Helper()

	store := NewStore(t.TempDir())
	opts = append([]Option{WithSignerAlgorithm(esigncrypto.AlgECDSAP256)}, opts...)
	m, err := Initialize(store, Config{
		CommonName:   "Test Root",
		Organization: "Test Org",
		Country:      "FR",
		Algorithm:    esigncrypto.AlgEd25519,
	}, opts...)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return m
}

func TestU_InitializeAndLoad(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	rootPass := []byte("root pass")
	tsaPass := []byte("tsa pass")

	m, err := Initialize(store, Config{
		CommonName:     "Hestia Root",
		Organization:   "Hestia",
		Country:        "FR",
		Algorithm:      esigncrypto.AlgEd25519,
		RootPassphrase: rootPass,
		TSAPassphrase:  tsaPass,
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !m.Root().Cert.IsCA {
		t.Error("root certificate must be a CA")
	}

	loaded, err := Load(NewStore(dir), rootPass, tsaPass)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.Root().Cert.Equal(m.Root().Cert) {
		t.Error("loaded root certificate differs")
	}
	if !loaded.TSA().Cert.Equal(m.TSA().Cert) {
		t.Error("loaded TSA certificate differs")
	}

	if _, err := Load(NewStore(dir), []byte("wrong"), tsaPass); !errors.Is(err, ErrAuthorityUnavailable) {
		t.Errorf("expected ErrAuthorityUnavailable for wrong passphrase, got %v", err)
	}
}

func TestU_PQCAlgorithmsRejectedForCertificates(t *testing.T) {
	_, err := Initialize(NewStore(t.TempDir()), Config{
		CommonName:   "Test Root",
		Organization: "Test Org",
		Country:      "FR",
		Algorithm:    esigncrypto.AlgMLDSA65,
	})
	if err == nil {
		t.Fatal("Initialize accepted an ML-DSA root key")
	}

	m := initTestAuthority(t, WithSignerAlgorithm(esigncrypto.AlgMLDSA65))
	if _, _, err := m.IssueSignerCertificate(context.Background(), SubjectInfo{
		Name: "Alice Martin", SignerID: "signer-1", Email: "alice@example.org",
	}); err == nil {
		t.Fatal("IssueSignerCertificate accepted an ML-DSA signer key")
	}
}

func TestU_TSACertChainsToRoot(t *testing.T) {
	m := initTestAuthority(t)

	if _, err := m.TSA().Cert.Verify(x509.VerifyOptions{
		Roots:     m.TrustPool(),
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageTimeStamping},
	}); err != nil {
		t.Errorf("TSA certificate does not chain to root: %v", err)
	}
}

func TestU_IssueSignerCertificate(t *testing.T) {
	m := initTestAuthority(t, WithSignerValidity(48*time.Hour))

	cert, signer, err := m.IssueSignerCertificate(context.Background(), SubjectInfo{
		Name:     "Alice Martin",
		SignerID: "signer-1",
		Email:    "alice@example.org",
	})
	if err != nil {
		t.Fatalf("IssueSignerCertificate: %v", err)
	}
	if signer == nil {
		t.Fatal("expected a signer key")
	}

	if cert.Subject.CommonName != "Alice Martin" {
		t.Errorf("unexpected CN: %s", cert.Subject.CommonName)
	}
	if len(cert.EmailAddresses) != 1 || cert.EmailAddresses[0] != "alice@example.org" {
		t.Errorf("unexpected email addresses: %v", cert.EmailAddresses)
	}
	if cert.KeyUsage&x509.KeyUsageContentCommitment == 0 {
		t.Error("issued certificate missing non-repudiation key usage")
	}
	if len(cert.ExtKeyUsage) != 1 || cert.ExtKeyUsage[0] != x509.ExtKeyUsageEmailProtection {
		t.Errorf("unexpected EKU: %v", cert.ExtKeyUsage)
	}
	if got := cert.NotAfter.Sub(cert.NotBefore); got > 49*time.Hour {
		t.Errorf("validity window too long: %v", got)
	}

	if _, err := cert.Verify(x509.VerifyOptions{
		Roots:     m.TrustPool(),
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageEmailProtection},
	}); err != nil {
		t.Errorf("issued certificate does not chain to root: %v", err)
	}
}

func TestU_SerialsMonotonicUnderConcurrency(t *testing.T) {
	m := initTestAuthority(t)

	const n = 8
	var wg sync.WaitGroup
	serials := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cert, _, err := m.IssueSignerCertificate(context.Background(), SubjectInfo{
				Name: "Signer", SignerID: "s", Email: "s@example.org",
			})
			if err != nil {
				t.Errorf("IssueSignerCertificate: %v", err)
				return
			}
			serials[i] = cert.SerialNumber.String()
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, s := range serials {
		if s == "" {
			continue
		}
		if seen[s] {
			t.Fatalf("duplicate serial %s", s)
		}
		seen[s] = true
	}
}
