package tsa

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"
)

func newTestResponder(t *testing.T, opts ...ResponderOption) *Responder {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		t.Fatalf("failed to generate serial: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "Test TSA", Organization: []string{"Test Org"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageTimeStamping},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}

	return NewResponder(cert, priv, opts...)
}

func TestU_TimestampRoundTrip(t *testing.T) {
	responder := newTestResponder(t)

	digest := sha256.Sum256([]byte("document bytes"))
	token, err := responder.Timestamp(context.Background(), digest[:], crypto.SHA256)
	if err != nil {
		t.Fatalf("Timestamp: %v", err)
	}

	parsed, err := ParseToken(token.SignedData)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if parsed.SerialNumber().Cmp(token.SerialNumber()) != 0 {
		t.Errorf("serial mismatch: %v vs %v", parsed.SerialNumber(), token.SerialNumber())
	}

	if err := VerifyToken(parsed, &VerifyOpts{SkipCertVerify: true, Digest: digest[:]}); err != nil {
		t.Errorf("VerifyToken: %v", err)
	}
	if err := VerifyToken(parsed, &VerifyOpts{SkipCertVerify: true, Digest: make([]byte, 32)}); err == nil {
		t.Error("expected verification failure for wrong digest")
	}
}

func TestU_TimestampRejectsWrongDigestLength(t *testing.T) {
	responder := newTestResponder(t)

	_, err := responder.Timestamp(context.Background(), []byte{1, 2, 3}, crypto.SHA256)
	if !errors.Is(err, ErrMalformedRequest) {
		t.Errorf("expected ErrMalformedRequest, got %v", err)
	}
}

func TestU_RespondMapsMalformedToRejection(t *testing.T) {
	responder := newTestResponder(t)

	respDER, err := responder.Respond(context.Background(), []byte("not asn1"))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	resp, err := ParseResponse(respDER)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if resp.IsGranted() {
		t.Error("expected rejection for malformed request")
	}
	if resp.Token != nil {
		t.Error("rejection must not carry a token")
	}
}

func TestU_RespondGranted(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	responder := newTestResponder(t, WithClock(func() time.Time { return fixed }))

	digest := sha256.Sum256([]byte("payload"))
	req, err := NewRequest(digest[:], crypto.SHA256, big.NewInt(42), true)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	reqDER, err := req.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	respDER, err := responder.Respond(context.Background(), reqDER)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	resp, err := ParseResponse(respDER)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if !resp.IsGranted() {
		t.Fatalf("expected granted, got failure: %s", resp.FailureString())
	}
	if !resp.Token.GenTime().Equal(fixed) {
		t.Errorf("gen time: got %v, want %v", resp.Token.GenTime(), fixed)
	}
	if resp.Token.Info.Nonce == nil || resp.Token.Info.Nonce.Int64() != 42 {
		t.Errorf("nonce not echoed: %v", resp.Token.Info.Nonce)
	}
}

func TestU_ConcurrentSerialsUnique(t *testing.T) {
	responder := newTestResponder(t)
	digest := sha256.Sum256([]byte("concurrent"))

	const n = 32
	var wg sync.WaitGroup
	serials := make([]*big.Int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := responder.Timestamp(context.Background(), digest[:], crypto.SHA256)
			if err != nil {
				t.Errorf("Timestamp: %v", err)
				return
			}
			serials[i] = token.SerialNumber()
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, s := range serials {
		if s == nil {
			continue
		}
		if seen[s.String()] {
			t.Fatalf("duplicate serial %s", s)
		}
		seen[s.String()] = true
	}
}

type flakyClient struct {
	mu       sync.Mutex
	failures int
	calls    int
	inner    Client
}

func (c *flakyClient) Timestamp(ctx context.Context, digest []byte, alg crypto.Hash) (*Token, error) {
	c.mu.Lock()
	c.calls++
	fail := c.calls <= c.failures
	c.mu.Unlock()
	if fail {
		return nil, errors.New("connection reset")
	}
	return c.inner.Timestamp(ctx, digest, alg)
}

func TestU_RetryRecoversFromTransientFailure(t *testing.T) {
	responder := newTestResponder(t)
	client := &flakyClient{failures: 2, inner: &ResponderClient{Responder: responder}}

	digest := sha256.Sum256([]byte("retry me"))
	token, err := Timestamp(context.Background(), client, digest[:], crypto.SHA256)
	if err != nil {
		t.Fatalf("Timestamp with retry: %v", err)
	}
	if token == nil {
		t.Fatal("expected token")
	}
	if client.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", client.calls)
	}
}

func TestU_RetryExhaustionIsTransient(t *testing.T) {
	responder := newTestResponder(t)
	client := &flakyClient{failures: 10, inner: &ResponderClient{Responder: responder}}

	digest := sha256.Sum256([]byte("never"))
	_, err := Timestamp(context.Background(), client, digest[:], crypto.SHA256)
	if !errors.Is(err, ErrTransientAuthority) {
		t.Errorf("expected ErrTransientAuthority, got %v", err)
	}
	if client.calls != maxAttempts {
		t.Errorf("expected %d attempts, got %d", maxAttempts, client.calls)
	}
}

func TestU_RetryDoesNotRetryMalformed(t *testing.T) {
	responder := newTestResponder(t)
	client := &countingClient{inner: &ResponderClient{Responder: responder}}

	_, err := Timestamp(context.Background(), client, []byte{1}, crypto.SHA256)
	if !errors.Is(err, ErrMalformedRequest) {
		t.Fatalf("expected ErrMalformedRequest, got %v", err)
	}
	if client.calls != 1 {
		t.Errorf("malformed request retried: %d calls", client.calls)
	}
}

type countingClient struct {
	mu    sync.Mutex
	calls int
	inner Client
}

func (c *countingClient) Timestamp(ctx context.Context, digest []byte, alg crypto.Hash) (*Token, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.inner.Timestamp(ctx, digest, alg)
}
