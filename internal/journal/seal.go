package journal

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	gocose "github.com/veraison/go-cose"

	"github.com/hestia-platform/esign/internal/authority"
)

// Seal signs the journal's canonical CBOR with the root authority key as a
// COSE_Sign1 message. The sealed bytes are what gets persisted and handed
// to auditors.
func Seal(j *ProofJournal, root authority.SigningIdentity) ([]byte, error) {
	if root.Signer == nil {
		return nil, fmt.Errorf("%w: root key not loaded", authority.ErrAuthorityUnavailable)
	}

	payload, err := j.CanonicalCBOR()
	if err != nil {
		return nil, err
	}

	alg, err := coseAlgorithm(root.Cert)
	if err != nil {
		return nil, err
	}
	signer, err := gocose.NewSigner(alg, root.Signer)
	if err != nil {
		return nil, fmt.Errorf("failed to build COSE signer: %w", err)
	}

	msg := gocose.NewSign1Message()
	msg.Headers.Protected.SetAlgorithm(alg)
	msg.Headers.Protected[gocose.HeaderLabelKeyID] = root.Cert.SubjectKeyId
	msg.Payload = payload

	if err := msg.Sign(rand.Reader, nil, signer); err != nil {
		return nil, fmt.Errorf("failed to seal journal: %w", err)
	}
	return msg.MarshalCBOR()
}

// VerifySeal checks a sealed journal against the root certificate and
// returns the embedded journal.
func VerifySeal(sealed []byte, rootCert *x509.Certificate) (*ProofJournal, error) {
	var msg gocose.Sign1Message
	if err := msg.UnmarshalCBOR(sealed); err != nil {
		return nil, fmt.Errorf("failed to parse sealed journal: %w", err)
	}

	alg, err := coseAlgorithm(rootCert)
	if err != nil {
		return nil, err
	}
	verifier, err := gocose.NewVerifier(alg, rootCert.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build COSE verifier: %w", err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return nil, fmt.Errorf("journal seal verification failed: %w", err)
	}

	var j ProofJournal
	if err := cbor.Unmarshal(msg.Payload, &j); err != nil {
		return nil, fmt.Errorf("failed to decode journal payload: %w", err)
	}
	return &j, nil
}

func coseAlgorithm(cert *x509.Certificate) (gocose.Algorithm, error) {
	switch cert.PublicKey.(type) {
	case ed25519.PublicKey:
		return gocose.AlgorithmEdDSA, nil
	case *ecdsa.PublicKey:
		return gocose.AlgorithmES256, nil
	case *rsa.PublicKey:
		return gocose.AlgorithmPS256, nil
	default:
		return 0, fmt.Errorf("unsupported root key type for sealing: %T", cert.PublicKey)
	}
}
