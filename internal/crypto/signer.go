package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
)

// Signer extends crypto.Signer with algorithm metadata.
type Signer interface {
	crypto.Signer

	// Algorithm returns the algorithm identifier for this signer.
	Algorithm() AlgorithmID
}

// SoftwareSigner implements Signer with an in-memory private key.
type SoftwareSigner struct {
	alg  AlgorithmID
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

var _ Signer = (*SoftwareSigner)(nil)

// GenerateSigner generates a fresh key pair for the given algorithm.
func GenerateSigner(alg AlgorithmID) (*SoftwareSigner, error) {
	var (
		priv crypto.PrivateKey
		pub  crypto.PublicKey
		err  error
	)
	switch alg {
	case AlgEd25519:
		pub, priv, err = ed25519.GenerateKey(rand.Reader)
	case AlgECDSAP256:
		var key *ecdsa.PrivateKey
		key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err == nil {
			priv, pub = key, &key.PublicKey
		}
	case AlgRSA2048:
		var key *rsa.PrivateKey
		key, err = rsa.GenerateKey(rand.Reader, 2048)
		if err == nil {
			priv, pub = key, &key.PublicKey
		}
	case AlgMLDSA65:
		var mlPub *mldsa65.PublicKey
		var mlPriv *mldsa65.PrivateKey
		mlPub, mlPriv, err = mldsa65.GenerateKey(rand.Reader)
		if err == nil {
			priv, pub = mlPriv, mlPub
		}
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", alg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s key: %w", alg, err)
	}
	return &SoftwareSigner{alg: alg, priv: priv, pub: pub}, nil
}

// NewSigner wraps an existing key pair.
func NewSigner(alg AlgorithmID, priv crypto.PrivateKey, pub crypto.PublicKey) *SoftwareSigner {
	return &SoftwareSigner{alg: alg, priv: priv, pub: pub}
}

// Algorithm returns the algorithm used by this signer.
func (s *SoftwareSigner) Algorithm() AlgorithmID { return s.alg }

// Public returns the public key.
func (s *SoftwareSigner) Public() crypto.PublicKey { return s.pub }

// PrivateKey returns the raw private key. Callers must not persist it.
func (s *SoftwareSigner) PrivateKey() crypto.PrivateKey { return s.priv }

// Sign signs the digest with the private key.
// For Ed25519 and ML-DSA, digest is the full message (they hash internally).
func (s *SoftwareSigner) Sign(random io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	switch priv := s.priv.(type) {
	case ed25519.PrivateKey:
		return ed25519.Sign(priv, digest), nil

	case *ecdsa.PrivateKey:
		return ecdsa.SignASN1(random, priv, digest)

	case *rsa.PrivateKey:
		hash := crypto.SHA256
		if opts != nil && opts.HashFunc() != 0 {
			hash = opts.HashFunc()
		}
		return rsa.SignPKCS1v15(random, priv, hash, digest)

	case *mldsa65.PrivateKey:
		// Pure ML-DSA: opts.HashFunc() must be 0.
		return priv.Sign(random, digest, crypto.Hash(0))

	default:
		return nil, fmt.Errorf("unsupported private key type: %T", priv)
	}
}

// Verify verifies a signature produced by a Signer of the given algorithm.
// For ECDSA and RSA, message is hashed with SHA-256 before verification.
func Verify(alg AlgorithmID, pub crypto.PublicKey, message, signature []byte) bool {
	switch alg {
	case AlgEd25519:
		edPub, ok := pub.(ed25519.PublicKey)
		return ok && ed25519.Verify(edPub, message, signature)

	case AlgECDSAP256:
		ecPub, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return false
		}
		digest := sha256.Sum256(message)
		return ecdsa.VerifyASN1(ecPub, digest[:], signature)

	case AlgRSA2048:
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return false
		}
		digest := sha256.Sum256(message)
		return rsa.VerifyPKCS1v15(rsaPub, crypto.SHA256, digest[:], signature) == nil

	case AlgMLDSA65:
		mlPub, ok := pub.(*mldsa65.PublicKey)
		return ok && mldsa65.Verify(mlPub, message, nil, signature)

	default:
		return false
	}
}

// AlgorithmOf returns the AlgorithmID for a known public key type.
func AlgorithmOf(pub crypto.PublicKey) (AlgorithmID, error) {
	switch pub.(type) {
	case ed25519.PublicKey:
		return AlgEd25519, nil
	case *ecdsa.PublicKey:
		return AlgECDSAP256, nil
	case *rsa.PublicKey:
		return AlgRSA2048, nil
	case *mldsa65.PublicKey:
		return AlgMLDSA65, nil
	default:
		return "", fmt.Errorf("unsupported public key type: %T", pub)
	}
}
