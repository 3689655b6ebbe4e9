// Package crypto provides key generation, signing and encrypted key storage
// for the signing pipeline authorities and per-signer certificates.
package crypto

import "fmt"

// AlgorithmID identifies a signature algorithm.
type AlgorithmID string

const (
	// AlgEd25519 is Ed25519 (default for internal authorities).
	AlgEd25519 AlgorithmID = "ed25519"

	// AlgECDSAP256 is ECDSA over NIST P-256 with SHA-256.
	AlgECDSAP256 AlgorithmID = "ecdsa-p256"

	// AlgRSA2048 is RSA-2048 with SHA-256 (PKCS#1 v1.5).
	AlgRSA2048 AlgorithmID = "rsa-2048"

	// AlgMLDSA65 is ML-DSA-65 (FIPS 204), kept for quantum-safe migration
	// of long-lived authority keys.
	AlgMLDSA65 AlgorithmID = "ml-dsa-65"
)

// ParseAlgorithm parses an algorithm name as used in configuration files.
func ParseAlgorithm(s string) (AlgorithmID, error) {
	switch AlgorithmID(s) {
	case AlgEd25519, AlgECDSAP256, AlgRSA2048, AlgMLDSA65:
		return AlgorithmID(s), nil
	default:
		return "", fmt.Errorf("unknown signature algorithm: %q", s)
	}
}

// String returns the algorithm name.
func (a AlgorithmID) String() string { return string(a) }

// IsPQC reports whether the algorithm is post-quantum.
func (a AlgorithmID) IsPQC() bool { return a == AlgMLDSA65 }
