// Package tsa implements the RFC 3161 Time-Stamp Protocol: request and
// response codec, token issuance and client-side retry.
package tsa

import (
	"crypto"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"

	"github.com/hestia-platform/esign/internal/cms"
)

// TimeStampReq represents a timestamp request (RFC 3161 Section 2.4.1).
type TimeStampReq struct {
	Version        int
	MessageImprint MessageImprint
	ReqPolicy      asn1.ObjectIdentifier `asn1:"optional"`
	Nonce          *big.Int              `asn1:"optional"`
	CertReq        bool                  `asn1:"optional,default:false"`
	Extensions     []pkix.Extension      `asn1:"optional,tag:0"`
}

// MessageImprint carries the digest of the data being timestamped.
type MessageImprint struct {
	HashAlgorithm pkix.AlgorithmIdentifier
	HashedMessage []byte
}

// ParseRequest parses and validates a DER-encoded TimeStampReq.
func ParseRequest(data []byte) (*TimeStampReq, error) {
	var req TimeStampReq
	rest, err := asn1.Unmarshal(data, &req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse TimeStampReq: %v", ErrMalformedRequest, err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("%w: trailing data after TimeStampReq", ErrMalformedRequest)
	}
	if req.Version != 1 {
		return nil, fmt.Errorf("%w: unsupported TSP version %d", ErrMalformedRequest, req.Version)
	}
	if err := validateImprint(req.MessageImprint); err != nil {
		return nil, err
	}
	return &req, nil
}

// HashAlgorithm returns the crypto.Hash for the message imprint.
func (r *TimeStampReq) HashAlgorithm() (crypto.Hash, error) {
	return oidToHash(r.MessageImprint.HashAlgorithm.Algorithm)
}

// Marshal encodes the TimeStampReq as DER.
func (r *TimeStampReq) Marshal() ([]byte, error) {
	return asn1.Marshal(*r)
}

// NewRequest builds a TimeStampReq over an already-computed digest.
func NewRequest(digest []byte, hashAlg crypto.Hash, nonce *big.Int, certReq bool) (*TimeStampReq, error) {
	imprint := MessageImprint{
		HashAlgorithm: pkix.AlgorithmIdentifier{Algorithm: hashToOID(hashAlg)},
		HashedMessage: digest,
	}
	if err := validateImprint(imprint); err != nil {
		return nil, err
	}
	return &TimeStampReq{
		Version:        1,
		MessageImprint: imprint,
		Nonce:          nonce,
		CertReq:        certReq,
	}, nil
}

func validateImprint(imprint MessageImprint) error {
	oid := imprint.HashAlgorithm.Algorithm
	expected := hashLength(oid)
	if expected == 0 {
		return fmt.Errorf("%w: unsupported hash algorithm %v", ErrMalformedRequest, oid)
	}
	if len(imprint.HashedMessage) != expected {
		return fmt.Errorf("%w: hash length mismatch: got %d, expected %d",
			ErrMalformedRequest, len(imprint.HashedMessage), expected)
	}
	return nil
}

func hashLength(oid asn1.ObjectIdentifier) int {
	switch {
	case oid.Equal(cms.OIDSHA256):
		return 32
	case oid.Equal(cms.OIDSHA384):
		return 48
	case oid.Equal(cms.OIDSHA512):
		return 64
	default:
		return 0
	}
}

func oidToHash(oid asn1.ObjectIdentifier) (crypto.Hash, error) {
	switch {
	case oid.Equal(cms.OIDSHA256):
		return crypto.SHA256, nil
	case oid.Equal(cms.OIDSHA384):
		return crypto.SHA384, nil
	case oid.Equal(cms.OIDSHA512):
		return crypto.SHA512, nil
	default:
		return 0, fmt.Errorf("unsupported hash algorithm: %v", oid)
	}
}

func hashToOID(h crypto.Hash) asn1.ObjectIdentifier {
	switch h {
	case crypto.SHA384:
		return cms.OIDSHA384
	case crypto.SHA512:
		return cms.OIDSHA512
	default:
		return cms.OIDSHA256
	}
}
