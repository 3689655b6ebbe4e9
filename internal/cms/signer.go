package cms

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"hash"
	"time"

	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
)

// SignerConfig carries the options for producing a SignedData.
type SignerConfig struct {
	Certificate  *x509.Certificate
	Signer       crypto.Signer
	DigestAlg    crypto.Hash
	IncludeCerts bool
	SigningTime  time.Time
	ContentType  asn1.ObjectIdentifier

	// Detached omits the content from EncapsulatedContentInfo.
	Detached bool
}

// Sign produces a DER-encoded CMS ContentInfo wrapping SignedData.
func Sign(content []byte, config *SignerConfig) ([]byte, error) {
	if config.Certificate == nil {
		return nil, fmt.Errorf("certificate is required")
	}
	if config.Signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if config.DigestAlg == 0 {
		config.DigestAlg = crypto.SHA256
	}
	if config.SigningTime.IsZero() {
		config.SigningTime = time.Now().UTC()
	}
	if len(config.ContentType) == 0 {
		config.ContentType = OIDData
	}

	digest, err := computeDigest(content, config.DigestAlg)
	if err != nil {
		return nil, fmt.Errorf("failed to compute digest: %w", err)
	}

	signedAttrs, err := SignedAttributes(config.ContentType, digest, config.SigningTime)
	if err != nil {
		return nil, fmt.Errorf("failed to build signed attributes: %w", err)
	}

	signedAttrsDER, err := MarshalSignedAttrs(signedAttrs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signed attributes: %w", err)
	}

	signature, err := signData(signedAttrsDER, config.Signer, config.DigestAlg)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	digestAlgID := digestAlgorithmIdentifier(config.DigestAlg)
	sigAlgID, err := signatureAlgorithmIdentifier(config.Signer, config.DigestAlg)
	if err != nil {
		return nil, err
	}

	signerInfo := SignerInfo{
		Version: 1,
		SID: SignerIdentifier{
			IssuerAndSerialNumber: IssuerAndSerialNumber{
				Issuer:       asn1.RawValue{FullBytes: config.Certificate.RawIssuer},
				SerialNumber: config.Certificate.SerialNumber,
			},
		},
		DigestAlgorithm:    digestAlgID,
		SignedAttrs:        signedAttrs,
		SignatureAlgorithm: sigAlgID,
		Signature:          signature,
	}

	encapContent := EncapsulatedContentInfo{EContentType: config.ContentType}
	if !config.Detached {
		encapContent.EContent = asn1.RawValue{
			Class: asn1.ClassUniversal,
			Tag:   asn1.TagOctetString,
			Bytes: content,
		}
	}

	signedData := SignedData{
		Version:          1,
		DigestAlgorithms: []pkix.AlgorithmIdentifier{digestAlgID},
		EncapContentInfo: encapContent,
		SignerInfos:      []SignerInfo{signerInfo},
	}
	if config.IncludeCerts {
		signedData.Certificates = certificateSet{Raw: config.Certificate.Raw}
	}

	signedDataDER, err := asn1.Marshal(signedData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal SignedData: %w", err)
	}

	contentInfo := ContentInfo{
		ContentType: OIDSignedData,
		Content: asn1.RawValue{
			Class:      asn1.ClassContextSpecific,
			Tag:        0,
			IsCompound: true,
			Bytes:      signedDataDER,
		},
	}
	return asn1.Marshal(contentInfo)
}

func computeDigest(data []byte, alg crypto.Hash) ([]byte, error) {
	var h hash.Hash
	switch alg {
	case crypto.SHA256:
		h = sha256.New()
	case crypto.SHA384:
		h = sha512.New384()
	case crypto.SHA512:
		h = sha512.New()
	default:
		return nil, fmt.Errorf("unsupported digest algorithm: %v", alg)
	}
	h.Write(data)
	return h.Sum(nil), nil
}

func signData(data []byte, signer crypto.Signer, digestAlg crypto.Hash) ([]byte, error) {
	switch signer.Public().(type) {
	case *ecdsa.PublicKey, *rsa.PublicKey:
		digest, err := computeDigest(data, digestAlg)
		if err != nil {
			return nil, err
		}
		return signer.Sign(rand.Reader, digest, digestAlg)
	default:
		// Ed25519 and ML-DSA sign the message directly.
		return signer.Sign(rand.Reader, data, crypto.Hash(0))
	}
}

func digestAlgorithmIdentifier(alg crypto.Hash) pkix.AlgorithmIdentifier {
	switch alg {
	case crypto.SHA384:
		return pkix.AlgorithmIdentifier{Algorithm: OIDSHA384}
	case crypto.SHA512:
		return pkix.AlgorithmIdentifier{Algorithm: OIDSHA512}
	default:
		return pkix.AlgorithmIdentifier{Algorithm: OIDSHA256}
	}
}

func signatureAlgorithmIdentifier(signer crypto.Signer, digestAlg crypto.Hash) (pkix.AlgorithmIdentifier, error) {
	switch signer.Public().(type) {
	case *ecdsa.PublicKey:
		return pkix.AlgorithmIdentifier{Algorithm: OIDECDSAWithSHA256}, nil
	case ed25519.PublicKey:
		return pkix.AlgorithmIdentifier{Algorithm: OIDEd25519}, nil
	case *rsa.PublicKey:
		return pkix.AlgorithmIdentifier{Algorithm: OIDSHA256WithRSA}, nil
	case *mldsa65.PublicKey:
		return pkix.AlgorithmIdentifier{Algorithm: OIDMLDSA65}, nil
	default:
		return pkix.AlgorithmIdentifier{}, fmt.Errorf("unsupported public key type: %T", signer.Public())
	}
}
