package cms

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"time"

	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
)

// VerifyConfig carries options for verifying a SignedData.
type VerifyConfig struct {
	// Roots is the trusted anchor pool. Chain verification is skipped
	// when nil or when SkipCertVerify is set.
	Roots         *x509.CertPool
	Intermediates *x509.CertPool
	CurrentTime   time.Time

	// Data supplies the content for detached signatures.
	Data []byte

	SkipCertVerify bool
}

// VerifyResult reports a successful verification.
type VerifyResult struct {
	SignerCert  *x509.Certificate
	Content     []byte
	SigningTime time.Time
	ContentType asn1.ObjectIdentifier
}

// Verify checks a DER-encoded CMS ContentInfo wrapping SignedData.
func Verify(signedDataDER []byte, config *VerifyConfig) (*VerifyResult, error) {
	if config == nil {
		config = &VerifyConfig{}
	}

	var contentInfo ContentInfo
	if _, err := asn1.Unmarshal(signedDataDER, &contentInfo); err != nil {
		return nil, fmt.Errorf("failed to parse ContentInfo: %w", err)
	}
	if !contentInfo.ContentType.Equal(OIDSignedData) {
		return nil, fmt.Errorf("not a SignedData structure, got OID %v", contentInfo.ContentType)
	}

	var signedData SignedData
	if _, err := asn1.Unmarshal(contentInfo.Content.Bytes, &signedData); err != nil {
		return nil, fmt.Errorf("failed to parse SignedData: %w", err)
	}

	signerCert, err := extractSignerCert(&signedData)
	if err != nil {
		return nil, err
	}

	if !config.SkipCertVerify && config.Roots != nil {
		opts := x509.VerifyOptions{
			Roots:         config.Roots,
			Intermediates: config.Intermediates,
			KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
		}
		if !config.CurrentTime.IsZero() {
			opts.CurrentTime = config.CurrentTime
		}
		if _, err := signerCert.Verify(opts); err != nil {
			return nil, fmt.Errorf("certificate chain verification failed: %w", err)
		}
	}

	if len(signedData.SignerInfos) == 0 {
		return nil, fmt.Errorf("no signer info in SignedData")
	}
	signerInfo := signedData.SignerInfos[0]

	content := signedContent(&signedData, config)
	if err := verifySignerInfo(&signerInfo, signerCert, content); err != nil {
		return nil, err
	}

	result := &VerifyResult{
		SignerCert:  signerCert,
		ContentType: signedData.EncapContentInfo.EContentType,
		SigningTime: extractSigningTime(signerInfo.SignedAttrs),
	}
	if signedData.EncapContentInfo.EContent.Bytes != nil {
		result.Content = signedData.EncapContentInfo.EContent.Bytes
	}
	return result, nil
}

func signedContent(signedData *SignedData, config *VerifyConfig) []byte {
	if len(config.Data) > 0 {
		return config.Data
	}
	return signedData.EncapContentInfo.EContent.Bytes
}

func extractSignerCert(signedData *SignedData) (*x509.Certificate, error) {
	if len(signedData.Certificates.Raw) == 0 {
		return nil, fmt.Errorf("no signer certificate found in SignedData")
	}
	var rawVal asn1.RawValue
	if _, err := asn1.Unmarshal(signedData.Certificates.Raw, &rawVal); err != nil {
		return nil, fmt.Errorf("failed to parse certificate set: %w", err)
	}
	cert, err := x509.ParseCertificate(rawVal.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signer certificate: %w", err)
	}
	return cert, nil
}

func verifySignerInfo(signerInfo *SignerInfo, cert *x509.Certificate, content []byte) error {
	hashAlg, err := oidToHash(signerInfo.DigestAlgorithm.Algorithm)
	if err != nil {
		return err
	}

	if len(signerInfo.SignedAttrs) == 0 {
		return verifySignatureBytes(content, signerInfo.Signature, cert, hashAlg)
	}

	contentDigest, err := computeDigest(content, hashAlg)
	if err != nil {
		return fmt.Errorf("failed to compute content digest: %w", err)
	}

	found := false
	for _, attr := range signerInfo.SignedAttrs {
		if attr.Type.Equal(OIDMessageDigest) && len(attr.Values) > 0 {
			var md []byte
			if _, err := asn1.Unmarshal(attr.Values[0].FullBytes, &md); err != nil {
				return fmt.Errorf("failed to parse message digest: %w", err)
			}
			if !bytes.Equal(md, contentDigest) {
				return fmt.Errorf("message digest mismatch")
			}
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("no message digest attribute found")
	}

	signedAttrsDER, err := MarshalSignedAttrs(signerInfo.SignedAttrs)
	if err != nil {
		return fmt.Errorf("failed to marshal signed attributes: %w", err)
	}
	return verifySignatureBytes(signedAttrsDER, signerInfo.Signature, cert, hashAlg)
}

func verifySignatureBytes(data, signature []byte, cert *x509.Certificate, hashAlg crypto.Hash) error {
	switch pub := cert.PublicKey.(type) {
	case *ecdsa.PublicKey:
		digest, err := computeDigest(data, hashAlg)
		if err != nil {
			return err
		}
		if !ecdsa.VerifyASN1(pub, digest, signature) {
			return fmt.Errorf("ECDSA signature verification failed")
		}
		return nil

	case ed25519.PublicKey:
		if !ed25519.Verify(pub, data, signature) {
			return fmt.Errorf("Ed25519 signature verification failed")
		}
		return nil

	case *rsa.PublicKey:
		digest, err := computeDigest(data, hashAlg)
		if err != nil {
			return err
		}
		if err := rsa.VerifyPKCS1v15(pub, hashAlg, digest, signature); err != nil {
			return fmt.Errorf("RSA signature verification failed: %w", err)
		}
		return nil

	case *mldsa65.PublicKey:
		if !mldsa65.Verify(pub, data, nil, signature) {
			return fmt.Errorf("ML-DSA-65 signature verification failed")
		}
		return nil

	default:
		return fmt.Errorf("unsupported public key type for verification: %T", cert.PublicKey)
	}
}

func oidToHash(oid asn1.ObjectIdentifier) (crypto.Hash, error) {
	switch {
	case oid.Equal(OIDSHA256):
		return crypto.SHA256, nil
	case oid.Equal(OIDSHA384):
		return crypto.SHA384, nil
	case oid.Equal(OIDSHA512):
		return crypto.SHA512, nil
	default:
		return 0, fmt.Errorf("unsupported hash algorithm: %v", oid)
	}
}

func extractSigningTime(attrs []Attribute) time.Time {
	for _, attr := range attrs {
		if attr.Type.Equal(OIDSigningTime) && len(attr.Values) > 0 {
			var t time.Time
			if _, err := asn1.Unmarshal(attr.Values[0].FullBytes, &t); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}
