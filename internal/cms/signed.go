package cms

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"time"
)

// The types below mirror the RFC 5652 ASN.1 module closely enough for
// encoding/asn1 to round-trip them. Field order and tags are fixed by the
// RFC; anything optional that this pipeline never emits (counter-signatures,
// multiple digest algorithms per signer) is still parsed so foreign
// envelopes verify.

// ContentInfo wraps every CMS payload with its content-type OID (RFC 5652,
// section 3).
type ContentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,tag:0"`
}

// SignedData is the signature envelope itself (RFC 5652, section 5.1).
type SignedData struct {
	Version          int
	DigestAlgorithms []pkix.AlgorithmIdentifier `asn1:"set"`
	EncapContentInfo EncapsulatedContentInfo
	Certificates     certificateSet  `asn1:"optional,tag:0"`
	CRLs             []asn1.RawValue `asn1:"optional,set,tag:1"`
	SignerInfos      []SignerInfo    `asn1:"set"`
}

// certificateSet keeps the IMPLICIT [0] certificate bag as raw DER. Going
// through x509.Certificate here would re-encode and could break signatures
// over the exact bytes.
type certificateSet struct {
	Raw asn1.RawContent
}

// EncapsulatedContentInfo holds the signed content, or only its type OID in
// detached mode (RFC 5652, section 5.2).
type EncapsulatedContentInfo struct {
	EContentType asn1.ObjectIdentifier
	EContent     asn1.RawValue `asn1:"optional,explicit,tag:0"`
}

// SignerInfo carries one signature and the attributes it covers (RFC 5652,
// section 5.3).
type SignerInfo struct {
	Version            int
	SID                SignerIdentifier
	DigestAlgorithm    pkix.AlgorithmIdentifier
	SignedAttrs        []Attribute `asn1:"optional,tag:0"`
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Signature          []byte
	UnsignedAttrs      []Attribute `asn1:"optional,tag:1"`
}

// SignerIdentifier points at the signing certificate.
type SignerIdentifier struct {
	IssuerAndSerialNumber IssuerAndSerialNumber
}

// IssuerAndSerialNumber names a certificate by issuer DN plus serial, the
// version-1 SignerInfo form.
type IssuerAndSerialNumber struct {
	Issuer       asn1.RawValue
	SerialNumber *big.Int
}

// Attribute is one signed or unsigned attribute.
type Attribute struct {
	Type   asn1.ObjectIdentifier
	Values []asn1.RawValue `asn1:"set"`
}

func newAttribute(oid asn1.ObjectIdentifier, value any) (Attribute, error) {
	encoded, err := asn1.Marshal(value)
	if err != nil {
		return Attribute{}, err
	}
	return Attribute{
		Type:   oid,
		Values: []asn1.RawValue{{FullBytes: encoded}},
	}, nil
}

// SignedAttributes builds the attribute set this pipeline signs: the
// content type, the message digest and the signing time. RFC 5652 makes the
// first two mandatory whenever signed attributes are present at all.
func SignedAttributes(contentType asn1.ObjectIdentifier, digest []byte, signingTime time.Time) ([]Attribute, error) {
	contentTypeAttr, err := newAttribute(OIDContentType, contentType)
	if err != nil {
		return nil, err
	}
	digestAttr, err := newAttribute(OIDMessageDigest, digest)
	if err != nil {
		return nil, err
	}
	timeAttr, err := newAttribute(OIDSigningTime, signingTime.UTC())
	if err != nil {
		return nil, err
	}
	return []Attribute{contentTypeAttr, digestAttr, timeAttr}, nil
}

// MarshalSignedAttrs produces the DER the signature actually covers. The
// attributes live in the envelope under an IMPLICIT [0] tag but are signed
// as a plain SET OF, so the outer tag byte must read 0x31 before hashing.
func MarshalSignedAttrs(attrs []Attribute) ([]byte, error) {
	encoded, err := asn1.Marshal(attrs)
	if err != nil {
		return nil, err
	}
	if len(encoded) > 0 && encoded[0] == 0x30 {
		encoded[0] = 0x31
	}
	return encoded, nil
}
