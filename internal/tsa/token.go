package tsa

import (
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/hestia-platform/esign/internal/cms"
)

// TSTInfo is the timestamp token info (RFC 3161 Section 2.4.2).
type TSTInfo struct {
	Version        int
	Policy         asn1.ObjectIdentifier
	MessageImprint MessageImprint
	SerialNumber   *big.Int
	GenTime        time.Time
	Accuracy       Accuracy         `asn1:"optional"`
	Ordering       bool             `asn1:"optional,default:false"`
	Nonce          *big.Int         `asn1:"optional"`
	TSA            asn1.RawValue    `asn1:"optional,tag:0"`
	Extensions     []pkix.Extension `asn1:"optional,tag:1"`
}

// Accuracy bounds the timestamp precision (RFC 3161 Section 2.4.2).
type Accuracy struct {
	Seconds int `asn1:"optional"`
	Millis  int `asn1:"optional,tag:0"`
	Micros  int `asn1:"optional,tag:1"`
}

// IsZero reports whether the accuracy is unset.
func (a Accuracy) IsZero() bool {
	return a.Seconds == 0 && a.Millis == 0 && a.Micros == 0
}

// TokenConfig holds the options for issuing a timestamp token.
type TokenConfig struct {
	Certificate *x509.Certificate
	Signer      crypto.Signer
	Policy      asn1.ObjectIdentifier
	Accuracy    Accuracy
	Ordering    bool
	IncludeTSA  bool
}

// SerialGenerator allocates unique serial numbers for timestamp tokens.
type SerialGenerator interface {
	Next() (*big.Int, error)
}

// MonotonicSerialGenerator allocates strictly increasing serials,
// safe for concurrent use.
type MonotonicSerialGenerator struct {
	mu   sync.Mutex
	last int64
}

// NewMonotonicSerialGenerator starts allocation after the given serial.
func NewMonotonicSerialGenerator(start int64) *MonotonicSerialGenerator {
	return &MonotonicSerialGenerator{last: start}
}

// Next returns the next serial number.
func (g *MonotonicSerialGenerator) Next() (*big.Int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last++
	return big.NewInt(g.last), nil
}

// Token is a complete timestamp token.
type Token struct {
	Info       *TSTInfo
	SignedData []byte // DER ContentInfo wrapping the CMS SignedData
}

// CreateToken issues a timestamp token answering req.
func CreateToken(req *TimeStampReq, config *TokenConfig, serialGen SerialGenerator, now time.Time) (*Token, error) {
	if config.Certificate == nil || config.Signer == nil {
		return nil, fmt.Errorf("%w: signing identity not loaded", ErrAuthorityUnavailable)
	}
	if len(config.Policy) == 0 {
		return nil, fmt.Errorf("policy OID is required")
	}

	serial, err := serialGen.Next()
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial: %w", err)
	}

	tstInfo := TSTInfo{
		Version:        1,
		Policy:         config.Policy,
		MessageImprint: req.MessageImprint,
		SerialNumber:   serial,
		GenTime:        now.UTC().Truncate(time.Second),
		Ordering:       config.Ordering,
	}
	if req.Nonce != nil {
		tstInfo.Nonce = req.Nonce
	}
	if !config.Accuracy.IsZero() {
		tstInfo.Accuracy = config.Accuracy
	}
	if config.IncludeTSA {
		tstInfo.TSA = asn1.RawValue{
			Class:      asn1.ClassContextSpecific,
			Tag:        4,
			IsCompound: true,
			Bytes:      config.Certificate.RawSubject,
		}
	}

	tstInfoDER, err := asn1.Marshal(tstInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TSTInfo: %w", err)
	}

	hashAlg, err := req.HashAlgorithm()
	if err != nil {
		hashAlg = crypto.SHA256
	}

	signedData, err := cms.Sign(tstInfoDER, &cms.SignerConfig{
		Certificate:  config.Certificate,
		Signer:       config.Signer,
		DigestAlg:    hashAlg,
		IncludeCerts: req.CertReq,
		ContentType:  cms.OIDTSTInfo,
		SigningTime:  tstInfo.GenTime,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthorityUnavailable, err)
	}

	return &Token{Info: &tstInfo, SignedData: signedData}, nil
}

// ParseToken parses a DER-encoded timestamp token (CMS SignedData).
func ParseToken(data []byte) (*Token, error) {
	var contentInfo cms.ContentInfo
	rest, err := asn1.Unmarshal(data, &contentInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ContentInfo: %w", err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("trailing data after ContentInfo")
	}
	if !contentInfo.ContentType.Equal(cms.OIDSignedData) {
		return nil, fmt.Errorf("unexpected content type: %v", contentInfo.ContentType)
	}

	var signedData cms.SignedData
	if _, err := asn1.Unmarshal(contentInfo.Content.Bytes, &signedData); err != nil {
		return nil, fmt.Errorf("failed to parse SignedData: %w", err)
	}
	if !signedData.EncapContentInfo.EContentType.Equal(cms.OIDTSTInfo) {
		return nil, fmt.Errorf("unexpected encapsulated content type: %v",
			signedData.EncapContentInfo.EContentType)
	}

	var tstInfo TSTInfo
	if _, err := asn1.Unmarshal(signedData.EncapContentInfo.EContent.Bytes, &tstInfo); err != nil {
		return nil, fmt.Errorf("failed to parse TSTInfo: %w", err)
	}

	return &Token{Info: &tstInfo, SignedData: data}, nil
}

// GenTime returns the token's generation time.
func (t *Token) GenTime() time.Time {
	if t.Info == nil {
		return time.Time{}
	}
	return t.Info.GenTime
}

// SerialNumber returns the token's serial number.
func (t *Token) SerialNumber() *big.Int {
	if t.Info == nil {
		return nil
	}
	return t.Info.SerialNumber
}

// HashedMessage returns the digest from the message imprint.
func (t *Token) HashedMessage() []byte {
	if t.Info == nil {
		return nil
	}
	return t.Info.MessageImprint.HashedMessage
}
