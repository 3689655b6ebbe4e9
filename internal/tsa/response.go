package tsa

import (
	"encoding/asn1"
	"fmt"
)

// PKIStatus values (RFC 3161 Section 2.4.2).
const (
	StatusGranted         = 0
	StatusGrantedWithMods = 1
	StatusRejection       = 2
)

// PKIFailureInfo bits (RFC 3161 Section 2.4.2).
const (
	FailBadAlg           = 0
	FailBadRequest       = 2
	FailBadDataFormat    = 5
	FailTimeNotAvailable = 14
	FailSystemFailure    = 25
)

// TimeStampResp is the wire response (RFC 3161 Section 2.4.2).
type TimeStampResp struct {
	Status         PKIStatusInfo
	TimeStampToken asn1.RawValue `asn1:"optional"`
}

// PKIStatusInfo carries the request status.
type PKIStatusInfo struct {
	Status       int
	StatusString []string       `asn1:"optional"`
	FailInfo     asn1.BitString `asn1:"optional"`
}

// Response is a decoded timestamp response.
type Response struct {
	Status PKIStatusInfo
	Token  *Token
}

// NewGrantedResponse wraps a token in a granted response.
func NewGrantedResponse(token *Token) *Response {
	return &Response{
		Status: PKIStatusInfo{Status: StatusGranted},
		Token:  token,
	}
}

// NewRejectionResponse builds a rejection with the given failure bit.
func NewRejectionResponse(failInfo int, message string) *Response {
	status := PKIStatusInfo{Status: StatusRejection}
	if message != "" {
		status.StatusString = []string{message}
	}
	status.FailInfo = failInfoBitString(failInfo)
	return &Response{Status: status}
}

func failInfoBitString(bit int) asn1.BitString {
	bytes := make([]byte, bit/8+1)
	bytes[bit/8] = 1 << uint(7-(bit%8))
	padding := (8 - (bit%8 + 1)) % 8
	return asn1.BitString{
		Bytes:     bytes,
		BitLength: len(bytes)*8 - padding,
	}
}

// Marshal encodes the response as DER.
func (r *Response) Marshal() ([]byte, error) {
	resp := TimeStampResp{Status: r.Status}
	if r.Token != nil && r.Status.Status == StatusGranted {
		resp.TimeStampToken = asn1.RawValue{FullBytes: r.Token.SignedData}
	}
	return asn1.Marshal(resp)
}

// ParseResponse parses a DER-encoded TimeStampResp.
func ParseResponse(data []byte) (*Response, error) {
	var resp TimeStampResp
	rest, err := asn1.Unmarshal(data, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TimeStampResp: %w", err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("trailing data after TimeStampResp")
	}

	response := &Response{Status: resp.Status}
	if len(resp.TimeStampToken.FullBytes) > 0 {
		token, err := ParseToken(resp.TimeStampToken.FullBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse token: %w", err)
		}
		response.Token = token
	}
	return response, nil
}

// IsGranted reports whether the response carries a token.
func (r *Response) IsGranted() bool {
	return r.Status.Status == StatusGranted || r.Status.Status == StatusGrantedWithMods
}

// FailureString returns a human-readable failure reason.
func (r *Response) FailureString() string {
	if len(r.Status.StatusString) > 0 {
		return r.Status.StatusString[0]
	}
	for i := 0; i < r.Status.FailInfo.BitLength; i++ {
		if r.Status.FailInfo.At(i) == 1 {
			return failureInfoString(i)
		}
	}
	return ""
}

func failureInfoString(bit int) string {
	switch bit {
	case FailBadAlg:
		return "unrecognized or unsupported algorithm"
	case FailBadRequest:
		return "transaction not permitted or supported"
	case FailBadDataFormat:
		return "data submitted has wrong format"
	case FailTimeNotAvailable:
		return "time source not available"
	case FailSystemFailure:
		return "system failure"
	default:
		return fmt.Sprintf("failure bit %d", bit)
	}
}
