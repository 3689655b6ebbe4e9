package tsa

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPolicy is the token policy OID issued by this responder.
var DefaultPolicy = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 57264, 2, 1}

// Clock supplies the responder's time source. Swappable in tests.
type Clock func() time.Time

// Responder issues RFC 3161 timestamp tokens with a single signing identity.
type Responder struct {
	config    *TokenConfig
	serialGen SerialGenerator
	clock     Clock
	logger    zerolog.Logger
}

// ResponderOption adjusts a Responder.
type ResponderOption func(*Responder)

// WithClock replaces the time source.
func WithClock(clock Clock) ResponderOption {
	return func(r *Responder) { r.clock = clock }
}

// WithSerialGenerator replaces the serial allocator.
func WithSerialGenerator(gen SerialGenerator) ResponderOption {
	return func(r *Responder) { r.serialGen = gen }
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) ResponderOption {
	return func(r *Responder) { r.logger = logger }
}

// NewResponder builds a Responder around a TSA certificate and key.
func NewResponder(cert *x509.Certificate, signer crypto.Signer, opts ...ResponderOption) *Responder {
	r := &Responder{
		config: &TokenConfig{
			Certificate: cert,
			Signer:      signer,
			Policy:      DefaultPolicy,
			Accuracy:    Accuracy{Seconds: 1},
			IncludeTSA:  true,
		},
		serialGen: NewMonotonicSerialGenerator(0),
		clock:     time.Now,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Certificate returns the responder's signing certificate.
func (r *Responder) Certificate() *x509.Certificate {
	return r.config.Certificate
}

// Timestamp issues a token over an already-computed digest.
// The digest length must match alg or ErrMalformedRequest is returned.
func (r *Responder) Timestamp(ctx context.Context, digest []byte, alg crypto.Hash) (*Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req, err := NewRequest(digest, alg, nil, true)
	if err != nil {
		return nil, err
	}
	return r.respond(req)
}

// Respond answers a parsed TimeStampReq, mapping errors to PKIStatus
// failures instead of returning them.
func (r *Responder) Respond(ctx context.Context, der []byte) ([]byte, error) {
	req, err := ParseRequest(der)
	if err != nil {
		r.logger.Warn().Err(err).Msg("rejected timestamp request")
		return NewRejectionResponse(FailBadDataFormat, "malformed request").Marshal()
	}

	token, err := r.respond(req)
	switch {
	case errors.Is(err, ErrMalformedRequest):
		return NewRejectionResponse(FailBadAlg, "unsupported algorithm").Marshal()
	case err != nil:
		r.logger.Error().Err(err).Msg("timestamp issuance failed")
		return NewRejectionResponse(FailSystemFailure, "internal error").Marshal()
	}

	r.logger.Info().
		Str("serial", token.SerialNumber().String()).
		Time("gen_time", token.GenTime()).
		Msg("timestamp token issued")
	return NewGrantedResponse(token).Marshal()
}

func (r *Responder) respond(req *TimeStampReq) (*Token, error) {
	token, err := CreateToken(req, r.config, r.serialGen, r.clock())
	if err != nil {
		return nil, fmt.Errorf("failed to create token: %w", err)
	}
	return token, nil
}
