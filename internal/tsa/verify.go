package tsa

import (
	"bytes"
	"crypto/x509"
	"fmt"

	"github.com/hestia-platform/esign/internal/cms"
)

// VerifyOpts controls token verification.
type VerifyOpts struct {
	// Roots holds the trust anchors for the TSA certificate chain.
	Roots *x509.CertPool

	// Digest, when set, must equal the token's hashed message.
	Digest []byte

	// SkipCertVerify disables chain verification.
	SkipCertVerify bool
}

// VerifyToken checks the CMS signature over a timestamp token and, when a
// digest is supplied, that the token covers it.
func VerifyToken(token *Token, opts *VerifyOpts) error {
	if opts == nil {
		opts = &VerifyOpts{}
	}

	result, err := cms.Verify(token.SignedData, &cms.VerifyConfig{
		Roots:          opts.Roots,
		SkipCertVerify: opts.SkipCertVerify,
		CurrentTime:    token.GenTime(),
	})
	if err != nil {
		return fmt.Errorf("token signature verification failed: %w", err)
	}
	if !result.ContentType.Equal(cms.OIDTSTInfo) {
		return fmt.Errorf("token content type is not TSTInfo: %v", result.ContentType)
	}

	if opts.Digest != nil && !bytes.Equal(opts.Digest, token.HashedMessage()) {
		return fmt.Errorf("token message imprint does not match digest")
	}
	return nil
}
