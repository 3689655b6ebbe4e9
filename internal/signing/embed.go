package signing

import (
	"crypto/x509"
	"fmt"

	"github.com/hestia-platform/esign/internal/document"
)

// TrustAnchors is the validation material embedded before finalization:
// enough for a verifier with no network access.
type TrustAnchors struct {
	Root          *x509.Certificate
	TSA           *x509.Certificate
	Intermediates []*x509.Certificate
	CRLs          [][]byte
}

// Validate checks the anchor set is complete.
func (a TrustAnchors) Validate() error {
	if a.Root == nil {
		return fmt.Errorf("%w: missing root certificate", ErrValidationContextIncomplete)
	}
	if a.TSA == nil {
		return fmt.Errorf("%w: missing timestamp authority certificate", ErrValidationContextIncomplete)
	}
	return nil
}

// EmbedValidationInfo appends the validation-info revision carrying the
// trust anchors. An incomplete anchor set blocks finalization.
func EmbedValidationInfo(doc *document.Document, anchors TrustAnchors) (*document.Document, error) {
	if err := anchors.Validate(); err != nil {
		return nil, err
	}

	ders := [][]byte{anchors.Root.Raw, anchors.TSA.Raw}
	for _, cert := range anchors.Intermediates {
		ders = append(ders, cert.Raw)
	}

	return document.NewMutator().ApplyRevision(doc, document.ValidationInfo{
		Anchors: ders,
		CRLs:    anchors.CRLs,
	})
}
