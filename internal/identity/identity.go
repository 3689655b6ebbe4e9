// Package identity describes the parties that sign documents and the
// confirmation gate each must pass before signing.
package identity

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrIdentityNotConfirmed reports a signature attempt by a signer whose
// identity confirmation is absent or expired. Not retryable at this layer.
var ErrIdentityNotConfirmed = errors.New("signer identity not confirmed")

// Kind distinguishes account-backed signers from external ones.
type Kind string

const (
	// KindAccount is a signer with a platform account.
	KindAccount Kind = "account"

	// KindExternal is a signer known only by name and email.
	KindExternal Kind = "external"
)

// Signer identifies one signing party. External signers have no AccountID.
type Signer struct {
	ID        uuid.UUID
	Kind      Kind
	AccountID string
	Name      string
	Email     string
}

// DisplayName returns the name shown in certificates and journals.
func (s Signer) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Email
}

// Confirmation records the outcome of an identity check (for example a
// delivered one-time code). The engine only inspects Confirmed; how the
// confirmation was obtained is the confirmer's business.
type Confirmation struct {
	Confirmed   bool
	Method      string
	Reference   string
	ConfirmedAt time.Time
}

// Confirmer checks a presented code against the reference recorded when
// the confirmation challenge was delivered. Implementations check one-time
// codes, validate sessions, or similar.
type Confirmer interface {
	Confirm(ctx context.Context, reference, code string) (Confirmation, error)
}

// OTPConfirmer compares a presented one-time code against the delivered
// reference in constant time. A mismatch yields an unconfirmed result,
// not an error: the caller decides how to respond.
type OTPConfirmer struct{}

var _ Confirmer = OTPConfirmer{}

// Confirm checks the code.
func (OTPConfirmer) Confirm(_ context.Context, reference, code string) (Confirmation, error) {
	if reference == "" || subtle.ConstantTimeCompare([]byte(reference), []byte(code)) != 1 {
		return Confirmation{Method: "otp"}, nil
	}
	return Confirmation{
		Confirmed:   true,
		Method:      "otp",
		Reference:   reference,
		ConfirmedAt: time.Now().UTC(),
	}, nil
}

// RequestContext captures the HTTP-level facts recorded alongside a
// signature for forensic purposes.
type RequestContext struct {
	IPAddress string
	UserAgent string
}
