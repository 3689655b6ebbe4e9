package signing

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderingViolation reports a pipeline step invoked out of order.
	// Surfaced immediately, never corrected.
	ErrOrderingViolation = errors.New("pipeline ordering violation")

	// ErrAlreadyCertified reports a second certification attempt.
	ErrAlreadyCertified = fmt.Errorf("%w: document already certified", ErrOrderingViolation)

	// ErrValidationContextIncomplete reports missing trust anchors.
	// Blocks finalization; the embedding step may be retried.
	ErrValidationContextIncomplete = errors.New("validation context incomplete")
)
