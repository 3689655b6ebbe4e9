package api

import (
	"errors"
	"net/http"

	"github.com/hestia-platform/esign/internal/authority"
	"github.com/hestia-platform/esign/internal/document"
	"github.com/hestia-platform/esign/internal/identity"
	"github.com/hestia-platform/esign/internal/signing"
	"github.com/hestia-platform/esign/internal/store"
	"github.com/hestia-platform/esign/internal/tsa"
)

// Error codes for API responses.
const (
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeNotFound             = "NOT_FOUND"
	CodeOrderingViolation    = "ORDERING_VIOLATION"
	CodeAlreadyCertified     = "ALREADY_CERTIFIED"
	CodeFieldAlreadySigned   = "FIELD_ALREADY_SIGNED"
	CodeNotAssigned          = "NOT_ASSIGNED_TO_SIGNER"
	CodeDocumentLocked       = "DOCUMENT_LOCKED"
	CodeIdentityNotConfirmed = "IDENTITY_NOT_CONFIRMED"
	CodeIntegrity            = "INTEGRITY_FAILURE"
	CodeAuthorityUnavailable = "AUTHORITY_UNAVAILABLE"
	CodeTransientAuthority   = "AUTHORITY_RETRY"
	CodeIncompleteContext    = "VALIDATION_CONTEXT_INCOMPLETE"
	CodeInternal             = "INTERNAL_ERROR"
)

// MapError maps an internal error to an HTTP status code and APIError.
func MapError(err error) (int, *APIError) {
	if err == nil {
		return http.StatusOK, nil
	}

	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, document.ErrFieldNotFound):
		return http.StatusNotFound, &APIError{Code: CodeNotFound, Message: err.Error()}

	case errors.Is(err, signing.ErrAlreadyCertified):
		return http.StatusConflict, &APIError{Code: CodeAlreadyCertified, Message: err.Error()}

	case errors.Is(err, document.ErrFieldAlreadySigned):
		return http.StatusConflict, &APIError{Code: CodeFieldAlreadySigned, Message: err.Error()}

	case errors.Is(err, signing.ErrOrderingViolation):
		return http.StatusConflict, &APIError{Code: CodeOrderingViolation, Message: err.Error()}

	case errors.Is(err, document.ErrNotAssignedToSigner):
		return http.StatusForbidden, &APIError{Code: CodeNotAssigned, Message: err.Error()}

	case errors.Is(err, document.ErrDocumentLocked):
		return http.StatusConflict, &APIError{Code: CodeDocumentLocked, Message: err.Error()}

	case errors.Is(err, identity.ErrIdentityNotConfirmed):
		return http.StatusUnauthorized, &APIError{Code: CodeIdentityNotConfirmed, Message: err.Error()}

	case errors.Is(err, document.ErrIntegrity):
		return http.StatusUnprocessableEntity, &APIError{Code: CodeIntegrity, Message: err.Error()}

	case errors.Is(err, signing.ErrValidationContextIncomplete):
		return http.StatusPreconditionFailed, &APIError{Code: CodeIncompleteContext, Message: err.Error()}

	case errors.Is(err, tsa.ErrMalformedRequest):
		return http.StatusBadRequest, &APIError{Code: CodeInvalidRequest, Message: err.Error()}

	case errors.Is(err, tsa.ErrTransientAuthority):
		return http.StatusServiceUnavailable, &APIError{Code: CodeTransientAuthority, Message: err.Error()}

	case errors.Is(err, tsa.ErrAuthorityUnavailable),
		errors.Is(err, authority.ErrAuthorityUnavailable):
		return http.StatusInternalServerError, &APIError{Code: CodeAuthorityUnavailable, Message: err.Error()}
	}

	return http.StatusInternalServerError, &APIError{
		Code:    CodeInternal,
		Message: "An internal error occurred",
	}
}
