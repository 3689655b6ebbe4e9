package document

import "errors"

var (
	// ErrFieldNotFound reports a reference to an undeclared signature field.
	ErrFieldNotFound = errors.New("signature field not found")

	// ErrFieldAlreadySigned reports a second signature on a filled field.
	ErrFieldAlreadySigned = errors.New("signature field already signed")

	// ErrDocumentLocked reports a mutation after the final document
	// timestamp. The document is terminal.
	ErrDocumentLocked = errors.New("document locked")

	// ErrNotAssignedToSigner reports a signature attempt on a field owned
	// by a different signer.
	ErrNotAssignedToSigner = errors.New("field not assigned to signer")

	// ErrIntegrity reports that previously written bytes no longer match
	// their recorded digest. Fatal for the document.
	ErrIntegrity = errors.New("revision chain integrity violation")
)
