package document

import (
	"crypto/sha256"
	"fmt"
)

// Mutator appends revisions to documents. The only mutation primitive in
// the pipeline: every change is a new framed block after the prior bytes.
type Mutator struct{}

// NewMutator returns a Mutator.
func NewMutator() *Mutator { return &Mutator{} }

// ApplyRevision appends one revision and returns the new snapshot. The
// input document is left untouched. The existing chain is re-verified
// before the append; a mismatch is fatal for the document.
func (m *Mutator) ApplyRevision(doc *Document, spec RevisionSpec) (*Document, error) {
	if err := doc.VerifyChain(); err != nil {
		return nil, err
	}
	if doc.Locked() {
		return nil, fmt.Errorf("%w: document %s has its final timestamp", ErrDocumentLocked, doc.ID())
	}

	next := doc.clone()
	if spec.kind() == KindSignature {
		if err := fillField(next, spec.(SignField)); err != nil {
			return nil, err
		}
	}

	payload, err := spec.payload()
	if err != nil {
		return nil, err
	}

	image := doc.Bytes()
	digest := sha256.Sum256(image)
	block := revisionBlock{
		Kind:       spec.kind(),
		Index:      len(doc.revisions),
		PrevLen:    len(image),
		PrevDigest: digest[:],
		Payload:    payload,
	}
	encoded, err := encodeBlock(block)
	if err != nil {
		return nil, err
	}

	next.revisions = append(next.revisions, Revision{
		Kind:       block.Kind,
		Index:      block.Index,
		PrevLen:    block.PrevLen,
		PrevDigest: block.PrevDigest,
		Payload:    block.Payload,
		Block:      encoded,
	})
	return next, nil
}

func fillField(doc *Document, spec SignField) error {
	for i, f := range doc.fields {
		if f.Name != spec.Field {
			continue
		}
		if f.Filled() {
			return fmt.Errorf("%w: %q", ErrFieldAlreadySigned, spec.Field)
		}
		if f.Owner != spec.SignerID {
			return fmt.Errorf("%w: %q belongs to %s", ErrNotAssignedToSigner, spec.Field, f.Owner)
		}
		doc.fields[i].FilledAt = len(doc.revisions)
		return nil
	}
	return fmt.Errorf("%w: %q", ErrFieldNotFound, spec.Field)
}
