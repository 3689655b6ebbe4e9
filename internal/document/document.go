// Package document models a signable document as an immutable base payload
// followed by an append-only chain of framed revisions. Bytes already
// written are never altered; every revision pins the byte image it was
// appended to by length and digest.
package document

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"
)

// Field is a signature field declared at document creation. Each field is
// owned by one expected signer and can be filled exactly once.
type Field struct {
	Name  string
	Owner uuid.UUID

	// FilledAt is the revision index that filled the field, -1 if unfilled.
	FilledAt int
}

// Filled reports whether the field carries a signature.
func (f Field) Filled() bool { return f.FilledAt >= 0 }

// Document is an immutable snapshot of a signable document. Mutations go
// through Mutator.ApplyRevision, which returns a new snapshot.
type Document struct {
	id        uuid.UUID
	title     string
	base      []byte
	fields    []Field
	revisions []Revision
}

// New creates a document from its base payload and declared fields.
func New(id uuid.UUID, title string, base []byte, fields []Field) (*Document, error) {
	seen := make(map[string]bool, len(fields))
	declared := make([]Field, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("field %d has no name", i)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = true
		declared[i] = Field{Name: f.Name, Owner: f.Owner, FilledAt: -1}
	}
	baseCopy := make([]byte, len(base))
	copy(baseCopy, base)
	return &Document{id: id, title: title, base: baseCopy, fields: declared}, nil
}

// ID returns the document identifier.
func (d *Document) ID() uuid.UUID { return d.id }

// Title returns the document title.
func (d *Document) Title() string { return d.title }

// Fields returns a copy of the field table.
func (d *Document) Fields() []Field {
	out := make([]Field, len(d.fields))
	copy(out, d.fields)
	return out
}

// Field looks up a declared field by name.
func (d *Document) Field(name string) (Field, error) {
	for _, f := range d.fields {
		if f.Name == name {
			return f, nil
		}
	}
	return Field{}, fmt.Errorf("%w: %q", ErrFieldNotFound, name)
}

// UnfilledFields returns the names of fields not yet signed.
func (d *Document) UnfilledFields() []string {
	var names []string
	for _, f := range d.fields {
		if !f.Filled() {
			names = append(names, f.Name)
		}
	}
	return names
}

// Revisions returns the applied revisions in order.
func (d *Document) Revisions() []Revision {
	out := make([]Revision, len(d.revisions))
	copy(out, d.revisions)
	return out
}

// RevisionCount returns the number of applied revisions.
func (d *Document) RevisionCount() int { return len(d.revisions) }

// Certified reports whether the lock revision has been applied.
func (d *Document) Certified() bool {
	return len(d.revisions) > 0 && d.revisions[0].Kind == KindLock
}

// Locked reports whether the final timestamp revision has been applied.
func (d *Document) Locked() bool {
	n := len(d.revisions)
	return n > 0 && d.revisions[n-1].Kind == KindTimestamp
}

// Bytes returns the full document image: base payload followed by every
// revision block in order.
func (d *Document) Bytes() []byte {
	return d.BytesAt(len(d.revisions))
}

// BytesAt returns the exact byte image before revision n was applied.
func (d *Document) BytesAt(n int) []byte {
	size := len(d.base)
	for i := 0; i < n && i < len(d.revisions); i++ {
		size += len(d.revisions[i].Block)
	}
	out := make([]byte, 0, size)
	out = append(out, d.base...)
	for i := 0; i < n && i < len(d.revisions); i++ {
		out = append(out, d.revisions[i].Block...)
	}
	return out
}

// BaseDigest returns the SHA-256 digest of the base payload.
func (d *Document) BaseDigest() [32]byte {
	return sha256.Sum256(d.base)
}

// Digest returns the SHA-256 digest of the full document image.
func (d *Document) Digest() [32]byte {
	return sha256.Sum256(d.Bytes())
}

// VerifyChain recomputes every recorded pre-image digest against the
// actual bytes. ErrIntegrity on any mismatch.
func (d *Document) VerifyChain() error {
	for i, rev := range d.revisions {
		image := d.BytesAt(i)
		if rev.PrevLen != len(image) {
			return fmt.Errorf("%w: revision %d expects pre-image length %d, have %d",
				ErrIntegrity, i, rev.PrevLen, len(image))
		}
		digest := sha256.Sum256(image)
		if !bytes.Equal(rev.PrevDigest, digest[:]) {
			return fmt.Errorf("%w: revision %d pre-image digest mismatch", ErrIntegrity, i)
		}
	}
	return nil
}

// clone returns a shallow-copied snapshot sharing base bytes and revision
// blocks, with its own field and revision tables.
func (d *Document) clone() *Document {
	out := &Document{
		id:        d.id,
		title:     d.title,
		base:      d.base,
		fields:    make([]Field, len(d.fields)),
		revisions: make([]Revision, len(d.revisions), len(d.revisions)+1),
	}
	copy(out.fields, d.fields)
	copy(out.revisions, d.revisions)
	return out
}
