package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hestia-platform/esign/internal/signing"
)

// Memory is an in-process Store for tests and single-node deployments.
type Memory struct {
	mu        sync.RWMutex
	documents map[uuid.UUID]*DocumentRecord
	requests  map[uuid.UUID]*SignatureRequest
	byToken   map[uuid.UUID]uuid.UUID
	metadata  map[uuid.UUID][]*signing.SignatureMetadata
	journals  map[uuid.UUID][]byte
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		documents: make(map[uuid.UUID]*DocumentRecord),
		requests:  make(map[uuid.UUID]*SignatureRequest),
		byToken:   make(map[uuid.UUID]uuid.UUID),
		metadata:  make(map[uuid.UUID][]*signing.SignatureMetadata),
		journals:  make(map[uuid.UUID][]byte),
	}
}

func (m *Memory) SaveDocument(_ context.Context, rec *DocumentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.documents[rec.ID] = &cp
	return nil
}

func (m *Memory) GetDocument(_ context.Context, id uuid.UUID) (*DocumentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.documents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *Memory) UpdateDocumentStatus(_ context.Context, id uuid.UUID, status DocumentStatus, completedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.documents[id]
	if !ok {
		return ErrNotFound
	}
	rec.Status = status
	rec.UpdatedAt = time.Now().UTC()
	if completedAt != nil {
		rec.CompletedAt = completedAt
	}
	return nil
}

func (m *Memory) SaveRequest(_ context.Context, req *SignatureRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *req
	m.requests[req.ID] = &cp
	m.byToken[req.LinkToken] = req.ID
	return nil
}

func (m *Memory) GetRequestByToken(_ context.Context, token uuid.UUID) (*SignatureRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.requests[id]
	return &cp, nil
}

func (m *Memory) ListRequests(_ context.Context, documentID uuid.UUID) ([]*SignatureRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*SignatureRequest
	for _, req := range m.requests {
		if req.DocumentID == documentID {
			cp := *req
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) UpdateRequestStatus(_ context.Context, id uuid.UUID, status RequestStatus, completedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return ErrNotFound
	}
	req.Status = status
	if completedAt != nil {
		req.CompletedAt = completedAt
	}
	return nil
}

func (m *Memory) SaveMetadata(_ context.Context, meta *signing.SignatureMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *meta
	m.metadata[meta.DocumentID] = append(m.metadata[meta.DocumentID], &cp)
	return nil
}

func (m *Memory) ListMetadata(_ context.Context, documentID uuid.UUID) ([]*signing.SignatureMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.metadata[documentID]
	out := make([]*signing.SignatureMetadata, len(src))
	for i, meta := range src {
		cp := *meta
		out[i] = &cp
	}
	return out, nil
}

func (m *Memory) SaveJournal(_ context.Context, documentID uuid.UUID, sealed []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(sealed))
	copy(cp, sealed)
	m.journals[documentID] = cp
	return nil
}

func (m *Memory) GetJournal(_ context.Context, documentID uuid.UUID) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sealed, ok := m.journals[documentID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(sealed))
	copy(cp, sealed)
	return cp, nil
}
