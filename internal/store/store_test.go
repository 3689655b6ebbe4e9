package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hestia-platform/esign/internal/signing"
)

func TestU_MemoryDocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	id := uuid.New()
	now := time.Now().UTC()
	rec := &DocumentRecord{ID: id, Title: "Lease", Status: StatusDraft, CreatedAt: now, UpdatedAt: now}
	if err := mem.SaveDocument(ctx, rec); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}

	got, err := mem.GetDocument(ctx, id)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Status != StatusDraft {
		t.Errorf("status = %s, want %s", got.Status, StatusDraft)
	}

	// Mutating the returned record must not affect the store.
	got.Title = "mutated"
	again, _ := mem.GetDocument(ctx, id)
	if again.Title != "Lease" {
		t.Error("store returned a shared record")
	}

	done := now.Add(time.Hour)
	if err := mem.UpdateDocumentStatus(ctx, id, StatusSigned, &done); err != nil {
		t.Fatalf("UpdateDocumentStatus: %v", err)
	}
	got, _ = mem.GetDocument(ctx, id)
	if got.Status != StatusSigned || got.CompletedAt == nil || !got.CompletedAt.Equal(done) {
		t.Errorf("unexpected record after update: %+v", got)
	}

	if _, err := mem.GetDocument(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing document: got %v, want ErrNotFound", err)
	}
	if err := mem.UpdateDocumentStatus(ctx, uuid.New(), StatusCancelled, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing document update: got %v, want ErrNotFound", err)
	}
}

func TestU_MemoryRequestsByToken(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	docID := uuid.New()
	req := &SignatureRequest{
		ID:         uuid.New(),
		DocumentID: docID,
		SignerID:   uuid.New(),
		SignerName: "Alice Martin",
		Field:      "tenant",
		LinkToken:  uuid.New(),
		Status:     RequestPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := mem.SaveRequest(ctx, req); err != nil {
		t.Fatalf("SaveRequest: %v", err)
	}

	got, err := mem.GetRequestByToken(ctx, req.LinkToken)
	if err != nil {
		t.Fatalf("GetRequestByToken: %v", err)
	}
	if got.ID != req.ID || got.Field != "tenant" {
		t.Errorf("unexpected request: %+v", got)
	}

	if _, err := mem.GetRequestByToken(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown token: got %v, want ErrNotFound", err)
	}

	list, err := mem.ListRequests(ctx, docID)
	if err != nil {
		t.Fatalf("ListRequests: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len(list) = %d, want 1", len(list))
	}

	done := time.Now().UTC()
	if err := mem.UpdateRequestStatus(ctx, req.ID, RequestCompleted, &done); err != nil {
		t.Fatalf("UpdateRequestStatus: %v", err)
	}
	got, _ = mem.GetRequestByToken(ctx, req.LinkToken)
	if got.Status != RequestCompleted {
		t.Errorf("status = %s, want %s", got.Status, RequestCompleted)
	}
}

func TestU_MemoryMetadataAndJournal(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	docID := uuid.New()

	for i := 0; i < 2; i++ {
		meta := &signing.SignatureMetadata{
			ID:         uuid.New(),
			DocumentID: docID,
			SignerID:   uuid.New(),
			Field:      string(rune('a' + i)),
			SignedAt:   time.Now().UTC(),
		}
		if err := mem.SaveMetadata(ctx, meta); err != nil {
			t.Fatalf("SaveMetadata: %v", err)
		}
	}
	list, err := mem.ListMetadata(ctx, docID)
	if err != nil {
		t.Fatalf("ListMetadata: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}

	if _, err := mem.GetJournal(ctx, docID); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing journal: got %v, want ErrNotFound", err)
	}
	sealed := []byte{0xd2, 0x84, 0x01, 0x02}
	if err := mem.SaveJournal(ctx, docID, sealed); err != nil {
		t.Fatalf("SaveJournal: %v", err)
	}
	got, err := mem.GetJournal(ctx, docID)
	if err != nil {
		t.Fatalf("GetJournal: %v", err)
	}
	if len(got) != len(sealed) {
		t.Errorf("journal length = %d, want %d", len(got), len(sealed))
	}

	got[0] = 0x00
	again, _ := mem.GetJournal(ctx, docID)
	if again[0] != 0xd2 {
		t.Error("store returned a shared journal buffer")
	}
}

func TestU_TerminalStatuses(t *testing.T) {
	cases := []struct {
		status   DocumentStatus
		terminal bool
	}{
		{StatusDraft, false},
		{StatusCertified, false},
		{StatusSigning, false},
		{StatusSigned, true},
		{StatusCancelled, true},
	}
	for _, tc := range cases {
		if got := tc.status.Terminal(); got != tc.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tc.status, got, tc.terminal)
		}
	}
}
