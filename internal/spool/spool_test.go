package spool

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kensaku-io/kensaku/internal/models"
)

func openTestSpool(t *testing.T) *Spool {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "spool.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func chunks(ids ...string) []*models.Chunk {
	out := make([]*models.Chunk, len(ids))
	filename := "doc.pdf"
	for i, id := range ids {
		out[i] = &models.Chunk{
			ID:   id,
			Text: "text for " + id,
			Metadata: models.ChunkMetadata{
				Filename:    &filename,
				PageNumbers: []int{i + 1},
			},
		}
	}
	return out
}

func TestPutAndPending(t *testing.T) {
	s := openTestSpool(t)
	ctx := context.Background()

	if err := s.Put(ctx, "doc.pdf", chunks("a#0", "a#1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	pending, err := s.Pending(ctx, 0)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending chunks, got %d", len(pending))
	}
	if pending[0].ID != "a#0" || pending[1].ID != "a#1" {
		t.Errorf("pending order: %q, %q", pending[0].ID, pending[1].ID)
	}
	if pending[0].Metadata.Filename == nil || *pending[0].Metadata.Filename != "doc.pdf" {
		t.Errorf("metadata should round-trip: %+v", pending[0].Metadata)
	}
	if len(pending[0].Metadata.PageNumbers) != 1 || pending[0].Metadata.PageNumbers[0] != 1 {
		t.Errorf("page numbers should round-trip: %+v", pending[0].Metadata)
	}
}

func TestPendingLimit(t *testing.T) {
	s := openTestSpool(t)
	ctx := context.Background()
	if err := s.Put(ctx, "doc.pdf", chunks("a#0", "a#1", "a#2")); err != nil {
		t.Fatal(err)
	}
	pending, err := s.Pending(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Errorf("expected limit of 2, got %d", len(pending))
	}
}

func TestMarkIndexedAndFailed(t *testing.T) {
	s := openTestSpool(t)
	ctx := context.Background()
	if err := s.Put(ctx, "doc.pdf", chunks("a#0", "a#1", "a#2")); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkIndexed(ctx, []string{"a#0", "a#1"}); err != nil {
		t.Fatalf("MarkIndexed failed: %v", err)
	}
	if err := s.MarkFailed(ctx, []string{"a#2"}, "embedding failed"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	pending, err := s.Pending(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("marked chunks should leave the pending set, have %d", len(pending))
	}

	counts, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts.Indexed != 2 || counts.Failed != 1 || counts.Pending != 0 {
		t.Errorf("counts=%+v", counts)
	}
}

func TestPutResetsState(t *testing.T) {
	s := openTestSpool(t)
	ctx := context.Background()
	batch := chunks("a#0")
	if err := s.Put(ctx, "doc.pdf", batch); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkIndexed(ctx, []string{"a#0"}); err != nil {
		t.Fatal(err)
	}
	// Re-ingesting the same source puts its chunks back in play.
	if err := s.Put(ctx, "doc.pdf", batch); err != nil {
		t.Fatal(err)
	}
	pending, err := s.Pending(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Errorf("re-spooled chunk should be pending again, have %d", len(pending))
	}
}

func TestDeleteBySource(t *testing.T) {
	s := openTestSpool(t)
	ctx := context.Background()
	if err := s.Put(ctx, "a.pdf", chunks("a#0", "a#1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "b.pdf", chunks("b#0")); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteBySource(ctx, "a.pdf"); err != nil {
		t.Fatalf("DeleteBySource failed: %v", err)
	}
	pending, err := s.Pending(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != "b#0" {
		t.Errorf("pending after delete: %+v", pending)
	}
}

func TestOpenCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "spool.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open should create parent directories: %v", err)
	}
	_ = s.Close()
}
