package sqlite

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/scrypster/notouch/internal/storage"
	"github.com/scrypster/notouch/pkg/types"
)

func newTestRepository(t *testing.T) *ExampleRepository {
	t.Helper()
	repo, err := NewExampleRepository(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func example(id string, label types.Label, v ...float64) types.Example {
	return types.Example{
		ID:        id,
		Label:     label,
		Embedding: v,
		SessionID: "session-1",
		CreatedAt: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
	}
}

func TestSaveAndLoadPreservesOrder(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	want := []types.Example{
		example("c", types.LabelFlagged, 0.9, 0.8),
		example("a", types.LabelNeutral, 0.1, 0.2),
		example("b", types.LabelFlagged, 1, math.Inf(1)),
	}
	for _, ex := range want {
		if err := repo.Save(ctx, ex); err != nil {
			t.Fatalf("Save(%s) failed: %v", ex.ID, err)
		}
	}

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d examples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ID != want[i].ID {
			t.Errorf("position %d: expected ID %s, got %s", i, want[i].ID, got[i].ID)
		}
		if got[i].Label != want[i].Label {
			t.Errorf("%s: expected label %s, got %s", want[i].ID, want[i].Label, got[i].Label)
		}
		if got[i].SessionID != "session-1" {
			t.Errorf("%s: expected session-1, got %q", want[i].ID, got[i].SessionID)
		}
		if !got[i].CreatedAt.Equal(want[i].CreatedAt) {
			t.Errorf("%s: expected created_at %v, got %v", want[i].ID, want[i].CreatedAt, got[i].CreatedAt)
		}
		if len(got[i].Embedding) != len(want[i].Embedding) {
			t.Fatalf("%s: expected dimension %d, got %d", want[i].ID, len(want[i].Embedding), len(got[i].Embedding))
		}
		for j := range want[i].Embedding {
			if got[i].Embedding[j] != want[i].Embedding[j] {
				t.Errorf("%s[%d]: expected %v, got %v", want[i].ID, j, want[i].Embedding[j], got[i].Embedding[j])
			}
		}
	}
}

func TestSaveIsIdempotent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	ex := example("dup", types.LabelFlagged, 1, 2)
	for i := 0; i < 3; i++ {
		if err := repo.Save(ctx, ex); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 example, got %d", len(got))
	}
}

func TestSaveValidation(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	tests := []struct {
		name string
		ex   types.Example
	}{
		{"missing ID", types.Example{Label: "1", Embedding: types.Embedding{1}}},
		{"missing label", types.Example{ID: "x", Embedding: types.Embedding{1}}},
		{"empty embedding", types.Example{ID: "x", Label: "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Save(ctx, tt.ex)
			if !errors.Is(err, storage.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestDeleteByLabel(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for _, ex := range []types.Example{
		example("n1", types.LabelNeutral, 0),
		example("f1", types.LabelFlagged, 1),
		example("n2", types.LabelNeutral, 0),
	} {
		if err := repo.Save(ctx, ex); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	if err := repo.Delete(ctx, types.LabelNeutral); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	counts, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if counts[types.LabelNeutral] != 0 || counts[types.LabelFlagged] != 1 {
		t.Errorf("unexpected counts after delete: %v", counts)
	}

	if err := repo.Delete(ctx, ""); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty label, got %v", err)
	}
}

func TestDeleteAll(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_ = repo.Save(ctx, example("a", types.LabelNeutral, 0))
	_ = repo.Save(ctx, example("b", types.LabelFlagged, 1))

	if err := repo.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty repository, got %d examples", len(got))
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notouch.db")
	ctx := context.Background()

	repo, err := NewExampleRepository(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := repo.Save(ctx, example("keep", types.LabelFlagged, 0.5, 0.25)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewExampleRepository(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "keep" {
		t.Fatalf("expected the saved example after reopen, got %+v", got)
	}
}

func TestDeserializeEmbeddingRejectsBadBuffers(t *testing.T) {
	if _, err := deserializeEmbedding(make([]byte, 16), 3); err == nil {
		t.Error("expected size mismatch error")
	}
	if _, err := deserializeEmbedding(nil, 0); err == nil {
		t.Error("expected invalid dimension error")
	}
}

func TestDBPathFromDSN(t *testing.T) {
	tests := map[string]string{
		":memory:":                    "",
		"":                            "",
		"/var/lib/notouch/notouch.db": "/var/lib/notouch/notouch.db",
		"file:/tmp/x.db?_pragma=foo":  "/tmp/x.db",
		"file::memory:?cache=shared":  "",
	}
	for dsn, want := range tests {
		if got := dbPathFromDSN(dsn); got != want {
			t.Errorf("dbPathFromDSN(%q) = %q, want %q", dsn, got, want)
		}
	}
}

func TestRecoverStaleWAL_Guards(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "notouch.db")

	if recoverStaleWAL(dbPath, nil) {
		t.Error("nil error must not trigger recovery")
	}
	if recoverStaleWAL(dbPath, errors.New("no such table: examples")) {
		t.Error("unrelated error must not trigger recovery")
	}
	if recoverStaleWAL(":memory:", errors.New("disk I/O error")) {
		t.Error("in-memory database has no WAL files")
	}
	if recoverStaleWAL(dbPath, errors.New("disk I/O error")) {
		t.Error("nothing to remove without -shm/-wal files")
	}
}
