package store

import (
	"path/filepath"
	"testing"

	"hftengine/pkg/types"
)

func openTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "positions.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreSaveAndLoadPosition(t *testing.T) {
	t.Parallel()
	s := openTestSQLiteStore(t)

	pos := types.TrackedPosition{TokenID: "yes-tok", Size: 12, EntryPrice: 0.6, RealizedPnL: -0.5}
	if err := s.SavePosition("cond1", pos); err != nil {
		t.Fatalf("SavePosition: %v", err)
	}

	loaded, err := s.LoadPosition("cond1")
	if err != nil {
		t.Fatalf("LoadPosition: %v", err)
	}
	if loaded == nil || loaded.Size != 12 || loaded.EntryPrice != 0.6 {
		t.Errorf("loaded = %+v, want size 12 @ 0.6", loaded)
	}
}

func TestSQLiteStoreLoadPositionMissing(t *testing.T) {
	t.Parallel()
	s := openTestSQLiteStore(t)

	loaded, err := s.LoadPosition("nonexistent")
	if err != nil {
		t.Fatalf("LoadPosition: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected nil for missing position, got %+v", loaded)
	}
}

func TestSQLiteStoreSavePositionUpserts(t *testing.T) {
	t.Parallel()
	s := openTestSQLiteStore(t)

	_ = s.SavePosition("cond1", types.TrackedPosition{Size: 10})
	_ = s.SavePosition("cond1", types.TrackedPosition{Size: 20})

	loaded, err := s.LoadPosition("cond1")
	if err != nil {
		t.Fatalf("LoadPosition: %v", err)
	}
	if loaded.Size != 20 {
		t.Errorf("Size = %v, want 20 (latest save)", loaded.Size)
	}
}

func TestSQLiteStoreDeletePosition(t *testing.T) {
	t.Parallel()
	s := openTestSQLiteStore(t)

	_ = s.SavePosition("cond1", types.TrackedPosition{Size: 5})
	if err := s.DeletePosition("cond1"); err != nil {
		t.Fatalf("DeletePosition: %v", err)
	}

	loaded, err := s.LoadPosition("cond1")
	if err != nil {
		t.Fatalf("LoadPosition: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected nil after delete, got %+v", loaded)
	}
}
