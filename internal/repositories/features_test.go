package repositories

import (
	"errors"
	"fmt"
	"testing"

	"github.com/bodywerk/bodywerk/internal/shared"
)

func newTestRepository(t *testing.T) *FeatureRepository {
	t.Helper()

	db, err := Open(shared.DatabaseConfig{Path: ":memory:", MaxOpenConns: 1, MaxIdleConns: 1})
	if err != nil {
		t.Fatalf("failed to open cache database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewFeatureRepository(db)
}

func TestFeatureRepository(t *testing.T) {
	t.Run("Store And Lookup", func(t *testing.T) {
		repo := newTestRepository(t)

		if err := repo.Store("track1", 0.73, false); err != nil {
			t.Fatalf("failed to store: %v", err)
		}

		score, missing, ok := repo.Lookup("track1")
		if !ok {
			t.Fatal("expected a cache hit")
		}
		if score != 0.73 {
			t.Errorf("expected score 0.73, got %f", score)
		}
		if missing {
			t.Error("expected missing flag unset")
		}
	})

	t.Run("Lookup Miss", func(t *testing.T) {
		repo := newTestRepository(t)

		if _, _, ok := repo.Lookup("unknown"); ok {
			t.Error("expected a cache miss")
		}
	})

	t.Run("Stores Missing Flag", func(t *testing.T) {
		repo := newTestRepository(t)

		if err := repo.Store("no_features", 0, true); err != nil {
			t.Fatalf("failed to store: %v", err)
		}

		score, missing, ok := repo.Lookup("no_features")
		if !ok {
			t.Fatal("expected a cache hit")
		}
		if !missing {
			t.Error("expected missing flag set")
		}
		if score != 0 {
			t.Errorf("expected zero score, got %f", score)
		}
	})

	t.Run("Duplicate Store Is Ignored", func(t *testing.T) {
		repo := newTestRepository(t)

		if err := repo.Store("track1", 0.5, false); err != nil {
			t.Fatalf("failed to store: %v", err)
		}
		if err := repo.Store("track1", 0.9, false); err != nil {
			t.Errorf("duplicate store should not fail: %v", err)
		}

		// First write wins.
		score, _, ok := repo.Lookup("track1")
		if !ok || score != 0.5 {
			t.Errorf("expected original score 0.5, got %f (hit=%v)", score, ok)
		}

		count, err := repo.Count()
		if err != nil {
			t.Fatalf("failed to count: %v", err)
		}
		if count != 1 {
			t.Errorf("expected one cached entry, got %d", count)
		}
	})

	t.Run("Rejects Empty Track ID", func(t *testing.T) {
		repo := newTestRepository(t)

		if err := repo.Store("", 0.5, false); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("Count And Clear", func(t *testing.T) {
		repo := newTestRepository(t)

		for _, id := range []string{"a", "b", "c"} {
			if err := repo.Store(id, 0.1, false); err != nil {
				t.Fatalf("failed to store %s: %v", id, err)
			}
		}

		count, err := repo.Count()
		if err != nil {
			t.Fatalf("failed to count: %v", err)
		}
		if count != 3 {
			t.Errorf("expected 3 entries, got %d", count)
		}

		if err := repo.Clear(); err != nil {
			t.Fatalf("failed to clear: %v", err)
		}

		count, err = repo.Count()
		if err != nil {
			t.Fatalf("failed to count after clear: %v", err)
		}
		if count != 0 {
			t.Errorf("expected empty cache, got %d entries", count)
		}
	})
}

func TestOpen(t *testing.T) {
	t.Run("Defaults To Memory", func(t *testing.T) {
		db, err := Open(shared.DatabaseConfig{})
		if err != nil {
			t.Fatalf("failed to open with empty config: %v", err)
		}
		defer db.Close()

		if _, err := db.Exec("SELECT 1 FROM audio_features LIMIT 1"); err != nil {
			t.Errorf("expected migrated schema: %v", err)
		}
	})

	t.Run("Memory Cache Pins One Connection", func(t *testing.T) {
		// Without a pool cap every new :memory: connection is a fresh
		// empty database that never saw the migrations.
		db, err := Open(shared.DatabaseConfig{})
		if err != nil {
			t.Fatalf("failed to open with empty config: %v", err)
		}
		defer db.Close()

		if got := db.Stats().MaxOpenConnections; got != 1 {
			t.Errorf("expected pool capped at 1 connection, got %d", got)
		}

		repo := NewFeatureRepository(db)
		for i := 0; i < 20; i++ {
			id := fmt.Sprintf("track%d", i)
			if err := repo.Store(id, 0.5, false); err != nil {
				t.Fatalf("store %s failed: %v", id, err)
			}
			if _, _, ok := repo.Lookup(id); !ok {
				t.Fatalf("lookup %s missed after store", id)
			}
		}
	})
}
