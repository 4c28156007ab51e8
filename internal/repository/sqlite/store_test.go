package sqlite

import (
	"context"
	"errors"
	"testing"

	"lodestone/internal/domain"
	"lodestone/internal/repository"
)

// ============================================================================
// Test Helpers
// ============================================================================

// newTestRepo creates an in-memory repository with the default registry.
func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(":memory:", domain.DefaultRegistry())
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

// assertNoError fails the test if err is not nil
func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// ============================================================================
// CRUD
// ============================================================================

func TestInsertAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("round-trips declared fields", func(t *testing.T) {
		loc, err := repo.Insert(ctx, domain.ModelLocation, domain.Record{
			"name":        "HQ",
			"description": "headquarters",
		})
		assertNoError(t, err)
		if loc.ID() == "" {
			t.Fatal("expected generated id")
		}

		got, err := repo.Get(ctx, domain.ModelLocation, domain.Record{"name": "HQ"})
		assertNoError(t, err)
		if got.String("description") != "headquarters" {
			t.Errorf("expected description to round-trip, got %v", got)
		}
		if got.String("created_at") == "" {
			t.Error("expected created_at to be set")
		}
	})

	t.Run("spills undeclared fields into the data column", func(t *testing.T) {
		_, err := repo.Insert(ctx, domain.ModelLocation, domain.Record{
			"name":     "Branch",
			"site_key": "br-01",
		})
		assertNoError(t, err)

		got, err := repo.Get(ctx, domain.ModelLocation, domain.Record{"site_key": "br-01"})
		assertNoError(t, err)
		if got.String("name") != "Branch" {
			t.Errorf("expected Branch, got %v", got["name"])
		}
	})

	t.Run("integer columns keep numeric affinity", func(t *testing.T) {
		_, err := repo.Insert(ctx, domain.ModelVLAN, domain.Record{
			"name": "mgmt",
			"vid":  100,
		})
		assertNoError(t, err)

		got, err := repo.Get(ctx, domain.ModelVLAN, domain.Record{"vid": 100})
		assertNoError(t, err)
		vid, ok := got.Int("vid")
		if !ok || vid != 100 {
			t.Errorf("expected vid 100, got %v", got["vid"])
		}
	})

	t.Run("reference fields accept full records", func(t *testing.T) {
		status, err := repo.Get(ctx, domain.ModelStatus, domain.Record{"name": "Active"})
		assertNoError(t, err)

		loc, err := repo.Insert(ctx, domain.ModelLocation, domain.Record{
			"name":   "Annex",
			"status": status,
		})
		assertNoError(t, err)
		if loc.String("status") != status.ID() {
			t.Errorf("expected status to store as id %s, got %v", status.ID(), loc["status"])
		}
	})

	t.Run("Get wraps ErrNotFound and ErrMultiple", func(t *testing.T) {
		_, err := repo.Get(ctx, domain.ModelLocation, domain.Record{"name": "Nowhere"})
		if !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}

		_, err = repo.Insert(ctx, domain.ModelDevice, domain.Record{"name": "dup", "platform": "eos"})
		assertNoError(t, err)
		_, err = repo.Insert(ctx, domain.ModelDevice, domain.Record{"name": "dup", "platform": "ios"})
		assertNoError(t, err)
		_, err = repo.Get(ctx, domain.ModelDevice, domain.Record{"name": "dup"})
		if !errors.Is(err, repository.ErrMultiple) {
			t.Errorf("expected ErrMultiple, got %v", err)
		}
	})

	t.Run("unknown model errors", func(t *testing.T) {
		_, err := repo.Get(ctx, "ipam.circuit", nil)
		if err == nil {
			t.Error("expected error for unknown model")
		}
	})
}

func TestUpdate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	loc, err := repo.Insert(ctx, domain.ModelLocation, domain.Record{
		"name":     "HQ",
		"site_key": "hq-01",
	})
	assertNoError(t, err)

	t.Run("updates declared fields in place", func(t *testing.T) {
		got, err := repo.Update(ctx, domain.ModelLocation, loc.ID(), domain.Record{
			"description": "main campus",
		})
		assertNoError(t, err)
		if got.String("description") != "main campus" {
			t.Errorf("expected updated description, got %v", got)
		}
		if got.String("name") != "HQ" {
			t.Error("expected untouched fields to survive")
		}
	})

	t.Run("merges extra fields instead of replacing", func(t *testing.T) {
		got, err := repo.Update(ctx, domain.ModelLocation, loc.ID(), domain.Record{
			"region": "west",
		})
		assertNoError(t, err)
		if got.String("site_key") != "hq-01" {
			t.Error("expected earlier extra field to survive a data merge")
		}
		if got.String("region") != "west" {
			t.Errorf("expected region to be stored, got %v", got)
		}
	})

	t.Run("updating a missing record errors", func(t *testing.T) {
		_, err := repo.Update(ctx, domain.ModelLocation, "no-such-id", domain.Record{"name": "x"})
		if !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	loc, err := repo.Insert(ctx, domain.ModelLocation, domain.Record{"name": "HQ"})
	assertNoError(t, err)

	assertNoError(t, repo.Delete(ctx, domain.ModelLocation, loc.ID()))

	if _, err := repo.Get(ctx, domain.ModelLocation, domain.Record{"id": loc.ID()}); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected record to be gone, got %v", err)
	}
	if err := repo.Delete(ctx, domain.ModelLocation, loc.ID()); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected second delete to report ErrNotFound, got %v", err)
	}
}

func TestFindAndCount(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, name := range []string{"sw-01", "sw-02", "sw-03"} {
		_, err := repo.Insert(ctx, domain.ModelDevice, domain.Record{
			"name":     name,
			"platform": "eos",
		})
		assertNoError(t, err)
	}
	_, err := repo.Insert(ctx, domain.ModelDevice, domain.Record{
		"name":     "rt-01",
		"platform": "ios",
	})
	assertNoError(t, err)

	t.Run("finds by declared column", func(t *testing.T) {
		devices, err := repo.Find(ctx, domain.ModelDevice, domain.Record{"platform": "eos"})
		assertNoError(t, err)
		if len(devices) != 3 {
			t.Fatalf("expected 3 devices, got %d", len(devices))
		}
		if devices[0].String("name") != "sw-01" {
			t.Errorf("expected insertion order, got %s first", devices[0].String("name"))
		}
	})

	t.Run("finds by JSON extra field", func(t *testing.T) {
		_, err := repo.Insert(ctx, domain.ModelDevice, domain.Record{
			"name": "fw-01",
			"rack": "r12",
		})
		assertNoError(t, err)
		devices, err := repo.Find(ctx, domain.ModelDevice, domain.Record{"rack": "r12"})
		assertNoError(t, err)
		if len(devices) != 1 || devices[0].String("name") != "fw-01" {
			t.Errorf("expected fw-01 via json_extract, got %v", devices)
		}
	})

	t.Run("counts", func(t *testing.T) {
		n, err := repo.Count(ctx, domain.ModelDevice, domain.Record{"platform": "eos"})
		assertNoError(t, err)
		if n != 3 {
			t.Errorf("expected 3, got %d", n)
		}
		n, err = repo.Count(ctx, domain.ModelDevice, nil)
		assertNoError(t, err)
		if n != 5 {
			t.Errorf("expected 5, got %d", n)
		}
	})

	t.Run("rejects nested query keys", func(t *testing.T) {
		_, err := repo.Find(ctx, domain.ModelDevice, domain.Record{"status__name": "Active"})
		if err == nil {
			t.Error("expected error for unresolved nested key")
		}
	})

	t.Run("rejects non-identifier query keys", func(t *testing.T) {
		for _, key := range []string{
			"a') OR 1=1 OR ('b",
			"rack'--",
			"rack.unit",
			"rack unit",
			"",
		} {
			_, err := repo.Find(ctx, domain.ModelDevice, domain.Record{key: "zzz"})
			if err == nil {
				t.Errorf("expected key %q to be rejected", key)
			}
		}

		records, err := repo.Find(ctx, domain.ModelStatus, domain.Record{"a') OR 1=1 OR ('b": "zzz"})
		if err == nil {
			t.Errorf("expected an error, got %d records", len(records))
		}
	})
}

// ============================================================================
// Transactions and seeding
// ============================================================================

func TestTransactRollback(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.Transact(ctx, func(s repository.Store) error {
		if _, err := s.Insert(ctx, domain.ModelLocation, domain.Record{"name": "Ghost"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the inner error back, got %v", err)
	}

	n, err := repo.Count(ctx, domain.ModelLocation, domain.Record{"name": "Ghost"})
	assertNoError(t, err)
	if n != 0 {
		t.Error("expected rollback to discard the insert")
	}
}

func TestTransactCommit(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	err := repo.Transact(ctx, func(s repository.Store) error {
		_, err := s.Insert(ctx, domain.ModelLocation, domain.Record{"name": "Kept"})
		return err
	})
	assertNoError(t, err)

	n, err := repo.Count(ctx, domain.ModelLocation, domain.Record{"name": "Kept"})
	assertNoError(t, err)
	if n != 1 {
		t.Error("expected committed insert to persist")
	}
}

func TestSeedStatuses(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	n, err := repo.Count(ctx, domain.ModelStatus, nil)
	assertNoError(t, err)
	if n != len(domain.DefaultStatuses) {
		t.Fatalf("expected %d seeded statuses, got %d", len(domain.DefaultStatuses), n)
	}
	if _, err := repo.Get(ctx, domain.ModelStatus, domain.Record{"name": "Active"}); err != nil {
		t.Errorf("expected Active status to exist: %v", err)
	}
}
