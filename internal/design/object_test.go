package design

import (
	"context"
	"errors"
	"strings"
	"testing"

	"lodestone/internal/domain"
	"lodestone/internal/repository"
	"lodestone/internal/repository/sqlite"
)

// newTestEnv creates an in-memory repository and a fresh environment over it.
// Environments are single-use, so tests that apply twice call this twice
// against the same repository.
func newTestRepository(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.New(":memory:", domain.DefaultRegistry())
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

func newTestEnv(t *testing.T, repo *sqlite.Repository) *Environment {
	t.Helper()
	env, err := NewEnvironment(repo, repo.Registry())
	if err != nil {
		t.Fatalf("failed to create environment: %v", err)
	}
	return env
}

func apply(t *testing.T, env *Environment, design map[string]any) {
	t.Helper()
	if err := env.Apply(context.Background(), design); err != nil {
		t.Fatalf("failed to apply design: %v", err)
	}
}

func TestApplyCreate(t *testing.T) {
	repo := newTestRepository(t)
	env := newTestEnv(t, repo)
	ctx := context.Background()

	apply(t, env, map[string]any{
		"locations": []any{
			map[string]any{
				"name":         "HQ",
				"status__name": "Active",
			},
		},
	})

	loc, err := repo.Get(ctx, domain.ModelLocation, domain.Record{"name": "HQ"})
	if err != nil {
		t.Fatalf("expected location to exist: %v", err)
	}
	status, err := repo.Get(ctx, domain.ModelStatus, domain.Record{"name": "Active"})
	if err != nil {
		t.Fatalf("expected Active status: %v", err)
	}
	if loc.String("status") != status.ID() {
		t.Errorf("expected status reference to resolve by name, got %v", loc["status"])
	}
	if got := env.Journal().Created()[domain.ModelLocation]; len(got) != 1 {
		t.Errorf("expected one created location in the journal, got %v", got)
	}
}

func TestCreateOrUpdate(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	doc := func(desc string) map[string]any {
		return map[string]any{
			"locations": map[string]any{
				"!create_or_update:name": "HQ",
				"description":            desc,
			},
		}
	}

	first := newTestEnv(t, repo)
	apply(t, first, doc("v1"))
	if len(first.Journal().Created()[domain.ModelLocation]) != 1 {
		t.Fatal("expected first run to create the location")
	}

	second := newTestEnv(t, repo)
	apply(t, second, doc("v2"))
	if len(second.Journal().Created()[domain.ModelLocation]) != 0 {
		t.Error("expected second run to not create anything")
	}
	if len(second.Journal().Updated()[domain.ModelLocation]) != 1 {
		t.Error("expected second run to update the location")
	}

	n, err := repo.Count(ctx, domain.ModelLocation, domain.Record{"name": "HQ"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected exactly one HQ location, got %d", n)
	}
	loc, _ := repo.Get(ctx, domain.ModelLocation, domain.Record{"name": "HQ"})
	if loc.String("description") != "v2" {
		t.Errorf("expected description v2, got %q", loc.String("description"))
	}
}

func TestGetAction(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	t.Run("get with no attributes succeeds", func(t *testing.T) {
		env := newTestEnv(t, repo)
		apply(t, env, map[string]any{
			"statuses": map[string]any{"!get:name": "Active"},
		})
	})

	t.Run("get with attributes is an error", func(t *testing.T) {
		env := newTestEnv(t, repo)
		err := env.Apply(ctx, map[string]any{
			"statuses": map[string]any{
				"!get:name": "Active",
				"color":     "ff0000",
			},
		})
		if err == nil || !strings.Contains(err.Error(), "cannot update fields") {
			t.Errorf("expected get-with-attributes error, got %v", err)
		}
	})

	t.Run("get on a missing record fails", func(t *testing.T) {
		env := newTestEnv(t, repo)
		err := env.Apply(ctx, map[string]any{
			"statuses": map[string]any{"!get:name": "Nope"},
		})
		if !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("untagged nested filter never creates", func(t *testing.T) {
		env := newTestEnv(t, repo)
		err := env.Apply(ctx, map[string]any{
			"prefixes": map[string]any{
				"!get:status": map[string]any{"name": "NoSuchStatus"},
			},
		})
		if !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		n, err := repo.Count(ctx, domain.ModelStatus, domain.Record{"name": "NoSuchStatus"})
		if err != nil {
			t.Fatal(err)
		}
		if n != 0 {
			t.Errorf("a get filter created %d status record(s)", n)
		}
	})
}

func TestUpdateAction(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	env := newTestEnv(t, repo)
	apply(t, env, map[string]any{
		"locations": map[string]any{"name": "HQ"},
	})

	env = newTestEnv(t, repo)
	apply(t, env, map[string]any{
		"locations": map[string]any{
			"!update:name": "HQ",
			"description":  "updated",
		},
	})
	loc, err := repo.Get(ctx, domain.ModelLocation, domain.Record{"name": "HQ"})
	if err != nil {
		t.Fatal(err)
	}
	if loc.String("description") != "updated" {
		t.Errorf("expected updated description, got %q", loc.String("description"))
	}

	env = newTestEnv(t, repo)
	err = env.Apply(ctx, map[string]any{
		"locations": map[string]any{"!update:name": "Missing"},
	})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected update of missing record to fail, got %v", err)
	}
}

func TestOneActionPerObject(t *testing.T) {
	repo := newTestRepository(t)
	env := newTestEnv(t, repo)

	err := env.Apply(context.Background(), map[string]any{
		"locations": map[string]any{
			"!get:name":              "HQ",
			"!create_or_update:name": "HQ",
		},
	})
	if err == nil || !strings.Contains(err.Error(), "only one action") {
		t.Errorf("expected one-action error, got %v", err)
	}
}

func TestUnknownKeys(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	t.Run("unknown model key", func(t *testing.T) {
		env := newTestEnv(t, repo)
		err := env.Apply(ctx, map[string]any{"circuits": map[string]any{"name": "x"}})
		if err == nil || !strings.Contains(err.Error(), "unknown model key") {
			t.Errorf("expected unknown model key error, got %v", err)
		}
	})

	t.Run("internal model key", func(t *testing.T) {
		env := newTestEnv(t, repo)
		err := env.Apply(ctx, map[string]any{"deployments": map[string]any{"name": "x"}})
		if err == nil || !strings.Contains(err.Error(), "not designable") {
			t.Errorf("expected not-designable error, got %v", err)
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		env := newTestEnv(t, repo)
		err := env.Apply(ctx, map[string]any{
			"locations": map[string]any{"name": "HQ", "airspeed": "unladen"},
		})
		if err == nil || !strings.Contains(err.Error(), "is not a field of") {
			t.Errorf("expected unknown field error, got %v", err)
		}
	})

	t.Run("unknown action tag", func(t *testing.T) {
		env := newTestEnv(t, repo)
		err := env.Apply(ctx, map[string]any{
			"locations": map[string]any{"!frobnicate:name": "HQ"},
		})
		if err == nil || !strings.Contains(err.Error(), "unknown action tag") {
			t.Errorf("expected unknown action tag error, got %v", err)
		}
	})
}

func TestRefTag(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	t.Run("value form retrieves a saved object", func(t *testing.T) {
		env := newTestEnv(t, repo)
		apply(t, env, map[string]any{
			"locations": map[string]any{
				"!create_or_update:name": "HQ",
				"!ref":                   "site",
			},
			"prefixes": map[string]any{
				"!create_or_update:prefix": "10.0.0.0/24",
				"location":                 "!ref:site",
			},
		})

		loc, err := repo.Get(ctx, domain.ModelLocation, domain.Record{"name": "HQ"})
		if err != nil {
			t.Fatal(err)
		}
		pfx, err := repo.Get(ctx, domain.ModelPrefix, domain.Record{"prefix": "10.0.0.0/24"})
		if err != nil {
			t.Fatal(err)
		}
		if pfx.String("location") != loc.ID() {
			t.Errorf("expected prefix to point at HQ, got %v", pfx["location"])
		}
	})

	t.Run("dotted form retrieves an attribute", func(t *testing.T) {
		env := newTestEnv(t, repo)
		apply(t, env, map[string]any{
			"locations": map[string]any{
				"!create_or_update:name": "Annex",
				"!ref":                   "annex",
			},
			"devices": map[string]any{
				"!create_or_update:name": "sw-01",
				"description":            "!ref:annex.name",
			},
		})
		dev, err := repo.Get(ctx, domain.ModelDevice, domain.Record{"name": "sw-01"})
		if err != nil {
			t.Fatal(err)
		}
		if dev.String("description") != "Annex" {
			t.Errorf("expected description Annex, got %q", dev.String("description"))
		}
	})

	t.Run("unknown ref name fails", func(t *testing.T) {
		env := newTestEnv(t, repo)
		err := env.Apply(ctx, map[string]any{
			"devices": map[string]any{
				"!create_or_update:name": "sw-02",
				"description":            "!ref:nobody",
			},
		})
		if err == nil || !strings.Contains(err.Error(), "no ref named") {
			t.Errorf("expected unknown ref error, got %v", err)
		}
	})
}

func TestNestedReferenceCreation(t *testing.T) {
	repo := newTestRepository(t)
	env := newTestEnv(t, repo)
	ctx := context.Background()

	apply(t, env, map[string]any{
		"prefixes": map[string]any{
			"!create_or_update:prefix": "10.1.0.0/24",
			"location": map[string]any{
				"!create_or_update:name": "Branch",
			},
		},
	})

	loc, err := repo.Get(ctx, domain.ModelLocation, domain.Record{"name": "Branch"})
	if err != nil {
		t.Fatalf("expected nested location to be created: %v", err)
	}
	pfx, err := repo.Get(ctx, domain.ModelPrefix, domain.Record{"prefix": "10.1.0.0/24"})
	if err != nil {
		t.Fatal(err)
	}
	if pfx.String("location") != loc.ID() {
		t.Errorf("expected prefix to reference the nested location")
	}
}

func TestChildLists(t *testing.T) {
	repo := newTestRepository(t)
	env := newTestEnv(t, repo)
	ctx := context.Background()

	apply(t, env, map[string]any{
		"locations": map[string]any{
			"!create_or_update:name": "HQ",
			"prefixes": []any{
				map[string]any{"!create_or_update:prefix": "10.2.0.0/24"},
				map[string]any{"!create_or_update:prefix": "10.2.1.0/24"},
			},
		},
	})

	loc, err := repo.Get(ctx, domain.ModelLocation, domain.Record{"name": "HQ"})
	if err != nil {
		t.Fatal(err)
	}
	children, err := repo.Find(ctx, domain.ModelPrefix, domain.Record{"location": loc.ID()})
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 2 {
		t.Fatalf("expected 2 child prefixes, got %d", len(children))
	}
}

func TestValidation(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	t.Run("prefix CIDR is canonicalized", func(t *testing.T) {
		env := newTestEnv(t, repo)
		apply(t, env, map[string]any{
			"prefixes": map[string]any{"prefix": "192.168.0.5/24"},
		})
		if _, err := repo.Get(ctx, domain.ModelPrefix, domain.Record{"prefix": "192.168.0.0/24"}); err != nil {
			t.Errorf("expected masked prefix to be stored: %v", err)
		}
	})

	t.Run("invalid CIDR fails validation", func(t *testing.T) {
		env := newTestEnv(t, repo)
		err := env.Apply(ctx, map[string]any{
			"prefixes": map[string]any{"prefix": "not-a-cidr"},
		})
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("expected ValidationError, got %v", err)
		}
	})

	t.Run("vlan requires a vid", func(t *testing.T) {
		env := newTestEnv(t, repo)
		err := env.Apply(ctx, map[string]any{
			"vlans": map[string]any{"name": "mgmt"},
		})
		if err == nil || !strings.Contains(err.Error(), "requires a vid") {
			t.Errorf("expected vid error, got %v", err)
		}
	})

	t.Run("name required on create", func(t *testing.T) {
		env := newTestEnv(t, repo)
		err := env.Apply(ctx, map[string]any{
			"locations": map[string]any{"description": "anonymous"},
		})
		if err == nil || !strings.Contains(err.Error(), "name is required") {
			t.Errorf("expected name error, got %v", err)
		}
	})
}

func TestRelationshipAssociations(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	relationship := map[string]any{
		"!create_or_update:key": "prefix_vlan",
		"label":                 "Prefix to VLAN",
		"type":                  "one-to-many",
		"source_type":           "ipam.prefix",
		"destination_type":      "ipam.vlan",
	}

	env := newTestEnv(t, repo)
	apply(t, env, map[string]any{
		"custom_relationships": relationship,
		"vlans": map[string]any{
			"!create_or_update:vid": 100,
			"name":                  "mgmt",
		},
		"prefixes": map[string]any{
			"!create_or_update:prefix": "10.3.0.0/24",
			"prefix_vlan": []any{
				map[string]any{"!get:vid": 100},
			},
		},
	})

	assocs, err := repo.Find(ctx, domain.ModelRelationshipAssociation, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(assocs) != 1 {
		t.Fatalf("expected one association, got %d", len(assocs))
	}
	pfx, _ := repo.Get(ctx, domain.ModelPrefix, domain.Record{"prefix": "10.3.0.0/24"})
	vlan, _ := repo.Get(ctx, domain.ModelVLAN, domain.Record{"vid": 100})
	if assocs[0].String("source_id") != pfx.ID() || assocs[0].String("destination_id") != vlan.ID() {
		t.Errorf("association endpoints wrong: %v", assocs[0])
	}

	t.Run("reapplying is idempotent", func(t *testing.T) {
		env := newTestEnv(t, repo)
		apply(t, env, map[string]any{
			"prefixes": map[string]any{
				"!create_or_update:prefix": "10.3.0.0/24",
				"prefix_vlan": []any{
					map[string]any{"!get:vid": 100},
				},
			},
		})
		n, _ := repo.Count(ctx, domain.ModelRelationshipAssociation, nil)
		if n != 1 {
			t.Errorf("expected association count to stay 1, got %d", n)
		}
	})

	t.Run("one-to-many repoints the destination", func(t *testing.T) {
		env := newTestEnv(t, repo)
		apply(t, env, map[string]any{
			"prefixes": map[string]any{
				"!create_or_update:prefix": "10.4.0.0/24",
				"prefix_vlan": []any{
					map[string]any{"!get:vid": 100},
				},
			},
		})
		assocs, err := repo.Find(ctx, domain.ModelRelationshipAssociation, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(assocs) != 1 {
			t.Fatalf("expected the association to be repointed, got %d rows", len(assocs))
		}
		newPfx, _ := repo.Get(ctx, domain.ModelPrefix, domain.Record{"prefix": "10.4.0.0/24"})
		if assocs[0].String("source_id") != newPfx.ID() {
			t.Error("expected the association source to move to the new prefix")
		}
	})

	t.Run("cardinality cannot change", func(t *testing.T) {
		env := newTestEnv(t, repo)
		err := env.Apply(ctx, map[string]any{
			"custom_relationships": map[string]any{
				"!create_or_update:key": "prefix_vlan",
				"type":                  "many-to-many",
			},
		})
		if err == nil || !strings.Contains(err.Error(), "cardinality cannot change") {
			t.Errorf("expected cardinality error, got %v", err)
		}
	})
}

func TestJournalDeduplicates(t *testing.T) {
	repo := newTestRepository(t)
	env := newTestEnv(t, repo)

	apply(t, env, map[string]any{
		"locations": []any{
			map[string]any{"!create_or_update:name": "HQ", "description": "a"},
			map[string]any{"!create_or_update:name": "HQ", "description": "b"},
		},
	})

	created := env.Journal().Created()[domain.ModelLocation]
	updated := env.Journal().Updated()[domain.ModelLocation]
	if len(created) != 1 {
		t.Errorf("expected one created entry, got %v", created)
	}
	if len(updated) != 0 {
		t.Errorf("expected repeat touch to stay in created, got updated %v", updated)
	}
}
