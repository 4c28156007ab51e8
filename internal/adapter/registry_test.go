package adapter

import (
	"context"
	"errors"
	"sync"
	"testing"

	"lodestone/internal/domain"
)

// fakeAdapter is a controllable adapter for registry tests.
type fakeAdapter struct {
	name    string
	kind    AdapterType
	devices []domain.Record
	syncErr error

	mu        sync.Mutex
	started   bool
	stopped   bool
	syncCount int
}

func (f *fakeAdapter) Name() string      { return f.name }
func (f *fakeAdapter) Type() AdapterType { return f.kind }

func (f *fakeAdapter) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}

func (f *fakeAdapter) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeAdapter) Sync(context.Context) ([]domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncCount++
	return f.devices, f.syncErr
}

type reconcileRecorder struct {
	mu      sync.Mutex
	sources []string
	devices [][]domain.Record
}

func (r *reconcileRecorder) reconcile(_ context.Context, source string, devices []domain.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, source)
	r.devices = append(r.devices, devices)
	return nil
}

func TestRegistryRegister(t *testing.T) {
	reg := NewRegistry((&reconcileRecorder{}).reconcile)
	a := &fakeAdapter{name: "fake", kind: AdapterTypeOneShot}

	if err := reg.Register(a, AdapterConfig{Enabled: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := reg.Register(a, AdapterConfig{}); err == nil {
		t.Error("expected duplicate registration to fail")
	}

	infos := reg.ListAdapters()
	if len(infos) != 1 || infos[0].Name != "fake" || !infos[0].Enabled {
		t.Errorf("unexpected adapter info: %+v", infos)
	}
}

func TestTriggerSync(t *testing.T) {
	ctx := context.Background()

	t.Run("reconciles discovered devices", func(t *testing.T) {
		rec := &reconcileRecorder{}
		reg := NewRegistry(rec.reconcile)
		a := &fakeAdapter{
			name:    "fake",
			kind:    AdapterTypeOneShot,
			devices: []domain.Record{{"name": "sw-01", "primary_ip": "10.0.0.2"}},
		}
		if err := reg.Register(a, AdapterConfig{Enabled: true}); err != nil {
			t.Fatal(err)
		}
		if err := reg.TriggerSync(ctx, "fake"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(rec.sources) != 1 || rec.sources[0] != "fake" {
			t.Errorf("expected one reconcile from fake, got %v", rec.sources)
		}
		if len(rec.devices[0]) != 1 {
			t.Errorf("expected discovered device to reach reconcile, got %v", rec.devices)
		}
	})

	t.Run("empty sync skips reconcile", func(t *testing.T) {
		rec := &reconcileRecorder{}
		reg := NewRegistry(rec.reconcile)
		a := &fakeAdapter{name: "fake", kind: AdapterTypeOneShot}
		if err := reg.Register(a, AdapterConfig{Enabled: true}); err != nil {
			t.Fatal(err)
		}
		if err := reg.TriggerSync(ctx, "fake"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(rec.sources) != 0 {
			t.Errorf("expected no reconcile calls, got %v", rec.sources)
		}
	})

	t.Run("disabled adapters refuse", func(t *testing.T) {
		reg := NewRegistry((&reconcileRecorder{}).reconcile)
		a := &fakeAdapter{name: "fake", kind: AdapterTypeOneShot}
		if err := reg.Register(a, AdapterConfig{Enabled: false}); err != nil {
			t.Fatal(err)
		}
		if err := reg.TriggerSync(ctx, "fake"); err == nil {
			t.Error("expected error for disabled adapter")
		}
	})

	t.Run("unknown adapter", func(t *testing.T) {
		reg := NewRegistry((&reconcileRecorder{}).reconcile)
		if err := reg.TriggerSync(ctx, "nope"); err == nil {
			t.Error("expected error for unknown adapter")
		}
	})

	t.Run("sync errors propagate", func(t *testing.T) {
		boom := errors.New("boom")
		reg := NewRegistry((&reconcileRecorder{}).reconcile)
		a := &fakeAdapter{name: "fake", kind: AdapterTypeOneShot, syncErr: boom}
		if err := reg.Register(a, AdapterConfig{Enabled: true}); err != nil {
			t.Fatal(err)
		}
		if err := reg.TriggerSync(ctx, "fake"); !errors.Is(err, boom) {
			t.Errorf("expected boom, got %v", err)
		}
	})
}

func TestTriggerSyncAll(t *testing.T) {
	rec := &reconcileRecorder{}
	reg := NewRegistry(rec.reconcile)

	enabled := &fakeAdapter{
		name: "on", kind: AdapterTypeOneShot,
		devices: []domain.Record{{"name": "a", "primary_ip": "10.0.0.1"}},
	}
	disabled := &fakeAdapter{
		name: "off", kind: AdapterTypeOneShot,
		devices: []domain.Record{{"name": "b", "primary_ip": "10.0.0.2"}},
	}
	if err := reg.Register(enabled, AdapterConfig{Enabled: true}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(disabled, AdapterConfig{Enabled: false}); err != nil {
		t.Fatal(err)
	}

	if err := reg.TriggerSyncAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.sources) != 1 || rec.sources[0] != "on" {
		t.Errorf("expected only the enabled adapter to sync, got %v", rec.sources)
	}
	if disabled.syncCount != 0 {
		t.Error("expected the disabled adapter to stay idle")
	}
}

func TestStartStop(t *testing.T) {
	reg := NewRegistry((&reconcileRecorder{}).reconcile)
	polling := &fakeAdapter{name: "poll", kind: AdapterTypePolling}
	disabled := &fakeAdapter{name: "idle", kind: AdapterTypePolling}

	if err := reg.Register(polling, AdapterConfig{Enabled: true, PollInterval: "1h"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(disabled, AdapterConfig{Enabled: false}); err != nil {
		t.Fatal(err)
	}

	if err := reg.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !polling.started {
		t.Error("expected enabled adapter to start")
	}
	if disabled.started {
		t.Error("expected disabled adapter to stay stopped")
	}

	if err := reg.Stop(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !polling.stopped {
		t.Error("expected Stop to reach the adapter")
	}
}
