package adapter

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"lodestone/internal/domain"
)

// ReconcileFunc merges discovered device records into the store.
type ReconcileFunc func(ctx context.Context, source string, devices []domain.Record) error

// Registry manages all registered adapters and their lifecycle
type Registry struct {
	mu        sync.RWMutex
	adapters  map[string]Adapter
	configs   map[string]AdapterConfig
	reconcile ReconcileFunc
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewRegistry creates a new adapter registry
func NewRegistry(reconcile ReconcileFunc) *Registry {
	return &Registry{
		adapters:  make(map[string]Adapter),
		configs:   make(map[string]AdapterConfig),
		reconcile: reconcile,
	}
}

// Register adds an adapter to the registry
func (r *Registry) Register(adapter Adapter, config AdapterConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := adapter.Name()
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("adapter %s already registered", name)
	}

	r.adapters[name] = adapter
	r.configs[name] = config
	log.Printf("Registered adapter: %s (type=%s, enabled=%v)", name, adapter.Type(), config.Enabled)

	return nil
}

// Start initializes all enabled adapters and begins their sync cycles
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ctx, r.cancel = context.WithCancel(ctx)

	for name, adapter := range r.adapters {
		config := r.configs[name]
		if !config.Enabled {
			log.Printf("Adapter %s is disabled, skipping", name)
			continue
		}

		if err := adapter.Start(r.ctx); err != nil {
			log.Printf("Failed to start adapter %s: %v", name, err)
			continue
		}

		if adapter.Type() == AdapterTypePolling {
			r.startPollingLoop(name, adapter, config)
		}
	}

	return nil
}

// Stop gracefully shuts down all adapters
func (r *Registry) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()

	for name, adapter := range r.adapters {
		if err := adapter.Stop(); err != nil {
			log.Printf("Error stopping adapter %s: %v", name, err)
		}
	}

	return nil
}

// startPollingLoop runs an adapter's sync on its configured interval.
func (r *Registry) startPollingLoop(name string, adapter Adapter, config AdapterConfig) {
	interval := 5 * time.Minute
	if config.PollInterval != "" {
		parsed, err := time.ParseDuration(config.PollInterval)
		if err != nil {
			log.Printf("Adapter %s: invalid poll interval %q, using %s", name, config.PollInterval, interval)
		} else {
			interval = parsed
		}
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := r.runSync(r.ctx, name, adapter); err != nil {
					log.Printf("Adapter %s sync failed: %v", name, err)
				}
			case <-r.ctx.Done():
				return
			}
		}
	}()
}

// runSync executes one sync cycle and reconciles the result.
func (r *Registry) runSync(ctx context.Context, name string, adapter Adapter) error {
	devices, err := adapter.Sync(ctx)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		return nil
	}
	return r.reconcile(ctx, name, devices)
}

// TriggerSync manually triggers a sync for a specific adapter
func (r *Registry) TriggerSync(ctx context.Context, name string) error {
	r.mu.RLock()
	adapter, exists := r.adapters[name]
	config := r.configs[name]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("adapter %s not found", name)
	}
	if !config.Enabled {
		return fmt.Errorf("adapter %s is disabled", name)
	}

	return r.runSync(ctx, name, adapter)
}

// TriggerSyncAll manually triggers sync for all enabled adapters
func (r *Registry) TriggerSyncAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for name, adapter := range r.adapters {
		if !r.configs[name].Enabled {
			continue
		}
		if err := r.runSync(ctx, name, adapter); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("sync errors: %v", errs)
	}
	return nil
}

// ListAdapters returns information about registered adapters
func (r *Registry) ListAdapters() []AdapterInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var infos []AdapterInfo
	for name, adapter := range r.adapters {
		config := r.configs[name]
		infos = append(infos, AdapterInfo{
			Name:         name,
			Type:         adapter.Type(),
			Enabled:      config.Enabled,
			PollInterval: config.PollInterval,
		})
	}
	return infos
}
