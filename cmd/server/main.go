package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lodestone/internal/adapter"
	"lodestone/internal/config"
	"lodestone/internal/domain"
	"lodestone/internal/handler"
	"lodestone/internal/hub"
	"lodestone/internal/loader"
	"lodestone/internal/repository/sqlite"
	"lodestone/internal/service"
	"lodestone/internal/watcher"
)

func main() {
	configPath := flag.String("config", "", "config file path (overrides search path)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting lodestone server...")

	cfg, cfgFile, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfgFile != "" {
		log.Printf("Config loaded from %s", cfgFile)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	repo, err := sqlite.New(cfg.Database.Path, domain.DefaultRegistry())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer repo.Close()
	log.Printf("Database opened: %s", cfg.Database.Path)

	eventBus := service.NewEventBus()

	sseHub := hub.New(eventBus)
	go sseHub.Run()

	recordSvc := service.NewRecordService(repo, eventBus)
	designSvc := service.NewDesignService(repo, eventBus)

	// Discovery adapters
	adapterRegistry := adapter.NewRegistry(recordSvc.ReconcileDevices)
	if cfg.Scan.Enabled {
		nmapAdapter := adapter.NewNmapAdapter(recordSvc.ActivePrefixes)
		if err := adapterRegistry.Register(nmapAdapter, adapter.AdapterConfig{
			Enabled:      true,
			PollInterval: cfg.Scan.PollInterval,
		}); err != nil {
			log.Fatalf("Failed to register nmap adapter: %v", err)
		}
	}
	if cfg.Probe.Enabled {
		creds := adapter.Credentials{
			Username: cfg.Probe.Username,
			Password: cfg.Probe.Password,
		}
		if cfg.Probe.KeyFile != "" {
			key, err := os.ReadFile(cfg.Probe.KeyFile)
			if err != nil {
				log.Fatalf("Failed to read SSH key %s: %v", cfg.Probe.KeyFile, err)
			}
			creds.PrivateKey = key
		}
		probe := adapter.NewSSHProbeAdapter(recordSvc.KnownDevices, creds, adapter.SSHProbeConfig{})
		if err := adapterRegistry.Register(probe, adapter.AdapterConfig{
			Enabled:      true,
			PollInterval: cfg.Probe.PollInterval,
		}); err != nil {
			log.Fatalf("Failed to register ssh probe adapter: %v", err)
		}
	}

	adapterCtx, adapterCancel := context.WithCancel(context.Background())
	if err := adapterRegistry.Start(adapterCtx); err != nil {
		log.Printf("Adapter registry start error: %v", err)
	}

	// Design directory watcher
	if cfg.Designs.Dir != "" && cfg.Designs.Watch {
		w := watcher.New(cfg.Designs.Dir, func(path string) {
			applyDesignFile(designSvc, path)
		})
		go func() {
			if err := w.Watch(adapterCtx); err != nil && adapterCtx.Err() == nil {
				log.Printf("Design watcher stopped: %v", err)
			}
		}()
	}

	mux := http.NewServeMux()
	registerRoutes(mux, recordSvc, designSvc, sseHub, adapterRegistry)

	finalHandler := handler.Chain(mux,
		handler.Recover,
		handler.CORS,
		handler.Logger,
	)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      finalHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	adapterCancel()
	if err := adapterRegistry.Stop(); err != nil {
		log.Printf("Adapter registry shutdown error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// applyDesignFile applies a changed design file under a deployment named
// after the file. Reapplying the same file updates its deployment in place.
func applyDesignFile(svc *service.DesignService, path string) {
	chain, err := loader.LoadChain(path)
	if err != nil {
		log.Printf("Failed to load design %s: %v", path, err)
		return
	}
	for _, fixture := range chain {
		name := designName(fixture.Path)
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		_, err := svc.Apply(ctx, name, name, fixture, false)
		cancel()
		if err != nil {
			log.Printf("Failed to apply design %s: %v", fixture.Path, err)
			return
		}
		log.Printf("Applied design %s", fixture.Path)
	}
}
