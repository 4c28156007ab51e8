package adapter

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"

	"lodestone/internal/domain"
)

// TargetFunc supplies the CIDR targets for a scan, typically the active
// prefixes in the store.
type TargetFunc func(ctx context.Context) ([]string, error)

// NmapAdapter sweeps the store's prefixes with nmap and reports the live
// hosts as device records.
type NmapAdapter struct {
	targets          TargetFunc
	portRange        string
	serviceDetection bool

	mu           sync.Mutex
	running      bool
	lastScanTime time.Time
}

// NewNmapAdapter creates a new nmap-based scanning adapter. targets is
// consulted at the start of every sync, so prefixes added between scans
// are picked up automatically.
func NewNmapAdapter(targets TargetFunc) *NmapAdapter {
	return &NmapAdapter{
		targets:          targets,
		portRange:        "22,53,80,161,179,443,830",
		serviceDetection: true,
	}
}

// Name returns the adapter identifier
func (n *NmapAdapter) Name() string {
	return "nmap"
}

// Type returns the adapter type
func (n *NmapAdapter) Type() AdapterType {
	return AdapterTypePolling
}

// Start marks the adapter as running
func (n *NmapAdapter) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.running = true
	return nil
}

// Stop marks the adapter as stopped
func (n *NmapAdapter) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.running = false
	return nil
}

// Sync scans the current targets and returns discovered devices.
func (n *NmapAdapter) Sync(ctx context.Context) ([]domain.Record, error) {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return nil, fmt.Errorf("adapter not running")
	}
	n.lastScanTime = time.Now()
	n.mu.Unlock()

	targets, err := n.targets(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving scan targets: %w", err)
	}
	if len(targets) == 0 {
		log.Printf("Nmap: no prefixes to scan")
		return nil, nil
	}

	log.Printf("Nmap: starting scan of %d prefixes: %v", len(targets), targets)

	var devices []domain.Record
	for _, target := range targets {
		found, err := n.scanTarget(ctx, target)
		if err != nil {
			log.Printf("Nmap: error scanning %s: %v", target, err)
			continue
		}
		devices = append(devices, found...)
	}

	log.Printf("Nmap: scan complete, discovered %d hosts", len(devices))
	return devices, nil
}

// scanTarget performs nmap scan on a single prefix
func (n *NmapAdapter) scanTarget(ctx context.Context, target string) ([]domain.Record, error) {
	opts := []nmap.Option{
		nmap.WithTargets(target),
		nmap.WithPorts(n.portRange),
	}
	if n.serviceDetection {
		opts = append(opts, nmap.WithServiceInfo())
	}

	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scanner: %w", err)
	}

	log.Printf("Nmap: scanning prefix %s", target)
	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	if warnings != nil && len(*warnings) > 0 {
		log.Printf("Nmap: warnings for %s: %v", target, *warnings)
	}

	return n.processResults(result, target), nil
}

// processResults converts nmap scan output into device records. Discovered
// details that have no dedicated field land in the discovered document.
func (n *NmapAdapter) processResults(result *nmap.Run, target string) []domain.Record {
	if result == nil {
		return nil
	}

	var devices []domain.Record
	for _, host := range result.Hosts {
		if len(host.Addresses) == 0 {
			continue
		}
		ip := host.Addresses[0].Addr

		var openPorts []any
		for _, port := range host.Ports {
			if port.State.State != "open" {
				continue
			}
			info := map[string]any{
				"port":     int(port.ID),
				"protocol": port.Protocol,
			}
			if port.Service.Name != "" {
				info["service"] = port.Service.Name
			}
			if port.Service.Product != "" {
				info["product"] = port.Service.Product
			}
			openPorts = append(openPorts, info)
		}

		name := ip
		if len(host.Hostnames) > 0 && host.Hostnames[0].Name != "" {
			name = host.Hostnames[0].Name
		}

		devices = append(devices, domain.Record{
			"name":       name,
			"primary_ip": ip,
			"discovered": map[string]any{
				"source":  "nmap",
				"prefix":  target,
				"ports":   openPorts,
				"scanned": time.Now().UTC().Format(time.RFC3339),
			},
		})
	}
	return devices
}
