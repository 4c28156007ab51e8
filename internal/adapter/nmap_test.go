package adapter

import (
	"context"
	"testing"

	nmap "github.com/Ullaakut/nmap/v3"
)

func TestNmapAdapterLifecycle(t *testing.T) {
	a := NewNmapAdapter(func(context.Context) ([]string, error) {
		return nil, nil
	})

	if a.Name() != "nmap" {
		t.Errorf("expected name nmap, got %q", a.Name())
	}
	if a.Type() != AdapterTypePolling {
		t.Errorf("expected polling adapter, got %q", a.Type())
	}

	t.Run("sync before start fails", func(t *testing.T) {
		if _, err := a.Sync(context.Background()); err == nil {
			t.Error("expected error before Start")
		}
	})

	t.Run("sync with no targets is a no-op", func(t *testing.T) {
		if err := a.Start(context.Background()); err != nil {
			t.Fatal(err)
		}
		devices, err := a.Sync(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(devices) != 0 {
			t.Errorf("expected no devices, got %v", devices)
		}
	})
}

func TestProcessResults(t *testing.T) {
	a := NewNmapAdapter(nil)

	run := &nmap.Run{
		Hosts: []nmap.Host{
			{
				Addresses: []nmap.Address{{Addr: "10.0.0.2"}},
				Hostnames: []nmap.Hostname{{Name: "sw-01.example.net"}},
				Ports: []nmap.Port{
					{
						ID:       22,
						Protocol: "tcp",
						State:    nmap.State{State: "open"},
						Service:  nmap.Service{Name: "ssh", Product: "OpenSSH"},
					},
					{
						ID:       80,
						Protocol: "tcp",
						State:    nmap.State{State: "closed"},
					},
				},
			},
			{
				Addresses: []nmap.Address{{Addr: "10.0.0.3"}},
			},
			{
				// No address; skipped.
				Hostnames: []nmap.Hostname{{Name: "ghost"}},
			},
		},
	}

	devices := a.processResults(run, "10.0.0.0/24")
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(devices))
	}

	first := devices[0]
	if first.String("name") != "sw-01.example.net" {
		t.Errorf("expected hostname as name, got %q", first.String("name"))
	}
	if first.String("primary_ip") != "10.0.0.2" {
		t.Errorf("expected primary_ip 10.0.0.2, got %q", first.String("primary_ip"))
	}
	discovered := first.Map("discovered")
	if discovered["source"] != "nmap" || discovered["prefix"] != "10.0.0.0/24" {
		t.Errorf("unexpected discovered document: %v", discovered)
	}
	ports, _ := discovered["ports"].([]any)
	if len(ports) != 1 {
		t.Fatalf("expected only the open port, got %v", discovered["ports"])
	}
	port := ports[0].(map[string]any)
	if port["service"] != "ssh" || port["product"] != "OpenSSH" {
		t.Errorf("unexpected port info: %v", port)
	}

	second := devices[1]
	if second.String("name") != "10.0.0.3" {
		t.Errorf("expected IP fallback name, got %q", second.String("name"))
	}

	if got := a.processResults(nil, "10.0.0.0/24"); got != nil {
		t.Errorf("expected nil for nil results, got %v", got)
	}
}
