package adapter

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"lodestone/internal/domain"
)

// DeviceFunc supplies the devices to probe, typically those in the store
// with a primary IP.
type DeviceFunc func(ctx context.Context) ([]domain.Record, error)

// Credentials hold the SSH login the probe uses. Key-based auth wins when
// both a key and a password are present.
type Credentials struct {
	Username   string
	Password   string
	PrivateKey []byte
}

// FactCommand is one command run on a probed device and the record field
// its output feeds.
type FactCommand struct {
	Field   string
	Command string
}

// DefaultFactCommands covers the facts the device model carries.
var DefaultFactCommands = []FactCommand{
	{Field: "name", Command: "hostname"},
	{Field: "platform", Command: "uname -sr"},
}

// SSHProbeAdapter connects to known devices over SSH and refreshes their
// facts.
type SSHProbeAdapter struct {
	devices  DeviceFunc
	creds    Credentials
	timeout  time.Duration
	commands []FactCommand

	mu      sync.Mutex
	running bool
}

// SSHProbeConfig holds configuration for the SSH probe adapter
type SSHProbeConfig struct {
	// Timeout for SSH connections
	ConnectionTimeout time.Duration
	// Commands to run for fact gathering
	Commands []FactCommand
}

// NewSSHProbeAdapter creates a new SSH probe adapter
func NewSSHProbeAdapter(devices DeviceFunc, creds Credentials, config SSHProbeConfig) *SSHProbeAdapter {
	if config.ConnectionTimeout == 0 {
		config.ConnectionTimeout = 10 * time.Second
	}
	if len(config.Commands) == 0 {
		config.Commands = DefaultFactCommands
	}

	return &SSHProbeAdapter{
		devices:  devices,
		creds:    creds,
		timeout:  config.ConnectionTimeout,
		commands: config.Commands,
	}
}

// Name returns the adapter identifier
func (s *SSHProbeAdapter) Name() string {
	return "sshprobe"
}

// Type returns the adapter type
func (s *SSHProbeAdapter) Type() AdapterType {
	return AdapterTypePolling
}

// Start marks the adapter as running
func (s *SSHProbeAdapter) Start(ctx context.Context) error {
	if s.creds.Username == "" {
		return fmt.Errorf("ssh probe requires a username")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	return nil
}

// Stop marks the adapter as stopped
func (s *SSHProbeAdapter) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

// Sync probes every device with a primary IP and returns refreshed facts.
func (s *SSHProbeAdapter) Sync(ctx context.Context) ([]domain.Record, error) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil, fmt.Errorf("adapter not running")
	}
	s.mu.Unlock()

	devices, err := s.devices(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving probe targets: %w", err)
	}

	var probed []domain.Record
	for _, device := range devices {
		ip := device.String("primary_ip")
		if ip == "" {
			continue
		}
		facts, err := s.probe(ctx, ip)
		if err != nil {
			log.Printf("SSH probe: %s: %v", ip, err)
			continue
		}
		facts["primary_ip"] = ip
		probed = append(probed, facts)
	}

	log.Printf("SSH probe: refreshed %d of %d devices", len(probed), len(devices))
	return probed, nil
}

// probe connects to one device and runs the fact commands.
func (s *SSHProbeAdapter) probe(ctx context.Context, host string) (domain.Record, error) {
	client, err := s.connect(ctx, host)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	facts := domain.Record{}
	collected := map[string]any{"source": "sshprobe", "probed": time.Now().UTC().Format(time.RFC3339)}
	for _, cmd := range s.commands {
		session, err := client.NewSession()
		if err != nil {
			return nil, fmt.Errorf("opening session: %w", err)
		}
		output, err := session.Output(cmd.Command)
		session.Close()
		if err != nil {
			log.Printf("SSH probe: %s: %q failed: %v", host, cmd.Command, err)
			continue
		}
		value := strings.TrimSpace(string(output))
		if value == "" {
			continue
		}
		facts[cmd.Field] = value
		collected[cmd.Field] = value
	}
	facts["discovered"] = collected
	return facts, nil
}

// connect establishes an SSH connection with the configured credentials.
func (s *SSHProbeAdapter) connect(ctx context.Context, host string) (*ssh.Client, error) {
	config, err := s.buildSSHConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build SSH config: %w", err)
	}
	config.Timeout = s.timeout

	addr := net.JoinHostPort(host, "22")
	dialer := &net.Dialer{Timeout: s.timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to establish SSH connection: %w", err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// buildSSHConfig creates an SSH client config from the credentials.
func (s *SSHProbeAdapter) buildSSHConfig() (*ssh.ClientConfig, error) {
	var methods []ssh.AuthMethod
	if len(s.creds.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(s.creds.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("parsing private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if s.creds.Password != "" {
		methods = append(methods, ssh.Password(s.creds.Password))
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("no SSH auth methods configured")
	}

	return &ssh.ClientConfig{
		User: s.creds.Username,
		Auth: methods,
		// TODO: support pinned host keys from config.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}, nil
}
