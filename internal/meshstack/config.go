package meshstack

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the stack configuration file inside the config dir.
	ConfigFileName = "config.yaml"

	// DefaultUDPPort is the port of the synthesized default UDP interface.
	DefaultUDPPort = 4242
)

var (
	// ErrNoInterfaces is returned when a configuration declares no
	// network interfaces at all.
	ErrNoInterfaces = errors.New("configuration declares no interfaces")
)

// InterfaceConfig describes one configured network interface.
type InterfaceConfig struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Listen string `yaml:"listen,omitempty"`
	Target string `yaml:"target,omitempty"`
}

// Config is the stack configuration, persisted to the config directory.
type Config struct {
	// EnableTransport enables the store-and-forward transport role.
	EnableTransport bool `yaml:"enable_transport"`

	// Interfaces are the network interfaces brought up at init.
	Interfaces []InterfaceConfig `yaml:"interfaces"`
}

// DefaultConfig returns the minimal working configuration synthesized when
// none exists: transport role enabled and one UDP interface bound to all
// addresses on the default port.
func DefaultConfig() *Config {
	return &Config{
		EnableTransport: true,
		Interfaces: []InterfaceConfig{
			{
				Name:   "default_udp",
				Type:   "udp",
				Listen: fmt.Sprintf("0.0.0.0:%d", DefaultUDPPort),
				Target: fmt.Sprintf("255.255.255.255:%d", DefaultUDPPort),
			},
		},
	}
}

// Validate checks the configuration for structural problems.
func (c *Config) Validate() error {
	if len(c.Interfaces) == 0 {
		return ErrNoInterfaces
	}
	for _, iface := range c.Interfaces {
		if iface.Name == "" {
			return fmt.Errorf("interface with empty name")
		}
		switch iface.Type {
		case "udp":
			if iface.Listen == "" {
				return fmt.Errorf("udp interface %q has no listen address", iface.Name)
			}
		default:
			return fmt.Errorf("interface %q has unsupported type %q", iface.Name, iface.Type)
		}
	}
	return nil
}

// LoadOrCreateConfig reads the configuration from dir, synthesizing and
// persisting the default configuration when no file exists yet.
func LoadOrCreateConfig(dir string) (*Config, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	path := filepath.Join(dir, ConfigFileName)
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := DefaultConfig()
		encoded, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("encode default config: %w", err)
		}
		if err := os.WriteFile(path, encoded, 0o644); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
