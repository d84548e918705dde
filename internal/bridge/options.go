package bridge

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// IdentityFileName is the default identity file inside the config directory.
const IdentityFileName = "bridge_identity"

// ErrInvalidInterval is returned when a configured interval is not positive.
var ErrInvalidInterval = errors.New("interval must be positive")

// Options are the bridge's runtime knobs. Environment variables override the
// defaults; command-line flags override both.
type Options struct {
	// ConfigDir is the stack configuration directory.
	ConfigDir string `env:"RNSBRIDGE_CONFIG_DIR"`

	// IdentityPath is the identity file path. Empty means
	// ConfigDir/bridge_identity, resolved by Resolve.
	IdentityPath string `env:"RNSBRIDGE_IDENTITY"`

	// AnnounceInterval separates periodic presence announcements.
	AnnounceInterval time.Duration `env:"RNSBRIDGE_ANNOUNCE_INTERVAL"`

	// SettleDelay is the pause between callback registration and the first
	// announce, letting freshly attached interfaces finish negotiating.
	SettleDelay time.Duration `env:"RNSBRIDGE_SETTLE_DELAY"`

	// ShutdownGrace bounds the wait on each background activity at
	// shutdown. Activities that do not exit in time are abandoned.
	ShutdownGrace time.Duration `env:"RNSBRIDGE_SHUTDOWN_GRACE"`
}

// DefaultOptions returns the built-in defaults.
func DefaultOptions() Options {
	return Options{
		ConfigDir:        defaultConfigDir(),
		AnnounceInterval: 10 * time.Minute,
		SettleDelay:      5 * time.Second,
		ShutdownGrace:    time.Second,
	}
}

// LoadOptions builds Options from defaults and environment overrides.
func LoadOptions() (Options, error) {
	opts := DefaultOptions()
	if err := env.Parse(&opts); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Resolve fills derived fields after all overrides are applied.
func (o *Options) Resolve() {
	if o.IdentityPath == "" {
		o.IdentityPath = filepath.Join(o.ConfigDir, IdentityFileName)
	}
}

// Validate checks the options for unusable values.
func (o *Options) Validate() error {
	if o.AnnounceInterval <= 0 {
		return ErrInvalidInterval
	}
	if o.ShutdownGrace <= 0 {
		return ErrInvalidInterval
	}
	if o.SettleDelay < 0 {
		return ErrInvalidInterval
	}
	return nil
}

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".rnsbridge"
	}
	return filepath.Join(home, ".rnsbridge")
}
