// Package host embeds a compiled Flow Program in a net/http server: one
// Runner per request, a route selecting which handler to invoke, and the
// native stdlib plus this package's own HTTP- and database-backed
// natives populating the registry the Runner dispatches through.
package host

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the host's own runtime configuration (spec.md section 2.2:
// "TOML config is for the host, not the engine" — Flow programs are
// always loaded as compiled bytecode, never described in this file).
// Grounded on chazu-maggie's manifest.Manifest: a flat, tagged struct
// loaded with toml.Unmarshal plus a defaulting pass after parse.
type Config struct {
	Listen  ListenConfig  `toml:"listen"`
	Runtime RuntimeConfig `toml:"runtime"`
	Rules   RulesConfig   `toml:"rules"`
}

type ListenConfig struct {
	Address     string `toml:"address"`
	ReusePort   bool   `toml:"reuse_port"`
	DefaultRoute string `toml:"default_route"`
}

// RuntimeConfig holds per-request host policy: a Runner's register file
// is sized by the handler it runs, while RequestTimeout sets the deadline
// of each request's context in Server.ServeHTTP. MaxArenaObjects is
// parsed and defaulted but is not read anywhere; no arena limit is
// applied to a Runner.
type RuntimeConfig struct {
	RequestTimeout  Duration `toml:"request_timeout"`
	MaxArenaObjects int      `toml:"max_arena_objects"`
}

// RulesConfig points at the SQLite database internal/host/db.go's
// db.lookup native reads from.
type RulesConfig struct {
	SQLitePath string `toml:"sqlite_path"`
}

// Duration wraps time.Duration so it can be written as "5s" in TOML
// instead of a raw nanosecond integer, following the same
// UnmarshalText pattern BurntSushi/toml documents for custom scalars.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("host: invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

func defaultConfig() Config {
	return Config{
		Listen: ListenConfig{
			DefaultRoute: "main",
		},
		Runtime: RuntimeConfig{
			RequestTimeout:  Duration{5 * time.Second},
			MaxArenaObjects: 4096,
		},
	}
}

// LoadConfig reads and parses a host TOML config file, applying defaults
// for anything the file leaves unset.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("host: cannot read config %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("host: parse error in %s: %w", path, err)
	}
	if cfg.Listen.Address == "" {
		return Config{}, fmt.Errorf("host: listen.address must not be empty")
	}
	return cfg, nil
}
