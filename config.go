package dynffi

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ClosePolicy decides which callbacks a library close releases.
type ClosePolicy string

const (
	// CloseOwned releases the callbacks that were passed to symbols of the
	// closing library.
	CloseOwned ClosePolicy = "owned"
	// CloseAll releases every live callback on any library close.
	CloseAll ClosePolicy = "all"
)

const (
	// DefaultMaxAlloc caps Alloc at the uint32 range exposed to scripts.
	DefaultMaxAlloc = 1<<32 - 1
	// DefaultDroppedErrorLimit bounds Bridge.DroppedErrors.
	DefaultDroppedErrorLimit = 64
	// PathEnv lists extra library search directories, colon separated.
	PathEnv = "DYNFFI_PATH"
)

// Config holds bridge settings. The zero value is usable; see DefaultConfig.
type Config struct {
	SearchPaths       []string    `yaml:"search_paths"`
	ClosePolicy       ClosePolicy `yaml:"close_policy"`
	MaxAlloc          int64       `yaml:"max_alloc"`
	DroppedErrorLimit int         `yaml:"dropped_error_limit"`
	LogLevel          string      `yaml:"log_level"`

	Logger *slog.Logger `yaml:"-"`
}

// DefaultConfig returns the defaults with DYNFFI_PATH folded into the search
// paths.
func DefaultConfig() Config {
	c := Config{}
	c.fill()
	return c
}

func (c *Config) fill() {
	if c.ClosePolicy == "" {
		c.ClosePolicy = CloseOwned
	}
	if c.MaxAlloc <= 0 {
		c.MaxAlloc = DefaultMaxAlloc
	}
	if c.DroppedErrorLimit <= 0 {
		c.DroppedErrorLimit = DefaultDroppedErrorLimit
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if env := os.Getenv(PathEnv); env != "" {
		for _, p := range filepath.SplitList(env) {
			if p != "" && !slices.Contains(c.SearchPaths, p) {
				c.SearchPaths = append(c.SearchPaths, p)
			}
		}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c *Config) validate() error {
	switch c.ClosePolicy {
	case CloseOwned, CloseAll:
	default:
		return fmt.Errorf("close_policy: unknown policy %q (want %q or %q)", c.ClosePolicy, CloseOwned, CloseAll)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// LoadConfig reads a YAML config file and fills in defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML config bytes and fills in defaults.
func ParseConfig(data []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	c.fill()
	if err := c.validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

// ParseLevel maps a config level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}
