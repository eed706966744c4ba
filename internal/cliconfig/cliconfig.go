// Package cliconfig loads the optional per-registry profile file consumed
// by cmd/registryctl. It layers over internal/dockerconfig rather than
// replacing it: dockerconfig answers "what are the Docker Hub-style
// credentials for this host", while a profile here can additionally pin
// TLS/timeout/retry behavior per registry without touching the library's
// own Config builder defaults.
package cliconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile overrides regclient.Config defaults for one registry host.
type Profile struct {
	Username        string `json:"username" yaml:"username"`
	Password        string `json:"password" yaml:"password"`
	Insecure        bool   `json:"insecure" yaml:"insecure"`
	UserAgent       string `json:"user_agent" yaml:"user_agent"`
	HTTPTimeout     string `json:"http_timeout" yaml:"http_timeout"`
	MaxRetryElapsed string `json:"max_retry_elapsed" yaml:"max_retry_elapsed"`
}

// Config is the top-level shape of a registryctl profile file: a map from
// registry host (as it appears in a docker:// reference, e.g.
// "registry.example:5000") to that registry's Profile.
type Config struct {
	Registries map[string]Profile `json:"registries" yaml:"registries"`
}

// Load reads a profile file, sniffing YAML vs JSON from its extension and
// falling back to trying both for an unrecognized one.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading registryctl config: %w", err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing YAML registryctl config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing JSON registryctl config: %w", err)
		}
	default:
		if yerr := yaml.Unmarshal(data, &cfg); yerr != nil {
			if jerr := json.Unmarshal(data, &cfg); jerr != nil {
				return Config{}, fmt.Errorf("parsing registryctl config (tried YAML and JSON): %w", yerr)
			}
		}
	}
	return cfg, nil
}

// Lookup returns the profile for registry, if one is configured.
func (c Config) Lookup(registry string) (Profile, bool) {
	p, ok := c.Registries[registry]
	return p, ok
}

// Timeout parses HTTPTimeout, returning 0 (caller keeps library default)
// if it is empty or unset.
func (p Profile) Timeout() (time.Duration, error) {
	if p.HTTPTimeout == "" {
		return 0, nil
	}
	return time.ParseDuration(p.HTTPTimeout)
}

// RetryElapsed parses MaxRetryElapsed the same way as Timeout.
func (p Profile) RetryElapsed() (time.Duration, error) {
	if p.MaxRetryElapsed == "" {
		return 0, nil
	}
	return time.ParseDuration(p.MaxRetryElapsed)
}

// DefaultPath returns "$HOME/.regclient/config.yaml".
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".regclient", "config.yaml"), nil
}
