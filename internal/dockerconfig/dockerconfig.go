// Package dockerconfig reads ~/.docker/config.json credential entries for
// the cmd/registryctl example driver. It is consumed only by the CLI: the
// core client receives credentials already decoded, never touching disk
// itself.
package dockerconfig

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// dockerHubIndexKey is the auths key Docker itself uses for Hub
// credentials, regardless of which Docker Hub hostname the caller named.
const dockerHubIndexKey = "https://index.docker.io/v1/"

// config mirrors the subset of ~/.docker/config.json this package reads.
type config struct {
	Auths map[string]authEntry `json:"auths"`
}

type authEntry struct {
	Auth string `json:"auth"`
}

// Lookup reads path (typically "~/.docker/config.json" expanded by
// DefaultPath) and returns the username/password for registry, decoded
// from its base64(user:pass) "auth" entry. ok is false if no entry names
// that registry.
func Lookup(path, registry string) (username, password string, ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", false, fmt.Errorf("reading docker config: %w", err)
	}

	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return "", "", false, fmt.Errorf("parsing docker config: %w", err)
	}

	for _, key := range candidateKeys(registry) {
		entry, found := cfg.Auths[key]
		if !found || entry.Auth == "" {
			continue
		}
		user, pass, err := decodeAuth(entry.Auth)
		if err != nil {
			return "", "", false, err
		}
		return user, pass, true, nil
	}
	return "", "", false, nil
}

// candidateKeys lists the auths map keys to try for registry, in order,
// special-casing Docker Hub's historical index-key naming.
func candidateKeys(registry string) []string {
	if registry == "" || registry == "docker.io" || registry == "registry-1.docker.io" {
		return []string{dockerHubIndexKey, "docker.io", "registry-1.docker.io"}
	}
	return []string{registry, "https://" + registry}
}

func decodeAuth(encoded string) (username, password string, err error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", fmt.Errorf("decoding auth entry: %w", err)
	}
	user, pass, found := strings.Cut(string(raw), ":")
	if !found {
		return "", "", fmt.Errorf("malformed auth entry: missing ':' separator")
	}
	return user, pass, nil
}

// DefaultPath returns "$HOME/.docker/config.json".
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".docker", "config.json"), nil
}
