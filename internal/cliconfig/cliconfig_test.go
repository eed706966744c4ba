package cliconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadYAMLProfile(t *testing.T) {
	path := writeFile(t, "config.yaml", `
registries:
  registry.example:5000:
    username: alice
    password: hunter2
    insecure: true
    http_timeout: 45s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	p, ok := cfg.Lookup("registry.example:5000")
	require.True(t, ok)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, "hunter2", p.Password)
	assert.True(t, p.Insecure)

	timeout, err := p.Timeout()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, timeout)
}

func TestLoadJSONProfile(t *testing.T) {
	path := writeFile(t, "config.json", `{"registries":{"registry-1.docker.io":{"username":"bob"}}}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	p, ok := cfg.Lookup("registry-1.docker.io")
	require.True(t, ok)
	assert.Equal(t, "bob", p.Username)
}

func TestLookupMissingRegistry(t *testing.T) {
	cfg := Config{Registries: map[string]Profile{}}
	_, ok := cfg.Lookup("nowhere.example")
	assert.False(t, ok)
}

func TestProfileTimeoutEmptyIsZero(t *testing.T) {
	var p Profile
	d, err := p.Timeout()
	require.NoError(t, err)
	assert.Zero(t, d)
}

func TestProfileTimeoutInvalidIsError(t *testing.T) {
	p := Profile{HTTPTimeout: "not-a-duration"}
	_, err := p.Timeout()
	assert.Error(t, err)
}
