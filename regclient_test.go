package regclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	host := strings.TrimPrefix(srv.URL, "http://")
	c, err := NewConfig(host).InsecureRegistry(true).Build()
	require.NoError(t, err)
	return c
}

func TestIsV2SupportedAuthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Docker-Distribution-API-Version", "registry/2.0")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	supported, authorized, err := c.IsV2SupportedAndAuthorized(context.Background())
	require.NoError(t, err)
	assert.True(t, supported)
	assert.True(t, authorized)
}

func TestIsV2SupportedUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Docker-Distribution-API-Version", "registry/2.0")
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	supported, authorized, err := c.IsV2SupportedAndAuthorized(context.Background())
	require.NoError(t, err)
	assert.True(t, supported)
	assert.False(t, authorized)
}

func TestIsV2NotSupportedWrongHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	supported, err := c.IsV2Supported(context.Background())
	require.NoError(t, err)
	assert.False(t, supported)
}

func TestLoginFullChallengeFlow(t *testing.T) {
	var tokenSrv *httptest.Server
	tokenSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "registry.example", r.URL.Query().Get("service"))
		assert.Equal(t, "repository:library/busybox:pull", r.URL.Query().Get("scope"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "alice", user)
		assert.Equal(t, "hunter2", pass)
		w.Write([]byte(`{"token":"abc123"}`))
	}))
	defer tokenSrv.Close()

	registry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("WWW-Authenticate", `Bearer realm="`+tokenSrv.URL+`",service="registry.example"`)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer registry.Close()

	host := strings.TrimPrefix(registry.URL, "http://")
	c, err := NewConfig(host).InsecureRegistry(true).Credentials("alice", "hunter2").Build()
	require.NoError(t, err)

	token, err := c.Login(context.Background(), []string{"repository:library/busybox:pull"})
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)
}

func TestLoginNoAuthNeeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	token, err := c.Login(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "", token)
}

func TestLoginMissingChallengeIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Login(context.Background(), nil)
	require.Error(t, err)
}

func TestIsAuthStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			w.WriteHeader(http.StatusOK)
		case "Bearer bad":
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	ok, err := c.IsAuth(context.Background(), "good")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.IsAuth(context.Background(), "bad")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.IsAuth(context.Background(), "other")
	require.Error(t, err)
}

func TestGetManifestUsesInstalledToken(t *testing.T) {
	configBody := []byte(`{"architecture":"amd64","os":"linux"}`)
	sum := sha256.Sum256(configBody)
	configDigest := "sha256:" + hex.EncodeToString(sum[:])

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer mytoken", r.Header.Get("Authorization"))
		if strings.Contains(r.URL.Path, "/blobs/") {
			w.Write(configBody)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.docker.distribution.manifest.v2+json")
		fmt.Fprintf(w, `{"schemaVersion":2,"mediaType":"application/vnd.docker.distribution.manifest.v2+json","config":{"mediaType":"application/vnd.docker.container.image.v1+json","size":%d,"digest":%q},"layers":[]}`, len(configBody), configDigest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.SetToken("mytoken")

	m, _, err := c.GetManifest(context.Background(), "library/busybox", "latest")
	require.NoError(t, err)
	v2, ok := m.(SchemaV2)
	require.True(t, ok)
	assert.Equal(t, "amd64", v2.Blob.Architecture)
}

func TestCatalogAndTagsThroughClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "_catalog"):
			w.Write([]byte(`{"repositories":["a","b"]}`))
		case strings.Contains(r.URL.Path, "tags/list"):
			w.Write([]byte(`{"name":"a","tags":["t1"]}`))
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	it := c.Catalog(context.Background(), 0)
	var repos []string
	for {
		item, ok, err := it.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		repos = append(repos, item)
	}
	assert.Equal(t, []string{"a", "b"}, repos)

	tagsIt := c.Tags(context.Background(), "a", 0)
	item, ok, err := tagsIt.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "t1", item)
}
