package listing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocidist/regclient/internal/transport"
)

func drain(t *testing.T, it *iterator) []string {
	t.Helper()
	var got []string
	for {
		item, ok, err := it.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, item)
	}
	return got
}

func TestCatalogPaginatesAcrossLinkHeader(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch calls {
		case 1:
			w.Header().Set("Link", `</v2/_catalog?n=1&next_page=r1/i1>; rel="next"`)
			w.Write([]byte(`{"repositories":["r1/i1"]}`))
		case 2:
			w.Write([]byte(`{"repositories":["r2"]}`))
		default:
			t.Fatalf("unexpected extra page fetch")
		}
	}))
	defer srv.Close()

	it := Catalog(context.Background(), transport.New(), "", srv.URL, 1)
	got := drain(t, it)
	assert.Equal(t, []string{"r1/i1", "r2"}, got)
	assert.Equal(t, 2, calls)
}

func TestTagsPaginatesUntilNoLinkHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"repo","tags":["t1","t2"]}`))
	}))
	defer srv.Close()

	it := Tags(context.Background(), transport.New(), "", srv.URL, "repo", 0)
	got := drain(t, it)
	assert.Equal(t, []string{"t1", "t2"}, got)
}

func TestTagsTolerateWrongContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(`{"name":"repo","tags":["t1"]}`))
	}))
	defer srv.Close()

	it := Tags(context.Background(), transport.New(), "", srv.URL, "repo", 0)
	got := drain(t, it)
	assert.Equal(t, []string{"t1"}, got)
}

func TestCatalogStatusErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	it := Catalog(context.Background(), transport.New(), "", srv.URL, 0)
	_, ok, err := it.Next(context.Background())
	require.Error(t, err)
	assert.False(t, ok)
}

func TestCatalogEmptyPageTerminates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"repositories":[]}`))
	}))
	defer srv.Close()

	it := Catalog(context.Background(), transport.New(), "", srv.URL, 0)
	_, ok, err := it.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}
