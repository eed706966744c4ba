// Package listing implements the paginated catalog and tag-list iterators,
// following Link: rel="next" cursors between pages.
package listing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/ocidist/regclient/internal/linkheader"
	"github.com/ocidist/regclient/internal/regerr"
	"github.com/ocidist/regclient/internal/transport"
)

// page is the shared shape driving both Catalog and Tags: a slice of
// string items plus an optional next-page URL.
type page struct {
	items []string
	next  string
}

// fetchFunc performs one page fetch against url and decodes it into a page.
type fetchFunc func(ctx context.Context, t *transport.Transport, authHeader, url string, logger *slog.Logger) (page, error)

// iterator streams items one page at a time, handing them out one by one
// and transparently fetching the next page on exhaustion.
type iterator struct {
	transport  *transport.Transport
	authHeader string
	logger     *slog.Logger
	fetch      fetchFunc

	nextURL string
	buf     []string
	started bool
	done    bool
	err     error
}

// Next returns the next item in the sequence. ok is false once the
// sequence is exhausted (err is nil in that case) or after a fetch error
// (err is non-nil).
func (it *iterator) Next(ctx context.Context) (string, bool, error) {
	for len(it.buf) == 0 {
		if it.done {
			return "", false, it.err
		}
		if it.started && it.nextURL == "" {
			it.done = true
			return "", false, nil
		}
		it.started = true

		p, err := it.fetch(ctx, it.transport, it.authHeader, it.nextURL, it.logger)
		if err != nil {
			it.done = true
			it.err = err
			return "", false, err
		}
		it.buf = p.items
		it.nextURL = p.next
		if len(p.items) == 0 && p.next == "" {
			it.done = true
			return "", false, nil
		}
	}

	item := it.buf[0]
	it.buf = it.buf[1:]
	return item, true, nil
}

// Catalog starts a lazy sequence over repository names. pageSize, when
// positive, is sent as the "n" query parameter on the first request.
func Catalog(ctx context.Context, t *transport.Transport, authHeader, baseURL string, pageSize int) *iterator {
	first := fmt.Sprintf("%s/v2/_catalog", baseURL)
	if pageSize > 0 {
		first = fmt.Sprintf("%s?n=%d", first, pageSize)
	}
	return &iterator{
		transport:  t,
		authHeader: authHeader,
		logger:     slog.Default(),
		fetch:      fetchCatalogPage,
		nextURL:    first,
	}
}

// Tags starts a lazy sequence over tag names for the named repository.
func Tags(ctx context.Context, t *transport.Transport, authHeader, baseURL, name string, pageSize int) *iterator {
	first := fmt.Sprintf("%s/v2/%s/tags/list", baseURL, name)
	if pageSize > 0 {
		first = fmt.Sprintf("%s?n=%d", first, pageSize)
	}
	return &iterator{
		transport:  t,
		authHeader: authHeader,
		logger:     slog.Default(),
		fetch:      fetchTagsPage,
		nextURL:    first,
	}
}

type wireCatalog struct {
	Repositories []string `json:"repositories"`
}

type wireTags struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

func fetchCatalogPage(ctx context.Context, t *transport.Transport, authHeader, pageURL string, logger *slog.Logger) (page, error) {
	body, header, err := get(ctx, t, authHeader, pageURL)
	if err != nil {
		return page{}, err
	}

	var w wireCatalog
	if err := json.Unmarshal(body, &w); err != nil {
		return page{}, fmt.Errorf("%w: decoding catalog page: %v", regerr.ErrProtocol, err)
	}

	return page{items: w.Repositories, next: nextPageURL(pageURL, header)}, nil
}

func fetchTagsPage(ctx context.Context, t *transport.Transport, authHeader, pageURL string, logger *slog.Logger) (page, error) {
	resp, err := doRequest(ctx, t, authHeader, pageURL)
	if err != nil {
		return page{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return page{}, regerr.NewStatusError(regerr.ErrProtocol, http.MethodGet, pageURL, resp.StatusCode, resp.Header.Get("Content-Type"), "unexpected tags-list status")
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && ct != "application/json" && logger != nil {
		logger.WarnContext(ctx, "tags-list response has unexpected content-type", "url", pageURL, "content_type", ct)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return page{}, fmt.Errorf("%w: reading tags-list body: %v", regerr.ErrTransport, err)
	}

	var w wireTags
	if err := json.Unmarshal(body, &w); err != nil {
		return page{}, fmt.Errorf("%w: decoding tags-list page: %v", regerr.ErrProtocol, err)
	}

	return page{items: w.Tags, next: nextPageURL(pageURL, resp.Header.Get("Link"))}, nil
}

func get(ctx context.Context, t *transport.Transport, authHeader, pageURL string) ([]byte, string, error) {
	resp, err := doRequest(ctx, t, authHeader, pageURL)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", regerr.NewStatusError(regerr.ErrProtocol, http.MethodGet, pageURL, resp.StatusCode, resp.Header.Get("Content-Type"), "unexpected listing status")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: reading listing body: %v", regerr.ErrTransport, err)
	}
	return body, resp.Header.Get("Link"), nil
}

func doRequest(ctx context.Context, t *transport.Transport, authHeader, pageURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", regerr.ErrConfiguration, err)
	}
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp, err := t.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", regerr.ErrTransport, err)
	}
	return resp, nil
}

// nextPageURL resolves the rel="next" Link target (if any) against the
// page that produced it, so the iterator can issue a plain absolute-URL
// GET for the next page regardless of whether the server emitted an
// absolute or relative target.
func nextPageURL(currentURL, linkHeader string) string {
	if linkHeader == "" {
		return ""
	}
	for _, l := range linkheader.Parse(linkHeader) {
		if l.Params["rel"] != "next" {
			continue
		}
		base, err := url.Parse(currentURL)
		if err != nil {
			return l.Target
		}
		ref, err := url.Parse(l.Target)
		if err != nil {
			return l.Target
		}
		return base.ResolveReference(ref).String()
	}
	return ""
}
