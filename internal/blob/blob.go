// Package blob implements content-addressed blob existence checks and
// digest-verified fetches, in both buffered and streaming forms.
package blob

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/ocidist/regclient/internal/digest"
	"github.com/ocidist/regclient/internal/regerr"
	"github.com/ocidist/regclient/internal/transport"
)

// DigestObserver is notified when a streamed blob fails digest
// verification, so the caller can record it (e.g. in Prometheus) without
// this package depending on a metrics type directly.
type DigestObserver interface {
	ObserveDigestMismatch()
}

// Client fetches blobs from a single registry base URL.
type Client struct {
	transport *transport.Transport
	baseURL   string
	metrics   DigestObserver
}

// New constructs a blob Client. baseURL is the scheme+host prefix, e.g.
// "https://registry-1.docker.io". metrics may be nil.
func New(t *transport.Transport, baseURL string, metrics DigestObserver) *Client {
	return &Client{transport: t, baseURL: baseURL, metrics: metrics}
}

func (c *Client) blobURL(name, dg string) string {
	return fmt.Sprintf("%s/v2/%s/blobs/%s", c.baseURL, name, dg)
}

// Has is a pure existence probe: 200, 301, 302 and 307 report "present"
// and every other status reports "not present" without an error. It
// returns an error only when the request cannot be built or sent.
func (c *Client) Has(ctx context.Context, authHeader, name, dg string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.blobURL(name, dg), nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", regerr.ErrConfiguration, err)
	}
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", regerr.ErrTransport, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusMovedPermanently, http.StatusFound, http.StatusTemporaryRedirect:
		return true, nil
	default:
		return false, nil
	}
}

// Get retrieves the full blob body, following one level of 301/302/307
// redirect, and verifies it against dg before returning. A 3xx response
// missing a Location header is a protocol error, not a silent pass-through
// of whatever body it carried.
func (c *Client) Get(ctx context.Context, authHeader, name, dg string) ([]byte, error) {
	rc, err := c.GetStream(ctx, authHeader, name, dg)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// FetchBlob adapts Get to manifest.BlobFetcher's signature, for fetching a
// schema2 config blob from the manifest layer.
func (c *Client) FetchBlob(ctx context.Context, authHeader, name, dg string) ([]byte, error) {
	return c.Get(ctx, authHeader, name, dg)
}

// verifyingReadCloser wraps a response body, feeding every read byte
// through a digest.Verifier and running the check exactly once, on a
// natural (err == io.EOF) end of stream. A caller that stops reading early
// (Close before EOF) skips verification entirely: a partial body can never
// match, so a cancelled fetch would always surface a spurious mismatch.
type verifyingReadCloser struct {
	body     io.ReadCloser
	verifier *digest.Verifier
	metrics  DigestObserver
	done     bool
	err      error
}

func (v *verifyingReadCloser) Read(p []byte) (int, error) {
	if v.done {
		return 0, io.EOF
	}
	n, err := v.body.Read(p)
	if n > 0 {
		_, _ = v.verifier.Write(p[:n])
	}
	if err == io.EOF {
		v.done = true
		if verr := v.verifier.Verify(); verr != nil {
			if v.metrics != nil {
				v.metrics.ObserveDigestMismatch()
			}
			v.err = verr
			return n, verr
		}
	}
	return n, err
}

func (v *verifyingReadCloser) Close() error {
	return v.body.Close()
}

// GetStream retrieves the blob as a streaming reader: digest verification
// happens incrementally as the caller reads, and completes when the
// caller's read reaches natural end-of-stream.
func (c *Client) GetStream(ctx context.Context, authHeader, name, dg string) (io.ReadCloser, error) {
	verifier, err := digest.New(dg)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, authHeader, c.blobURL(name, dg))
	if err != nil {
		return nil, err
	}

	return &verifyingReadCloser{body: resp.Body, verifier: verifier, metrics: c.metrics}, nil
}

// do issues the GET and follows a single 3xx redirect via Location,
// matching the registry's documented redirect-to-CDN blob delivery
// pattern. It does not forward the Authorization header to the redirect
// target: most blob redirects point at a different origin (a CDN or
// object store) that neither expects nor should receive registry
// credentials.
func (c *Client) do(ctx context.Context, authHeader, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", regerr.ErrConfiguration, err)
	}
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", regerr.ErrTransport, err)
	}

	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusTemporaryRedirect:
		location := resp.Header.Get("Location")
		resp.Body.Close()
		if location == "" {
			return nil, fmt.Errorf("%w: %d redirect missing Location header", regerr.ErrProtocol, resp.StatusCode)
		}
		req2, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", regerr.ErrConfiguration, err)
		}
		resp2, err := c.transport.Do(ctx, req2)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", regerr.ErrTransport, err)
		}
		if resp2.StatusCode != http.StatusOK {
			resp2.Body.Close()
			return nil, regerr.NewStatusError(regerr.ErrProtocol, http.MethodGet, location, resp2.StatusCode, resp2.Header.Get("Content-Type"), "unexpected status after blob redirect")
		}
		return resp2, nil
	case http.StatusOK:
		return resp, nil
	default:
		resp.Body.Close()
		return nil, regerr.NewStatusError(regerr.ErrProtocol, http.MethodGet, url, resp.StatusCode, resp.Header.Get("Content-Type"), "unexpected blob status")
	}
}
