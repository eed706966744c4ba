// Package regclient implements a client for the Docker Registry HTTP API
// v2 (the basis of the OCI Distribution Specification): version probing,
// Bearer-token authentication, manifest retrieval across schema versions,
// paginated catalog/tag listing, and digest-verified blob fetching.
package regclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ocidist/regclient/internal/auth"
	"github.com/ocidist/regclient/internal/blob"
	"github.com/ocidist/regclient/internal/listing"
	"github.com/ocidist/regclient/internal/manifest"
	"github.com/ocidist/regclient/internal/metrics"
	"github.com/ocidist/regclient/internal/regerr"
	"github.com/ocidist/regclient/internal/transport"
)

// DefaultUserAgent identifies this library on the wire when the caller
// does not override it.
const DefaultUserAgent = "regclient/1.0"

// Re-exported error sentinels, for callers that want to classify a
// returned error with errors.Is without importing an internal package.
var (
	ErrConfiguration        = regerr.ErrConfiguration
	ErrTransport            = regerr.ErrTransport
	ErrProtocol             = regerr.ErrProtocol
	ErrAuthentication       = regerr.ErrAuthentication
	ErrDigestMismatch       = regerr.ErrDigestMismatch
	ErrUnsupportedMedia     = regerr.ErrUnsupportedMedia
	ErrUnsupportedDigest    = regerr.ErrUnsupportedDigest
	ErrUnsupportedChallenge = regerr.ErrUnsupportedChallenge
)

// Re-exported types from internal/manifest, so callers never need to
// import an internal package to type-switch on a returned Manifest.
type (
	Manifest          = manifest.Manifest
	SchemaV1Signed    = manifest.SchemaV1Signed
	SchemaV2          = manifest.SchemaV2
	ManifestList      = manifest.ManifestList
	MediaType         = manifest.MediaType
	Layer             = manifest.Layer
	Platform          = manifest.Platform
	ConfigBlob        = manifest.ConfigBlob
	ManifestListEntry = manifest.ManifestListEntry
)

// Re-exported MediaType constants.
const (
	MediaTypeManifestV1Signed = manifest.MediaTypeManifestV1Signed
	MediaTypeManifestV2       = manifest.MediaTypeManifestV2
	MediaTypeManifestList     = manifest.MediaTypeManifestList
	MediaTypeImageLayerGzip   = manifest.MediaTypeImageLayerGzip
	MediaTypeContainerConfig  = manifest.MediaTypeContainerConfigV1
	MediaTypeOther            = manifest.MediaTypeOther
)

// Config is a single-shot builder: each With* method returns a new Config
// value, and Build consumes the accumulated settings to produce a Client.
type Config struct {
	host          string
	insecure      bool
	username      string
	password      string
	userAgent     string
	acceptedTypes []MediaType

	httpTimeout     time.Duration
	maxRetryElapsed time.Duration
	metrics         *metrics.Collector
	logger          *slog.Logger
	httpClient      *http.Client
}

// NewConfig starts a builder for the named registry host (e.g.
// "registry-1.docker.io" or "localhost:5000"). It defaults to HTTPS, no
// credentials, and DefaultUserAgent.
func NewConfig(host string) Config {
	return Config{
		host:      host,
		userAgent: DefaultUserAgent,
	}
}

// Registry overrides the registry host:port.
func (c Config) Registry(host string) Config {
	c.host = host
	return c
}

// InsecureRegistry selects http:// instead of https:// for the base URL.
func (c Config) InsecureRegistry(insecure bool) Config {
	c.insecure = insecure
	return c
}

// Credentials sets the optional HTTP Basic credentials used during token
// exchange.
func (c Config) Credentials(username, password string) Config {
	c.username = username
	c.password = password
	return c
}

// UserAgent sets or disables (empty string) the User-Agent header.
func (c Config) UserAgent(ua string) Config {
	c.userAgent = ua
	return c
}

// AcceptedTypes overrides the default media-type preference list used for
// manifest fetches.
func (c Config) AcceptedTypes(types []MediaType) Config {
	c.acceptedTypes = types
	return c
}

// WithHTTPTimeout bounds a single request's round trip.
func (c Config) WithHTTPTimeout(d time.Duration) Config {
	c.httpTimeout = d
	return c
}

// WithMaxRetryElapsed bounds the total wall-clock time the 429-retry loop
// may spend on one logical request.
func (c Config) WithMaxRetryElapsed(d time.Duration) Config {
	c.maxRetryElapsed = d
	return c
}

// WithMetrics installs a Prometheus collector observing every request,
// retry, auth challenge, and digest mismatch this Client produces.
func (c Config) WithMetrics(collector *metrics.Collector) Config {
	c.metrics = collector
	return c
}

// WithLogger overrides the default slog logger.
func (c Config) WithLogger(logger *slog.Logger) Config {
	c.logger = logger
	return c
}

// WithHTTPClient overrides the underlying *http.Client entirely (proxies,
// custom TLS config, connection pooling).
func (c Config) WithHTTPClient(hc *http.Client) Config {
	c.httpClient = hc
	return c
}

// Build consumes the Config and produces a ready-to-use Client.
func (c Config) Build() (*Client, error) {
	if c.host == "" {
		return nil, fmt.Errorf("%w: registry host is required", regerr.ErrConfiguration)
	}

	scheme := "https"
	if c.insecure {
		scheme = "http"
	}
	baseURL := fmt.Sprintf("%s://%s", scheme, c.host)

	logger := c.logger
	if logger == nil {
		logger = slog.Default()
	}

	var topts []transport.Option
	topts = append(topts, transport.WithUserAgent(c.userAgent), transport.WithHost(c.host), transport.WithLogger(logger))
	if c.httpTimeout > 0 {
		hc := c.httpClient
		if hc == nil {
			hc = &http.Client{}
		}
		hc.Timeout = c.httpTimeout
		topts = append(topts, transport.WithHTTPClient(hc))
	} else if c.httpClient != nil {
		topts = append(topts, transport.WithHTTPClient(c.httpClient))
	}
	if c.maxRetryElapsed > 0 {
		topts = append(topts, transport.WithMaxElapsed(c.maxRetryElapsed))
	}
	if c.metrics != nil {
		topts = append(topts, transport.WithMetrics(c.metrics))
	}

	t := transport.New(topts...)

	// c.metrics is a typed *metrics.Collector; passing a nil one straight
	// into an interface parameter would produce a non-nil interface
	// wrapping a nil pointer, so the nil check happens here instead.
	var digestObserver blob.DigestObserver
	if c.metrics != nil {
		digestObserver = c.metrics
	}
	blobs := blob.New(t, baseURL, digestObserver)

	return &Client{
		baseURL:       baseURL,
		host:          c.host,
		username:      c.username,
		password:      c.password,
		userAgent:     c.userAgent,
		acceptedTypes: c.acceptedTypes,
		transport:     t,
		logger:        logger,
		metrics:       c.metrics,
		blobs:         blobs,
		manifests:     manifest.New(t, baseURL, blobs),
	}, nil
}

// Client is the long-lived handle to a single registry. It is safe for
// concurrent use after Build; the only mutable state is the token slot,
// guarded by a mutex, with documented last-write-wins semantics under
// concurrent Login/Authenticate calls.
type Client struct {
	baseURL       string
	host          string
	username      string
	password      string
	userAgent     string
	acceptedTypes []MediaType

	transport *transport.Transport
	logger    *slog.Logger
	metrics   *metrics.Collector
	blobs     *blob.Client
	manifests *manifest.Fetcher

	tokenMu sync.RWMutex
	token   string
}

// authHeader returns the Authorization header value to send with every
// request: "Bearer <token>" if a token is installed, else "".
func (c *Client) authHeader() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	if c.token == "" {
		return ""
	}
	return "Bearer " + c.token
}

// SetToken installs a bearer token for subsequent requests, replacing any
// previously installed token atomically.
func (c *Client) SetToken(token string) {
	c.tokenMu.Lock()
	c.token = token
	c.tokenMu.Unlock()
}

// Token returns the currently installed bearer token, or "" if none.
func (c *Client) Token() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.token
}

// IsV2Supported reports whether the registry speaks the v2 protocol,
// without regard to whether the caller is currently authorized.
func (c *Client) IsV2Supported(ctx context.Context) (bool, error) {
	supported, _, err := c.probe(ctx, "")
	return supported, err
}

// IsV2SupportedAndAuthorized reports both whether the registry speaks v2
// and whether the current (possibly empty) bearer token is already
// sufficient to access it.
func (c *Client) IsV2SupportedAndAuthorized(ctx context.Context) (supported, authorized bool, err error) {
	return c.probe(ctx, c.authHeader())
}

func (c *Client) probe(ctx context.Context, authHeader string) (supported, authorized bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/", nil)
	if err != nil {
		return false, false, fmt.Errorf("%w: %v", regerr.ErrConfiguration, err)
	}
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return false, false, fmt.Errorf("%w: %v", regerr.ErrTransport, err)
	}
	defer resp.Body.Close()

	version := resp.Header.Get("Docker-Distribution-API-Version")
	if version != "registry/2.0" {
		return false, false, nil
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return true, true, nil
	case http.StatusUnauthorized:
		return true, false, nil
	default:
		return false, false, nil
	}
}

// challengeHeaderFetch issues an unauthenticated GET /v2/ and reports
// whether it already succeeded, or the WWW-Authenticate challenge to act
// on.
func (c *Client) challengeHeaderFetch(ctx context.Context) (alreadyOK bool, challenge string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/", nil)
	if err != nil {
		return false, "", fmt.Errorf("%w: %v", regerr.ErrConfiguration, err)
	}

	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return false, "", fmt.Errorf("%w: %v", regerr.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return true, "", nil
	}

	challenge = resp.Header.Get("WWW-Authenticate")
	if challenge == "" {
		return false, "", fmt.Errorf("%w: missing WWW-Authenticate challenge", regerr.ErrProtocol)
	}
	return false, challenge, nil
}

// Login runs the Bearer challenge/response exchange for the given scopes
// and returns the resulting token without installing it on the Client. If
// the registry already allows anonymous access, it returns an empty
// token and no error.
func (c *Client) Login(ctx context.Context, scopes []string) (string, error) {
	alreadyOK, challengeHeader, err := c.challengeHeaderFetch(ctx)
	if err != nil {
		return "", err
	}
	if alreadyOK {
		return "", nil
	}

	ch, err := auth.ParseChallenge(challengeHeader)
	if err != nil {
		return "", err
	}

	if c.metrics != nil {
		c.metrics.ObserveAuthChallenge(c.host)
	}

	tokenURL, err := auth.TokenURL(ch.Realm, ch.Service, scopes)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tokenURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", regerr.ErrConfiguration, err)
	}
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", regerr.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", regerr.NewStatusError(regerr.ErrAuthentication, http.MethodGet, tokenURL, resp.StatusCode, resp.Header.Get("Content-Type"), "login: wrong HTTP status")
	}

	var wire struct {
		Token        string  `json:"token"`
		ExpiresIn    *int    `json:"expires_in,omitempty"`
		IssuedAt     *string `json:"issued_at,omitempty"`
		RefreshToken *string `json:"refresh_token,omitempty"`
	}
	if err := decodeJSON(resp, &wire); err != nil {
		return "", fmt.Errorf("%w: decoding token response: %v", regerr.ErrProtocol, err)
	}

	tok, err := auth.Validate(auth.TokenAuth{Token: wire.Token, ExpiresIn: wire.ExpiresIn, IssuedAt: wire.IssuedAt, RefreshToken: wire.RefreshToken})
	if err != nil {
		return "", err
	}

	c.logger.DebugContext(ctx, "login succeeded", "host", c.host, "token", auth.MaskToken(tok.Token))
	return tok.Token, nil
}

// IsAuth reports whether the given token (possibly "") authorizes access
// to /v2/: true on 200, false on 401, error on any other status.
func (c *Client) IsAuth(ctx context.Context, token string) (bool, error) {
	header := ""
	if token != "" {
		header = "Bearer " + token
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/", nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", regerr.ErrConfiguration, err)
	}
	if header != "" {
		req.Header.Set("Authorization", header)
	}

	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", regerr.ErrTransport, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusUnauthorized:
		return false, nil
	default:
		return false, regerr.NewStatusError(regerr.ErrProtocol, http.MethodGet, c.baseURL+"/v2/", resp.StatusCode, resp.Header.Get("Content-Type"), "unexpected is_auth status")
	}
}

// Authenticate performs Login, verifies the resulting token with IsAuth,
// and installs it with SetToken in one step.
func (c *Client) Authenticate(ctx context.Context, scopes []string) error {
	token, err := c.Login(ctx, scopes)
	if err != nil {
		return err
	}
	ok, err := c.IsAuth(ctx, token)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: token rejected immediately after login", regerr.ErrAuthentication)
	}
	c.SetToken(token)
	return nil
}

// GetManifest retrieves the manifest for name and reference (a tag or
// algorithm:hex digest), along with the Docker-Content-Digest response
// header when the registry sent one.
func (c *Client) GetManifest(ctx context.Context, name, reference string) (Manifest, string, error) {
	return c.manifests.Get(ctx, c.authHeader(), name, reference, c.acceptedTypes)
}

// HasManifest checks for the existence of name/reference, returning the
// media type it was served under when found.
func (c *Client) HasManifest(ctx context.Context, name, reference string, accepted []MediaType) (MediaType, bool, error) {
	return c.manifests.Has(ctx, c.authHeader(), name, reference, accepted)
}

// HasBlob is a pure existence probe for a content-addressed blob.
func (c *Client) HasBlob(ctx context.Context, name, digest string) (bool, error) {
	return c.blobs.Has(ctx, c.authHeader(), name, digest)
}

// GetBlob retrieves and digest-verifies a blob's full body.
func (c *Client) GetBlob(ctx context.Context, name, digest string) ([]byte, error) {
	return c.blobs.Get(ctx, c.authHeader(), name, digest)
}

// GetBlobStream retrieves a blob as a streaming, digest-verifying reader.
// Verification happens on natural end-of-stream; closing the reader
// before reaching EOF skips it.
func (c *Client) GetBlobStream(ctx context.Context, name, digest string) (io.ReadCloser, error) {
	return c.blobs.GetStream(ctx, c.authHeader(), name, digest)
}

// Catalog returns a lazy iterator over repository names. pageSize, when
// positive, becomes the "n" query parameter on the first request.
func (c *Client) Catalog(ctx context.Context, pageSize int) *Iterator {
	return &Iterator{inner: listing.Catalog(ctx, c.transport, c.authHeader(), c.baseURL, pageSize)}
}

// Tags returns a lazy iterator over tag names for name.
func (c *Client) Tags(ctx context.Context, name string, pageSize int) *Iterator {
	return &Iterator{inner: listing.Tags(ctx, c.transport, c.authHeader(), c.baseURL, name, pageSize)}
}

// Iterator streams one page at a time from a paginated listing endpoint.
type Iterator struct {
	inner interface {
		Next(ctx context.Context) (string, bool, error)
	}
}

// Next returns the next item. ok is false once the sequence is exhausted.
func (it *Iterator) Next(ctx context.Context) (string, bool, error) {
	return it.inner.Next(ctx)
}
