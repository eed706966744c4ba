package manifest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ocidist/regclient/internal/regerr"
	"github.com/ocidist/regclient/internal/transport"
)

// BlobFetcher retrieves a single blob's raw bytes, used here only to pull
// the config blob a SchemaV2 manifest references. internal/blob.Client
// satisfies this.
type BlobFetcher interface {
	FetchBlob(ctx context.Context, authHeader, name, digest string) ([]byte, error)
}

// Fetcher resolves manifests against a single registry base URL.
type Fetcher struct {
	transport *transport.Transport
	baseURL   string
	blobs     BlobFetcher
}

// New constructs a Fetcher. baseURL is the scheme+host prefix, e.g.
// "https://registry-1.docker.io".
func New(t *transport.Transport, baseURL string, blobs BlobFetcher) *Fetcher {
	return &Fetcher{transport: t, baseURL: baseURL, blobs: blobs}
}

// Get retrieves the manifest identified by name and reference (a tag or an
// algorithm:hex digest), negotiating content type via accept. authHeader,
// if non-empty, is sent verbatim as the Authorization header value. It
// returns the parsed manifest and the Docker-Content-Digest response
// header, when present.
func (f *Fetcher) Get(ctx context.Context, authHeader, name, reference string, accept []MediaType) (Manifest, string, error) {
	url := fmt.Sprintf("%s/v2/%s/manifests/%s", f.baseURL, name, reference)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", regerr.ErrConfiguration, err)
	}
	req.Header.Set("Accept", AcceptHeader(accept))
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	resp, err := f.transport.Do(ctx, req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", regerr.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", regerr.NewStatusError(regerr.ErrProtocol, http.MethodGet, url, resp.StatusCode, resp.Header.Get("Content-Type"), "unexpected manifest status")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: reading manifest body: %v", regerr.ErrTransport, err)
	}

	contentType := resolveContentType(resp.Header.Get("Content-Type"), resp.Request.URL.Path)
	mt, err := ParseMediaType(contentType)
	if err != nil {
		return nil, "", fmt.Errorf("%w: missing Content-Type on manifest response", regerr.ErrProtocol)
	}

	digest := resp.Header.Get("Docker-Content-Digest")

	m, err := f.decode(ctx, authHeader, name, mt, contentType, body)
	if err != nil {
		return nil, "", err
	}
	return m, digest, nil
}

// Has issues a HEAD for name/reference and reports whether it exists and,
// if so, under which media type. accepted mirrors Get's accept list;
// passing nil defaults to [MediaTypeManifestV2]. It returns (type, true,
// nil) on 200/301/302/307, (zero, false, nil) on 404, and an error on any
// other status.
func (f *Fetcher) Has(ctx context.Context, authHeader, name, reference string, accepted []MediaType) (MediaType, bool, error) {
	url := fmt.Sprintf("%s/v2/%s/manifests/%s", f.baseURL, name, reference)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return MediaTypeUnknown, false, fmt.Errorf("%w: %v", regerr.ErrConfiguration, err)
	}
	if len(accepted) == 0 {
		accepted = []MediaType{MediaTypeManifestV2}
	}
	req.Header.Set("Accept", AcceptHeader(accepted))
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	resp, err := f.transport.Do(ctx, req)
	if err != nil {
		return MediaTypeUnknown, false, fmt.Errorf("%w: %v", regerr.ErrTransport, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return MediaTypeUnknown, false, nil
	case http.StatusOK, http.StatusMovedPermanently, http.StatusFound, http.StatusTemporaryRedirect:
		contentType := resolveContentType(resp.Header.Get("Content-Type"), resp.Request.URL.Path)
		mt, err := ParseMediaType(contentType)
		if err != nil {
			return MediaTypeUnknown, false, fmt.Errorf("%w: missing Content-Type on manifest HEAD", regerr.ErrProtocol)
		}
		return mt, true, nil
	default:
		return MediaTypeUnknown, false, regerr.NewStatusError(regerr.ErrProtocol, http.MethodHead, url, resp.StatusCode, resp.Header.Get("Content-Type"), "unexpected manifest HEAD status")
	}
}

// resolveContentType applies the Pulp/Satellite workaround: a Pulp-routed
// endpoint that omits Content-Type, or reports the bogus
// "application/x-troff-man", is actually serving a v1-signed manifest.
// Everywhere else a missing header is left empty, which ParseMediaType
// turns into an error.
func resolveContentType(contentType, urlPath string) string {
	if strings.HasPrefix(urlPath, "/pulp/docker/v2") {
		if contentType == "" || contentType == "application/x-troff-man" {
			return wireManifestV1Signed
		}
	}
	return contentType
}

func (f *Fetcher) decode(ctx context.Context, authHeader, name string, mt MediaType, contentType string, body []byte) (Manifest, error) {
	switch mt {
	case MediaTypeManifestV1Signed:
		return decodeV1Signed(body)
	case MediaTypeManifestV2:
		spec, err := decodeV2Spec(body)
		if err != nil {
			return nil, fmt.Errorf("%w: decoding schema2 manifest: %v", regerr.ErrProtocol, err)
		}
		layers := make([]Layer, len(spec.Layers))
		for i, l := range spec.Layers {
			layers[i] = Layer{MediaType: l.MediaType, Size: l.Size, Digest: l.Digest}
		}
		v2 := SchemaV2{
			Config: ConfigDescriptor{
				MediaType: spec.Config.MediaType,
				Size:      spec.Config.Size,
				Digest:    spec.Config.Digest,
			},
			Layers: layers,
		}
		if f.blobs != nil {
			blobBody, err := f.blobs.FetchBlob(ctx, authHeader, name, spec.Config.Digest)
			if err != nil {
				return nil, fmt.Errorf("fetching config blob: %w", err)
			}
			cb, err := decodeConfigBlob(blobBody)
			if err != nil {
				return nil, fmt.Errorf("%w: decoding config blob: %v", regerr.ErrProtocol, err)
			}
			v2.Blob = cb
		}
		return v2, nil
	case MediaTypeManifestList:
		ml, err := decodeManifestList(body)
		if err != nil {
			return nil, fmt.Errorf("%w: decoding manifest list: %v", regerr.ErrProtocol, err)
		}
		return ml, nil
	default:
		return nil, &regerr.UnsupportedMediaTypeError{MediaType: contentType}
	}
}
