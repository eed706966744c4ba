// Package manifest implements manifest content negotiation, parsing into
// the three registry manifest schemas, and the Pulp/Satellite content-type
// workaround.
package manifest

import "fmt"

// MediaType is a closed enumeration of the manifest and blob media types
// this client recognizes on the wire.
type MediaType int

const (
	// MediaTypeUnknown is the zero value; never produced by ParseMediaType
	// for a non-empty, valid input.
	MediaTypeUnknown MediaType = iota
	MediaTypeManifestV1Signed
	MediaTypeManifestV2
	MediaTypeManifestList
	MediaTypeImageLayerGzip
	MediaTypeContainerConfigV1
	// MediaTypeOther is the open-ended bucket for any recognized-but-not
	// individually-modeled content type (e.g. OCI image-spec media types).
	MediaTypeOther
)

const (
	wireManifestV1Signed   = "application/vnd.docker.distribution.manifest.v1+prettyjws"
	wireManifestV1Unsigned = "application/vnd.docker.distribution.manifest.v1+json"
	wireManifestV2         = "application/vnd.docker.distribution.manifest.v2+json"
	wireManifestList       = "application/vnd.docker.distribution.manifest.list.v2+json"
	wireImageLayerGzip     = "application/vnd.docker.image.rootfs.diff.tar.gzip"
	wireContainerConfigV1  = "application/vnd.docker.container.image.v1+json"
)

// String returns the media type's canonical wire string. MediaTypeOther and
// MediaTypeUnknown have no canonical wire string and return "".
func (m MediaType) String() string {
	switch m {
	case MediaTypeManifestV1Signed:
		return wireManifestV1Signed
	case MediaTypeManifestV2:
		return wireManifestV2
	case MediaTypeManifestList:
		return wireManifestList
	case MediaTypeImageLayerGzip:
		return wireImageLayerGzip
	case MediaTypeContainerConfigV1:
		return wireContainerConfigV1
	default:
		return ""
	}
}

// ParseMediaType maps a wire Content-Type string onto a MediaType. The
// unsigned v1 manifest type is accepted as an alias of the signed variant:
// registries serve both under the same schema. Unrecognized but
// well-formed media types map to MediaTypeOther rather than an error,
// since new OCI media types appear faster than this enum can track them.
func ParseMediaType(wire string) (MediaType, error) {
	switch wire {
	case wireManifestV1Signed, wireManifestV1Unsigned:
		return MediaTypeManifestV1Signed, nil
	case wireManifestV2:
		return MediaTypeManifestV2, nil
	case wireManifestList:
		return MediaTypeManifestList, nil
	case wireImageLayerGzip:
		return MediaTypeImageLayerGzip, nil
	case wireContainerConfigV1:
		return MediaTypeContainerConfigV1, nil
	case "":
		return MediaTypeUnknown, fmt.Errorf("empty media type")
	default:
		return MediaTypeOther, nil
	}
}

// AcceptHeader builds the comma-separated Accept header value for a
// manifest GET/HEAD, in descending quality order: the default preference
// list puts schema2 first (q=0.5) and v1-signed second (q=0.4), matching
// the registry's own documented defaults. Manifest lists are included only
// when the caller explicitly asks for them, since most callers resolving a
// single image don't want to deal with a fat manifest.
func AcceptHeader(types []MediaType) string {
	if len(types) == 0 {
		types = []MediaType{MediaTypeManifestV2, MediaTypeManifestV1Signed}
	}
	out := ""
	q := 0.5
	for _, t := range types {
		wire := t.String()
		if wire == "" {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += fmt.Sprintf("%s;q=%.1f", wire, q)
		q -= 0.1
		if q <= 0 {
			q = 0.1
		}
	}
	return out
}
