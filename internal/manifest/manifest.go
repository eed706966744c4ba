package manifest

// Manifest is a sealed sum type over the three registry manifest schemas.
// The unexported method pins implementations to this package; callers
// switch on a type assertion (or Kind()) rather than relying on open
// inheritance, keeping the set of variants exhaustive at compile time.
type Manifest interface {
	// Kind reports which concrete variant this value holds.
	Kind() MediaType

	isManifest()
}

// Layer identifies one content-addressed layer blob.
type Layer struct {
	MediaType string
	Size      int64
	Digest    string
}

// SchemaV1Signed is the legacy signed manifest: an ordered list of layer
// blob-sum digests (base image first, after reversing the wire order),
// per-layer v1-compatibility strings, and JWS signatures.
type SchemaV1Signed struct {
	Name         string
	Tag          string
	Architecture string
	FSLayers     []string // blob-sum digests, base image first
	History      []string // raw v1Compatibility JSON strings, same order as FSLayers
	Signatures   []Signature
}

func (SchemaV1Signed) isManifest()     {}
func (SchemaV1Signed) Kind() MediaType { return MediaTypeManifestV1Signed }

// Signature is one JWS signature block attached to a v1-signed manifest.
type Signature struct {
	Header    []byte
	Signature string
	Protected string
}

// ConfigDescriptor references the config blob fetched to build a SchemaV2
// value.
type ConfigDescriptor struct {
	MediaType string
	Size      int64
	Digest    string
}

// ConfigBlob is the partial OCI/Docker image config JSON document: only
// the fields this client exposes, per the image-spec-v1 description.
type ConfigBlob struct {
	Architecture  string
	OS            string
	RuntimeConfig *RuntimeConfig
}

// RuntimeConfig is the subset of the container runtime configuration this
// client surfaces.
type RuntimeConfig struct {
	User         string
	Memory       int64
	MemorySwap   int64
	CPUShares    int
	ExposedPorts []string
	Env          []string
	Entrypoint   []string
	Cmd          []string
	Volumes      []string
	WorkingDir   string
	Labels       map[string]string
}

// SchemaV2 is the current manifest schema: an ordered layer list plus the
// eagerly-fetched config blob it references.
type SchemaV2 struct {
	Config ConfigDescriptor
	Layers []Layer
	Blob   ConfigBlob
}

func (SchemaV2) isManifest()     {}
func (SchemaV2) Kind() MediaType { return MediaTypeManifestV2 }

// Platform describes the architecture/OS a manifest-list child descriptor
// targets.
type Platform struct {
	Architecture string
	OS           string
	OSVersion    string
	OSFeatures   []string
	Variant      string
	Features     []string
}

// ManifestListEntry is one child-manifest descriptor inside a ManifestList.
type ManifestListEntry struct {
	MediaType string
	Size      int64
	Digest    string
	Platform  Platform
}

// ManifestList is the multi-architecture fat manifest.
type ManifestList struct {
	Manifests []ManifestListEntry
}

func (ManifestList) isManifest()     {}
func (ManifestList) Kind() MediaType { return MediaTypeManifestList }
