package manifest

import "encoding/json"

// wireV1Signed mirrors the JSON shape of application/vnd.docker.distribution.manifest.v1+prettyjws.
type wireV1Signed struct {
	SchemaVersion int    `json:"schemaVersion"`
	Name          string `json:"name"`
	Tag           string `json:"tag"`
	Architecture  string `json:"architecture"`
	FSLayers      []struct {
		BlobSum string `json:"blobSum"`
	} `json:"fsLayers"`
	History []struct {
		V1Compatibility string `json:"v1Compatibility"`
	} `json:"history"`
	Signatures []struct {
		Header    json.RawMessage `json:"header"`
		Signature string          `json:"signature"`
		Protected string          `json:"protected"`
	} `json:"signatures"`
}

func decodeV1Signed(body []byte) (SchemaV1Signed, error) {
	var w wireV1Signed
	if err := json.Unmarshal(body, &w); err != nil {
		return SchemaV1Signed{}, err
	}

	// fsLayers and history are listed leaf-first on the wire; reverse so
	// index 0 is the base image, matching the documented layer ordering.
	layers := make([]string, len(w.FSLayers))
	for i, l := range w.FSLayers {
		layers[len(w.FSLayers)-1-i] = l.BlobSum
	}
	history := make([]string, len(w.History))
	for i, h := range w.History {
		history[len(w.History)-1-i] = h.V1Compatibility
	}

	sigs := make([]Signature, len(w.Signatures))
	for i, s := range w.Signatures {
		sigs[i] = Signature{Header: s.Header, Signature: s.Signature, Protected: s.Protected}
	}

	return SchemaV1Signed{
		Name:         w.Name,
		Tag:          w.Tag,
		Architecture: w.Architecture,
		FSLayers:     layers,
		History:      history,
		Signatures:   sigs,
	}, nil
}

// wireV2Spec mirrors application/vnd.docker.distribution.manifest.v2+json.
type wireV2Spec struct {
	SchemaVersion int    `json:"schemaVersion"`
	MediaType     string `json:"mediaType"`
	Config        struct {
		MediaType string `json:"mediaType"`
		Size      int64  `json:"size"`
		Digest    string `json:"digest"`
	} `json:"config"`
	Layers []struct {
		MediaType string `json:"mediaType"`
		Size      int64  `json:"size"`
		Digest    string `json:"digest"`
	} `json:"layers"`
}

func decodeV2Spec(body []byte) (wireV2Spec, error) {
	var w wireV2Spec
	err := json.Unmarshal(body, &w)
	return w, err
}

// wireConfigBlob mirrors application/vnd.docker.container.image.v1+json,
// covering only the fields this client exposes.
type wireConfigBlob struct {
	Architecture string `json:"architecture"`
	OS           string `json:"os"`
	Config       *struct {
		User         string              `json:"User"`
		Memory       int64               `json:"Memory"`
		MemorySwap   int64               `json:"MemorySwap"`
		CPUShares    int                 `json:"CpuShares"`
		ExposedPorts map[string]struct{} `json:"ExposedPorts"`
		Env          []string            `json:"Env"`
		Entrypoint   []string            `json:"Entrypoint"`
		Cmd          []string            `json:"Cmd"`
		Volumes      map[string]struct{} `json:"Volumes"`
		WorkingDir   string              `json:"WorkingDir"`
		Labels       map[string]string   `json:"Labels"`
	} `json:"config"`
}

func decodeConfigBlob(body []byte) (ConfigBlob, error) {
	var w wireConfigBlob
	if err := json.Unmarshal(body, &w); err != nil {
		return ConfigBlob{}, err
	}
	cb := ConfigBlob{Architecture: w.Architecture, OS: w.OS}
	if w.Config != nil {
		rc := &RuntimeConfig{
			User:       w.Config.User,
			Memory:     w.Config.Memory,
			MemorySwap: w.Config.MemorySwap,
			CPUShares:  w.Config.CPUShares,
			Env:        w.Config.Env,
			Entrypoint: w.Config.Entrypoint,
			Cmd:        w.Config.Cmd,
			WorkingDir: w.Config.WorkingDir,
			Labels:     w.Config.Labels,
		}
		for p := range w.Config.ExposedPorts {
			rc.ExposedPorts = append(rc.ExposedPorts, p)
		}
		for v := range w.Config.Volumes {
			rc.Volumes = append(rc.Volumes, v)
		}
		cb.RuntimeConfig = rc
	}
	return cb, nil
}

// wireManifestListDoc mirrors application/vnd.docker.distribution.manifest.list.v2+json.
type wireManifestListDoc struct {
	SchemaVersion int    `json:"schemaVersion"`
	MediaType     string `json:"mediaType"`
	Manifests     []struct {
		MediaType string `json:"mediaType"`
		Size      int64  `json:"size"`
		Digest    string `json:"digest"`
		Platform  struct {
			Architecture string   `json:"architecture"`
			OS           string   `json:"os"`
			OSVersion    string   `json:"os.version"`
			OSFeatures   []string `json:"os.features"`
			Variant      string   `json:"variant"`
			Features     []string `json:"features"`
		} `json:"platform"`
	} `json:"manifests"`
}

func decodeManifestList(body []byte) (ManifestList, error) {
	var w wireManifestListDoc
	if err := json.Unmarshal(body, &w); err != nil {
		return ManifestList{}, err
	}
	entries := make([]ManifestListEntry, len(w.Manifests))
	for i, m := range w.Manifests {
		entries[i] = ManifestListEntry{
			MediaType: m.MediaType,
			Size:      m.Size,
			Digest:    m.Digest,
			Platform: Platform{
				Architecture: m.Platform.Architecture,
				OS:           m.Platform.OS,
				OSVersion:    m.Platform.OSVersion,
				OSFeatures:   m.Platform.OSFeatures,
				Variant:      m.Platform.Variant,
				Features:     m.Platform.Features,
			},
		}
	}
	return ManifestList{Manifests: entries}, nil
}
