// Command registryctl is a minimal example driver over the regclient
// library: it resolves credentials from the local Docker config, logs in
// if the registry challenges, and runs one of a handful of read-only
// subcommands. It exists to demonstrate the library's external contract,
// not as a supported distribution tool, so it sticks to the standard
// library's flag package rather than pulling in a CLI framework.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ocidist/regclient"
	"github.com/ocidist/regclient/internal/cliconfig"
	"github.com/ocidist/regclient/internal/dockerconfig"
	"github.com/ocidist/regclient/reference"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var err error
	switch cmd {
	case "tags":
		err = runTags(ctx, args)
	case "manifest":
		err = runManifest(ctx, args)
	case "pull-blob":
		err = runPullBlob(ctx, args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "registryctl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: registryctl <tags|manifest|pull-blob> <docker://image-reference> [flags]")
}

func buildClient(ctx context.Context, ref reference.Reference) (*regclient.Client, error) {
	cfg := regclient.NewConfig(ref.Registry)

	if path, err := dockerconfig.DefaultPath(); err == nil {
		if user, pass, ok, err := dockerconfig.Lookup(path, ref.Registry); err == nil && ok {
			cfg = cfg.Credentials(user, pass)
		}
	}

	// A registryctl profile file, if present, layers on top of the Docker
	// config credentials above: it can pin insecure/timeout/retry behavior
	// per host and override credentials for registries docker login never
	// touched.
	if path, err := cliconfig.DefaultPath(); err == nil {
		if profiles, err := cliconfig.Load(path); err == nil {
			if p, ok := profiles.Lookup(ref.Registry); ok {
				cfg = applyProfile(cfg, p)
			}
		}
	}

	client, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	supported, authorized, err := client.IsV2SupportedAndAuthorized(ctx)
	if err != nil {
		return nil, err
	}
	if !supported {
		return nil, fmt.Errorf("%s does not speak the registry v2 protocol", ref.Registry)
	}
	if !authorized {
		scope := fmt.Sprintf("repository:%s:pull", ref.Repository)
		if err := client.Authenticate(ctx, []string{scope}); err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
	}
	return client, nil
}

// applyProfile folds a cliconfig.Profile onto a regclient.Config. A
// malformed duration string (an error from Profile.Timeout/RetryElapsed)
// is simply skipped so one bad profile entry doesn't take down every
// registry.
func applyProfile(cfg regclient.Config, p cliconfig.Profile) regclient.Config {
	if p.Username != "" || p.Password != "" {
		cfg = cfg.Credentials(p.Username, p.Password)
	}
	if p.Insecure {
		cfg = cfg.InsecureRegistry(true)
	}
	if p.UserAgent != "" {
		cfg = cfg.UserAgent(p.UserAgent)
	}
	if d, err := p.Timeout(); err == nil && d > 0 {
		cfg = cfg.WithHTTPTimeout(d)
	}
	if d, err := p.RetryElapsed(); err == nil && d > 0 {
		cfg = cfg.WithMaxRetryElapsed(d)
	}
	return cfg
}

func runTags(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tags", flag.ExitOnError)
	pageSize := fs.Int("page-size", 0, "page size hint for the tags/list request")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("tags requires an image reference")
	}

	ref, err := reference.Parse(fs.Arg(0))
	if err != nil {
		return err
	}
	client, err := buildClient(ctx, ref)
	if err != nil {
		return err
	}

	it := client.Tags(ctx, ref.Repository, *pageSize)
	for {
		tag, ok, err := it.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		fmt.Println(tag)
	}
	return nil
}

func runManifest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("manifest", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("manifest requires an image reference")
	}

	ref, err := reference.Parse(fs.Arg(0))
	if err != nil {
		return err
	}
	client, err := buildClient(ctx, ref)
	if err != nil {
		return err
	}

	m, digest, err := client.GetManifest(ctx, ref.Repository, ref.Version.String())
	if err != nil {
		return err
	}

	fmt.Printf("kind: %v\n", m.Kind())
	if digest != "" {
		fmt.Printf("content-digest: %s\n", digest)
	}
	switch v := m.(type) {
	case regclient.SchemaV2:
		for _, l := range v.Layers {
			fmt.Printf("layer: %s %d %s\n", l.MediaType, l.Size, l.Digest)
		}
	case regclient.ManifestList:
		for _, e := range v.Manifests {
			fmt.Printf("child: %s %s/%s\n", e.Digest, e.Platform.OS, e.Platform.Architecture)
		}
	}
	return nil
}

func runPullBlob(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pull-blob", flag.ExitOnError)
	out := fs.String("out", "", "output file path (defaults to stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("pull-blob requires an image reference and a digest")
	}

	ref, err := reference.Parse(fs.Arg(0))
	if err != nil {
		return err
	}
	digest := fs.Arg(1)
	if !strings.Contains(digest, ":") {
		return fmt.Errorf("digest %q is not of the form algorithm:hex", digest)
	}

	client, err := buildClient(ctx, ref)
	if err != nil {
		return err
	}

	rc, err := client.GetBlobStream(ctx, ref.Repository, digest)
	if err != nil {
		return err
	}
	defer rc.Close()

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := rc.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
