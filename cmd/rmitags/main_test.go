package main

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/containerd/containerd/images"
	"github.com/containerd/errdefs"
	"github.com/opencontainers/go-digest"
	specs "github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/backend/localbackend"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/commands/info"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

// seedCache creates the named images in a fresh local cache, one manifest digest per name.
func seedCache(t *testing.T, names ...string) (string, map[string]digest.Digest) {
	t.Helper()
	dir := t.TempDir()
	b, err := localbackend.Open(dir, nil)
	assert.NilError(t, err)
	defer b.Close()
	ctx := b.Context(context.Background())
	digests := make(map[string]digest.Digest)
	for _, name := range names {
		dgst := digest.FromString(name)
		_, err := b.ImageService().Create(ctx, images.Image{
			Name: name,
			Target: ocispec.Descriptor{
				MediaType: ocispec.MediaTypeImageManifest,
				Digest:    dgst,
				Size:      1,
			},
		})
		assert.NilError(t, err)
		digests[name] = dgst
	}
	return dir, digests
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	return stdout.String(), err
}

func TestRemove(t *testing.T) {
	const v1 = "docker.io/library/repo:v1"
	dir, digests := seedCache(t, v1, "docker.io/library/repo:v2")

	out, err := run(t, "--backend=local", "--local-cache="+dir, "remove", "-t", "v1", "-t", "v3", "repo:old")
	assert.NilError(t, err)
	assert.Equal(t, out, fmt.Sprintf("Untagged: %s@%s\nDeleted: %s\nNot found: repo:v3\n", v1, digests[v1], digests[v1]))

	out, err = run(t, "--backend=local", "--local-cache="+dir, "images")
	assert.NilError(t, err)
	assert.Assert(t, is.Contains(out, digests["docker.io/library/repo:v2"].String()))
	assert.Assert(t, !strings.Contains(out, digests[v1].String()))
}

func TestRemoveJSON(t *testing.T) {
	dir, _ := seedCache(t)
	out, err := run(t, "--backend=local", "--local-cache="+dir, "rmi", "--json", "repo")
	assert.NilError(t, err)
	assert.Equal(t, out, `{"Status":"NotFound","Name":"repo"}`+"\n")
}

func TestRemoveInvalidImageName(t *testing.T) {
	dir, _ := seedCache(t)
	out, err := run(t, "--backend=local", "--local-cache="+dir, "remove", "Invalid")
	assert.ErrorContains(t, err, `invalid input "Invalid"`)
	assert.Equal(t, out, "")
}

func TestRemoveSkip(t *testing.T) {
	// The backend is never created when skipping.
	out, err := run(t, "--backend=nonexistent", "remove", "--skip", "repo")
	assert.NilError(t, err)
	assert.Equal(t, out, "")
}

func TestAutoBackendUnreachable(t *testing.T) {
	tmp := t.TempDir()
	out, err := run(t,
		"--docker-host=unix://"+filepath.Join(tmp, "docker.sock"),
		"--docker-config="+tmp,
		"--containerd-address="+filepath.Join(tmp, "containerd.sock"),
		"--local-cache="+tmp,
		"remove", "-t", "v1", "myapp")
	assert.ErrorContains(t, err, "no backend available")
	assert.ErrorContains(t, err, "containerd.sock")
	assert.Equal(t, out, "")
}

// ociArchive writes an OCI layout archive holding a single image named name,
// and returns its path and the digests of the manifest and the config.
func ociArchive(t *testing.T, name string) (string, digest.Digest, digest.Digest) {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	add := func(path string, b []byte) {
		assert.NilError(t, tw.WriteHeader(&tar.Header{Name: path, Mode: 0o644, Size: int64(len(b)), Typeflag: tar.TypeReg}))
		_, err := tw.Write(b)
		assert.NilError(t, err)
	}
	addBlob := func(mediaType string, v any) ocispec.Descriptor {
		b, err := json.Marshal(v)
		assert.NilError(t, err)
		dgst := digest.FromBytes(b)
		add("blobs/sha256/"+dgst.Encoded(), b)
		return ocispec.Descriptor{MediaType: mediaType, Digest: dgst, Size: int64(len(b))}
	}

	config := addBlob(ocispec.MediaTypeImageConfig, ocispec.Image{
		Platform: ocispec.Platform{OS: "linux", Architecture: "amd64"},
		RootFS:   ocispec.RootFS{Type: "layers"},
	})
	manifest := addBlob(ocispec.MediaTypeImageManifest, ocispec.Manifest{
		Versioned: specs.Versioned{SchemaVersion: 2},
		MediaType: ocispec.MediaTypeImageManifest,
		Config:    config,
		Layers:    []ocispec.Descriptor{},
	})
	manifest.Annotations = map[string]string{images.AnnotationImageName: name}
	idx, err := json.Marshal(ocispec.Index{
		Versioned: specs.Versioned{SchemaVersion: 2},
		MediaType: ocispec.MediaTypeImageIndex,
		Manifests: []ocispec.Descriptor{manifest},
	})
	assert.NilError(t, err)
	add("index.json", idx)
	layout, err := json.Marshal(ocispec.ImageLayout{Version: ocispec.ImageLayoutVersion})
	assert.NilError(t, err)
	add(ocispec.ImageLayoutFile, layout)
	assert.NilError(t, tw.Close())

	p := filepath.Join(t.TempDir(), "archive.tar")
	assert.NilError(t, os.WriteFile(p, buf.Bytes(), 0o644))
	return p, manifest.Digest, config.Digest
}

func TestLoadRemoveCollectsBlobs(t *testing.T) {
	const name = "docker.io/library/repo:v1"
	dir := t.TempDir()
	archive, manifestDigest, configDigest := ociArchive(t, name)

	_, err := run(t, "--backend=local", "--local-cache="+dir, "load", "--all-platforms", "--input="+archive)
	assert.NilError(t, err)

	out, err := run(t, "--backend=local", "--local-cache="+dir, "images", "--all-platforms")
	assert.NilError(t, err)
	assert.Assert(t, is.Contains(out, manifestDigest.String()))
	assert.Assert(t, is.Contains(out, "linux/amd64"))

	out, err = run(t, "--backend=local", "--local-cache="+dir, "remove", "-t", "v1", "repo")
	assert.NilError(t, err)
	assert.Equal(t, out, fmt.Sprintf("Untagged: %s@%s\nDeleted: %s\n", name, manifestDigest, manifestDigest))

	b, err := localbackend.Open(dir, nil)
	assert.NilError(t, err)
	defer b.Close()
	ctx := b.Context(context.Background())
	for _, dgst := range []digest.Digest{manifestDigest, configDigest} {
		_, err := b.ContentStore().Info(ctx, dgst)
		assert.Check(t, errdefs.IsNotFound(err), "blob %s should have been collected, got %v", dgst, err)
	}
}

func TestUnknownBackend(t *testing.T) {
	_, err := run(t, "--backend=nonexistent", "remove", "repo")
	assert.ErrorContains(t, err, `unknown backend "nonexistent"`)
}

func TestUnknownLogFormat(t *testing.T) {
	_, err := run(t, "--log-format=xml", "remove", "--skip", "repo")
	assert.ErrorContains(t, err, `unknown log format "xml"`)
}

func TestInfoJSON(t *testing.T) {
	dir, _ := seedCache(t)
	out, err := run(t, "--backend=local", "--local-cache="+dir, "info", "--json")
	assert.NilError(t, err)
	var got info.Info
	assert.NilError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, got.Backend.Name, localbackend.Name)
	assert.Equal(t, got.Backend.Address, dir)
	assert.Assert(t, got.Version != "")
}
