// Package oci provides a streaming, tar-like reader over the merged
// filesystem view of an OCI image stored in the OCI image layout format.
// pkg/ocibridge uses it as the source side of an OCI-image-to-cpio-archive
// conversion, so the entries it yields are expressed as *tar.Header values
// the bridge translates into cpio Headers, not as anything cpio-specific
// itself.
//
// Design goals:
//   - Minimal dependencies (std + opencontainers specs only)
//   - Streaming iteration similar to archive/tar.Reader
//   - Correct handling of layer order and whiteouts
//   - Deterministic behavior suitable for reproducible builds
//
// Non-goals:
//   - Applying permissions/ownership to a real filesystem
//   - Handling non-tar layer media types
//   - Overlayfs opaque directories beyond OCI whiteout semantics
package oci

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	specs "github.com/opencontainers/image-spec/specs-go/v1"
)

// Reader behaves similarly to archive/tar.Reader, but iterates over the
// merged filesystem view of a single-platform OCI image.
//
// Usage:
//
//	r, err := oci.Open(layoutDir)
//	if err != nil { return err }
//	defer r.Close()
//	for {
//	    hdr, err := r.Next()
//	    if err == io.EOF { break }
//	    if err != nil { return err }
//	    io.Copy(dst, r)
//	}
type Reader struct {
	layers []*layerReader
	seen   map[string]struct{}
	opaque map[string]struct{}

	cur *layerReader
}

// Open opens an OCI layout directory and returns a Reader over its first
// image manifest, preferring one matching the host platform when the
// index lists more than one (a multi-arch index).
func Open(layoutDir string) (*Reader, error) {
	idx, err := loadIndex(layoutDir)
	if err != nil {
		return nil, fmt.Errorf("oci: load index: %w", err)
	}

	manifestDesc, err := selectManifest(idx)
	if err != nil {
		return nil, fmt.Errorf("oci: select manifest: %w", err)
	}

	manifest, err := loadManifest(layoutDir, manifestDesc)
	if err != nil {
		return nil, fmt.Errorf("oci: load manifest: %w", err)
	}

	// Layers apply base -> top; read in reverse so the first entry seen
	// for a given path is always the topmost, winning, one.
	layers := make([]*layerReader, 0, len(manifest.Layers))
	for i := len(manifest.Layers) - 1; i >= 0; i-- {
		lr, err := openLayer(layoutDir, manifest.Layers[i])
		if err != nil {
			for _, opened := range layers {
				opened.Close()
			}
			return nil, fmt.Errorf("oci: open layer %s: %w", manifest.Layers[i].Digest, err)
		}
		layers = append(layers, lr)
	}

	return &Reader{
		layers: layers,
		seen:   make(map[string]struct{}),
		opaque: make(map[string]struct{}),
	}, nil
}

// Next advances to the next visible file entry, applying whiteout and
// opaque-directory suppression across the merged layer stack.
func (r *Reader) Next() (*tar.Header, error) {
	for {
		if r.cur == nil {
			if len(r.layers) == 0 {
				return nil, io.EOF
			}
			r.cur, r.layers = r.layers[0], r.layers[1:]
		}

		hdr, err := r.cur.Next()
		if err == io.EOF {
			r.cur.Close()
			r.cur = nil
			continue
		}
		if err != nil {
			return nil, err
		}

		name := cleanPath(hdr.Name)

		if path.Base(name) == ".wh..wh..opq" {
			r.opaque[path.Dir(name)] = struct{}{}
			continue
		}

		if after, ok := strings.CutPrefix(path.Base(name), ".wh."); ok {
			r.seen[path.Join(path.Dir(name), after)] = struct{}{}
			continue
		}

		if r.hiddenByOpaque(name) {
			continue
		}
		if _, ok := r.seen[name]; ok {
			continue
		}

		r.seen[name] = struct{}{}
		hdr.Name = name
		return hdr, nil
	}
}

func (r *Reader) hiddenByOpaque(name string) bool {
	for d := range r.opaque {
		if name == d || strings.HasPrefix(name, d+"/") {
			return true
		}
	}
	return false
}

// Read reads from the current file entry's body.
func (r *Reader) Read(p []byte) (int, error) {
	if r.cur == nil {
		return 0, io.EOF
	}
	return r.cur.Read(p)
}

// Close releases every layer blob still open, including ones not yet
// reached by Next. Safe to call after Next has returned io.EOF.
func (r *Reader) Close() error {
	var firstErr error
	if r.cur != nil {
		firstErr = r.cur.Close()
		r.cur = nil
	}
	for _, l := range r.layers {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.layers = nil
	return firstErr
}

// --- layer blob access ---

type layerReader struct {
	closer io.Closer
	tr     *tar.Reader
}

func openLayer(layoutDir string, desc specs.Descriptor) (*layerReader, error) {
	if desc.MediaType != specs.MediaTypeImageLayerGzip &&
		desc.MediaType != specs.MediaTypeImageLayer {
		return nil, fmt.Errorf("unsupported layer media type: %s", desc.MediaType)
	}

	blobPath := filepath.Join(layoutDir, "blobs", desc.Digest.Algorithm().String(), desc.Digest.Encoded())
	f, err := os.Open(blobPath)
	if err != nil {
		return nil, err
	}

	if desc.MediaType == specs.MediaTypeImageLayerGzip {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &layerReader{closer: multiCloser{gz, f}, tr: tar.NewReader(gz)}, nil
	}

	return &layerReader{closer: f, tr: tar.NewReader(f)}, nil
}

func (l *layerReader) Next() (*tar.Header, error) { return l.tr.Next() }
func (l *layerReader) Read(p []byte) (int, error) { return l.tr.Read(p) }
func (l *layerReader) Close() error               { return l.closer.Close() }

// --- OCI layout parsing ---

func loadIndex(layoutDir string) (*specs.Index, error) {
	b, err := os.ReadFile(filepath.Join(layoutDir, "index.json"))
	if err != nil {
		return nil, err
	}
	var idx specs.Index
	if err := json.Unmarshal(b, &idx); err != nil {
		return nil, err
	}
	return &idx, nil
}

// selectManifest prefers a manifest whose platform matches the host, and
// falls back to the index's first manifest otherwise (including the
// common single-platform case where Platform is unset).
func selectManifest(idx *specs.Index) (specs.Descriptor, error) {
	if len(idx.Manifests) == 0 {
		return specs.Descriptor{}, errors.New("no manifests in index")
	}
	for _, m := range idx.Manifests {
		if m.Platform != nil && m.Platform.OS == runtime.GOOS && m.Platform.Architecture == runtime.GOARCH {
			return m, nil
		}
	}
	return idx.Manifests[0], nil
}

func loadManifest(layoutDir string, desc specs.Descriptor) (*specs.Manifest, error) {
	if desc.MediaType != specs.MediaTypeImageManifest {
		return nil, fmt.Errorf("descriptor %s is not an image manifest", desc.Digest)
	}
	blobPath := filepath.Join(layoutDir, "blobs", desc.Digest.Algorithm().String(), desc.Digest.Encoded())
	b, err := os.ReadFile(blobPath)
	if err != nil {
		return nil, err
	}
	var m specs.Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// --- utilities ---

func cleanPath(p string) string {
	return strings.TrimPrefix(path.Clean(p), "/")
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var errs []string
	for _, c := range m {
		if err := c.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

var _ io.Reader = (*Reader)(nil)
var _ io.Closer = (*Reader)(nil)
