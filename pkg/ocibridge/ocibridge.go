// Package ocibridge converts the merged filesystem view of an OCI image
// layout into a cpio archive, the way cmd/cpio's "create --from-oci" flag
// does. It sits on top of pkg/oci for the image-side walk and pkg/cpio's
// Builder for the archive-side encoding, translating archive/tar.Header
// values into cpio.Header values entry by entry.
package ocibridge

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"

	"github.com/cpiokit/cpio/pkg/cpio"
	"github.com/cpiokit/cpio/pkg/oci"
)

// Convert streams every visible file in the OCI image layout at layoutDir
// into an archive written with b, in the order pkg/oci yields them
// (topmost layer's view of each path, directories and whiteout-resolved
// deletions already applied). It does not call b.Finish; callers that
// want a complete archive must do that themselves once Convert returns.
func Convert(layoutDir string, b *cpio.Builder) error {
	r, err := oci.Open(layoutDir)
	if err != nil {
		return fmt.Errorf("ocibridge: open %s: %w", layoutDir, err)
	}
	defer r.Close()

	seq := 0
	for {
		th, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("ocibridge: walk %s: %w", layoutDir, err)
		}

		seq++
		h := headerFromTar(th, seq)

		var body io.Reader = r
		if h.FileType == cpio.TypeSymlink {
			body = bytes.NewReader([]byte(th.Linkname))
		}

		if err := b.AppendEntry(h, body); err != nil {
			return fmt.Errorf("ocibridge: append %q: %w", th.Name, err)
		}
	}
}

// headerFromTar maps one archive/tar.Header onto a cpio.Header. OCI layers
// carry no device inode number, so every entry is given NLink 1 and a
// synthetic, monotonically increasing Ino: pkg/fsbridge's hard-link
// reconstruction only activates when NLink > 1, which never happens here,
// so every entry round-trips as an independent file.
func headerFromTar(th *tar.Header, seq int) *cpio.Header {
	h := &cpio.Header{
		Name:     th.Name,
		Mode:     uint32(th.Mode) & cpio.ModePerm,
		UID:      uint32(th.Uid),
		GID:      uint32(th.Gid),
		ModTime:  th.ModTime,
		NLink:    1,
		FileSize: th.Size,
		Ino:      uint32(seq),
	}
	if th.Mode&0o4000 != 0 {
		h.Mode |= cpio.ModeSetuid
	}
	if th.Mode&0o2000 != 0 {
		h.Mode |= cpio.ModeSetgid
	}
	if th.Mode&0o1000 != 0 {
		h.Mode |= cpio.ModeSticky
	}

	switch th.Typeflag {
	case tar.TypeDir:
		h.FileType = cpio.TypeDirectory
		h.FileSize = 0
	case tar.TypeSymlink:
		h.FileType = cpio.TypeSymlink
		h.FileSize = int64(len(th.Linkname))
	case tar.TypeChar:
		h.FileType = cpio.TypeCharDevice
		h.RdevMajor = uint32(th.Devmajor)
		h.RdevMinor = uint32(th.Devminor)
		h.FileSize = 0
	case tar.TypeBlock:
		h.FileType = cpio.TypeBlockDevice
		h.RdevMajor = uint32(th.Devmajor)
		h.RdevMinor = uint32(th.Devminor)
		h.FileSize = 0
	case tar.TypeFifo:
		h.FileType = cpio.TypeFIFO
		h.FileSize = 0
	default:
		h.FileType = cpio.TypeRegular
	}

	return h
}
