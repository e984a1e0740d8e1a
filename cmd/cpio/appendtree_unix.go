//go:build unix

package main

import (
	"bytes"
	"io"
	"os"

	"github.com/cpiokit/cpio/pkg/cpio"
	"github.com/cpiokit/cpio/pkg/fsbridge"
)

// appendEntryFromPath stats path the way fsbridge.StatHeader does, which
// recovers Ino/DevMajor/DevMinor and NLink from the platform stat structure
// — unlike cpio.FileInfoHeader, so the names of a hard-linked file carry
// the same link identity in the archive. Every name of a regular file is
// still written with its full contents; no entry is reduced to a
// zero-size link member.
func appendEntryFromPath(b *cpio.Builder, path, name string) error {
	h, link, err := fsbridge.StatHeader(path)
	if err != nil {
		return err
	}
	h.Name = name

	switch h.FileType {
	case cpio.TypeRegular:
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if b.Format() == cpio.FormatNewCRC {
			sum, err := cpio.ChecksumOf(f)
			if err != nil {
				return err
			}
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return err
			}
			h.Checksum = sum
		}
		return b.AppendEntry(h, f)
	case cpio.TypeSymlink:
		return b.AppendBytes(h, []byte(link))
	default:
		return b.AppendEntry(h, bytes.NewReader(nil))
	}
}
