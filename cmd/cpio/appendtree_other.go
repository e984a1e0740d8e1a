//go:build !unix

package main

import "github.com/cpiokit/cpio/pkg/cpio"

// appendEntryFromPath falls back to cpio.FileInfoHeader on non-Unix
// platforms, which have no stat_t to recover Ino/DevMajor/DevMinor from.
func appendEntryFromPath(b *cpio.Builder, path, name string) error {
	return b.AppendPath(path, name)
}
