package ocibridge

import (
	"archive/tar"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cpiokit/cpio/pkg/cpio"
)

func TestHeaderFromTarRegular(t *testing.T) {
	mtime := time.Unix(1700000000, 0)
	th := &tar.Header{
		Name:     "usr/bin/app",
		Typeflag: tar.TypeReg,
		Mode:     0o755,
		Uid:      1,
		Gid:      2,
		Size:     123,
		ModTime:  mtime,
	}
	h := headerFromTar(th, 1)
	assert.Equal(t, cpio.TypeRegular, h.FileType)
	assert.Equal(t, "usr/bin/app", h.Name)
	assert.Equal(t, uint32(1), h.UID)
	assert.Equal(t, uint32(2), h.GID)
	assert.Equal(t, int64(123), h.FileSize)
	assert.EqualValues(t, 1, h.NLink)
	assert.Equal(t, uint32(1), h.Ino)
}

func TestHeaderFromTarDirectory(t *testing.T) {
	th := &tar.Header{Name: "etc/", Typeflag: tar.TypeDir, Size: 999}
	h := headerFromTar(th, 2)
	assert.Equal(t, cpio.TypeDirectory, h.FileType)
	assert.Equal(t, int64(0), h.FileSize)
}

func TestHeaderFromTarSymlink(t *testing.T) {
	th := &tar.Header{Name: "bin/sh", Typeflag: tar.TypeSymlink, Linkname: "/bin/bash"}
	h := headerFromTar(th, 3)
	assert.Equal(t, cpio.TypeSymlink, h.FileType)
	assert.Equal(t, int64(len("/bin/bash")), h.FileSize)
}

func TestHeaderFromTarSetuidBit(t *testing.T) {
	th := &tar.Header{Name: "usr/bin/su", Typeflag: tar.TypeReg, Mode: 0o4755}
	h := headerFromTar(th, 4)
	assert.NotZero(t, h.Mode&cpio.ModeSetuid)
}
