//go:build unix

package fsbridge

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpiokit/cpio/pkg/cpio"
)

func TestStatHeaderRegularFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o640))

	h, link, err := StatHeader(path)
	require.NoError(t, err)
	assert.Empty(t, link)
	assert.Equal(t, cpio.TypeRegular, h.FileType)
	assert.Equal(t, int64(5), h.FileSize)
	assert.NotZero(t, h.Ino)
}

func TestSessionExtractRegularAndDir(t *testing.T) {
	root := t.TempDir()
	sess := NewSession(root)

	dirHdr := &cpio.Header{Name: "sub", FileType: cpio.TypeDirectory, Mode: 0o755, NLink: 2}
	require.NoError(t, sess.Extract(dirHdr, nil))

	fileHdr := &cpio.Header{Name: "sub/f.txt", FileType: cpio.TypeRegular, Mode: 0o644, NLink: 1, FileSize: 5}
	require.NoError(t, sess.Extract(fileHdr, bytes.NewReader([]byte("hello"))))

	require.NoError(t, sess.Finish())

	data, err := os.ReadFile(filepath.Join(root, "sub/f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestSessionRejectsUnsafePath(t *testing.T) {
	root := t.TempDir()
	sess := NewSession(root)

	h := &cpio.Header{Name: "../escape", FileType: cpio.TypeRegular, NLink: 1}
	err := sess.Extract(h, bytes.NewReader(nil))
	require.Error(t, err)
}

func TestSessionReconstructsHardLinks(t *testing.T) {
	root := t.TempDir()
	sess := NewSession(root)

	key := cpio.Header{DevMajor: 1, DevMinor: 1, Ino: 42}

	// Zero-size member arrives first, deferred.
	h1 := key
	h1.Name = "link-a"
	h1.FileType = cpio.TypeRegular
	h1.NLink = 2
	require.NoError(t, sess.Extract(&h1, bytes.NewReader(nil)))

	// Content-carrying member arrives second, resolves the group.
	h2 := key
	h2.Name = "link-b"
	h2.FileType = cpio.TypeRegular
	h2.NLink = 2
	h2.FileSize = 7
	require.NoError(t, sess.Extract(&h2, bytes.NewReader([]byte("content"))))

	require.NoError(t, sess.Finish())

	a, err := os.ReadFile(filepath.Join(root, "link-a"))
	require.NoError(t, err)
	assert.Equal(t, "content", string(a))

	stA, err := os.Stat(filepath.Join(root, "link-a"))
	require.NoError(t, err)
	stB, err := os.Stat(filepath.Join(root, "link-b"))
	require.NoError(t, err)
	assert.True(t, os.SameFile(stA, stB))
}

func TestSessionReportsDanglingHardLink(t *testing.T) {
	root := t.TempDir()
	sess := NewSession(root)

	h := &cpio.Header{Name: "orphan", FileType: cpio.TypeRegular, NLink: 2, Ino: 1}
	require.NoError(t, sess.Extract(h, bytes.NewReader(nil)))

	err := sess.Finish()
	require.Error(t, err)
	var cerr *cpio.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, cpio.KindDanglingHardLink, cerr.Kind)
}
