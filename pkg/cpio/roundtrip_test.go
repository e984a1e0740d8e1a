package cpio

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildArchive(t *testing.T, format Format, entries []struct {
	h    *Header
	body []byte
}) []byte {
	t.Helper()
	var buf bytes.Buffer
	b := NewBuilder(&buf, WithFormat(format))
	for _, e := range entries {
		require.NoError(t, b.AppendBytes(e.h, e.body))
	}
	require.NoError(t, b.Finish())
	return buf.Bytes()
}

func TestRoundTripAllFormats(t *testing.T) {
	mtime := time.Unix(1700000000, 0).UTC()

	for _, format := range []Format{FormatNewASCII, FormatNewCRC, FormatOldBinary} {
		t.Run(format.String(), func(t *testing.T) {
			entries := []struct {
				h    *Header
				body []byte
			}{
				{&Header{Name: "a.txt", FileType: TypeRegular, Mode: 0o644, UID: 1000, GID: 1000, NLink: 1, ModTime: mtime}, []byte("hello\n")},
				{&Header{Name: "dir/b.txt", FileType: TypeRegular, Mode: 0o755, NLink: 1, ModTime: mtime}, []byte("world")},
				{&Header{Name: "empty.txt", FileType: TypeRegular, NLink: 1, ModTime: mtime}, []byte{}},
			}
			if format == FormatNewCRC {
				for _, e := range entries {
					var sum uint32
					for _, c := range e.body {
						sum += uint32(c)
					}
					e.h.Checksum = sum
				}
			}

			data := buildArchive(t, format, entries)

			a := NewArchive(bytes.NewReader(data))
			for _, want := range entries {
				h, err := a.Next()
				require.NoError(t, err)
				assert.Equal(t, want.h.Name, h.Name)
				assert.Equal(t, want.h.FileType, h.FileType)
				assert.Equal(t, want.h.Mode, h.Mode)
				assert.Equal(t, int64(len(want.body)), h.FileSize)
				assert.Equal(t, mtime.Unix(), h.ModTime.Unix())

				got, err := io.ReadAll(a.Body())
				require.NoError(t, err)
				assert.Equal(t, want.body, got)
			}

			_, err := a.Next()
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestArchiveSkipsUnreadBody(t *testing.T) {
	data := buildArchive(t, FormatNewASCII, []struct {
		h    *Header
		body []byte
	}{
		{&Header{Name: "a", FileType: TypeRegular, NLink: 1}, []byte("first-body")},
		{&Header{Name: "b", FileType: TypeRegular, NLink: 1}, []byte("second")},
	})

	a := NewArchive(bytes.NewReader(data))

	h, err := a.Next()
	require.NoError(t, err)
	require.Equal(t, "a", h.Name)
	// Body of "a" is never read here.

	h, err = a.Next()
	require.NoError(t, err)
	assert.Equal(t, "b", h.Name)

	got, err := io.ReadAll(a.Body())
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestStaleBodyAfterNext(t *testing.T) {
	data := buildArchive(t, FormatNewASCII, []struct {
		h    *Header
		body []byte
	}{
		{&Header{Name: "a", FileType: TypeRegular, NLink: 1}, []byte("x")},
		{&Header{Name: "b", FileType: TypeRegular, NLink: 1}, []byte("y")},
	})

	a := NewArchive(bytes.NewReader(data))
	_, err := a.Next()
	require.NoError(t, err)
	stale := a.Body()

	_, err = a.Next()
	require.NoError(t, err)

	_, err = stale.Read(make([]byte, 1))
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindStaleBody, cerr.Kind)
}

func TestChecksumMismatchSurfacedOnNextAdvance(t *testing.T) {
	var buf bytes.Buffer
	b := NewBuilder(&buf, WithFormat(FormatNewCRC))
	h := &Header{Name: "a", FileType: TypeRegular, NLink: 1}
	h.Checksum = 12345 // wrong on purpose
	require.NoError(t, b.AppendBytes(h, []byte("hello")))
	require.NoError(t, b.Finish())

	a := NewArchive(bytes.NewReader(buf.Bytes()))
	_, err := a.Next()
	require.NoError(t, err)

	_, err = io.ReadAll(a.Body())
	require.NoError(t, err) // the mismatch isn't surfaced mid-read

	_, err = a.Next()
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindChecksumMismatch, cerr.Kind)
}

func TestWriterRejectsSizeMismatch(t *testing.T) {
	var buf bytes.Buffer
	b := NewBuilder(&buf)
	h := &Header{Name: "a", FileType: TypeRegular, NLink: 1, FileSize: 10}
	err := b.AppendEntry(h, bytes.NewReader([]byte("short")))
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindSizeMismatch, cerr.Kind)
}

func TestBuilderFinishedRejectsFurtherAppends(t *testing.T) {
	var buf bytes.Buffer
	b := NewBuilder(&buf)
	require.NoError(t, b.Finish())

	err := b.AppendBytes(&Header{Name: "late", FileType: TypeRegular, NLink: 1}, nil)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindFinished, cerr.Kind)
}

func TestStrictHardLinksRejectsReuse(t *testing.T) {
	var buf bytes.Buffer
	b := NewBuilder(&buf, WithStrictHardLinks())

	h1 := &Header{Name: "a", FileType: TypeRegular, NLink: 2, Ino: 7, DevMajor: 1, DevMinor: 1}
	require.NoError(t, b.AppendBytes(h1, []byte("x")))

	h2 := &Header{Name: "b", FileType: TypeRegular, NLink: 2, Ino: 7, DevMajor: 1, DevMinor: 1}
	err := b.AppendBytes(h2, []byte("x"))
	require.Error(t, err)
}
