package cpio

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"time"
)

// nativeOldBinaryOrder is the byte order this package writes Old Binary
// headers in. GNU cpio on a little-endian host writes unswapped,
// little-endian 16-bit words; this package always writes that layout
// (readers detect and transparently undo a swapped layout, per spec §4.1).
var nativeOldBinaryOrder binary.ByteOrder = binary.LittleEndian

// Builder provides append-only, streaming construction of a cpio archive
// (spec §4.3). Construct with NewBuilder, call AppendEntry/AppendPath/
// AppendBytes for each file, and Finish exactly once to emit the trailer.
type Builder struct {
	w        io.Writer
	format   Format
	err      error
	finished bool

	strict    bool
	seenLinks map[hardLinkKey]bool

	scratch [32 * 1024]byte
}

// Option configures a Builder at construction time.
type Option func(*Builder)

// WithFormat selects the on-disk encoding. Default is FormatNewASCII.
func WithFormat(f Format) Option {
	return func(b *Builder) { b.format = f }
}

// WithStrictHardLinks makes the Builder reject a second entry reusing a
// (dev_major, dev_minor, ino) triple already seen in this archive. Only
// regular-file entries with NLink > 1 are checked and recorded; the
// rejection is reported as a KindSizeMismatch error. The
// default passes such entries through unchanged, matching GNU cpio, which
// does not coalesce hard links on write either (spec §4.3, §9 open
// question (a)).
func WithStrictHardLinks() Option {
	return func(b *Builder) { b.strict = true }
}

// NewBuilder returns a Builder writing to w.
func NewBuilder(w io.Writer, opts ...Option) *Builder {
	b := &Builder{w: w, format: FormatNewASCII, seenLinks: make(map[hardLinkKey]bool)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Format reports the on-disk encoding this Builder writes.
func (b *Builder) Format() Format { return b.format }

// AppendEntry writes one archive entry: header, name, padding, the bytes
// read from body, and trailing padding. body must yield exactly
// h.FileSize bytes, or AppendEntry returns a SizeMismatch error.
func (b *Builder) AppendEntry(h *Header, body io.Reader) error {
	if err := b.checkWritable(); err != nil {
		return err
	}
	if b.strict && h.FileType == TypeRegular && h.NLink > 1 && h.Name != TrailerName {
		key := h.hardLinkKey()
		if b.seenLinks[key] {
			b.err = newErr("append", KindSizeMismatch, nil)
			return b.err
		}
		b.seenLinks[key] = true
	}

	if err := b.writeHeaderAndName(h); err != nil {
		return err
	}
	return b.writeBody(h, body)
}

// AppendBytes is AppendEntry for an in-memory body; h.FileSize is set to
// len(data) regardless of its prior value.
func (b *Builder) AppendBytes(h *Header, data []byte) error {
	h.FileSize = int64(len(data))
	return b.AppendEntry(h, bytes.NewReader(data))
}

// AppendPath stats path, derives an entry from it, and streams its
// contents: file data for regular files, the link target for symlinks,
// nothing for directories, devices, FIFOs or sockets. name overrides the
// entry's archive name; pass "" to use path verbatim (slash-converted).
func (b *Builder) AppendPath(path, name string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		return newErr("append-path", KindIO, err)
	}

	var link string
	if fi.Mode()&os.ModeSymlink != 0 {
		link, err = os.Readlink(path)
		if err != nil {
			return newErr("append-path", KindIO, err)
		}
	}

	h, err := FileInfoHeader(fi, link)
	if err != nil {
		return newErr("append-path", KindIO, err)
	}
	if name != "" {
		h.Name = name
	} else {
		h.Name = filepath.ToSlash(path)
	}
	h.NLink = 1
	if h.FileType == TypeDirectory {
		h.NLink = 2
	}

	switch h.FileType {
	case TypeRegular:
		f, err := os.Open(path)
		if err != nil {
			return newErr("append-path", KindIO, err)
		}
		defer f.Close()
		if b.format == FormatNewCRC {
			sum, err := ChecksumOf(f)
			if err != nil {
				return newErr("append-path", KindIO, err)
			}
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return newErr("append-path", KindIO, err)
			}
			h.Checksum = sum
		}
		return b.AppendEntry(h, f)
	case TypeSymlink:
		return b.AppendBytes(h, []byte(link))
	default:
		return b.AppendEntry(h, bytes.NewReader(nil))
	}
}

// ChecksumOf computes the New CRC body checksum of r (spec §3: the sum,
// modulo 2^32, of every body byte taken as unsigned). Callers building
// FormatNewCRC entries by hand — anything other than AppendPath, which
// does this itself — use it to populate Header.Checksum before calling
// AppendEntry, since the checksum must be known before the header
// (which carries it) is written.
func ChecksumOf(r io.Reader) (uint32, error) {
	var sum uint32
	var buf [32 * 1024]byte
	for {
		n, err := r.Read(buf[:])
		for _, c := range buf[:n] {
			sum += uint32(c)
		}
		if err == io.EOF {
			return sum, nil
		}
		if err != nil {
			return 0, err
		}
	}
}

func (b *Builder) writeHeaderAndName(h *Header) error {
	nameBytes := append([]byte(h.Name), 0)
	nameSize := len(nameBytes)

	var header []byte
	var err error
	var headerAndNamePad int64

	switch b.format {
	case FormatNewASCII, FormatNewCRC:
		header, err = encodeNewHeader(h, b.format, nameSize)
		if err != nil {
			b.err = err
			return err
		}
		headerAndNamePad = newAlign(int64(newHeaderLen + nameSize))
	case FormatOldBinary:
		header, err = encodeOldHeader(h, nativeOldBinaryOrder, nameSize)
		if err != nil {
			b.err = err
			return err
		}
		if nameSize%2 != 0 {
			nameBytes = append(nameBytes, 0)
		}
	default:
		panic("cpio: unknown format")
	}

	if _, err := b.w.Write(header); err != nil {
		return b.ioErr(err)
	}
	if _, err := b.w.Write(nameBytes); err != nil {
		return b.ioErr(err)
	}
	if headerAndNamePad > 0 {
		if _, err := b.w.Write(b.zeros(headerAndNamePad)); err != nil {
			return b.ioErr(err)
		}
	}
	return nil
}

func (b *Builder) writeBody(h *Header, body io.Reader) error {
	var written int64
	for written < h.FileSize {
		chunk := b.scratch[:]
		if remain := h.FileSize - written; remain < int64(len(chunk)) {
			chunk = chunk[:remain]
		}
		n, err := body.Read(chunk)
		if n > 0 {
			if _, werr := b.w.Write(chunk[:n]); werr != nil {
				return b.ioErr(werr)
			}
			written += int64(n)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			b.err = newErr("append", KindIO, err)
			return b.err
		}
	}
	if written != h.FileSize {
		b.err = newErr("append", KindSizeMismatch, nil)
		return b.err
	}
	// A body that still has data past the declared size is also a mismatch.
	var extra [1]byte
	if n, _ := body.Read(extra[:]); n > 0 {
		b.err = newErr("append", KindSizeMismatch, nil)
		return b.err
	}

	var pad int64
	if b.format == FormatOldBinary {
		pad = oldAlign(h.FileSize)
	} else {
		pad = newAlign(h.FileSize)
	}
	if pad > 0 {
		if _, err := b.w.Write(b.zeros(pad)); err != nil {
			return b.ioErr(err)
		}
	}
	return nil
}

// Finish emits the TRAILER!!! entry and flushes final padding. The
// Builder refuses further appends afterward.
func (b *Builder) Finish() error {
	if err := b.checkWritable(); err != nil {
		return err
	}
	// FileType is left at TypeUnknown (typeBitsOf == 0) rather than the
	// zero-value-looking TypeRegular, so rawMode() doesn't OR in S_IFREG:
	// the trailer's mode word must be entirely zero (spec §6). ModTime is
	// the Unix epoch, not the zero time.Time, so the mtime field is zero too.
	trailer := &Header{Name: TrailerName, FileType: TypeUnknown, NLink: 1, ModTime: time.Unix(0, 0)}
	if err := b.AppendEntry(trailer, bytes.NewReader(nil)); err != nil {
		return err
	}
	b.finished = true
	return nil
}

func (b *Builder) checkWritable() error {
	if b.err != nil {
		return b.err
	}
	if b.finished {
		b.err = newErr("append", KindFinished, nil)
		return b.err
	}
	return nil
}

func (b *Builder) ioErr(err error) error {
	b.err = newErr("append", KindIO, err)
	return b.err
}

func (b *Builder) zeros(n int64) []byte {
	buf := b.scratch[:n]
	for i := range buf {
		buf[i] = 0
	}
	return buf
}
