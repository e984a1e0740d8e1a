package cpio

import (
	"bytes"
	"encoding/binary"
	"io"
)

// Archive provides sequential, forward-only access to the entries of a
// cpio archive (spec §4.2). Construct with NewArchive, call Next to
// advance, and read each entry's body from the Reader Next returns before
// calling Next again.
type Archive struct {
	r   io.Reader
	err error // sticky: once set, every further operation returns it

	body     *bodyReader
	bodyPad  int64 // padding after the body, to be skipped on the next advance
	checksum bool  // true when the current entry is FormatNewCRC

	pendingSum uint32 // running New CRC sum of the current entry's body
	wantSum    uint32 // the checksum recorded in the current entry's header

	pendingErr error // a ChecksumMismatch observed while draining the body, surfaced on the next advance

	scratch [64]byte
}

// NewArchive returns an Archive reading entries from r. r need not be
// seekable; the Archive never seeks and derives each padding length from
// the header, name and body sizes it has read.
func NewArchive(r io.Reader) *Archive {
	return &Archive{r: r}
}

// bodyReader is the bounded Reader yielded for one entry's body. It
// becomes stale as soon as Next is called again.
type bodyReader struct {
	a         *Archive
	remaining int64
	stale     bool
}

func (b *bodyReader) Read(p []byte) (int, error) {
	if b.stale {
		return 0, newErr("read", KindStaleBody, nil)
	}
	if b.a.err != nil {
		return 0, b.a.err
	}
	if b.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.a.r.Read(p)
	if n > 0 {
		b.remaining -= int64(n)
		if b.a.checksum {
			for _, c := range p[:n] {
				b.a.pendingSum += uint32(c)
			}
		}
	}
	if err != nil && err != io.EOF {
		b.a.err = newErr("read", KindIO, err)
		return n, b.a.err
	}
	if b.remaining == 0 && b.a.checksum {
		b.a.finishChecksum()
	}
	return n, err
}

func (a *Archive) finishChecksum() {
	if a.pendingSum != a.wantSum {
		a.pendingErr = newErr("read", KindChecksumMismatch, nil)
	}
}

// Next advances to the next entry, returning its Header, or io.EOF once
// the TRAILER!!! sentinel has been consumed. Any previously returned body
// Reader becomes stale and must not be used again.
func (a *Archive) Next() (*Header, error) {
	if a.err != nil {
		return nil, a.err
	}

	if a.body != nil {
		if !a.body.stale {
			if _, err := io.Copy(io.Discard, a.body); err != nil {
				a.err = err
				return nil, a.err
			}
		}
		a.body.stale = true
		a.body = nil
	}

	if a.bodyPad > 0 {
		if err := a.skip(a.bodyPad); err != nil {
			return nil, a.poison("next", KindTruncated, err)
		}
		a.bodyPad = 0
	}

	if a.pendingErr != nil {
		err := a.pendingErr
		a.pendingErr = nil
		a.err = err
		return nil, err
	}

	magic2 := a.scratch[:2]
	if _, err := io.ReadFull(a.r, magic2); err != nil {
		return nil, a.poison("next", KindTruncated, err)
	}

	if order, ok := oldBinaryOrder(magic2); ok {
		return a.nextOld(order)
	}

	magic6 := a.scratch[:6]
	copy(magic6[:2], magic2)
	if _, err := io.ReadFull(a.r, magic6[2:]); err != nil {
		return nil, a.poison("next", KindTruncated, err)
	}

	switch string(magic6) {
	case magicNewASCII:
		return a.nextNew(magic6, FormatNewASCII)
	case magicNewCRC:
		return a.nextNew(magic6, FormatNewCRC)
	default:
		return nil, a.poison("next", KindUnknownMagic, nil)
	}
}

func oldBinaryOrder(magic2 []byte) (binary.ByteOrder, bool) {
	word := binary.LittleEndian.Uint16(magic2)
	switch word {
	case magicOldBinNative:
		return binary.LittleEndian, true
	case magicOldBinSwapped:
		return binary.BigEndian, true
	default:
		return nil, false
	}
}

func (a *Archive) nextNew(magic6 []byte, format Format) (*Header, error) {
	rest := make([]byte, newHeaderLen-6)
	if _, err := io.ReadFull(a.r, rest); err != nil {
		return nil, a.poison("next", KindTruncated, err)
	}
	full := append(append([]byte{}, magic6...), rest...)

	h, nameSize, err := decodeNewHeader(full, format)
	if err != nil {
		return nil, a.poison("next", KindInvalidField, err)
	}

	name, err := a.readName(nameSize)
	if err != nil {
		return nil, err
	}

	headerAndName := int64(newHeaderLen + nameSize)
	if err := a.skip(newAlign(headerAndName)); err != nil {
		return nil, a.poison("next", KindTruncated, err)
	}

	if name == TrailerName && h.FileSize == 0 {
		return nil, io.EOF
	}
	h.Name = name

	return a.startBody(h, format == FormatNewCRC, newAlign(h.FileSize))
}

func (a *Archive) nextOld(order binary.ByteOrder) (*Header, error) {
	rest := make([]byte, oldHeaderLen-2)
	if _, err := io.ReadFull(a.r, rest); err != nil {
		return nil, a.poison("next", KindTruncated, err)
	}
	full := make([]byte, oldHeaderLen)
	order.PutUint16(full[0:], magicOldBinNative)
	copy(full[2:], rest)

	h, nameSize, err := decodeOldHeader(full, order)
	if err != nil {
		return nil, a.poison("next", KindInvalidField, err)
	}

	namePadded := nameSize + nameSize%2
	name, err := a.readNamePadded(nameSize, namePadded)
	if err != nil {
		return nil, err
	}

	if name == TrailerName && h.FileSize == 0 {
		return nil, io.EOF
	}
	h.Name = name

	return a.startBody(h, false, oldAlign(h.FileSize))
}

func (a *Archive) readName(nameSize int) (string, error) {
	return a.readNamePadded(nameSize, nameSize)
}

// readNamePadded reads a nameSize-byte NUL-terminated name where the field
// on the wire occupies readLen bytes (>= nameSize; New format padding is
// applied by the caller separately, so readLen == nameSize there; Old
// Binary pads the name field itself to an even length).
func (a *Archive) readNamePadded(nameSize, readLen int) (string, error) {
	if nameSize == 0 {
		return "", a.poison("next", KindInvalidField, nil)
	}
	buf := make([]byte, readLen)
	if _, err := io.ReadFull(a.r, buf); err != nil {
		return "", a.poison("next", KindTruncated, err)
	}
	raw := buf[:nameSize]
	if raw[len(raw)-1] != 0 {
		return "", a.poison("next", KindInvalidField, nil)
	}
	if i := bytes.IndexByte(raw, 0); i != len(raw)-1 {
		// an embedded NUL before the terminator is not a valid C string
		return "", a.poison("next", KindInvalidField, nil)
	}
	return string(raw[:len(raw)-1]), nil
}

func (a *Archive) startBody(h *Header, checksum bool, pad int64) (*Header, error) {
	a.body = &bodyReader{a: a, remaining: h.FileSize}
	a.bodyPad = pad
	a.checksum = checksum
	a.pendingSum = 0
	a.wantSum = h.Checksum
	return h, nil
}

// Body returns a Reader over the current entry's body; it is valid until
// the next call to Next, after which reads return StaleBody.
func (a *Archive) Body() io.Reader {
	return a.body
}

func (a *Archive) skip(n int64) error {
	if n <= 0 {
		return nil
	}
	_, err := io.CopyN(io.Discard, a.r, n)
	return err
}

func (a *Archive) poison(op string, kind Kind, err error) error {
	a.err = newErr(op, kind, err)
	return a.err
}
