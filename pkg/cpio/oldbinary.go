package cpio

import "encoding/binary"

// Old Binary field layout (spec §4.1): 26 bytes of 16-bit words.
// magic(2), dev(2), ino(2), mode(2), uid(2), gid(2), nlink(2), rdev(2),
// mtime_hi(2), mtime_lo(2), namesize(2), filesize_hi(2), filesize_lo(2).
//
// dev and rdev each pack a device number into one 16-bit word: major in
// the high 8 bits, minor in the low 8 bits. 32-bit values are split across
// a _hi/_lo pair reconstructed as (hi<<16)|lo.

func decodeOldHeader(buf []byte, order binary.ByteOrder) (*Header, int, error) {
	word := func(i int) uint16 { return order.Uint16(buf[2*i:]) }

	dev := word(1)
	ino := word(2)
	mode := word(3)
	uid := word(4)
	gid := word(5)
	nlink := word(6)
	rdev := word(7)
	mtimeHi := word(8)
	mtimeLo := word(9)
	nameSize := word(10)
	sizeHi := word(11)
	sizeLo := word(12)

	h := &Header{
		Ino:       uint32(ino),
		UID:       uint32(uid),
		GID:       uint32(gid),
		NLink:     uint32(nlink),
		DevMajor:  uint32(dev >> 8),
		DevMinor:  uint32(dev & 0xFF),
		RdevMajor: uint32(rdev >> 8),
		RdevMinor: uint32(rdev & 0xFF),
		FileSize:  int64((uint32(sizeHi) << 16) | uint32(sizeLo)),
	}
	h.setModeFromRaw(uint32(mode))
	h.ModTime = unixTime((uint32(mtimeHi) << 16) | uint32(mtimeLo))

	return h, int(nameSize), nil
}

// encodeOldHeader renders the 26-byte fixed header in the given byte
// order. nameSize is the name length including its trailing NUL.
func encodeOldHeader(h *Header, order binary.ByteOrder, nameSize int) ([]byte, error) {
	if h.FileSize < 0 || h.FileSize > 0xFFFFFFFF { // hi/lo 16-bit halves: 32 bits
		return nil, newErr("encode", KindValueTooLarge, nil)
	}
	for _, f := range []struct {
		name string
		v    uint32
	}{
		{"ino", h.Ino}, {"uid", h.UID}, {"gid", h.GID}, {"nlink", h.NLink},
		{"dev_major", h.DevMajor}, {"dev_minor", h.DevMinor},
		{"rdev_major", h.RdevMajor}, {"rdev_minor", h.RdevMinor},
	} {
		if f.v > 0xFF && (f.name == "dev_major" || f.name == "dev_minor" || f.name == "rdev_major" || f.name == "rdev_minor") {
			return nil, newErr("encode", KindValueTooLarge, nil)
		}
		if f.v > 0xFFFF && (f.name == "ino" || f.name == "uid" || f.name == "gid" || f.name == "nlink") {
			return nil, newErr("encode", KindValueTooLarge, nil)
		}
	}
	if nameSize > 0xFFFF {
		return nil, newErr("encode", KindValueTooLarge, nil)
	}

	buf := make([]byte, oldHeaderLen)
	order.PutUint16(buf[0:], 0x71C7) // caller always writes native/unswapped
	putWord := func(i int, v uint16) { order.PutUint16(buf[2*i:], v) }

	dev := uint16(h.DevMajor<<8) | uint16(h.DevMinor&0xFF)
	rdev := uint16(h.RdevMajor<<8) | uint16(h.RdevMinor&0xFF)
	size := uint32(h.FileSize)

	putWord(1, dev)
	putWord(2, uint16(h.Ino))
	putWord(3, uint16(h.rawMode()))
	putWord(4, uint16(h.UID))
	putWord(5, uint16(h.GID))
	putWord(6, uint16(h.NLink))
	putWord(7, rdev)
	mt := uint32(h.ModTime.Unix())
	putWord(8, uint16(mt>>16))
	putWord(9, uint16(mt))
	putWord(10, uint16(nameSize))
	putWord(11, uint16(size>>16))
	putWord(12, uint16(size))

	return buf, nil
}

// oldAlign returns the padding bytes needed to bring n up to the next
// multiple of 2, the Old Binary alignment boundary.
func oldAlign(n int64) int64 {
	if n%2 == 0 {
		return 0
	}
	return 1
}
