package cpio

import (
	"fmt"
	"strconv"
)

// New ASCII / New CRC field layout (spec §4.1): magic(6) then 13 fields of
// 8 uppercase hex characters each, in this order.
const newFieldWidth = 8
const newFieldCount = 13

// Field indices, in wire order, of the 13 fields that follow the 6-byte
// magic in the 110-byte header.
const (
	newfIno = iota
	newfMode
	newfUID
	newfGID
	newfNLink
	newfMtime
	newfFileSize
	newfDevMajor
	newfDevMinor
	newfRdevMajor
	newfRdevMinor
	newfNameSize
	newfCheck
)

func decodeNewHeader(buf []byte, format Format) (*Header, int, error) {
	fields := make([]uint32, newFieldCount)
	for i := 0; i < newFieldCount; i++ {
		start := 6 + i*newFieldWidth
		v, err := parseHex8(buf[start : start+newFieldWidth])
		if err != nil {
			return nil, 0, err
		}
		fields[i] = v
	}

	h := &Header{
		Ino:       fields[newfIno],
		UID:       fields[newfUID],
		GID:       fields[newfGID],
		NLink:     fields[newfNLink],
		FileSize:  int64(fields[newfFileSize]),
		DevMajor:  fields[newfDevMajor],
		DevMinor:  fields[newfDevMinor],
		RdevMajor: fields[newfRdevMajor],
		RdevMinor: fields[newfRdevMinor],
	}
	h.setModeFromRaw(fields[newfMode])
	h.ModTime = unixTime(fields[newfMtime])
	if format == FormatNewCRC {
		h.Checksum = fields[newfCheck]
	}

	return h, int(fields[newfNameSize]), nil
}

func parseHex8(b []byte) (uint32, error) {
	v, err := strconv.ParseUint(string(b), 16, 32)
	if err != nil {
		return 0, newErr("decode", KindInvalidField, err)
	}
	return uint32(v), nil
}

// encodeNewHeader renders the 110-byte fixed header for the New ASCII or
// New CRC formats. nameSize is the name length including its trailing NUL.
func encodeNewHeader(h *Header, format Format, nameSize int) ([]byte, error) {
	magic := magicNewASCII
	if format == FormatNewCRC {
		magic = magicNewCRC
	}

	fileSize, err := checkU32(h.FileSize, "file_size")
	if err != nil {
		return nil, err
	}
	nameSizeU, err := checkU32(int64(nameSize), "name_size")
	if err != nil {
		return nil, err
	}

	check := uint32(0)
	if format == FormatNewCRC {
		check = h.Checksum
	}

	buf := []byte(fmt.Sprintf(
		"%s%08X%08X%08X%08X%08X%08X%08X%08X%08X%08X%08X%08X%08X",
		magic,
		h.Ino,
		h.rawMode(),
		h.UID,
		h.GID,
		h.NLink,
		uint32(h.ModTime.Unix()),
		fileSize,
		h.DevMajor,
		h.DevMinor,
		h.RdevMajor,
		h.RdevMinor,
		nameSizeU,
		check,
	))
	if len(buf) != newHeaderLen {
		panic("cpio: encoded new-format header has wrong length")
	}
	return buf, nil
}

func checkU32(v int64, field string) (uint32, error) {
	if v < 0 || v > 0xFFFFFFFF {
		return 0, newErr("encode", KindValueTooLarge, fmt.Errorf("%s=%d exceeds 32 bits", field, v))
	}
	return uint32(v), nil
}

// newAlign returns the number of padding bytes needed to bring n up to the
// next multiple of 4, the New-format alignment boundary.
func newAlign(n int64) int64 {
	rem := n % 4
	if rem == 0 {
		return 0
	}
	return 4 - rem
}
