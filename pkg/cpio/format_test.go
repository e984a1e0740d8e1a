package cpio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		name   string
		magic  []byte
		format Format
		order  binary.ByteOrder
	}{
		{"new-ascii", []byte("070701"), FormatNewASCII, nil},
		{"new-crc", []byte("070702"), FormatNewCRC, nil},
		{"old-binary-native", []byte{0xC7, 0x71, 0, 0, 0, 0}, FormatOldBinary, binary.LittleEndian},
		{"old-binary-swapped", []byte{0x71, 0xC7, 0, 0, 0, 0}, FormatOldBinary, binary.BigEndian},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, order, err := detectFormat(tc.magic)
			require.NoError(t, err)
			assert.Equal(t, tc.format, f)
			assert.Equal(t, tc.order, order)
		})
	}
}

func TestDetectFormatUnknownMagic(t *testing.T) {
	_, _, err := detectFormat([]byte("xxxxxx"))
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindUnknownMagic, cerr.Kind)
}

func TestErrorUnwrap(t *testing.T) {
	inner := assert.AnError
	e := newErr("next", KindIO, inner)
	assert.ErrorIs(t, e, inner)
	assert.Contains(t, e.Error(), "cpio: next:")
}
