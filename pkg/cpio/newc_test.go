package cpio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeNewHeaderRoundTrip(t *testing.T) {
	h := &Header{
		FileType:  TypeRegular,
		Mode:      0o644,
		UID:       1000,
		GID:       1000,
		NLink:     1,
		ModTime:   time.Unix(1700000000, 0).UTC(),
		FileSize:  42,
		DevMajor:  8,
		DevMinor:  1,
		RdevMajor: 0,
		RdevMinor: 0,
	}

	buf, err := encodeNewHeader(h, FormatNewASCII, 6)
	require.NoError(t, err)
	require.Len(t, buf, newHeaderLen)
	assert.Equal(t, magicNewASCII, string(buf[:6]))

	got, nameSize, err := decodeNewHeader(buf, FormatNewASCII)
	require.NoError(t, err)
	assert.Equal(t, 6, nameSize)
	assert.Equal(t, h.UID, got.UID)
	assert.Equal(t, h.GID, got.GID)
	assert.Equal(t, h.FileSize, got.FileSize)
	assert.Equal(t, h.DevMajor, got.DevMajor)
	assert.Equal(t, h.FileType, got.FileType)
	assert.Equal(t, h.ModTime.Unix(), got.ModTime.Unix())
}

func TestDecodeNewHeaderInvalidHex(t *testing.T) {
	buf := make([]byte, newHeaderLen)
	copy(buf, []byte(magicNewASCII))
	for i := 6; i < newHeaderLen; i++ {
		buf[i] = 'z' // not valid hex
	}
	_, _, err := decodeNewHeader(buf, FormatNewASCII)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindInvalidField, cerr.Kind)
}

func TestEncodeNewHeaderValueTooLarge(t *testing.T) {
	h := &Header{FileType: TypeRegular, FileSize: -1}
	_, err := encodeNewHeader(h, FormatNewASCII, 1)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindValueTooLarge, cerr.Kind)
}

func TestNewAlign(t *testing.T) {
	cases := map[int64]int64{0: 0, 1: 3, 2: 2, 3: 1, 4: 0, 5: 3}
	for n, want := range cases {
		assert.Equal(t, want, newAlign(n), "n=%d", n)
	}
}
