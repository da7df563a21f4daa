package leb128

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeUint32(t *testing.T) {
	for _, v := range []uint32{0, 127, 128, 16383, 16384, 2097151, 2097152, math.MaxUint32 >> 1, math.MaxUint32} {
		encoded := EncodeUint32(v)
		decoded, rest, err := DecodeUint32(encoded)
		require.NoError(t, err)
		require.Empty(t, rest)
		require.Equal(t, v, decoded)
	}
}

func TestEncodeDecodeInt32(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 63, -64, 64, -65, 127, -128, math.MinInt32, math.MaxInt32} {
		encoded := EncodeInt32(v)
		decoded, rest, err := DecodeInt32(encoded)
		require.NoError(t, err)
		require.Empty(t, rest)
		require.Equal(t, v, decoded)
	}
}

func TestDecodeUint32_TooLong(t *testing.T) {
	_, _, err := DecodeUint32([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeUint32_TruncatedInput(t *testing.T) {
	_, _, err := DecodeUint32([]byte{0x80})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeName(t *testing.T) {
	b := append(EncodeUint32(5), []byte("hello")...)
	name, rest, err := DecodeName(b)
	require.NoError(t, err)
	require.Equal(t, "hello", name)
	require.Empty(t, rest)
}

func TestDecodeName_Truncated(t *testing.T) {
	b := append(EncodeUint32(5), []byte("he")...)
	_, _, err := DecodeName(b)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeName_InvalidUTF8(t *testing.T) {
	b := append(EncodeUint32(2), []byte{0xff, 0xfe}...)
	_, _, err := DecodeName(b)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeUint8AndUint32Le(t *testing.T) {
	v, rest, err := DecodeUint8([]byte{0x2a, 0x01})
	require.NoError(t, err)
	require.Equal(t, byte(0x2a), v)
	require.Equal(t, []byte{0x01}, rest)

	u, rest, err := DecodeUint32Le([]byte{0x2a, 0x00, 0x00, 0x00, 0xff})
	require.NoError(t, err)
	require.Equal(t, uint32(42), u)
	require.Equal(t, []byte{0xff}, rest)
}
