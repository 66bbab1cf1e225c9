package imu

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandFrame(t *testing.T) {
	assert.Equal(t, []byte{3, 59, 67, 3}, CommandFrame())

	// mutating the returned slice must not leak into the next cycle
	b := CommandFrame()
	b[0] = 0xFF
	assert.Equal(t, []byte{0x03, 0x3B, 0x43, 0x03}, CommandFrame())
}

func TestParseFrame_BigEndianSigned(t *testing.T) {
	frame := []byte{
		0x40, 0x00, // ax = 16384
		0xFF, 0xFF, // ay = -1
		0x80, 0x00, // az = -32768
		0x00, 0x83, // gx = 131
		0x7F, 0xFF, // gy = 32767
		0x01, 0x02, // gz = 258
		0x10, 0x00, // mx = 4096
		0xF0, 0x00, // my = -4096
		0x00, 0x01, // mz = 1
	}

	raw, err := ParseFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, IMURaw{
		Ax: 16384, Ay: -1, Az: -32768,
		Gx: 131, Gy: 32767, Gz: 258,
		Mx: 4096, My: -4096, Mz: 1,
	}, raw)
}

func TestParseFrame_WrongLength(t *testing.T) {
	for _, n := range []int{0, 1, 17, 19, 36} {
		_, err := ParseFrame(make([]byte, n))
		require.Error(t, err, "len=%d", n)
		assert.True(t, errors.Is(err, ErrFrameSize), "len=%d", n)
	}
}

func TestIMURawBytes(t *testing.T) {
	raw := IMURaw{Ax: -2, Ay: 300, Az: 16384, Gx: -131, Gy: 0, Gz: 7, Mx: 4096, My: -1, Mz: 12}
	b := raw.Bytes()
	require.Len(t, b, FrameSize)

	back, err := ParseFrame(b)
	require.NoError(t, err)
	assert.Equal(t, raw, back)
}
