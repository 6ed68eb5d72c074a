package sound

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	assert.NoError(t, validate(2, 44100, 16))
	assert.NoError(t, validate(1, 8000, 16))
	assert.ErrorIs(t, validate(0, 44100, 16), ErrBadChannels)
	assert.ErrorIs(t, validate(6, 44100, 16), ErrBadChannels)
	assert.ErrorIs(t, validate(2, 0, 16), ErrBadSampleRate)
	assert.ErrorIs(t, validate(2, 44100, 24), ErrBadBitsPerSample)
}

func TestDiscardLifecycle(t *testing.T) {
	d := &Discard{}
	assert.ErrorIs(t, d.SetupDevice(2, 44100, 16), ErrDeviceNotOpen)
	assert.ErrorIs(t, d.WriteDevice([]byte{1, 2}), ErrDeviceNotOpen)

	require.NoError(t, d.OpenDevice(NullDevice))
	assert.ErrorIs(t, d.SetupDevice(2, 44100, 8), ErrBadBitsPerSample)
	require.NoError(t, d.SetupDevice(2, 44100, 16))
	require.NoError(t, d.WriteDevice(make([]byte, 64)))
	require.NoError(t, d.WriteDevice(make([]byte, 32)))

	writes, bytes := d.Stats()
	assert.Equal(t, 2, writes)
	assert.Equal(t, int64(96), bytes)

	require.NoError(t, d.CloseDevice())
	assert.ErrorIs(t, d.WriteDevice([]byte{1, 2}), ErrDeviceNotOpen)
}

func TestNewPicksRenderer(t *testing.T) {
	assert.IsType(t, &Discard{}, New(NullDevice, DefaultConfig()))

	r, ok := New(DefaultDevice, Config{}).(*PortaudioRenderer)
	require.True(t, ok)
	assert.Equal(t, 1024, r.config.FramesPerBuffer)
	assert.ErrorIs(t, r.WriteDevice([]byte{0, 0}), ErrDeviceNotOpen)
	assert.ErrorIs(t, r.SetupDevice(2, 44100, 16), ErrDeviceNotOpen)
}
