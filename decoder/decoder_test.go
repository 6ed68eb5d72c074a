package decoder

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDecoder struct {
	Decoder
	suffixes []string
}

func (s *stubDecoder) Suffixes() []string { return s.suffixes }

func TestRegistryLookup(t *testing.T) {
	first := &stubDecoder{suffixes: []string{"mp3", ".OGG"}}
	second := &stubDecoder{suffixes: []string{"MP3"}}
	r := NewRegistry(first, second)

	d, ok := r.Lookup("/music/Track.Mp3")
	require.True(t, ok)
	assert.Same(t, first, d)

	d, ok = r.Lookup("x.ogg")
	require.True(t, ok)
	assert.Same(t, first, d)

	_, ok = r.Lookup("x.flac")
	assert.False(t, ok)
	_, ok = r.Lookup("noext")
	assert.False(t, ok)

	assert.Equal(t, []string{"mp3", "ogg"}, r.Suffixes())
}

func TestRegistryUnregister(t *testing.T) {
	first := &stubDecoder{suffixes: []string{"mp3", "ogg"}}
	second := &stubDecoder{suffixes: []string{"mp3"}}
	r := NewRegistry(first, second)

	r.Unregister(first)
	d, ok := r.Lookup("a.mp3")
	require.True(t, ok)
	assert.Same(t, second, d)
	_, ok = r.Lookup("a.ogg")
	assert.False(t, ok)
	assert.Equal(t, []string{"mp3"}, r.Suffixes())

	r.Unregister(second)
	assert.Empty(t, r.Suffixes())
}

func TestMP3RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.mp3")
	require.NoError(t, os.WriteFile(path, []byte("definitely not mpeg audio"), 0o644))

	m := NewMP3()
	assert.Error(t, m.Open(path))
	assert.Error(t, m.Open(filepath.Join(t.TempDir(), "missing.mp3")))

	_, err := m.ReadUnit(make([]byte, m.MaxBytesPerUnit()))
	assert.Error(t, err)
	assert.Error(t, m.SetUnitIndex(0))
	assert.NoError(t, m.Close())
}

// writeMP3 writes frames silent layer III frames behind the given header.
// Zeroed side info and main data decode to silence.
func writeMP3(t *testing.T, header [4]byte, frameSize, frames int) string {
	t.Helper()
	buf := make([]byte, frameSize*frames)
	for i := 0; i < frames; i++ {
		copy(buf[i*frameSize:], header[:])
	}

	path := filepath.Join(t.TempDir(), "silence.mp3")
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func TestMP3Units(t *testing.T) {
	// MPEG-1, 128 kbit/s, 44100 Hz, stereo
	path := writeMP3(t, [4]byte{0xff, 0xfb, 0x90, 0x00}, 417, 4)

	m := NewMP3()
	require.NoError(t, m.Open(path))
	defer m.Close()

	assert.Equal(t, 44100, m.SampleRate())
	assert.Equal(t, 2, m.Channels())
	assert.Equal(t, uint64(4), m.UnitCount())
	assert.Equal(t, uint64(4*1152*1000/44100), m.Duration())

	buf := make([]byte, m.MaxBytesPerUnit())
	n, err := m.ReadUnit(buf)
	require.NoError(t, err)
	assert.Equal(t, mp3BytesPerUnit, n)

	require.NoError(t, m.SetUnitIndex(3))
	n, err = m.ReadUnit(buf)
	require.NoError(t, err)
	assert.Equal(t, mp3BytesPerUnit, n)
	_, err = m.ReadUnit(buf)
	assert.ErrorIs(t, err, io.EOF)

	// past the end reads nothing, seeking back recovers
	require.NoError(t, m.SetUnitIndex(4))
	_, err = m.ReadUnit(buf)
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, m.SetUnitIndex(100))
	_, err = m.ReadUnit(buf)
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, m.SetUnitIndex(1))
	n, err = m.ReadUnit(buf)
	require.NoError(t, err)
	assert.Equal(t, mp3BytesPerUnit, n)
}

func TestMP3PartialLastUnit(t *testing.T) {
	// MPEG-2 frames carry half a unit: 576 samples at 22050 Hz
	path := writeMP3(t, [4]byte{0xff, 0xf3, 0x80, 0x00}, 208, 3)

	m := NewMP3()
	require.NoError(t, m.Open(path))
	defer m.Close()

	assert.Equal(t, 22050, m.SampleRate())
	assert.Equal(t, uint64(2), m.UnitCount())
	assert.Equal(t, uint64(3*576*1000/22050), m.Duration())

	buf := make([]byte, m.MaxBytesPerUnit())
	n, err := m.ReadUnit(buf)
	require.NoError(t, err)
	assert.Equal(t, mp3BytesPerUnit, n)

	n, err = m.ReadUnit(buf)
	require.NoError(t, err)
	assert.Equal(t, mp3BytesPerUnit/2, n)

	_, err = m.ReadUnit(buf)
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, m.SetUnitIndex(1))
	n, err = m.ReadUnit(buf)
	require.NoError(t, err)
	assert.Equal(t, mp3BytesPerUnit/2, n)
}

// writeWAV writes a 16-bit PCM file of n silent stereo samples.
func writeWAV(t *testing.T, n, rate int) string {
	t.Helper()
	const channels = 2
	dataSize := n * channels * 2

	buf := make([]byte, 44+dataSize)
	copy(buf[0:], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:], uint32(36+dataSize))
	copy(buf[8:], "WAVE")
	copy(buf[12:], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:], 16)
	binary.LittleEndian.PutUint16(buf[20:], 1)
	binary.LittleEndian.PutUint16(buf[22:], channels)
	binary.LittleEndian.PutUint32(buf[24:], uint32(rate))
	binary.LittleEndian.PutUint32(buf[28:], uint32(rate*channels*2))
	binary.LittleEndian.PutUint16(buf[32:], channels*2)
	binary.LittleEndian.PutUint16(buf[34:], 16)
	copy(buf[36:], "data")
	binary.LittleEndian.PutUint32(buf[40:], uint32(dataSize))

	path := filepath.Join(t.TempDir(), "tone.wav")
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func TestWAVUnits(t *testing.T) {
	path := writeWAV(t, 2500, 8000)

	w := NewWAV()
	require.NoError(t, w.Open(path))
	defer w.Close()

	assert.Equal(t, 2, w.Channels())
	assert.Equal(t, 8000, w.SampleRate())
	assert.Equal(t, 16, w.BitsPerSample())
	assert.Equal(t, uint64(3), w.UnitCount())
	assert.Equal(t, uint64(312), w.Duration())
	assert.Equal(t, 1024*4, w.MaxBytesPerUnit())

	buf := make([]byte, w.MaxBytesPerUnit())
	n, err := w.ReadUnit(buf)
	require.NoError(t, err)
	assert.Equal(t, 1024*4, n)
	assert.Equal(t, make([]byte, n), buf[:n])

	require.NoError(t, w.SetUnitIndex(2))
	n, err = w.ReadUnit(buf)
	require.NoError(t, err)
	assert.Equal(t, (2500-2048)*4, n)

	_, err = w.ReadUnit(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestQuantize(t *testing.T) {
	assert.Equal(t, int16(0), quantize(0))
	assert.Equal(t, int16(32767), quantize(1.5))
	assert.Equal(t, int16(-32768), quantize(-2))
	assert.Equal(t, int16(16383), quantize(0.5))
}
