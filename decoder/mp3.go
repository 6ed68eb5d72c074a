package decoder

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hajimehoshi/go-mp3"
)

const (
	// go-mp3 always produces interleaved 16-bit stereo
	mp3Channels       = 2
	mp3BitsPerSample  = 16
	mp3BytesPerSample = mp3Channels * mp3BitsPerSample / 8
	// one MPEG-1 layer III frame
	mp3SamplesPerUnit = 1152
	mp3BytesPerUnit   = mp3SamplesPerUnit * mp3BytesPerSample
)

// MP3 decodes MPEG audio through go-mp3. One unit is one MPEG frame worth
// of samples.
type MP3 struct {
	file   *os.File
	dec    *mp3.Decoder
	length int64
	atEnd  bool
}

var _ Decoder = (*MP3)(nil)

func NewMP3() *MP3 {
	return &MP3{}
}

func (m *MP3) Suffixes() []string {
	return []string{"mp3"}
}

func (m *MP3) Open(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if dec.Length() < 0 {
		f.Close()
		return fmt.Errorf("failed to decode %s: unknown stream length", path)
	}

	m.file = f
	m.dec = dec
	m.length = dec.Length()
	m.atEnd = false
	return nil
}

func (m *MP3) Close() error {
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	m.dec = nil
	m.length = 0
	m.atEnd = false
	return err
}

func (m *MP3) UnitCount() uint64 {
	return uint64((m.length + mp3BytesPerUnit - 1) / mp3BytesPerUnit)
}

func (m *MP3) Duration() uint64 {
	if m.dec == nil || m.dec.SampleRate() == 0 {
		return 0
	}
	samples := m.length / mp3BytesPerSample
	return uint64(samples * 1000 / int64(m.dec.SampleRate()))
}

func (m *MP3) MaxBytesPerUnit() int {
	return mp3BytesPerUnit
}

func (m *MP3) Channels() int {
	return mp3Channels
}

func (m *MP3) SampleRate() int {
	if m.dec == nil {
		return 0
	}
	return m.dec.SampleRate()
}

func (m *MP3) BitsPerSample() int {
	return mp3BitsPerSample
}

func (m *MP3) SetUnitIndex(u uint64) error {
	if m.dec == nil {
		return errors.New("mp3: decoder not open")
	}
	off := int64(u) * mp3BytesPerUnit
	// go-mp3 cannot seek onto the end of the stream itself
	if off >= m.length {
		m.atEnd = true
		return nil
	}
	m.atEnd = false
	_, err := m.dec.Seek(off, io.SeekStart)
	return err
}

func (m *MP3) ReadUnit(buf []byte) (int, error) {
	if m.dec == nil {
		return 0, errors.New("mp3: decoder not open")
	}
	if m.atEnd {
		return 0, io.EOF
	}
	if len(buf) > mp3BytesPerUnit {
		buf = buf[:mp3BytesPerUnit]
	}
	n, err := io.ReadFull(m.dec, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		// last, partial unit
		return n, nil
	}
	return n, err
}
