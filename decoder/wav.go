package decoder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
)

const (
	wavSamplesPerUnit = 1024
	wavBitsPerSample  = 16
)

// WAV decodes RIFF/WAVE files through beep and re-quantizes to 16-bit PCM.
type WAV struct {
	file    *os.File
	stream  beep.StreamSeekCloser
	format  beep.Format
	samples [][2]float64
}

var _ Decoder = (*WAV)(nil)

func NewWAV() *WAV {
	return &WAV{samples: make([][2]float64, wavSamplesPerUnit)}
}

func (w *WAV) Suffixes() []string {
	return []string{"wav", "wave"}
}

func (w *WAV) Open(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}

	stream, format, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if format.NumChannels < 1 || format.NumChannels > 2 {
		stream.Close()
		f.Close()
		return fmt.Errorf("failed to decode %s: %d channels unsupported", path, format.NumChannels)
	}

	w.file = f
	w.stream = stream
	w.format = format
	return nil
}

func (w *WAV) Close() error {
	if w.stream == nil {
		return nil
	}
	err := w.stream.Close()
	if ferr := w.file.Close(); ferr != nil && !errors.Is(ferr, os.ErrClosed) && err == nil {
		err = ferr
	}
	w.stream = nil
	w.file = nil
	return err
}

func (w *WAV) UnitCount() uint64 {
	if w.stream == nil {
		return 0
	}
	return uint64((w.stream.Len() + wavSamplesPerUnit - 1) / wavSamplesPerUnit)
}

func (w *WAV) Duration() uint64 {
	if w.stream == nil || w.format.SampleRate == 0 {
		return 0
	}
	return uint64(int64(w.stream.Len()) * 1000 / int64(w.format.SampleRate))
}

func (w *WAV) MaxBytesPerUnit() int {
	return wavSamplesPerUnit * w.bytesPerSample()
}

func (w *WAV) Channels() int {
	return w.format.NumChannels
}

func (w *WAV) SampleRate() int {
	return int(w.format.SampleRate)
}

func (w *WAV) BitsPerSample() int {
	return wavBitsPerSample
}

func (w *WAV) bytesPerSample() int {
	ch := w.format.NumChannels
	if ch < 1 {
		ch = 2
	}
	return ch * wavBitsPerSample / 8
}

func (w *WAV) SetUnitIndex(u uint64) error {
	if w.stream == nil {
		return errors.New("wav: decoder not open")
	}
	pos := int(u) * wavSamplesPerUnit
	if pos > w.stream.Len() {
		pos = w.stream.Len()
	}
	return w.stream.Seek(pos)
}

func (w *WAV) ReadUnit(buf []byte) (int, error) {
	if w.stream == nil {
		return 0, errors.New("wav: decoder not open")
	}

	frame := w.bytesPerSample()
	want := len(buf) / frame
	if want > wavSamplesPerUnit {
		want = wavSamplesPerUnit
	}

	n, ok := w.stream.Stream(w.samples[:want])
	if !ok && n == 0 {
		if err := w.stream.Err(); err != nil {
			return 0, err
		}
		return 0, io.EOF
	}

	off := 0
	for _, s := range w.samples[:n] {
		for c := 0; c < w.format.NumChannels; c++ {
			binary.LittleEndian.PutUint16(buf[off:], uint16(quantize(s[c])))
			off += 2
		}
	}
	return off, nil
}

func quantize(v float64) int16 {
	switch {
	case v >= 1:
		return 32767
	case v <= -1:
		return -32768
	default:
		return int16(v * 32767)
	}
}
