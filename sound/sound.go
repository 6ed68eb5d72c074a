package sound

import "errors"

var (
	ErrBadChannels      = errors.New("unsupported channel count")
	ErrBadSampleRate    = errors.New("unsupported sample rate")
	ErrBadBitsPerSample = errors.New("unsupported bits per sample")
	ErrDeviceNotOpen    = errors.New("device not open")
)

// Renderer defines the interface for audio output devices
type Renderer interface {
	// OpenDevice opens the named output device
	OpenDevice(path string) error

	// SetupDevice prepares the device for interleaved PCM of the given shape
	SetupDevice(channels, sampleRate, bitsPerSample int) error

	// WriteDevice plays buf, blocking until the device accepted it
	WriteDevice(buf []byte) error

	// CloseDevice releases the device
	CloseDevice() error
}

// Config holds output stream parameters
type Config struct {
	FramesPerBuffer int
}

func DefaultConfig() Config {
	return Config{
		FramesPerBuffer: 1024,
	}
}

// DefaultDevice names the host's default output device.
const DefaultDevice = "default"

// NullDevice names a renderer that discards everything it is given.
const NullDevice = "null"

// New returns the renderer for device: a Discard renderer for NullDevice,
// PortAudio otherwise.
func New(device string, config Config) Renderer {
	if device == NullDevice {
		return &Discard{}
	}
	return NewPortaudioRenderer(config)
}

func validate(channels, sampleRate, bitsPerSample int) error {
	if channels < 1 || channels > 2 {
		return ErrBadChannels
	}
	if sampleRate <= 0 {
		return ErrBadSampleRate
	}
	if bitsPerSample != 16 {
		return ErrBadBitsPerSample
	}
	return nil
}
