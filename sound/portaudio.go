package sound

import (
	"encoding/binary"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// PortaudioRenderer plays 16-bit PCM on a PortAudio output stream. Samples
// are collected into a buffer of FramesPerBuffer frames and handed to the
// stream whenever it is full.
type PortaudioRenderer struct {
	config      Config
	initialized bool
	device      *portaudio.DeviceInfo
	stream      *portaudio.Stream
	audioBuffer []int16
	pending     int
}

var _ Renderer = (*PortaudioRenderer)(nil)

func NewPortaudioRenderer(config Config) *PortaudioRenderer {
	if config.FramesPerBuffer <= 0 {
		config.FramesPerBuffer = DefaultConfig().FramesPerBuffer
	}
	return &PortaudioRenderer{config: config}
}

func (p *PortaudioRenderer) OpenDevice(path string) error {
	if !p.initialized {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize portaudio: %w", err)
		}
		p.initialized = true
	}

	if path == "" || path == DefaultDevice {
		dev, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return fmt.Errorf("failed to find default output device: %w", err)
		}
		p.device = dev
		return nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	for _, dev := range devices {
		if dev.Name == path && dev.MaxOutputChannels > 0 {
			p.device = dev
			return nil
		}
	}
	return fmt.Errorf("failed to find output device %q", path)
}

func (p *PortaudioRenderer) SetupDevice(channels, sampleRate, bitsPerSample int) error {
	if p.device == nil {
		return ErrDeviceNotOpen
	}
	if err := validate(channels, sampleRate, bitsPerSample); err != nil {
		return fmt.Errorf("failed to setup device: %w", err)
	}
	if err := p.closeStream(); err != nil {
		return err
	}

	p.audioBuffer = make([]int16, p.config.FramesPerBuffer*channels)
	p.pending = 0

	params := portaudio.LowLatencyParameters(nil, p.device)
	params.Output.Channels = channels
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = p.config.FramesPerBuffer

	stream, err := portaudio.OpenStream(params, &p.audioBuffer)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	p.stream = stream
	return nil
}

func (p *PortaudioRenderer) WriteDevice(buf []byte) error {
	if p.stream == nil {
		return ErrDeviceNotOpen
	}

	for len(buf) >= 2 {
		p.audioBuffer[p.pending] = int16(binary.LittleEndian.Uint16(buf))
		p.pending++
		buf = buf[2:]

		if p.pending == len(p.audioBuffer) {
			p.pending = 0
			if err := p.stream.Write(); err != nil {
				return fmt.Errorf("failed to write audio: %w", err)
			}
		}
	}
	return nil
}

func (p *PortaudioRenderer) closeStream() error {
	if p.stream == nil {
		return nil
	}
	stream := p.stream
	p.stream = nil
	stream.Stop()
	if err := stream.Close(); err != nil {
		return fmt.Errorf("failed to close output stream: %w", err)
	}
	return nil
}

func (p *PortaudioRenderer) CloseDevice() error {
	err := p.closeStream()
	p.device = nil
	if p.initialized {
		p.initialized = false
		if terr := portaudio.Terminate(); terr != nil && err == nil {
			err = fmt.Errorf("failed to terminate portaudio: %w", terr)
		}
	}
	return err
}
