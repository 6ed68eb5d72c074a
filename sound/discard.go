package sound

import (
	"fmt"
	"sync"
)

// Discard is a renderer without hardware. It validates the stream shape and
// counts what it is asked to play.
type Discard struct {
	mu     sync.Mutex
	open   bool
	setup  bool
	writes int
	bytes  int64
}

var _ Renderer = (*Discard)(nil)

func (d *Discard) OpenDevice(string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = true
	return nil
}

func (d *Discard) SetupDevice(channels, sampleRate, bitsPerSample int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return ErrDeviceNotOpen
	}
	if err := validate(channels, sampleRate, bitsPerSample); err != nil {
		return fmt.Errorf("failed to setup device: %w", err)
	}
	d.setup = true
	return nil
}

func (d *Discard) WriteDevice(buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.setup {
		return ErrDeviceNotOpen
	}
	d.writes++
	d.bytes += int64(len(buf))
	return nil
}

func (d *Discard) CloseDevice() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
	d.setup = false
	return nil
}

// Stats returns the number of writes and bytes accepted so far.
func (d *Discard) Stats() (writes int, bytes int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes, d.bytes
}
