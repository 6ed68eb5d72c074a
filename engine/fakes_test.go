package engine

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"time"
)

var errBroken = errors.New("broken")

// fakeDecoder produces units that carry their own index.
type fakeDecoder struct {
	units      uint64
	durationMs uint64
	eofAt      uint64 // 0 disables
	failAt     uint64 // 0 disables
	openErr    error
	channels   int

	mu     sync.Mutex
	pos    uint64
	opened bool
}

func newFakeDecoder(units, durationMs uint64) *fakeDecoder {
	return &fakeDecoder{units: units, durationMs: durationMs, channels: 2}
}

func (d *fakeDecoder) Suffixes() []string { return []string{"fake"} }

func (d *fakeDecoder) Open(string) error {
	if d.openErr != nil {
		return d.openErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = true
	d.pos = 0
	return nil
}

func (d *fakeDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = false
	return nil
}

func (d *fakeDecoder) UnitCount() uint64    { return d.units }
func (d *fakeDecoder) Duration() uint64     { return d.durationMs }
func (d *fakeDecoder) MaxBytesPerUnit() int { return 8 }
func (d *fakeDecoder) Channels() int        { return d.channels }
func (d *fakeDecoder) SampleRate() int      { return 44100 }
func (d *fakeDecoder) BitsPerSample() int   { return 16 }

func (d *fakeDecoder) SetUnitIndex(u uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pos = u
	return nil
}

func (d *fakeDecoder) ReadUnit(buf []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failAt != 0 && d.pos == d.failAt {
		return 0, errBroken
	}
	if d.pos >= d.units || (d.eofAt != 0 && d.pos >= d.eofAt) {
		return 0, io.EOF
	}
	binary.LittleEndian.PutUint64(buf, d.pos)
	d.pos++
	return 8, nil
}

func (d *fakeDecoder) isOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

// fakeRenderer records the unit index of every write.
type fakeRenderer struct {
	delay    time.Duration
	failAt   int // write number that fails, 0 disables
	setupErr error

	mu      sync.Mutex
	units   []uint64
	writes  int
	opened  bool
	device  string
	setups  int
	written chan struct{}
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{written: make(chan struct{}, 1024)}
}

func (r *fakeRenderer) OpenDevice(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = true
	r.device = path
	return nil
}

func (r *fakeRenderer) SetupDevice(channels, sampleRate, bitsPerSample int) error {
	if r.setupErr != nil {
		return r.setupErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setups++
	return nil
}

func (r *fakeRenderer) WriteDevice(buf []byte) error {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	r.writes++
	if r.failAt != 0 && r.writes == r.failAt {
		r.mu.Unlock()
		return errBroken
	}
	r.units = append(r.units, binary.LittleEndian.Uint64(buf))
	r.mu.Unlock()

	select {
	case r.written <- struct{}{}:
	default:
	}
	return nil
}

func (r *fakeRenderer) CloseDevice() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = false
	return nil
}

func (r *fakeRenderer) rendered() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.units...)
}

func (r *fakeRenderer) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

func (r *fakeRenderer) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units = nil
	r.writes = 0
}

func sequence(begin, end uint64) []uint64 {
	list := make([]uint64, 0, end-begin)
	for u := begin; u < end; u++ {
		list = append(list, u)
	}
	return list
}
