package engine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/d1nch8g/audiod/decoder"
	"github.com/d1nch8g/audiod/framebuf"
	"github.com/d1nch8g/audiod/metrics"
	"github.com/d1nch8g/audiod/sound"
)

// Status is the transport state of the engine
type Status int32

const (
	Stopped Status = iota
	Playing
	Paused
)

func (s Status) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// EventKind tells what ended a play range
type EventKind int

const (
	// RangeFinished is raised once the last unit of a range was rendered.
	RangeFinished EventKind = iota
	// RangeFailed is raised when a decode or render failure aborted a range.
	RangeFailed
)

// Event reports the end of a play range. Err wraps ErrDecodeFailed or
// ErrRenderFailed for RangeFailed.
type Event struct {
	Kind EventKind
	Err  error
}

// EngineConfig holds the configuration for the playback engine
type EngineConfig struct {
	FrameCount int
	// Device is passed to the renderer's OpenDevice
	Device string
	// EventBuffer is the capacity of the Events channel
	EventBuffer int
}

// Engine pulls units from a decoder through a frame pool into a renderer.
// One goroutine decodes into free frames, another drains filled frames to
// the device. Transport operations are serialized and Pause and Stop only
// return after both workers have quiesced. They must not be called from a
// worker, nor from a receiver of Events that blocks them.
type Engine struct {
	config   EngineConfig
	logger   zerolog.Logger
	registry *decoder.Registry
	pool     *framebuf.Pool

	// serializes transport operations
	mu       sync.Mutex
	renderer sound.Renderer
	decoder  decoder.Decoder

	// guards decoder reads against repositioning
	decMu sync.Mutex

	status     atomic.Int32
	unitCount  uint64
	durationMs uint64
	begin      uint64
	end        atomic.Uint64

	decodeWorker *worker
	renderWorker *worker

	events chan Event
	quit   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// NewEngine creates a new engine and starts its two idle workers
func NewEngine(config EngineConfig, registry *decoder.Registry, logger zerolog.Logger) *Engine {
	if config.FrameCount <= 0 {
		config.FrameCount = framebuf.DefaultSize
	}
	if config.Device == "" {
		config.Device = sound.DefaultDevice
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = 16
	}
	if registry == nil {
		registry = decoder.NewRegistry()
	}

	e := &Engine{
		config:   config,
		logger:   logger.With().Str("component", "engine").Logger(),
		registry: registry,
		pool:     framebuf.New(config.FrameCount),
		events:   make(chan Event, config.EventBuffer),
		quit:     make(chan struct{}),
	}
	e.decodeWorker = newWorker("decode", framebuf.Free, e.decodeUnit)
	e.renderWorker = newWorker("render", framebuf.Filled, e.renderUnit)

	e.wg.Add(2)
	go e.run(e.decodeWorker)
	go e.run(e.renderWorker)
	return e
}

// Suffixes lists the file suffixes Open can handle.
func (e *Engine) Suffixes() []string {
	return e.registry.Suffixes()
}

// Events delivers range completion and failure notifications. Events are
// dropped when the channel is full.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// SetRenderer opens the configured device on r and attaches it, replacing
// any previous renderer. The engine is stopped first.
func (e *Engine) SetRenderer(r sound.Renderer) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	e.stopLocked()
	if err := e.detachRendererLocked(); err != nil {
		e.logger.Warn().Err(err).Msg("failed to close previous renderer")
	}
	if err := r.OpenDevice(e.config.Device); err != nil {
		return fmt.Errorf("failed to open device %s: %w", e.config.Device, err)
	}
	if e.decoder != nil {
		if err := r.SetupDevice(e.decoder.Channels(), e.decoder.SampleRate(), e.decoder.BitsPerSample()); err != nil {
			r.CloseDevice()
			return fmt.Errorf("%w: %v", ErrRendererSetupFailed, err)
		}
	}
	e.renderer = r
	return nil
}

// UnsetRenderer stops playback and closes the attached renderer.
func (e *Engine) UnsetRenderer() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked()
	return e.detachRendererLocked()
}

func (e *Engine) detachRendererLocked() error {
	if e.renderer == nil {
		return nil
	}
	r := e.renderer
	e.renderer = nil
	return r.CloseDevice()
}

// Open selects a decoder by suffix, opens path with it and prepares the
// renderer for the stream. A previously open stream is stopped and closed.
func (e *Engine) Open(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	e.stopLocked()
	if err := e.closeLocked(); err != nil {
		e.logger.Warn().Err(err).Msg("failed to close previous stream")
	}

	dec, ok := e.registry.Lookup(path)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoDecoder, path)
	}
	if e.renderer == nil {
		return ErrNoRenderer
	}
	if err := dec.Open(path); err != nil {
		return fmt.Errorf("%w: %v", ErrDecoderOpenFailed, err)
	}
	if err := e.renderer.SetupDevice(dec.Channels(), dec.SampleRate(), dec.BitsPerSample()); err != nil {
		dec.Close()
		return fmt.Errorf("%w: %v", ErrRendererSetupFailed, err)
	}

	e.pool.Reserve(dec.MaxBytesPerUnit())
	e.decoder = dec
	e.unitCount = dec.UnitCount()
	e.durationMs = dec.Duration()
	e.begin = 0
	e.end.Store(e.unitCount)
	e.decodeWorker.cursor.Store(0)
	e.renderWorker.cursor.Store(0)

	e.logger.Info().
		Str("path", path).
		Uint64("units", e.unitCount).
		Uint64("duration_ms", e.durationMs).
		Int("channels", dec.Channels()).
		Int("sample_rate", dec.SampleRate()).
		Msg("stream opened")
	return nil
}

// Close closes the open stream. The engine must be stopped.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.Status() != Stopped {
		return ErrNotStopped
	}
	if e.decoder == nil {
		return ErrNotOpen
	}
	// a failed range leaves the peer worker running until it is joined
	e.stopLocked()
	return e.closeLocked()
}

func (e *Engine) closeLocked() error {
	if e.decoder == nil {
		return nil
	}
	dec := e.decoder
	e.decoder = nil
	e.unitCount = 0
	e.durationMs = 0
	if err := dec.Close(); err != nil {
		return fmt.Errorf("failed to close decoder: %w", err)
	}
	return nil
}

// Play plays the whole open stream from the start.
func (e *Engine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.decoder == nil {
		return ErrNotOpen
	}
	return e.playRangeLocked(0, e.unitCount)
}

// PlayRange plays the open stream between two positions in milliseconds.
// Both bounds are clamped to the stream. A running range is restarted.
func (e *Engine) PlayRange(msBegin, msEnd uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.decoder == nil {
		return ErrNotOpen
	}
	return e.playRangeLocked(e.msToUnit(msBegin), e.msToUnit(msEnd))
}

func (e *Engine) playRangeLocked(begin, end uint64) error {
	if e.renderer == nil {
		return ErrNoRenderer
	}
	e.stopLocked()

	if end < begin {
		end = begin
	}
	e.begin = begin
	e.end.Store(end)

	e.decMu.Lock()
	err := e.decoder.SetUnitIndex(begin)
	e.decodeWorker.cursor.Store(begin)
	e.renderWorker.cursor.Store(begin)
	e.decMu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: seek to unit %d: %v", ErrDecodeFailed, begin, err)
	}

	e.logger.Debug().Uint64("begin", begin).Uint64("end", end).Msg("play range")
	e.startLocked()
	return nil
}

// Pause suspends both workers. No unit is written to the renderer after
// Pause returns until Resume is called.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.Status() != Playing {
		return
	}
	e.suspendLocked()
	e.casStatus(Playing, Paused)
}

// Resume continues a paused range from where each worker stopped.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.Status() != Paused {
		return
	}
	e.startLocked()
}

// Stop suspends both workers and returns every frame to the free queue,
// dropping audio that was decoded but not rendered.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked()
}

func (e *Engine) stopLocked() {
	e.suspendLocked()
	e.pool.Reset()
	e.setStatus(Stopped)
}

// Seek moves both cursors to msPos, clamped to the stream. Seeking while
// playing does not flush frames already decoded; while paused or stopped
// the pool is reset so the next unit rendered is the target.
func (e *Engine) Seek(msPos uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.decoder == nil {
		return ErrNotOpen
	}
	unit := e.msToUnit(msPos)

	// both workers are joined and restarted, the decode worker may have
	// left its run at the end of the range already
	e.suspendLocked()
	playing := e.Status() == Playing
	if !playing {
		e.pool.Reset()
	}

	e.decMu.Lock()
	err := e.decoder.SetUnitIndex(unit)
	e.decodeWorker.cursor.Store(unit)
	e.renderWorker.cursor.Store(unit)
	e.decMu.Unlock()

	if err != nil {
		if playing {
			e.pool.Reset()
			e.setStatus(Stopped)
		}
		return fmt.Errorf("%w: seek to unit %d: %v", ErrDecodeFailed, unit, err)
	}
	if playing {
		e.startLocked()
	}
	return nil
}

// Status returns the current transport state.
func (e *Engine) Status() Status {
	return Status(e.status.Load())
}

// Duration returns the length of the open stream in milliseconds.
func (e *Engine) Duration() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.durationMs
}

// Position returns the render position in milliseconds.
func (e *Engine) Position() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.unitCount == 0 {
		return 0
	}
	return e.renderWorker.cursor.Load() * e.durationMs / e.unitCount
}

// UnitRange returns the current range and the render cursor in units.
func (e *Engine) UnitRange() (begin, end, cursor uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.begin, e.end.Load(), e.renderWorker.cursor.Load()
}

// Shutdown stops playback, closes the stream and the renderer, and
// terminates both workers. The engine cannot be used afterwards.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	e.stopLocked()
	err := e.closeLocked()
	if rerr := e.detachRendererLocked(); rerr != nil && err == nil {
		err = fmt.Errorf("failed to close renderer: %w", rerr)
	}

	close(e.quit)
	e.wg.Wait()
	e.logger.Info().Msg("engine shut down")
	return err
}

func (e *Engine) msToUnit(ms uint64) uint64 {
	if ms >= e.durationMs {
		return e.unitCount
	}
	return ms * e.unitCount / e.durationMs
}

func (e *Engine) setStatus(s Status) {
	e.status.Store(int32(s))
	metrics.EngineStatus.Set(float64(s))
}

func (e *Engine) casStatus(from, to Status) bool {
	if !e.status.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	metrics.EngineStatus.Set(float64(to))
	return true
}

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		e.logger.Warn().Int("kind", int(ev.Kind)).Msg("event dropped, receiver too slow")
	}
}
