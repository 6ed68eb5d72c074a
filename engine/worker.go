package engine

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/d1nch8g/audiod/framebuf"
	"github.com/d1nch8g/audiod/metrics"
)

// worker is one side of the pipeline. Both sides run the same loop and
// differ only in the queue they take frames from and the work done per
// frame.
type worker struct {
	name    string
	from    framebuf.Queue
	step    func(f *framebuf.Frame) error
	cursor  atomic.Uint64
	suspend atomic.Bool

	// receives the done channel of the next run
	wake chan chan struct{}
	// done of the current run, nil when the worker was joined.
	// Owned by the goroutine holding Engine.mu.
	done chan struct{}
}

func newWorker(name string, from framebuf.Queue, step func(f *framebuf.Frame) error) *worker {
	return &worker{
		name: name,
		from: from,
		step: step,
		wake: make(chan chan struct{}),
	}
}

func (e *Engine) run(w *worker) {
	defer e.wg.Done()
	for {
		select {
		case <-e.quit:
			return
		case done := <-w.wake:
			e.loop(w)
			close(done)
		}
	}
}

func (e *Engine) loop(w *worker) {
	for {
		if w.suspend.Load() {
			return
		}
		if w.cursor.Load() >= e.end.Load() {
			if w == e.renderWorker {
				e.finish()
			}
			return
		}

		f, ok := e.pool.Acquire(w.from)
		if !ok {
			// cancelled, check the flags again
			continue
		}
		if err := w.step(f); err != nil {
			e.fail(w, err)
			return
		}
	}
}

func (e *Engine) peer(w *worker) *worker {
	if w == e.decodeWorker {
		return e.renderWorker
	}
	return e.decodeWorker
}

// startLocked wakes both workers for a new run
func (e *Engine) startLocked() {
	e.setStatus(Playing)
	for _, w := range []*worker{e.decodeWorker, e.renderWorker} {
		w.suspend.Store(false)
		w.done = make(chan struct{})
		w.wake <- w.done
	}
}

// suspendLocked asks both workers to stop and waits until they have.
// A worker blocked inside the pool is released with a cancellation token.
func (e *Engine) suspendLocked() {
	workers := []*worker{e.renderWorker, e.decodeWorker}
	for _, w := range workers {
		w.suspend.Store(true)
	}
	for _, w := range workers {
		if w.done == nil {
			continue
		}
		select {
		case <-w.done:
		default:
			e.pool.CancelOneAcquire(w.from)
			<-w.done
		}
		w.done = nil
	}
}

func (e *Engine) decodeUnit(f *framebuf.Frame) error {
	w := e.decodeWorker

	e.decMu.Lock()
	n, err := e.decoder.ReadUnit(f.Data)
	unit := w.cursor.Load()
	if err == nil {
		f.Used = n
		w.cursor.Add(1)
	}
	e.decMu.Unlock()

	switch {
	case errors.Is(err, io.EOF):
		f.Used = 0
		e.pool.ReleaseAsFree(f)
		// the stream is shorter than announced, end the range here
		if unit < e.end.Load() {
			e.end.Store(unit)
		}
		e.pool.CancelOneAcquire(framebuf.Filled)
		e.logger.Debug().Uint64("unit", unit).Msg("decoder reached end early")
		return nil
	case err != nil:
		f.Used = 0
		e.pool.ReleaseAsFree(f)
		return fmt.Errorf("%w: unit %d: %v", ErrDecodeFailed, unit, err)
	}

	metrics.UnitsDecodedTotal.Inc()
	e.pool.ReleaseAsFilled(f)
	return nil
}

func (e *Engine) renderUnit(f *framebuf.Frame) error {
	w := e.renderWorker
	buf := f.Bytes()

	var err error
	if len(buf) > 0 {
		err = e.renderer.WriteDevice(buf)
	}
	e.pool.ReleaseAsFree(f)
	if err != nil {
		return fmt.Errorf("%w: unit %d: %v", ErrRenderFailed, w.cursor.Load(), err)
	}

	w.cursor.Add(1)
	metrics.UnitsRenderedTotal.Inc()
	metrics.BytesRenderedTotal.Add(float64(len(buf)))
	return nil
}

func (e *Engine) finish() {
	if e.casStatus(Playing, Stopped) {
		e.logger.Debug().Msg("play range finished")
		e.emit(Event{Kind: RangeFinished})
	}
}

// fail aborts the range after w failed: the other worker is suspended and
// released from the pool, the engine moves to Stopped.
func (e *Engine) fail(w *worker, err error) {
	peer := e.peer(w)
	peer.suspend.Store(true)
	e.pool.CancelOneAcquire(peer.from)

	metrics.RangeFailuresTotal.WithLabelValues(w.name).Inc()
	e.logger.Error().Err(err).Str("worker", w.name).Msg("play range aborted")
	if e.casStatus(Playing, Stopped) {
		e.emit(Event{Kind: RangeFailed, Err: err})
	}
}
