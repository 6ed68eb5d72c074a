package framebuf

import (
	"fmt"
	"sync"
)

// DefaultSize is the number of frames a pool holds when no size is configured.
const DefaultSize = 5

// Queue selects one of the two hand-off queues of a Pool.
type Queue int

const (
	// Free holds frames waiting to be filled by the decode side.
	Free Queue = iota
	// Filled holds frames waiting to be drained by the render side.
	Filled
)

func (q Queue) String() string {
	switch q {
	case Free:
		return "free"
	case Filled:
		return "filled"
	default:
		return fmt.Sprintf("queue(%d)", int(q))
	}
}

// poison is pushed onto a queue to cancel exactly one acquirer.
const poison = -1

type frameState int

const (
	stateQueued frameState = iota
	stateHeld
)

// Frame is a reusable sample buffer handed between the decode and render
// workers. Data is only valid between an Acquire and the matching Release.
type Frame struct {
	Data []byte
	Used int

	index int
	state frameState
}

// Bytes returns the filled part of the frame.
func (f *Frame) Bytes() []byte {
	return f.Data[:f.Used]
}

// Pool is a fixed set of frames split between a free queue and a filled
// queue. A frame is either sitting in exactly one queue or held by exactly
// one acquirer.
type Pool struct {
	mu       sync.Mutex
	conds    [2]*sync.Cond
	frames   []*Frame
	queues   [2][]int
	inFlight int
	minCap   int
}

// New creates a pool of n frames, all of them free. n below 1 is raised to 1.
func New(n int) *Pool {
	if n < 1 {
		n = 1
	}

	p := &Pool{
		frames: make([]*Frame, n),
	}
	p.conds[Free] = sync.NewCond(&p.mu)
	p.conds[Filled] = sync.NewCond(&p.mu)

	for i := range p.frames {
		p.frames[i] = &Frame{index: i}
	}
	p.resetLocked()
	return p
}

// Size returns the total number of frames owned by the pool.
func (p *Pool) Size() int {
	return len(p.frames)
}

// Reserve raises the minimum frame capacity. Frames are never resized in
// place: a free frame below the minimum is grown when it is next acquired
// from the free queue, while its acquirer holds it exclusively.
func (p *Pool) Reserve(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > p.minCap {
		p.minCap = n
	}
}

// Acquire removes the oldest entry from q, blocking while q is empty. It
// returns false when the entry was a cancellation token instead of a frame.
func (p *Pool) Acquire(q Queue) (*Frame, bool) {
	p.mu.Lock()
	for len(p.queues[q]) == 0 {
		p.conds[q].Wait()
	}

	idx := p.queues[q][0]
	p.queues[q] = p.queues[q][1:]
	if idx == poison {
		p.mu.Unlock()
		return nil, false
	}

	f := p.frames[idx]
	f.state = stateHeld
	p.inFlight++
	minCap := p.minCap
	p.mu.Unlock()

	if q == Free && len(f.Data) < minCap {
		f.Data = make([]byte, minCap)
		f.Used = 0
	}
	return f, true
}

// Release hands a held frame to q and wakes one acquirer waiting on q.
func (p *Pool) Release(f *Frame, q Queue) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if f == nil || f.index < 0 || f.index >= len(p.frames) || p.frames[f.index] != f {
		panic("framebuf: release of a frame not owned by this pool")
	}
	if f.state != stateHeld {
		panic(fmt.Sprintf("framebuf: frame %d released to %s while not held", f.index, q))
	}

	f.state = stateQueued
	p.inFlight--
	p.queues[q] = append(p.queues[q], f.index)
	p.conds[q].Signal()
}

// AcquireFree blocks until a free frame is available.
func (p *Pool) AcquireFree() (*Frame, bool) { return p.Acquire(Free) }

// AcquireFilled blocks until a filled frame is available.
func (p *Pool) AcquireFilled() (*Frame, bool) { return p.Acquire(Filled) }

// ReleaseAsFilled queues f for the render side.
func (p *Pool) ReleaseAsFilled(f *Frame) { p.Release(f, Filled) }

// ReleaseAsFree queues f for the decode side.
func (p *Pool) ReleaseAsFree(f *Frame) { p.Release(f, Free) }

// CancelOneAcquire pushes a cancellation token onto q. The next acquirer of
// q, blocked or not, consumes it and gets no frame. The opposite queue is
// untouched.
func (p *Pool) CancelOneAcquire(q Queue) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queues[q] = append(p.queues[q], poison)
	p.conds[q].Signal()
}

// Reset returns every frame to the free queue and drops pending
// cancellation tokens. It must not be called while an acquirer holds a frame.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight != 0 {
		panic(fmt.Sprintf("framebuf: reset with %d frames in flight", p.inFlight))
	}
	p.resetLocked()
	p.conds[Free].Broadcast()
}

func (p *Pool) resetLocked() {
	p.queues[Free] = make([]int, 0, len(p.frames)+1)
	p.queues[Filled] = make([]int, 0, len(p.frames)+1)
	for i, f := range p.frames {
		f.state = stateQueued
		f.Used = 0
		p.queues[Free] = append(p.queues[Free], i)
	}
	p.inFlight = 0
}

// Len returns the number of frames in q, not counting cancellation tokens.
func (p *Pool) Len(q Queue) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, idx := range p.queues[q] {
		if idx != poison {
			n++
		}
	}
	return n
}

// InFlight returns the number of frames currently held by acquirers.
func (p *Pool) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}
