package framebuf

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkInvariant(t *testing.T, p *Pool) {
	t.Helper()
	assert.Equal(t, p.Size(), p.Len(Free)+p.Len(Filled)+p.InFlight())
}

func TestNewPoolAllFree(t *testing.T) {
	tests := []struct {
		name string
		size int
		want int
	}{
		{"zero raised to one", 0, 1},
		{"negative raised to one", -3, 1},
		{"default", DefaultSize, DefaultSize},
		{"large", 64, 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.size)
			assert.Equal(t, tt.want, p.Size())
			assert.Equal(t, tt.want, p.Len(Free))
			assert.Equal(t, 0, p.Len(Filled))
			assert.Equal(t, 0, p.InFlight())
		})
	}
}

func TestAcquireReleaseKeepsInvariant(t *testing.T) {
	for _, n := range []int{1, 2, 5, 9} {
		p := New(n)
		held := make(map[*Frame]bool)

		for i := 0; i < n; i++ {
			f, ok := p.AcquireFree()
			require.True(t, ok)
			require.False(t, held[f], "frame acquired twice")
			held[f] = true
			checkInvariant(t, p)
		}
		assert.Equal(t, 0, p.Len(Free))

		for f := range held {
			p.ReleaseAsFilled(f)
			checkInvariant(t, p)
		}
		assert.Equal(t, n, p.Len(Filled))

		for i := 0; i < n; i++ {
			f, ok := p.AcquireFilled()
			require.True(t, ok)
			p.ReleaseAsFree(f)
			checkInvariant(t, p)
		}
		assert.Equal(t, n, p.Len(Free))
	}
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	p := New(1)
	f, ok := p.AcquireFree()
	require.True(t, ok)

	got := make(chan *Frame)
	go func() {
		g, _ := p.AcquireFilled()
		got <- g
	}()

	select {
	case <-got:
		t.Fatal("acquire from empty filled queue returned early")
	case <-time.After(50 * time.Millisecond):
	}

	p.ReleaseAsFilled(f)
	select {
	case g := <-got:
		assert.Same(t, f, g)
	case <-time.After(time.Second):
		t.Fatal("acquire did not unblock after release")
	}
}

func TestCancelUnblocksExactlyOneWaiter(t *testing.T) {
	p := New(2)
	a, _ := p.AcquireFree()
	b, _ := p.AcquireFree()

	results := make(chan bool, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := p.AcquireFree()
			results <- ok
		}()
	}
	time.Sleep(50 * time.Millisecond)

	p.CancelOneAcquire(Free)
	select {
	case ok := <-results:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("cancel did not unblock a waiter")
	}

	select {
	case <-results:
		t.Fatal("cancel unblocked more than one waiter")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 0, p.Len(Filled))
	checkInvariant(t, p)

	p.ReleaseAsFree(a)
	select {
	case ok := <-results:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("second waiter did not get the released frame")
	}
	wg.Wait()

	p.ReleaseAsFree(b)
	checkInvariant(t, p)
}

func TestCancelWithoutWaiterCancelsNextAcquire(t *testing.T) {
	p := New(1)
	p.CancelOneAcquire(Filled)
	assert.Equal(t, 0, p.Len(Filled))

	f, ok := p.AcquireFilled()
	assert.False(t, ok)
	assert.Nil(t, f)
	checkInvariant(t, p)
}

func TestResetRestoresAllFree(t *testing.T) {
	p := New(3)
	for i := 0; i < 3; i++ {
		f, _ := p.AcquireFree()
		f.Used = 7
		p.ReleaseAsFilled(f)
	}
	p.CancelOneAcquire(Filled)
	p.CancelOneAcquire(Free)

	p.Reset()
	assert.Equal(t, 3, p.Len(Free))
	assert.Equal(t, 0, p.Len(Filled))

	// cancellation tokens are dropped too
	for i := 0; i < 3; i++ {
		f, ok := p.AcquireFree()
		require.True(t, ok)
		assert.Equal(t, 0, f.Used)
	}
}

func TestResetPanicsWithFrameInFlight(t *testing.T) {
	p := New(2)
	_, _ = p.AcquireFree()
	assert.Panics(t, p.Reset)
}

func TestReleaseNotHeldPanics(t *testing.T) {
	p := New(2)
	f, _ := p.AcquireFree()
	p.ReleaseAsFilled(f)
	assert.Panics(t, func() { p.ReleaseAsFree(f) })

	other := New(1)
	g, _ := other.AcquireFree()
	assert.Panics(t, func() { p.ReleaseAsFree(g) })
}

func TestReserveGrowsOnAcquire(t *testing.T) {
	p := New(2)
	p.Reserve(128)
	p.Reserve(64)

	f, _ := p.AcquireFree()
	assert.Len(t, f.Data, 128)
	f.Used = 10
	p.ReleaseAsFilled(f)

	// filled frames keep their data untouched
	g, _ := p.AcquireFilled()
	assert.Equal(t, 10, len(g.Bytes()))
	p.ReleaseAsFree(g)

	p.Reserve(256)
	h, _ := p.AcquireFree()
	h2, _ := p.AcquireFree()
	assert.Len(t, h.Data, 256)
	assert.Len(t, h2.Data, 256)

	p.ReleaseAsFree(h)
	p.Reserve(32)
	h3, _ := p.AcquireFree()
	assert.Len(t, h3.Data, 256, "frames never shrink")
}

func TestConcurrentProducerConsumer(t *testing.T) {
	p := New(DefaultSize)
	const units = 500

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < units; i++ {
			f, ok := p.AcquireFree()
			if !ok {
				i--
				continue
			}
			if len(f.Data) < 1 {
				f.Data = make([]byte, 1)
			}
			f.Data[0] = byte(i)
			f.Used = 1
			p.ReleaseAsFilled(f)
		}
	}()

	seen := make([]byte, 0, units)
	go func() {
		defer wg.Done()
		for i := 0; i < units; i++ {
			f, ok := p.AcquireFilled()
			if !ok {
				i--
				continue
			}
			seen = append(seen, f.Bytes()[0])
			p.ReleaseAsFree(f)
		}
	}()
	wg.Wait()

	require.Len(t, seen, units)
	for i, b := range seen {
		assert.Equal(t, byte(i), b)
	}
	checkInvariant(t, p)
	assert.Equal(t, DefaultSize, p.Len(Free))
}
