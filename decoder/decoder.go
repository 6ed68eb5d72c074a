package decoder

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Decoder turns a compressed file into fixed-size playback units of raw
// PCM. Positions are expressed in units.
type Decoder interface {
	// Suffixes lists the file suffixes the decoder handles, without dot
	Suffixes() []string

	Open(path string) error
	Close() error

	UnitCount() uint64
	// Duration returns the stream length in milliseconds
	Duration() uint64
	MaxBytesPerUnit() int
	Channels() int
	SampleRate() int
	BitsPerSample() int

	// SetUnitIndex positions the next ReadUnit at unit u
	SetUnitIndex(u uint64) error
	// ReadUnit decodes the next unit into buf and returns the number of
	// bytes used. It returns io.EOF once the stream is exhausted.
	ReadUnit(buf []byte) (int, error)
}

// Registry maps lower-case file suffixes to decoders. The first decoder
// registered for a suffix wins.
type Registry struct {
	mu       sync.RWMutex
	bySuffix map[string][]Decoder
}

// NewRegistry returns a registry holding decs
func NewRegistry(decs ...Decoder) *Registry {
	r := &Registry{bySuffix: make(map[string][]Decoder)}
	for _, d := range decs {
		r.Register(d)
	}
	return r
}

// Register adds d under each of its suffixes.
func (r *Registry) Register(d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range d.Suffixes() {
		s = normalizeSuffix(s)
		r.bySuffix[s] = append(r.bySuffix[s], d)
	}
}

// Unregister removes d from every suffix it was registered under.
func (r *Registry) Unregister(d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range d.Suffixes() {
		s = normalizeSuffix(s)
		list := r.bySuffix[s]
		for i, cand := range list {
			if cand == d {
				list = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(r.bySuffix, s)
		} else {
			r.bySuffix[s] = list
		}
	}
}

// Lookup returns the decoder for path's suffix, compared case-insensitively.
func (r *Registry) Lookup(path string) (Decoder, bool) {
	suffix := normalizeSuffix(filepath.Ext(path))
	if suffix == "" {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.bySuffix[suffix]
	if len(list) == 0 {
		return nil, false
	}
	return list[0], true
}

// Suffixes returns every registered suffix in sorted order.
func (r *Registry) Suffixes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]string, 0, len(r.bySuffix))
	for s := range r.bySuffix {
		list = append(list, s)
	}
	sort.Strings(list)
	return list
}

func normalizeSuffix(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, "."))
}
