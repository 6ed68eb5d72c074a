package server

import "sync"

// Playlist is the ordered list of items the server plays through. current
// is -1 while nothing is selected.
type Playlist struct {
	mu      sync.Mutex
	items   []string
	current int
}

func NewPlaylist() *Playlist {
	return &Playlist{current: -1}
}

func (p *Playlist) Append(paths ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, paths...)
}

func (p *Playlist) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = nil
	p.current = -1
}

// Select makes item i current and returns it.
func (p *Playlist) Select(i int) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.items) {
		return "", false
	}
	p.current = i
	return p.items[i], true
}

// Next advances to the following item. It reports false at the end of the
// list and leaves the current item unchanged.
func (p *Playlist) Next() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current+1 >= len(p.items) {
		return "", false
	}
	p.current++
	return p.items[p.current], true
}

// Previous steps back one item, staying on the first one.
func (p *Playlist) Previous() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.items) == 0 {
		return "", false
	}
	if p.current > 0 {
		p.current--
	} else {
		p.current = 0
	}
	return p.items[p.current], true
}

// Current returns the selected item, or the first one if none is selected.
func (p *Playlist) Current() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.items) == 0 {
		return "", false
	}
	if p.current < 0 {
		p.current = 0
	}
	return p.items[p.current], true
}

// Items returns a copy of the list and the current index.
func (p *Playlist) Items() ([]string, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.items...), p.current
}
