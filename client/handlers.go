package client

import (
	"github.com/d1nch8g/audiod/protocol"
)

// PlayerHandler encodes transport requests and decodes player
// notifications.
type PlayerHandler struct {
	transport Transport

	// OnItemProgress receives the render position and duration in ms.
	OnItemProgress func(positionMs, durationMs uint64)
	// OnStatus receives the server transport status
	// (0 stopped, 1 playing, 2 paused).
	OnStatus func(status uint8)
}

// NewPlayerHandler returns a handler sending through t.
func NewPlayerHandler(t Transport) *PlayerHandler {
	return &PlayerHandler{transport: t}
}

// Handle decodes one player payload. Unknown or short messages are dropped.
func (h *PlayerHandler) Handle(payload []byte) {
	r := protocol.NewReader(payload)
	op := protocol.PlayerOp(r.GetUint8())
	if r.Err() != nil {
		return
	}

	switch op {
	case protocol.PlayerItemProgress:
		pos := r.GetUint64()
		dur := r.GetUint64()
		if r.Err() == nil && h.OnItemProgress != nil {
			h.OnItemProgress(pos, dur)
		}
	case protocol.PlayerStatus:
		status := r.GetUint8()
		if r.Err() == nil && h.OnStatus != nil {
			h.OnStatus(status)
		}
	}
}

func (h *PlayerHandler) sendOp(op protocol.PlayerOp) error {
	return sendMessage(h.transport, protocol.ChannelPlayer, func(w *protocol.Writer) {
		w.PutUint8(uint8(op))
	})
}

// Open asks the server to open path without starting playback.
func (h *PlayerHandler) Open(path string) error {
	return sendMessage(h.transport, protocol.ChannelPlayer, func(w *protocol.Writer) {
		w.PutUint8(uint8(protocol.PlayerOpen))
		w.PutString(path)
	})
}

func (h *PlayerHandler) Play() error {
	return h.sendOp(protocol.PlayerPlay)
}

// PlayRange plays the open item between two positions in ms.
func (h *PlayerHandler) PlayRange(beginMs, endMs int64) error {
	return sendMessage(h.transport, protocol.ChannelPlayer, func(w *protocol.Writer) {
		w.PutUint8(uint8(protocol.PlayerPlayRange))
		w.PutInt64(beginMs)
		w.PutInt64(endMs)
	})
}

func (h *PlayerHandler) Pause() error {
	return h.sendOp(protocol.PlayerPause)
}

func (h *PlayerHandler) Resume() error {
	return h.sendOp(protocol.PlayerResume)
}

func (h *PlayerHandler) Stop() error {
	return h.sendOp(protocol.PlayerStop)
}

func (h *PlayerHandler) Seek(ms int64) error {
	return sendMessage(h.transport, protocol.ChannelPlayer, func(w *protocol.Writer) {
		w.PutUint8(uint8(protocol.PlayerSeek))
		w.PutInt64(ms)
	})
}

func (h *PlayerHandler) Next() error {
	return h.sendOp(protocol.PlayerNext)
}

func (h *PlayerHandler) Previous() error {
	return h.sendOp(protocol.PlayerPrevious)
}

// PlaylistHandler edits the server playlist and decodes its updates.
type PlaylistHandler struct {
	transport Transport

	// OnItems receives the playlist and the index of the current item
	// (-1 when none).
	OnItems func(current int, items []string)
}

// NewPlaylistHandler returns a handler sending through t.
func NewPlaylistHandler(t Transport) *PlaylistHandler {
	return &PlaylistHandler{transport: t}
}

func (h *PlaylistHandler) Handle(payload []byte) {
	r := protocol.NewReader(payload)
	op := protocol.PlaylistOp(r.GetUint8())
	if r.Err() != nil {
		return
	}

	switch op {
	case protocol.PlaylistItems:
		current := r.GetInt32()
		items := r.GetStrings()
		if r.Err() == nil && h.OnItems != nil {
			h.OnItems(int(current), items)
		}
	}
}

func (h *PlaylistHandler) Append(paths ...string) error {
	return sendMessage(h.transport, protocol.ChannelPlaylist, func(w *protocol.Writer) {
		w.PutUint8(uint8(protocol.PlaylistAppend))
		w.PutStrings(paths)
	})
}

func (h *PlaylistHandler) Clear() error {
	return sendMessage(h.transport, protocol.ChannelPlaylist, func(w *protocol.Writer) {
		w.PutUint8(uint8(protocol.PlaylistClear))
	})
}

// Select makes item index current and starts playing it.
func (h *PlaylistHandler) Select(index int) error {
	return sendMessage(h.transport, protocol.ChannelPlaylist, func(w *protocol.Writer) {
		w.PutUint8(uint8(protocol.PlaylistSelect))
		w.PutInt32(int32(index))
	})
}
