package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/d1nch8g/audiod/engine"
	"github.com/d1nch8g/audiod/metrics"
	"github.com/d1nch8g/audiod/protocol"
)

// Player is the playback engine the server drives
type Player interface {
	Open(path string) error
	Play() error
	PlayRange(msBegin, msEnd uint64) error
	Pause()
	Resume()
	Stop()
	Seek(msPos uint64) error
	Status() engine.Status
	Position() uint64
	Duration() uint64
	Suffixes() []string
	Events() <-chan engine.Event
}

// Config holds the server configuration
type Config struct {
	Addr             string
	ProgressInterval time.Duration
}

// Server accepts remote controllers and maps their requests onto a Player
// and a playlist. Status and progress are broadcast to every session.
type Server struct {
	config   Config
	logger   zerolog.Logger
	player   Player
	playlist *Playlist

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
	closing  bool

	stop     chan struct{}
	stopOnce sync.Once
}

type session struct {
	id     uuid.UUID
	conn   net.Conn
	sender *protocol.Sender
	logger zerolog.Logger
}

// NewServer creates a new server
func NewServer(config Config, player Player, logger zerolog.Logger) *Server {
	if config.ProgressInterval <= 0 {
		config.ProgressInterval = 500 * time.Millisecond
	}
	return &Server{
		config:   config,
		logger:   logger.With().Str("component", "server").Logger(),
		player:   player,
		playlist: NewPlaylist(),
		sessions: make(map[uuid.UUID]*session),
		stop:     make(chan struct{}),
	}
}

// Playlist returns the server side playlist.
func (s *Server) Playlist() *Playlist {
	return s.playlist
}

// ListenAndServe listens on the configured address and serves until ctx is
// done or a client requests StopService.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done or Stop is called.
// ln is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("server listening")

	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-s.stop:
		}
		ln.Close()
		s.closeSessions()
		return nil
	})

	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return nil
				}
				return fmt.Errorf("failed to accept: %w", err)
			}
			sess := s.addSession(conn)
			g.Go(func() error {
				s.serveSession(sess)
				return nil
			})
		}
	})

	g.Go(func() error {
		return s.pumpEvents(ctx)
	})

	g.Go(func() error {
		return s.reportProgress(ctx)
	})

	err := g.Wait()
	s.logger.Info().Msg("server stopped")
	return err
}

// Stop makes Serve return. It is safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Stopped is closed once Stop was called.
func (s *Server) Stopped() <-chan struct{} {
	return s.stop
}

func (s *Server) addSession(conn net.Conn) *session {
	sess := &session{
		id:     uuid.New(),
		conn:   conn,
		sender: protocol.NewSender(conn),
	}
	sess.logger = s.logger.With().Str("session", sess.id.String()).Logger()

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		conn.Close()
		return sess
	}
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	metrics.ActiveSessions.Inc()

	sess.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("session opened")
	return sess
}

func (s *Server) removeSession(sess *session) {
	s.mu.Lock()
	_, ok := s.sessions[sess.id]
	delete(s.sessions, sess.id)
	s.mu.Unlock()

	if ok {
		metrics.ActiveSessions.Dec()
	}
	sess.conn.Close()
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = true
	for _, sess := range s.sessions {
		sess.conn.Close()
	}
}

func (s *Server) serveSession(sess *session) {
	defer s.removeSession(sess)

	s.greet(sess)

	r := protocol.NewReceiver(sess.conn)
	for {
		ch, payload, err := r.Next()
		if err != nil {
			sess.logger.Info().Err(err).Msg("session closed")
			return
		}
		s.dispatch(sess, ch, payload)
	}
}

// greet sends the decodable suffixes, the playlist and the status.
func (s *Server) greet(sess *session) {
	suffixes := s.player.Suffixes()
	err := sess.sender.SendMessage(protocol.ChannelApp, func(w *protocol.Writer) {
		w.PutUint8(uint8(protocol.AppSuffixes))
		w.PutStrings(suffixes)
	})
	if err == nil {
		err = sess.sender.SendMessage(protocol.ChannelPlaylist, s.encodeItems())
	}
	if err == nil {
		err = sess.sender.SendMessage(protocol.ChannelPlayer, encodeStatus(s.player.Status()))
	}
	if err != nil {
		sess.logger.Warn().Err(err).Msg("failed to greet session")
	}
}

func (s *Server) dispatch(sess *session, ch protocol.Channel, payload []byte) {
	r := protocol.NewReader(payload)
	op := r.GetUint8()
	if r.Err() != nil {
		return
	}

	switch ch {
	case protocol.ChannelApp:
		s.handleApp(sess, protocol.AppOp(op))
	case protocol.ChannelPlayer:
		s.handlePlayer(sess, protocol.PlayerOp(op), r)
	case protocol.ChannelPlaylist:
		s.handlePlaylist(sess, protocol.PlaylistOp(op), r)
	}
}

func (s *Server) handleApp(sess *session, op protocol.AppOp) {
	switch op {
	case protocol.AppStopService:
		sess.logger.Info().Msg("stop requested")
		s.Stop()
	default:
		sess.logger.Debug().Uint8("op", uint8(op)).Msg("ignoring app operation")
	}
}

func (s *Server) handlePlayer(sess *session, op protocol.PlayerOp, r *protocol.Reader) {
	var err error
	switch op {
	case protocol.PlayerPlay:
		err = s.player.Play()
		if errors.Is(err, engine.ErrNotOpen) {
			if item, ok := s.playlist.Current(); ok {
				err = s.playItem(item)
			}
		}
	case protocol.PlayerPlayRange:
		begin, end := r.GetInt64(), r.GetInt64()
		if r.Err() != nil {
			return
		}
		err = s.player.PlayRange(clampMs(begin), clampMs(end))
	case protocol.PlayerPause:
		s.player.Pause()
	case protocol.PlayerResume:
		s.player.Resume()
	case protocol.PlayerStop:
		s.player.Stop()
	case protocol.PlayerSeek:
		pos := r.GetInt64()
		if r.Err() != nil {
			return
		}
		err = s.player.Seek(clampMs(pos))
	case protocol.PlayerNext:
		if item, ok := s.playlist.Next(); ok {
			err = s.playItem(item)
		}
	case protocol.PlayerPrevious:
		if item, ok := s.playlist.Previous(); ok {
			err = s.playItem(item)
		}
	case protocol.PlayerOpen:
		path := r.GetString()
		if r.Err() != nil {
			return
		}
		err = s.player.Open(path)
	default:
		sess.logger.Debug().Uint8("op", uint8(op)).Msg("ignoring player operation")
		return
	}

	if err != nil {
		sess.logger.Warn().Err(err).Uint8("op", uint8(op)).Msg("player request failed")
	}
	s.broadcast(protocol.ChannelPlayer, encodeStatus(s.player.Status()))
}

func (s *Server) handlePlaylist(sess *session, op protocol.PlaylistOp, r *protocol.Reader) {
	switch op {
	case protocol.PlaylistAppend:
		paths := r.GetStrings()
		if r.Err() != nil {
			return
		}
		s.playlist.Append(paths...)
	case protocol.PlaylistClear:
		s.player.Stop()
		s.playlist.Clear()
	case protocol.PlaylistSelect:
		index := r.GetInt32()
		if r.Err() != nil {
			return
		}
		item, ok := s.playlist.Select(int(index))
		if !ok {
			sess.logger.Warn().Int32("index", index).Msg("select out of range")
			return
		}
		if err := s.playItem(item); err != nil {
			sess.logger.Warn().Err(err).Str("item", item).Msg("failed to play selected item")
		}
	default:
		sess.logger.Debug().Uint8("op", uint8(op)).Msg("ignoring playlist operation")
		return
	}

	s.broadcast(protocol.ChannelPlaylist, s.encodeItems())
	s.broadcast(protocol.ChannelPlayer, encodeStatus(s.player.Status()))
}

func (s *Server) playItem(path string) error {
	if err := s.player.Open(path); err != nil {
		return err
	}
	return s.player.Play()
}

// pumpEvents advances the playlist when a range finishes.
func (s *Server) pumpEvents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		case ev := <-s.player.Events():
			switch ev.Kind {
			case engine.RangeFinished:
				if item, ok := s.playlist.Next(); ok {
					if err := s.playItem(item); err != nil {
						s.logger.Warn().Err(err).Str("item", item).Msg("failed to advance playlist")
					}
					s.broadcast(protocol.ChannelPlaylist, s.encodeItems())
				}
			case engine.RangeFailed:
				s.logger.Warn().Err(ev.Err).Msg("playback failed")
			}
			s.broadcast(protocol.ChannelPlayer, encodeStatus(s.player.Status()))
		}
	}
}

// reportProgress broadcasts the position while playing.
func (s *Server) reportProgress(ctx context.Context) error {
	ticker := time.NewTicker(s.config.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		case <-ticker.C:
			if s.player.Status() != engine.Playing {
				continue
			}
			pos, dur := s.player.Position(), s.player.Duration()
			s.broadcast(protocol.ChannelPlayer, func(w *protocol.Writer) {
				w.PutUint8(uint8(protocol.PlayerItemProgress))
				w.PutUint64(pos)
				w.PutUint64(dur)
			})
		}
	}
}

func (s *Server) broadcast(ch protocol.Channel, enc protocol.Encoder) {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		if err := sess.sender.SendMessage(ch, enc); err != nil {
			sess.logger.Warn().Err(err).Msg("failed to send, dropping session")
			// unblocks the session's receive loop
			sess.conn.Close()
		}
	}
}

func (s *Server) encodeItems() protocol.Encoder {
	items, current := s.playlist.Items()
	return func(w *protocol.Writer) {
		w.PutUint8(uint8(protocol.PlaylistItems))
		w.PutInt32(int32(current))
		w.PutStrings(items)
	}
}

func encodeStatus(st engine.Status) protocol.Encoder {
	return func(w *protocol.Writer) {
		w.PutUint8(uint8(protocol.PlayerStatus))
		w.PutUint8(uint8(st))
	}
}

func clampMs(ms int64) uint64 {
	if ms < 0 {
		return 0
	}
	return uint64(ms)
}
