package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/d1nch8g/audiod/metrics"
	"github.com/d1nch8g/audiod/protocol"
)

var (
	// ErrConnectFailed is returned once every connection attempt was refused.
	ErrConnectFailed = errors.New("connect failed")
	// ErrNotConnected is returned when sending without a live connection.
	ErrNotConnected = errors.New("not connected")
	// ErrAlreadyConnected is returned by Connect while a connection is live.
	ErrAlreadyConnected = errors.New("already connected")
)

// Config holds the connection retry policy
type Config struct {
	MaxRetries    int
	RetryInterval time.Duration
}

// DefaultConfig returns the default retry policy
func DefaultConfig() Config {
	return Config{
		MaxRetries:    25,
		RetryInterval: 200 * time.Millisecond,
	}
}

// Handler decodes payloads of one channel. The first payload byte is the
// operation code.
type Handler interface {
	Handle(payload []byte)
}

// Transport is the outbound half of a connection. Every
// AcquireOutboundBuffer must be paired with exactly one Send.
type Transport interface {
	AcquireOutboundBuffer(ch protocol.Channel, payloadSize int) []byte
	Send() error
}

func sendMessage(t Transport, ch protocol.Channel, enc protocol.Encoder) error {
	size := protocol.Measure(enc)
	enc(protocol.NewWriter(t.AcquireOutboundBuffer(ch, size)))
	return t.Send()
}

// Client owns the connection to an audiod server: it connects with
// bounded retry, runs one receive goroutine dispatching by channel and
// serializes outbound messages through a single shared buffer.
//
// Hooks and handler callbacks must be set before Connect.
type Client struct {
	config Config
	logger zerolog.Logger
	dialer net.Dialer

	stopRetry atomic.Bool

	connMu sync.Mutex
	conn   net.Conn
	done   chan struct{}

	sender   *protocol.Sender
	handlers map[protocol.Channel]Handler
	player   *PlayerHandler
	playlist *PlaylistHandler

	// OnTryConnect is called before every connection attempt.
	OnTryConnect func(attempt int)
	// OnConnected is called once the connection is up.
	OnConnected func()
	// OnSuffixes receives the file suffixes the server can decode.
	OnSuffixes func(suffixes []string)
	// OnDisconnected is called when the receive loop ends.
	OnDisconnected func(err error)
}

// NewClient creates a new client
func NewClient(config Config, logger zerolog.Logger) *Client {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	c := &Client{
		config:   config,
		logger:   logger.With().Str("component", "client").Logger(),
		handlers: make(map[protocol.Channel]Handler),
	}
	c.sender = protocol.NewSender(connWriter{c})
	c.player = NewPlayerHandler(c)
	c.playlist = NewPlaylistHandler(c)
	c.handlers[protocol.ChannelPlayer] = c.player
	c.handlers[protocol.ChannelPlaylist] = c.playlist
	return c
}

// Player returns the handler for the player channel.
func (c *Client) Player() *PlayerHandler {
	return c.player
}

// Playlist returns the handler for the playlist channel.
func (c *Client) Playlist() *PlaylistHandler {
	return c.playlist
}

// Connect dials addr, retrying up to MaxRetries times RetryInterval apart,
// and starts the receive loop. It gives up early after CancelConnect or
// when ctx is done. A live connection must be shut down first; one whose
// receive loop has ended is released and replaced.
func (c *Client) Connect(ctx context.Context, addr string) error {
	if err := c.releaseDeadConn(); err != nil {
		return err
	}
	c.stopRetry.Store(false)

	var conn net.Conn
	for attempt := 0; ; attempt++ {
		if c.OnTryConnect != nil {
			c.OnTryConnect(attempt)
		}
		metrics.ConnectAttemptsTotal.Inc()

		var err error
		conn, err = c.dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			break
		}

		if attempt >= c.config.MaxRetries || c.stopRetry.Load() {
			return fmt.Errorf("%w: %s after %d attempts: %v", ErrConnectFailed, addr, attempt+1, err)
		}
		c.logger.Debug().Err(err).Int("attempt", attempt).Msg("connect attempt failed, retrying")

		select {
		case <-time.After(c.config.RetryInterval):
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", ErrConnectFailed, addr, ctx.Err())
		}
		if c.stopRetry.Load() {
			return fmt.Errorf("%w: %s: retry cancelled", ErrConnectFailed, addr)
		}
	}

	done := make(chan struct{})
	c.connMu.Lock()
	if c.conn != nil {
		c.connMu.Unlock()
		conn.Close()
		return ErrAlreadyConnected
	}
	c.conn = conn
	c.done = done
	c.connMu.Unlock()

	c.logger.Info().Str("addr", addr).Msg("connected")
	if c.OnConnected != nil {
		c.OnConnected()
	}

	go c.recvLoop(conn, done)
	return nil
}

func (c *Client) releaseDeadConn() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return nil
	}
	select {
	case <-c.done:
	default:
		return ErrAlreadyConnected
	}
	if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.logger.Warn().Err(err).Msg("failed to close dead connection")
	}
	c.conn = nil
	return nil
}

// CancelConnect makes a running Connect give up after its current attempt.
func (c *Client) CancelConnect() {
	c.stopRetry.Store(true)
}

// Shutdown closes the connection and waits for the receive loop to exit.
func (c *Client) Shutdown() error {
	c.CancelConnect()

	c.connMu.Lock()
	conn, done := c.conn, c.done
	c.connMu.Unlock()
	if conn == nil {
		return nil
	}

	err := conn.Close()
	<-done

	c.connMu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.connMu.Unlock()

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}

// Done is closed when the receive loop of the current connection exits.
// It returns nil before the first successful Connect.
func (c *Client) Done() <-chan struct{} {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.done
}

// AcquireOutboundBuffer locks the outbound buffer and returns the payload
// region of a message for ch.
func (c *Client) AcquireOutboundBuffer(ch protocol.Channel, payloadSize int) []byte {
	return c.sender.AcquireOutboundBuffer(ch, payloadSize)
}

// Send flushes the message started by AcquireOutboundBuffer.
func (c *Client) Send() error {
	return c.sender.Send()
}

// StopService asks the server to shut down.
func (c *Client) StopService() error {
	return sendMessage(c, protocol.ChannelApp, func(w *protocol.Writer) {
		w.PutUint8(uint8(protocol.AppStopService))
	})
}

func (c *Client) recvLoop(conn net.Conn, done chan struct{}) {
	defer close(done)

	r := protocol.NewReceiver(conn)
	for {
		ch, payload, err := r.Next()
		if err != nil {
			c.logger.Info().Err(err).Msg("receive loop stopped")
			if c.OnDisconnected != nil {
				c.OnDisconnected(err)
			}
			return
		}
		c.dispatch(ch, payload)
	}
}

func (c *Client) dispatch(ch protocol.Channel, payload []byte) {
	if ch == protocol.ChannelApp {
		c.handleApp(payload)
		return
	}
	if h, ok := c.handlers[ch]; ok {
		h.Handle(payload)
	}
}

func (c *Client) handleApp(payload []byte) {
	r := protocol.NewReader(payload)
	op := protocol.AppOp(r.GetUint8())
	if r.Err() != nil {
		return
	}

	switch op {
	case protocol.AppSuffixes:
		list := r.GetStrings()
		if r.Err() != nil {
			c.logger.Warn().Err(r.Err()).Msg("dropping malformed suffixes message")
			return
		}
		if c.OnSuffixes != nil {
			c.OnSuffixes(list)
		}
	default:
		c.logger.Debug().Uint8("op", uint8(op)).Msg("ignoring unknown app operation")
	}
}

// connWriter writes to whatever connection the client currently holds.
type connWriter struct {
	c *Client
}

func (w connWriter) Write(p []byte) (int, error) {
	w.c.connMu.Lock()
	conn := w.c.conn
	w.c.connMu.Unlock()
	if conn == nil {
		return 0, ErrNotConnected
	}
	return conn.Write(p)
}
