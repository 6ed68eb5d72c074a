package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/d1nch8g/audiod/metrics"
)

const (
	// ReceiveBufferKeep caps the payload buffer a Receiver keeps between
	// messages once an unusually large message has passed.
	ReceiveBufferKeep = 1024
	// SendBufferKeep is the same cap for a Sender's outbound buffer.
	SendBufferKeep = 256
	// MaxPayloadLength bounds a single payload. A longer declared length
	// means the stream is corrupt.
	MaxPayloadLength = 16 << 20
)

// ErrPayloadTooLarge is returned by Receiver.Next for a header declaring
// more than MaxPayloadLength bytes.
var ErrPayloadTooLarge = errors.New("payload too large")

// resize returns a slice of length n, reusing buf when it is within keep
// or the new need is above keep, and reallocating otherwise so a buffer
// grown by one large message shrinks back.
func resize(buf []byte, n, keep int) []byte {
	if cap(buf) > keep && n <= keep {
		return make([]byte, n)
	}
	if cap(buf) >= n {
		return buf[:n]
	}
	return make([]byte, n)
}

// Receiver reads framed messages from a stream.
type Receiver struct {
	r       io.Reader
	header  [HeaderSize]byte
	payload []byte
}

// NewReceiver returns a Receiver reading from r.
func NewReceiver(r io.Reader) *Receiver {
	return &Receiver{r: r}
}

// Next returns the next message carrying a payload. Malformed headers and
// headers declaring no payload are skipped. The returned slice is reused
// by the following call. Any read error ends the stream.
func (r *Receiver) Next() (Channel, []byte, error) {
	var h Header
	for {
		if _, err := io.ReadFull(r.r, r.header[:]); err != nil {
			return ChannelNone, nil, err
		}
		if !h.Read(r.header[:]) {
			metrics.MalformedHeadersTotal.Inc()
			continue
		}
		if h.PayloadLength <= 0 {
			continue
		}
		if h.PayloadLength > MaxPayloadLength {
			return ChannelNone, nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, h.PayloadLength)
		}

		r.payload = resize(r.payload, int(h.PayloadLength), ReceiveBufferKeep)
		if _, err := io.ReadFull(r.r, r.payload); err != nil {
			return ChannelNone, nil, err
		}
		metrics.MessagesReceivedTotal.WithLabelValues(h.Channel.String()).Inc()
		return h.Channel, r.payload, nil
	}
}

// BufferCap reports the capacity of the retained payload buffer.
func (r *Receiver) BufferCap() int {
	return cap(r.payload)
}

// Sender owns the single outbound buffer of a connection. Between
// AcquireOutboundBuffer and Send the Sender's lock is held, so concurrent
// callers never interleave messages on the wire.
type Sender struct {
	mu  sync.Mutex
	w   io.Writer
	buf []byte
}

// NewSender returns a Sender writing to w.
func NewSender(w io.Writer) *Sender {
	return &Sender{w: w}
}

// AcquireOutboundBuffer locks the sender, writes a header for a payload of
// payloadSize bytes and returns the payload region. Every call must be
// followed by exactly one Send.
func (s *Sender) AcquireOutboundBuffer(ch Channel, payloadSize int) []byte {
	h := Header{Channel: ch, PayloadLength: int32(payloadSize)}

	s.mu.Lock()
	s.buf = resize(s.buf, h.TotalSize(), SendBufferKeep)
	h.Write(s.buf)
	return s.buf[HeaderSize:]
}

// Send writes the assembled message and releases the lock taken by
// AcquireOutboundBuffer.
func (s *Sender) Send() error {
	defer s.mu.Unlock()

	if _, err := s.w.Write(s.buf); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	metrics.MessagesSentTotal.WithLabelValues(Channel(s.buf[0]).String()).Inc()
	return nil
}

// SendMessage sizes, assembles and sends one message built by enc.
func (s *Sender) SendMessage(ch Channel, enc Encoder) error {
	size := Measure(enc)
	enc(NewWriter(s.AcquireOutboundBuffer(ch, size)))
	return s.Send()
}

// BufferCap reports the capacity of the retained outbound buffer.
func (s *Sender) BufferCap() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cap(s.buf)
}
