package protocol

import "encoding/binary"

// HeaderSize is the encoded size of a Header.
const HeaderSize = 5

// Header precedes every payload on the wire.
type Header struct {
	Channel       Channel
	PayloadLength int32
}

// TotalSize is the size of the header plus its payload.
func (h Header) TotalSize() int {
	if h.PayloadLength <= 0 {
		return HeaderSize
	}
	return HeaderSize + int(h.PayloadLength)
}

// Write encodes h into the first HeaderSize bytes of buf.
func (h Header) Write(buf []byte) {
	_ = buf[HeaderSize-1]
	buf[0] = byte(h.Channel)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(h.PayloadLength))
}

// Read decodes buf into h. It returns false when buf is short or names an
// unknown channel.
func (h *Header) Read(buf []byte) bool {
	if len(buf) < HeaderSize {
		return false
	}
	ch := Channel(buf[0])
	if !ch.Valid() {
		return false
	}
	h.Channel = ch
	h.PayloadLength = int32(binary.LittleEndian.Uint32(buf[1:5]))
	return true
}
