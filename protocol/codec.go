package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortPayload is returned by a Reader that ran past the end of its payload.
var ErrShortPayload = errors.New("short payload")

// Encoder writes one message payload. It is run twice per message: once
// against a measuring Writer to size the buffer, then against the real one.
type Encoder func(w *Writer)

// Writer serializes fields into a flat byte slice at a running offset.
// A measuring Writer only advances the offset.
type Writer struct {
	buf     []byte
	off     int
	measure bool
}

// NewWriter returns a Writer filling buf from offset zero.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf}
}

// Measure returns the number of bytes enc writes.
func Measure(enc Encoder) int {
	w := &Writer{measure: true}
	enc(w)
	return w.off
}

// Offset returns the number of bytes written so far.
func (w *Writer) Offset() int {
	return w.off
}

func (w *Writer) next(n int) []byte {
	if w.measure {
		w.off += n
		return nil
	}
	if w.off+n > len(w.buf) {
		panic(fmt.Sprintf("protocol: write of %d bytes at offset %d overflows %d byte buffer", n, w.off, len(w.buf)))
	}
	b := w.buf[w.off : w.off+n]
	w.off += n
	return b
}

func (w *Writer) PutUint8(v uint8) {
	if b := w.next(1); b != nil {
		b[0] = v
	}
}

func (w *Writer) PutBool(v bool) {
	if v {
		w.PutUint8(1)
	} else {
		w.PutUint8(0)
	}
}

func (w *Writer) PutUint32(v uint32) {
	if b := w.next(4); b != nil {
		binary.LittleEndian.PutUint32(b, v)
	}
}

func (w *Writer) PutInt32(v int32) {
	w.PutUint32(uint32(v))
}

func (w *Writer) PutUint64(v uint64) {
	if b := w.next(8); b != nil {
		binary.LittleEndian.PutUint64(b, v)
	}
}

func (w *Writer) PutInt64(v int64) {
	w.PutUint64(uint64(v))
}

// PutString writes a uint32 length followed by the bytes of s.
func (w *Writer) PutString(s string) {
	w.PutUint32(uint32(len(s)))
	if b := w.next(len(s)); b != nil {
		copy(b, s)
	}
}

// PutStrings writes a uint32 count followed by each string.
func (w *Writer) PutStrings(list []string) {
	w.PutUint32(uint32(len(list)))
	for _, s := range list {
		w.PutString(s)
	}
}

// Reader deserializes fields from a payload. The first read past the end
// sets a sticky error; every later read returns a zero value.
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader returns a Reader over buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Err returns ErrShortPayload once any read ran past the payload.
func (r *Reader) Err() error {
	return r.err
}

// Offset returns the number of bytes consumed.
func (r *Reader) Offset() int {
	return r.off
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

func (r *Reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > r.Remaining() {
		r.err = ErrShortPayload
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) GetUint8() uint8 {
	if b := r.next(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *Reader) GetBool() bool {
	return r.GetUint8() != 0
}

func (r *Reader) GetUint32() uint32 {
	if b := r.next(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *Reader) GetInt32() int32 {
	return int32(r.GetUint32())
}

func (r *Reader) GetUint64() uint64 {
	if b := r.next(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *Reader) GetInt64() int64 {
	return int64(r.GetUint64())
}

func (r *Reader) GetString() string {
	n := r.GetUint32()
	if uint64(n) > uint64(r.Remaining()) {
		r.err = ErrShortPayload
		return ""
	}
	if b := r.next(int(n)); b != nil {
		return string(b)
	}
	return ""
}

func (r *Reader) GetStrings() []string {
	n := r.GetUint32()
	if r.err != nil {
		return nil
	}
	// each element needs at least its length prefix
	if uint64(n)*4 > uint64(r.Remaining()) {
		r.err = ErrShortPayload
		return nil
	}
	list := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s := r.GetString()
		if r.err != nil {
			return nil
		}
		list = append(list, s)
	}
	return list
}
