package protocol

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderReadWrite(t *testing.T) {
	tests := []struct {
		name   string
		header Header
	}{
		{"app stop", Header{ChannelApp, 1}},
		{"player", Header{ChannelPlayer, 17}},
		{"playlist large", Header{ChannelPlaylist, math.MaxInt32}},
		{"no payload", Header{ChannelPlayer, 0}},
		{"negative", Header{ChannelApp, -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, HeaderSize)
			tt.header.Write(buf)

			var got Header
			require.True(t, got.Read(buf))
			assert.Equal(t, tt.header, got)
		})
	}
}

func TestHeaderReadRejectsMalformed(t *testing.T) {
	var h Header
	assert.False(t, h.Read([]byte{byte(ChannelApp), 0, 0}), "short buffer")
	assert.False(t, h.Read([]byte{0, 1, 0, 0, 0}), "channel none")
	assert.False(t, h.Read([]byte{0xff, 1, 0, 0, 0}), "unknown channel")
}

func TestHeaderTotalSize(t *testing.T) {
	assert.Equal(t, HeaderSize, Header{ChannelApp, -5}.TotalSize())
	assert.Equal(t, HeaderSize, Header{ChannelApp, 0}.TotalSize())
	assert.Equal(t, HeaderSize+9, Header{ChannelApp, 9}.TotalSize())
}

func TestCodecRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		u8   uint8
		b    bool
		i32  int32
		u32  uint32
		i64  int64
		u64  uint64
		str  string
		strs []string
	}{
		{"zero values", 0, false, 0, 0, 0, 0, "", nil},
		{"extremes", math.MaxUint8, true, math.MinInt32, math.MaxUint32, math.MinInt64, math.MaxUint64, "x", []string{""}},
		{"text", 42, true, -7, 7, -1 << 40, 1 << 50, "héllo wörld", []string{"a.mp3", "", "b.wav"}},
		{"empty list", 1, false, 1, 1, 1, 1, "only", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := func(w *Writer) {
				w.PutUint8(tt.u8)
				w.PutBool(tt.b)
				w.PutInt32(tt.i32)
				w.PutUint32(tt.u32)
				w.PutInt64(tt.i64)
				w.PutUint64(tt.u64)
				w.PutString(tt.str)
				w.PutStrings(tt.strs)
			}

			size := Measure(enc)
			buf := make([]byte, size)
			w := NewWriter(buf)
			enc(w)
			assert.Equal(t, size, w.Offset())

			r := NewReader(buf)
			assert.Equal(t, tt.u8, r.GetUint8())
			assert.Equal(t, tt.b, r.GetBool())
			assert.Equal(t, tt.i32, r.GetInt32())
			assert.Equal(t, tt.u32, r.GetUint32())
			assert.Equal(t, tt.i64, r.GetInt64())
			assert.Equal(t, tt.u64, r.GetUint64())
			assert.Equal(t, tt.str, r.GetString())

			strs := r.GetStrings()
			require.NoError(t, r.Err())
			require.Len(t, strs, len(tt.strs))
			for i := range tt.strs {
				assert.Equal(t, tt.strs[i], strs[i])
			}
			assert.Equal(t, 0, r.Remaining())
		})
	}
}

func TestMeasureMatchesLayout(t *testing.T) {
	size := Measure(func(w *Writer) {
		w.PutUint8(1)
		w.PutString("abc")
		w.PutStrings([]string{"de", ""})
	})
	// 1 + (4+3) + 4 + (4+2) + (4+0)
	assert.Equal(t, 22, size)
}

func TestWriterOverflowPanics(t *testing.T) {
	w := NewWriter(make([]byte, 3))
	assert.Panics(t, func() { w.PutUint32(1) })
}

func TestReaderShortPayload(t *testing.T) {
	t.Run("integer", func(t *testing.T) {
		r := NewReader([]byte{1, 2})
		assert.Equal(t, uint32(0), r.GetUint32())
		assert.ErrorIs(t, r.Err(), ErrShortPayload)
		// sticky
		assert.Equal(t, uint8(0), r.GetUint8())
		assert.ErrorIs(t, r.Err(), ErrShortPayload)
	})

	t.Run("string length beyond payload", func(t *testing.T) {
		buf := make([]byte, 6)
		NewWriter(buf).PutUint32(100)
		r := NewReader(buf)
		assert.Equal(t, "", r.GetString())
		assert.ErrorIs(t, r.Err(), ErrShortPayload)
	})

	t.Run("list count beyond payload", func(t *testing.T) {
		buf := make([]byte, 8)
		NewWriter(buf).PutUint32(math.MaxUint32)
		r := NewReader(buf)
		assert.Nil(t, r.GetStrings())
		assert.ErrorIs(t, r.Err(), ErrShortPayload)
	})

	t.Run("empty payload", func(t *testing.T) {
		r := NewReader(nil)
		r.GetUint8()
		assert.ErrorIs(t, r.Err(), ErrShortPayload)
	})
}

func TestChannelString(t *testing.T) {
	assert.Equal(t, "app", ChannelApp.String())
	assert.Equal(t, "player", ChannelPlayer.String())
	assert.Equal(t, "playlist", ChannelPlaylist.String())
	assert.Equal(t, "channel(9)", Channel(9).String())
	assert.False(t, ChannelNone.Valid())
	assert.True(t, ChannelPlaylist.Valid())
}
