// Package protocol implements the framing used between audiod and its
// remote controllers: a fixed five byte header followed by a payload whose
// first byte is an operation code scoped to the header's channel.
//
// All integers are little-endian. Strings carry a uint32 byte length,
// string lists a uint32 element count.
package protocol

import "fmt"

// Channel is the logical message category carried in a header.
type Channel uint8

const (
	ChannelNone Channel = iota
	ChannelApp
	ChannelPlayer
	ChannelPlaylist
)

func (c Channel) String() string {
	switch c {
	case ChannelNone:
		return "none"
	case ChannelApp:
		return "app"
	case ChannelPlayer:
		return "player"
	case ChannelPlaylist:
		return "playlist"
	default:
		return fmt.Sprintf("channel(%d)", uint8(c))
	}
}

// Valid reports whether c is a channel a peer may put on the wire.
func (c Channel) Valid() bool {
	return c >= ChannelApp && c <= ChannelPlaylist
}

// AppOp is an operation on the app channel.
type AppOp uint8

const (
	AppNone AppOp = iota
	AppStopService
	AppSuffixes
)

// PlayerOp is an operation on the player channel.
type PlayerOp uint8

const (
	PlayerNone PlayerOp = iota
	PlayerPlay
	PlayerPlayRange
	PlayerPause
	PlayerResume
	PlayerStop
	PlayerSeek
	PlayerNext
	PlayerPrevious
	PlayerItemProgress
	PlayerStatus
	PlayerOpen
)

// PlaylistOp is an operation on the playlist channel.
type PlaylistOp uint8

const (
	PlaylistNone PlaylistOp = iota
	PlaylistAppend
	PlaylistClear
	PlaylistSelect
	PlaylistItems
)
