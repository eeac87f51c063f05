package playback

import "github.com/climp-audio/groove/internal/decodeengine"

// EventKind enumerates the events a playback sink emits on its events
// queue (spec.md §4.6).
type EventKind int

const (
	NowPlaying EventKind = iota
	BufferUnderrun
	DeviceOpened
	DeviceClosed
	DeviceReopened
	DeviceOpenError
	EndOfPlaylist
)

func (k EventKind) String() string {
	switch k {
	case NowPlaying:
		return "NOWPLAYING"
	case BufferUnderrun:
		return "BUFFERUNDERRUN"
	case DeviceOpened:
		return "DEVICE_OPENED"
	case DeviceClosed:
		return "DEVICE_CLOSED"
	case DeviceReopened:
		return "DEVICE_REOPENED"
	case DeviceOpenError:
		return "DEVICE_OPEN_ERROR"
	case EndOfPlaylist:
		return "END_OF_PLAYLIST"
	default:
		return "UNKNOWN"
	}
}

// Event is one entry on a playback sink's events queue.
type Event struct {
	Kind EventKind
	Item *decodeengine.Item
	Err  error
}
