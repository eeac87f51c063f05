package groove

import "github.com/climp-audio/groove/internal/playback"

// Event and EventKind are a playback sink's event-queue vocabulary
// (spec.md §4.6): NOWPLAYING, BUFFERUNDERRUN, DEVICE_OPENED,
// DEVICE_CLOSED, DEVICE_REOPENED, DEVICE_OPEN_ERROR, END_OF_PLAYLIST.
type (
	Event     = playback.Event
	EventKind = playback.EventKind
)

const (
	NowPlaying      = playback.NowPlaying
	BufferUnderrun  = playback.BufferUnderrun
	DeviceOpened    = playback.DeviceOpened
	DeviceClosed    = playback.DeviceClosed
	DeviceReopened  = playback.DeviceReopened
	DeviceOpenError = playback.DeviceOpenError
	EndOfPlaylist   = playback.EndOfPlaylist
)

// PlaybackSink drives a real-time audio device from a Playlist: a helper
// goroutine fills a ring buffer from decoded audio, the device's
// real-time callback drains it, and events (now-playing, underrun,
// device open/close/reopen, end-of-playlist) surface on EventGet/EventPeek
// (spec.md §4.6).
type PlaybackSink struct {
	inner *playback.Sink
}

// NewPlaybackSink returns a playback sink in the free (unattached) state.
func NewPlaybackSink() *PlaybackSink { return &PlaybackSink{inner: playback.New()} }

// Attach attaches the sink to pl, opens the real-time device at format,
// and starts playback.
func (s *PlaybackSink) Attach(pl *Playlist, format Format, bufferSampleCount int) error {
	if err := s.inner.Attach(pl.inner, format, bufferSampleCount); err != nil {
		return &Error{Kind: OpeningDevice, Op: "PlaybackSink.Attach", Err: err}
	}
	return nil
}

// Detach stops playback, closes the device, and detaches the sink.
func (s *PlaybackSink) Detach() { s.inner.Detach() }

// Position reports the current play position: the item audible right now
// and how many seconds into it the play head sits.
func (s *PlaybackSink) Position() (*Item, float64) {
	item, seconds := s.inner.Position()
	return wrapItem(item), seconds
}

// EventGet pops the next event off the sink's event queue, blocking if
// block is true and the queue is currently empty.
func (s *PlaybackSink) EventGet(block bool) (Event, bool) {
	return s.inner.Events().Get(block)
}

// EventPeek reports whether an event is available, without popping it.
func (s *PlaybackSink) EventPeek(block bool) bool {
	available, ok := s.inner.Events().Peek(block)
	return ok && available
}

// SetGain sets the playback sink's linear gain.
func (s *PlaybackSink) SetGain(gain float64) { s.inner.SetGain(gain) }

// DeviceAudioFormat reports the format the real-time device is currently
// open at.
func (s *PlaybackSink) DeviceAudioFormat() Format { return s.inner.DeviceAudioFormat() }
