package groove

import "github.com/climp-audio/groove/internal/sinkcore"

// Result is buffer_get/buffer_peek's return discipline (spec.md §6).
type Result = sinkcore.Result

const (
	BufferNo  = sinkcore.No
	BufferYes = sinkcore.Yes
	BufferEnd = sinkcore.End
)

// Sink is a generic output endpoint attached to a Playlist: playback,
// encoding, or any caller-defined consumer (fingerprinting, loudness
// measurement) that only needs a bounded queue of decoded buffers in a
// requested format (spec.md §1 "each consumes the same sink interface as
// playback").
type Sink struct {
	inner *sinkcore.Sink
	pl    *Playlist
}

// NewSink returns a Sink in the free (unattached) state. Set Format,
// DisableResample, BufferSampleCount, BufferSize, and Gain before Attach.
func NewSink() *Sink { return &Sink{inner: sinkcore.New()} }

// SetFormat sets the PCM format this sink wants to receive. Ignored when
// DisableResample is set.
func (s *Sink) SetFormat(format Format) { s.inner.Format = format }

// SetDisableResample, when true, makes this sink's tap emit whatever
// format the volume/compander stage produces, skipping the final resample
// stage.
func (s *Sink) SetDisableResample(disable bool) { s.inner.DisableResample = disable }

// SetBufferSampleCount requests a fixed output frame size from the filter
// graph tap; 0 lets the graph choose.
func (s *Sink) SetBufferSampleCount(count int) { s.inner.BufferSampleCount = count }

// SetBufferSize sets this sink's queue capacity in sample frames.
func (s *Sink) SetBufferSize(frames int) { s.inner.BufferSize = frames }

// Attach attaches the sink to pl.
func (s *Sink) Attach(pl *Playlist) error {
	if err := pl.inner.AttachSink(s.inner); err != nil {
		return &Error{Kind: SinkNotFound, Op: "Sink.Attach", Err: err}
	}
	s.pl = pl
	return nil
}

// Detach detaches the sink from the playlist it is attached to.
func (s *Sink) Detach() {
	if s.pl == nil {
		return
	}
	s.pl.inner.DetachSink(s.inner)
	s.pl = nil
}

// BufferGet pops the head of the sink's queue, blocking if block is true
// and the queue is currently empty.
func (s *Sink) BufferGet(block bool) (*Buffer, Result) {
	buf, res := s.inner.BufferGet(block)
	return newBuffer(buf), res
}

// BufferPeek reports whether a buffer or the end-of-playlist sentinel is
// available, without popping it.
func (s *Sink) BufferPeek(block bool) Result { return s.inner.BufferPeek(block) }

// SetGain sets the sink's linear per-sink gain.
func (s *Sink) SetGain(gain float64) {
	if s.pl != nil {
		s.pl.inner.SetSinkGain(s.inner, gain)
		return
	}
	s.inner.Gain = gain
}

// FillLevel returns the sink's current byte-count fill level.
func (s *Sink) FillLevel() int { return s.inner.FillLevel() }

// ContainsEndOfPlaylist reports whether the end-of-playlist sentinel is
// currently enqueued.
func (s *Sink) ContainsEndOfPlaylist() bool { return s.inner.ContainsEndOfPlaylist() }
