// Package sinkcore implements C4: the per-sink configuration, bounded
// buffer queue, and sink-map grouping that spec.md §4.4 and the "Sink map"
// data model describe. A Sink is the attachment point every consumer
// (playback, encoding, fingerprinting, loudness) shares; internal/playback
// and internal/encodesink build on top of a Sink rather than reimplementing
// its queue or grouping logic.
package sinkcore

import (
	"sync/atomic"

	"github.com/climp-audio/groove/internal/audiofmt"
	"github.com/climp-audio/groove/internal/queue"
	"github.com/climp-audio/groove/internal/refbuffer"
)

// Result is the return discipline of buffer_get/buffer_peek (spec.md §6).
type Result int

const (
	// No means the queue was empty (non-blocking) or the sink was aborted
	// while waiting.
	No Result = iota
	// Yes means a buffer was returned.
	Yes
	// End means the end-of-playlist sentinel was observed.
	End
)

// entry is what actually flows through a Sink's queue: either a buffer or
// the (non-refcounted) end-of-playlist sentinel.
type entry struct {
	buf      *refbuffer.Buffer
	sentinel bool
}

// Sink is a single output endpoint's configuration, state, and bounded
// queue.
type Sink struct {
	// Format is the audio format this sink wants to receive. Ignored by
	// the filter graph when DisableResample is set.
	Format audiofmt.Format
	// DisableResample, when true, makes this sink's tap emit whatever
	// format the volume/compander stage produces, skipping aformat.
	DisableResample bool
	// BufferSampleCount requests a fixed output frame size from the
	// filter graph tap; 0 lets the graph choose (spec.md §4.3's per-tap
	// pull policy).
	BufferSampleCount int
	// BufferSize is this sink's queue capacity in sample frames, used to
	// compute the minimum-full byte threshold at attach.
	BufferSize int
	// Gain is this sink's linear per-sink gain.
	Gain float64

	// Flush, Purge, Pause, and Play are the sink's lifecycle callbacks
	// (spec.md §4.4 / Design Notes "Function-pointer callbacks").
	Flush func()
	Purge func(item any)
	Pause func()
	Play  func()

	// DrainNotify, if set, runs after every BufferGet that removes an
	// entry, so the owning playlist can wake its sink-drain condition
	// (spec.md §5's sink_drain_cond).
	DrainNotify func()

	q              *queue.Queue[entry]
	fillBytes      atomic.Int64
	threshold      int
	attached       bool
	sentinelQueued bool
	playlist       any // identity of the owning playlist; nil when detached
}

// New returns a Sink in the free (unattached) state.
func New() *Sink {
	return &Sink{q: queue.New[entry]()}
}

// Attach validates the sink's configuration, computes its minimum-full
// threshold, and marks it attached to playlist. playlist is an opaque
// identity value (typically a *decodeengine.Playlist) used only to detect
// "already attached to a different playlist" misuse; Sink does not call
// back into it.
func (s *Sink) Attach(playlist any) error {
	if s.attached {
		return errAlreadyAttached
	}
	if s.Format.SampleRate <= 0 && !s.DisableResample {
		return errInvalidFormat
	}

	bytesPerFrame := s.Format.BytesPerFrame()
	if bytesPerFrame <= 0 {
		bytesPerFrame = 1
	}
	s.threshold = s.BufferSize * bytesPerFrame
	s.fillBytes.Store(0)
	s.attached = true
	s.playlist = playlist
	s.q.Reset()

	s.q.OnPut = func(e entry) {
		if !e.sentinel {
			s.fillBytes.Add(int64(e.buf.Size))
		}
	}
	s.q.OnGet = func(e entry) {
		if !e.sentinel {
			s.fillBytes.Add(-int64(e.buf.Size))
		}
		if s.DrainNotify != nil {
			s.DrainNotify()
		}
	}
	s.q.Cleanup = func(e entry) {
		if !e.sentinel {
			s.fillBytes.Add(-int64(e.buf.Size))
		}
		e.buf.Unref()
	}
	return nil
}

// Detach aborts and flushes the sink's queue, clears its playlist
// back-pointer, and returns it to the free state. Detach is idempotent:
// calling it again after it has already succeeded is a no-op.
func (s *Sink) Detach() {
	if !s.attached {
		return
	}
	s.q.Abort()
	s.q.Flush()
	s.fillBytes.Store(0)
	s.sentinelQueued = false
	s.attached = false
	s.playlist = nil
	if s.Flush != nil {
		s.Flush()
	}
}

// Attached reports whether the sink is currently attached to a playlist.
func (s *Sink) Attached() bool { return s.attached }

// Enqueue appends a decoded or encoded buffer to the sink's queue, taking
// ownership of the caller's reference (the caller should not Unref buf
// itself after a successful Enqueue).
func (s *Sink) Enqueue(buf *refbuffer.Buffer) {
	s.q.Put(entry{buf: buf})
}

// EnqueueSentinel places the end-of-playlist sentinel into the sink's
// queue.
func (s *Sink) EnqueueSentinel() {
	s.sentinelQueued = true
	s.q.Put(entry{sentinel: true})
}

// BufferGet pops the head of the queue per spec.md §4.4's buffer_get.
func (s *Sink) BufferGet(block bool) (*refbuffer.Buffer, Result) {
	e, ok := s.q.Get(block)
	if !ok {
		return nil, No
	}
	if e.sentinel {
		s.sentinelQueued = false
		return nil, End
	}
	return e.buf, Yes
}

// BufferPeek reports whether a buffer or sentinel is available, without
// popping it.
func (s *Sink) BufferPeek(block bool) Result {
	available, ok := s.q.Peek(block)
	if !ok || !available {
		return No
	}
	if e, ok := s.q.Head(); ok && e.sentinel {
		return End
	}
	return Yes
}

// PurgeItem removes every enqueued buffer whose Item equals item (by
// identity) and invokes the sink's Purge callback, per spec.md §4.5's
// remove protocol.
func (s *Sink) PurgeItem(item any) {
	s.q.Purge(func(e entry) bool {
		return !e.sentinel && e.buf.Item == item
	})
	if s.Purge != nil {
		s.Purge(item)
	}
}

// FillLevel returns the sink's current byte-count fill level.
func (s *Sink) FillLevel() int { return int(s.fillBytes.Load()) }

// Threshold returns the minimum-full byte threshold computed at Attach.
func (s *Sink) Threshold() int { return s.threshold }

// Full reports whether the sink's fill level has reached its threshold.
func (s *Sink) Full() bool { return s.fillBytes.Load() >= int64(s.threshold) }

// ContainsEndOfPlaylist reports whether the sentinel is currently enqueued.
func (s *Sink) ContainsEndOfPlaylist() bool {
	return s.sentinelQueued
}

var errAlreadyAttached = sinkError{"sink already attached"}
var errInvalidFormat = sinkError{"invalid sink audio format"}

type sinkError struct{ msg string }

func (e sinkError) Error() string { return e.msg }
