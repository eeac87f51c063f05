package encodesink

import (
	"testing"

	"github.com/climp-audio/groove/internal/audiofmt"
	"github.com/climp-audio/groove/internal/refbuffer"
	"github.com/climp-audio/groove/internal/sinkcore"
)

func testFormat() audiofmt.Format {
	return audiofmt.Format{SampleRate: 44100, ChannelLayout: audiofmt.ChannelLayoutStereo, SampleFormat: audiofmt.SampleFormatS16}
}

// newTestSink returns a Sink with only its output queue wired up, bypassing
// Attach's playlist plumbing so the encoding state machine can be driven
// directly with hand-built buffers.
func newTestSink(t *testing.T) *Sink {
	t.Helper()
	s := New()
	s.output.DisableResample = true
	s.output.BufferSize = 1 << 20
	if err := s.output.Attach(s); err != nil {
		t.Fatalf("output.Attach() = %v", err)
	}
	return s
}

func pcmBuffer(format audiofmt.Format, frames int, item any, pos float64) *refbuffer.Buffer {
	data := make([]byte, frames*format.BytesPerFrame())
	for i := range data {
		data[i] = byte(i + 1)
	}
	buf := refbuffer.New([][]byte{data}, format, frames, nil)
	buf.Item = item
	buf.Pos = pos
	return buf
}

// drainAll pops every currently-available buffer off a sink's output
// queue, stopping at the first empty result or at the sentinel (without
// popping it, so callers can assert on it separately).
func drainAll(s *Sink) []*refbuffer.Buffer {
	var out []*refbuffer.Buffer
	for !s.output.ContainsEndOfPlaylist() {
		buf, res := s.BufferGet(false)
		if res != sinkcore.Yes {
			return out
		}
		out = append(out, buf)
	}
	return out
}

func TestEncodeBufferEmitsHeaderBufferWithNilItemBeforeBody(t *testing.T) {
	s := newTestSink(t)
	format := testFormat()

	buf := pcmBuffer(format, 64, "item-1", 1.5)
	s.encodeBuffer(buf)

	out := drainAll(s)
	if len(out) == 0 {
		t.Fatal("encodeBuffer produced no encoded buffers")
	}
	if out[0].Item != nil {
		t.Fatalf("first encoded buffer Item = %v, want nil (format header)", out[0].Item)
	}

	sawRealItem := false
	for _, b := range out {
		if b.Item == "item-1" {
			sawRealItem = true
		}
	}
	if !sawRealItem {
		t.Fatal("no encoded buffer carried the chunk's originating item")
	}
}

func TestFinishSessionEmitsTrailerCarryingLastItem(t *testing.T) {
	s := newTestSink(t)
	format := testFormat()

	s.encodeBuffer(pcmBuffer(format, 64, "item-1", 0))
	drainAll(s) // discard header+body from the first chunk

	s.finishSession()
	trailer := drainAll(s)
	if len(trailer) == 0 {
		t.Fatal("finishSession produced no trailer buffers")
	}
	for _, b := range trailer {
		if b.Item != "item-1" {
			t.Fatalf("trailer buffer Item = %v, want %q (the last chunk's item)", b.Item, "item-1")
		}
	}

	s.mu.Lock()
	enc := s.enc
	s.mu.Unlock()
	if enc != nil {
		t.Fatal("finishSession should clear the active encoder")
	}
}

func TestEndOfPlaylistSequenceEnqueuesSentinelAfterTrailer(t *testing.T) {
	s := newTestSink(t)
	format := testFormat()

	s.encodeBuffer(pcmBuffer(format, 64, "item-1", 0))
	drainAll(s)

	s.finishSession()
	drainAll(s)
	s.output.EnqueueSentinel()

	_, res := s.BufferGet(false)
	if res != sinkcore.End {
		t.Fatalf("BufferGet() result = %v, want End", res)
	}
}

func TestHandleSeekFlushDropsSessionAndEnqueuesSentinel(t *testing.T) {
	s := newTestSink(t)
	format := testFormat()

	s.encodeBuffer(pcmBuffer(format, 64, "item-1", 0))

	s.handleSeekFlush()

	s.mu.Lock()
	enc := s.enc
	s.mu.Unlock()
	if enc != nil {
		t.Fatal("handleSeekFlush should drop the in-flight encoder")
	}

	_, res := s.BufferGet(false)
	if res != sinkcore.End {
		t.Fatalf("BufferGet() result after seek flush = %v, want End", res)
	}
}

func TestSecondSessionAfterEndOfPlaylistStartsWithFreshHeader(t *testing.T) {
	s := newTestSink(t)
	format := testFormat()

	s.encodeBuffer(pcmBuffer(format, 64, "item-1", 0))
	s.finishSession()
	drainAll(s) // header+body+trailer, sentinel not yet enqueued
	s.output.EnqueueSentinel()

	// Pop the sentinel itself before starting a new session.
	if _, res := s.BufferGet(false); res != sinkcore.End {
		t.Fatal("expected sentinel before second session")
	}

	s.encodeBuffer(pcmBuffer(format, 64, "item-2", 0))
	out := drainAll(s)
	if len(out) == 0 {
		t.Fatal("second session produced no encoded buffers")
	}
	if out[0].Item != nil {
		t.Fatalf("second session's first buffer Item = %v, want nil (fresh header)", out[0].Item)
	}
}
