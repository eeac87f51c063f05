package groove

import "github.com/climp-audio/groove/internal/encodesink"

// EncodeSink republishes decoded audio as an encoded WAV container stream
// (spec.md §4.7 "Encoded-buffer path"): attach it to a Playlist like any
// Sink, then drain encoded buffers with BufferGet. A format-header buffer
// (nil Item) opens each session, body buffers carry the originating
// item/pos, and trailer buffers close it out once the playlist ends. A
// seek drops the in-flight session without a trailer and queues an
// end-of-playlist sentinel.
type EncodeSink struct {
	inner *encodesink.Sink
}

// NewEncodeSink returns an encode sink in the free (unattached) state.
func NewEncodeSink() *EncodeSink { return &EncodeSink{inner: encodesink.New()} }

// Attach attaches the sink to pl, requesting sampleRate/channels as the
// PCM format fed to the encoder. outputBufferBytes sizes the client-facing
// encoded-buffer queue's minimum-full threshold.
func (s *EncodeSink) Attach(pl *Playlist, sampleRate int, channels ChannelLayout, bufferSampleCount, outputBufferBytes int) error {
	if err := s.inner.Attach(pl.inner, sampleRate, channels, bufferSampleCount, outputBufferBytes); err != nil {
		return &Error{Kind: Encoding, Op: "EncodeSink.Attach", Err: err}
	}
	return nil
}

// Detach drops any in-flight encoding session and detaches the sink; no
// trailer buffer reaches the client.
func (s *EncodeSink) Detach() { s.inner.Detach() }

// BufferGet pops the head of the encoded-buffer queue, blocking if block
// is true and the queue is currently empty.
func (s *EncodeSink) BufferGet(block bool) (*Buffer, Result) {
	buf, res := s.inner.BufferGet(block)
	return newBuffer(buf), res
}

// BufferPeek reports whether an encoded buffer or the end-of-playlist
// sentinel is available, without popping it.
func (s *EncodeSink) BufferPeek(block bool) Result { return s.inner.BufferPeek(block) }

// FillLevel returns the encoded-buffer queue's current byte-count fill
// level.
func (s *EncodeSink) FillLevel() int { return s.inner.FillLevel() }

// Full reports whether the encoded-buffer queue has reached its
// minimum-full threshold.
func (s *EncodeSink) Full() bool { return s.inner.Full() }
