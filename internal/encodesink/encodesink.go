// Package encodesink implements C7: an encoder sink that pulls decoded PCM
// from the filter graph and republishes it as an encoded WAV container
// stream, one encoded refbuffer.Buffer per emitted byte range. Mirrors
// original_source/groove/encoder.c's two-queue shape: an internal sink
// attached to the playlist receives decoded frames, while a second,
// client-facing sink holds the encoded output the caller drains with
// BufferGet. A format-header buffer (item = nil) is emitted once at the
// start of each session, one or more body buffers per decoded chunk
// (tagged with that chunk's originating item and position), and one or
// more format-trailer buffers when the session ends and the container's
// header sizes are patched, following encoder.c's sent_header/
// av_write_trailer sequence.
package encodesink

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"

	"github.com/climp-audio/groove/internal/audiofmt"
	"github.com/climp-audio/groove/internal/decodeengine"
	"github.com/climp-audio/groove/internal/refbuffer"
	"github.com/climp-audio/groove/internal/sinkcore"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavAudioFormatPCM is WAV's fmt-chunk audio format tag for linear PCM.
const wavAudioFormatPCM = 1

// Sink is an encoder sink: attach it to a playlist like any sinkcore.Sink
// consumer, then drain encoded container buffers with BufferGet.
type Sink struct {
	core   *sinkcore.Sink // receives decoded PCM from the playlist
	output *sinkcore.Sink // holds encoded bytes for the client to drain

	pl *decodeengine.Playlist

	helperStop chan struct{}
	helperDone chan struct{}

	mu     sync.Mutex
	format audiofmt.Format
	enc    *wav.Encoder
	cw     *captureWriter
	item   any // *decodeengine.Item; nil for the header/priming write
	pos    float64
}

// New returns an encoder sink in the free (unattached) state.
func New() *Sink {
	return &Sink{core: sinkcore.New(), output: sinkcore.New()}
}

// Attach attaches the sink to pl, requesting sampleRate/channels as the PCM
// format fed to the WAV encoder (resample is always enabled since WAV needs
// a fixed 16-bit PCM format regardless of the decoder's native format).
// outputBufferBytes sizes the client-facing encoded-buffer queue's
// minimum-full threshold.
func (s *Sink) Attach(pl *decodeengine.Playlist, sampleRate int, channels audiofmt.ChannelLayout, bufferSampleCount, outputBufferBytes int) error {
	format := audiofmt.Format{SampleRate: sampleRate, ChannelLayout: channels, SampleFormat: audiofmt.SampleFormatS16}

	s.core.Format = format
	s.core.BufferSampleCount = bufferSampleCount
	s.core.BufferSize = sampleRate * 2
	s.core.Purge = func(item any) {}
	s.core.Flush = func() { s.handleSeekFlush() }

	if err := pl.AttachSink(s.core); err != nil {
		return err
	}
	s.pl = pl

	s.mu.Lock()
	s.format = format
	s.mu.Unlock()

	s.output.DisableResample = true
	s.output.BufferSize = outputBufferBytes
	if err := s.output.Attach(s); err != nil {
		pl.DetachSink(s.core)
		s.pl = nil
		return err
	}

	s.helperStop = make(chan struct{})
	s.helperDone = make(chan struct{})
	go s.helperLoop()
	return nil
}

// Detach stops the helper goroutine and detaches both sinks. Detaching the
// core sink runs its Flush callback (handleSeekFlush), which drops the
// in-flight encoding session before finishSession runs; the final
// output.Detach discards whatever encoded buffers are still queued, so the
// client receives no trailer.
func (s *Sink) Detach() {
	if s.helperStop != nil {
		close(s.helperStop)
	}
	if s.pl != nil {
		s.pl.DetachSink(s.core)
	}
	if s.helperDone != nil {
		<-s.helperDone
	}
	s.finishSession()
	s.output.Detach()
}

// BufferGet pops the head of the client-facing encoded-buffer queue.
func (s *Sink) BufferGet(block bool) (*refbuffer.Buffer, sinkcore.Result) {
	return s.output.BufferGet(block)
}

// BufferPeek reports availability on the encoded-buffer queue without
// popping it.
func (s *Sink) BufferPeek(block bool) sinkcore.Result {
	return s.output.BufferPeek(block)
}

// FillLevel returns the encoded-buffer queue's current byte count.
func (s *Sink) FillLevel() int { return s.output.FillLevel() }

// Full reports whether the encoded-buffer queue has reached its threshold.
func (s *Sink) Full() bool { return s.output.Full() }

func (s *Sink) helperLoop() {
	defer close(s.helperDone)
	for {
		select {
		case <-s.helperStop:
			return
		default:
		}

		buf, res := s.core.BufferGet(true)
		switch res {
		case sinkcore.No:
			continue
		case sinkcore.End:
			s.finishSession()
			s.output.EnqueueSentinel()
		case sinkcore.Yes:
			s.encodeBuffer(buf)
			buf.Unref()
		}
	}
}

// encodeBuffer feeds one decoded chunk to the active encoding session,
// opening a fresh session first if none is active. The opening priming
// write (see below) and the real payload write both happen with s.mu
// released, since each triggers captureWriter.Write -> emit, which takes
// s.mu itself; holding it across either call would deadlock.
func (s *Sink) encodeBuffer(buf *refbuffer.Buffer) {
	s.mu.Lock()
	needsPriming := s.enc == nil
	if needsPriming {
		s.format = buf.Format
		s.item = nil
		s.pos = 0
		s.cw = &captureWriter{s: s}
		s.enc = wav.NewEncoder(s.cw, buf.Format.SampleRate, 16, buf.Format.ChannelLayout.Count(), wavAudioFormatPCM)
	}
	enc := s.enc
	s.mu.Unlock()

	if needsPriming {
		// go-audio/wav only emits the RIFF/fmt/data chunk headers on its
		// first Write call; priming with a zero-length buffer here, while
		// s.item is still nil, guarantees the header buffer carries no
		// item, matching encoder.c's header write happening before
		// encode_head is ever set for the session.
		primer := &audio.IntBuffer{
			Format: &audio.Format{NumChannels: buf.Format.ChannelLayout.Count(), SampleRate: buf.Format.SampleRate},
		}
		_ = enc.Write(primer)
	}

	s.mu.Lock()
	s.item = buf.Item
	s.pos = buf.Pos
	s.mu.Unlock()

	_ = enc.Write(pcmToIntBuffer(buf.Data[0], buf.Format))
}

// finishSession closes the active encoder, if any, which seeks back into
// the capture writer to patch the RIFF/data chunk sizes; those patch
// writes surface as the session's trailer buffer(s), still tagged with
// whichever item/pos the last real chunk set.
func (s *Sink) finishSession() {
	s.mu.Lock()
	enc := s.enc
	s.mu.Unlock()
	if enc == nil {
		return
	}
	_ = enc.Close()
	s.mu.Lock()
	s.enc = nil
	s.cw = nil
	s.mu.Unlock()
}

// handleSeekFlush is the core sink's Flush callback: a seek discards
// whatever encoding session was in progress (its output is now stale) and
// re-arms the output queue for a fresh session, signaled to the client by
// a sentinel, mirroring encoder.c's sink_flush.
func (s *Sink) handleSeekFlush() {
	s.mu.Lock()
	s.enc = nil
	s.cw = nil
	s.mu.Unlock()
	s.output.Detach()
	_ = s.output.Attach(s)
	s.output.EnqueueSentinel()
}

func (s *Sink) emit(data []byte) {
	s.mu.Lock()
	item := s.item
	pos := s.pos
	format := s.format
	s.mu.Unlock()

	buf := refbuffer.New([][]byte{data}, format, 0, nil)
	buf.Item = item
	buf.Pos = pos
	buf.Size = len(data)
	s.output.Enqueue(buf)
}

// pcmToIntBuffer converts interleaved 16-bit PCM bytes into the
// go-audio/audio.IntBuffer shape wav.Encoder.Write expects.
func pcmToIntBuffer(data []byte, format audiofmt.Format) *audio.IntBuffer {
	channels := format.ChannelLayout.Count()
	samples := len(data) / 2
	ints := make([]int, samples)
	for i := 0; i < samples; i++ {
		ints[i] = int(int16(binary.LittleEndian.Uint16(data[i*2:])))
	}
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: format.SampleRate},
		Data:           ints,
		SourceBitDepth: 16,
	}
}

// captureWriter is the io.WriteSeeker wav.Encoder writes its container
// into. Every Write is both appended to an internal byte image (so a later
// Seek-then-Write, as Close uses to patch header sizes, lands on
// previously written bytes) and forwarded to the owning Sink as a new
// encoded buffer.
type captureWriter struct {
	s   *Sink
	buf []byte
	pos int64
}

func (w *captureWriter) Write(p []byte) (int, error) {
	end := w.pos + int64(len(p))
	if int64(len(w.buf)) < end {
		grown := make([]byte, end)
		copy(grown, w.buf)
		w.buf = grown
	}
	copy(w.buf[w.pos:end], p)
	w.pos = end

	out := make([]byte, len(p))
	copy(out, p)
	w.s.emit(out)
	return len(p), nil
}

func (w *captureWriter) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = w.pos + offset
	case io.SeekEnd:
		next = int64(len(w.buf)) + offset
	default:
		return w.pos, errors.New("encodesink: invalid seek whence")
	}
	if next < 0 {
		return w.pos, errors.New("encodesink: negative seek position")
	}
	w.pos = next
	return next, nil
}
