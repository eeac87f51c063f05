// Package playback implements C6: a sinkcore.Sink wired to a real-time
// audio device, with prebuffering, underrun recovery, and format-change
// reopening (spec.md §4.6). Grounded on original_source/groove/player.c
// for the helper-thread/device-callback split and climp's
// internal/player/player.go for how a Go audio consumer pulls from a
// decoder and tracks play position against wall-clock time.
package playback

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/climp-audio/groove/internal/audiofmt"
	"github.com/climp-audio/groove/internal/decodeengine"
	"github.com/climp-audio/groove/internal/device"
	"github.com/climp-audio/groove/internal/queue"
	"github.com/climp-audio/groove/internal/refbuffer"
	"github.com/climp-audio/groove/internal/sinkcore"
	"github.com/climp-audio/groove/internal/triplebuffer"
)

// minRingSeconds is the playback ring buffer's size in seconds of audio:
// ringSizeBytes allocates exactly this many seconds at the sink's format.
// The device's software latency is not taken into account.
const minRingSeconds = 4

// Sink wraps a C4 sink (resample always enabled) attached to a real
// device, filling a ring buffer from a helper goroutine and serving the
// device's real-time pull callback from that ring buffer.
type Sink struct {
	core *sinkcore.Sink
	pl   *decodeengine.Playlist

	events *queue.Queue[Event]
	ts     *triplebuffer.Buffer

	helperStop chan struct{}
	helperDone chan struct{}

	// ring and dev are swapped by reopenDevice (from the helper goroutine)
	// while pullFromRing (the device's real-time callback goroutine) reads
	// them concurrently without taking mu, so both are atomic pointers
	// rather than plain fields guarded by mu.
	ring atomic.Pointer[ringBuffer]
	dev  atomic.Pointer[device.Device]

	mu                    sync.Mutex // the "play head lock" of spec.md §5
	format                audiofmt.Format
	playItem              *decodeengine.Item
	playPos               float64 // seconds within playItem
	playPosIndex          int64   // absolute device-frame index at playPos
	prebuffering          bool
	paused                bool
	isStarted             bool
	absFrameIndex         int64
	deviceCloseFrameIndex int64 // -1 = unset
	skipToIndex           int64 // -1 = no pending skip
}

// New returns a playback sink in the free (unattached) state.
func New() *Sink {
	return &Sink{
		core:                  sinkcore.New(),
		events:                queue.New[Event](),
		ts:                    triplebuffer.New(),
		prebuffering:          true,
		deviceCloseFrameIndex: -1,
		skipToIndex:           -1,
	}
}

// Attach attaches the sink to pl, requesting format as its preferred
// output (resampling always enabled), opens the device, and starts the
// helper goroutine.
func (s *Sink) Attach(pl *decodeengine.Playlist, format audiofmt.Format, bufferSampleCount int) error {
	s.core.Format = format
	s.core.BufferSampleCount = bufferSampleCount
	s.core.BufferSize = format.SampleRate * 2 // 2s of queued decoded frames
	s.core.Pause = func() { s.pauseDevice() }
	s.core.Play = func() { s.resumeDevice() }
	s.core.Flush = func() { s.flushLocked() }
	s.core.Purge = func(item any) {}

	if err := pl.AttachSink(s.core); err != nil {
		return err
	}
	s.pl = pl

	s.mu.Lock()
	s.format = format
	s.mu.Unlock()
	s.ring.Store(newRingBuffer(ringSizeBytes(format)))

	dev, err := device.Open(format, s.pullFromRing)
	if err != nil {
		s.events.Put(Event{Kind: DeviceOpenError, Err: err})
		return err
	}
	s.dev.Store(dev)
	s.mu.Lock()
	s.isStarted = true
	s.mu.Unlock()
	dev.Start()
	s.events.Put(Event{Kind: DeviceOpened})

	s.helperStop = make(chan struct{})
	s.helperDone = make(chan struct{})
	go s.helperLoop()
	return nil
}

// Detach stops the helper goroutine, closes the device, and detaches the
// underlying C4 sink.
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
	dev := s.dev.Swap(nil)
	if dev != nil {
		_ = dev.Close()
		s.events.Put(Event{Kind: DeviceClosed})
	}
}

// Events returns the sink's event queue for the client to poll/wait on.
func (s *Sink) Events() *queue.Queue[Event] { return s.events }

// SetGain sets the playback sink's linear gain, routed through the
// playlist so the sink map and filter graph pick up the change (spec.md
// §4.4 set_gain).
func (s *Sink) SetGain(gain float64) {
	if s.pl != nil {
		s.pl.SetSinkGain(s.core, gain)
	}
}

// DeviceAudioFormat reports the format the real-time device is currently
// open at.
func (s *Sink) DeviceAudioFormat() audiofmt.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

func ringSizeBytes(format audiofmt.Format) int {
	return minRingSeconds * format.SampleRate * format.BytesPerFrame()
}

func (s *Sink) pauseDevice() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	if dev := s.dev.Load(); dev != nil {
		dev.Pause()
	}
}

func (s *Sink) resumeDevice() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	if dev := s.dev.Load(); dev != nil {
		dev.Start()
	}
}

// flushLocked is the core sink's Flush callback: a seek flush discards
// whatever the ring buffer and device currently hold.
func (s *Sink) flushLocked() {
	if ring := s.ring.Load(); ring != nil {
		ring.Reset()
	}
	s.mu.Lock()
	s.prebuffering = true
	s.mu.Unlock()
	if dev := s.dev.Load(); dev != nil {
		dev.ClearBuffer()
	}
}

// helperLoop fills the ring buffer from the underlying sink, per spec.md
// §4.6's "Helper thread".
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
			s.handleEndOfPlaylist()
		case sinkcore.Yes:
			s.handleBuffer(buf)
			buf.Unref()
		}
	}
}

func (s *Sink) handleBuffer(buf *refbuffer.Buffer) {
	s.mu.Lock()
	reopen := !audiofmt.Equal(buf.Format, s.format)
	if reopen {
		s.format = buf.Format
	}
	item, _ := buf.Item.(*decodeengine.Item)
	itemChanged := item != nil && item != s.playItem
	if itemChanged {
		s.playItem = item
		s.playPos = buf.Pos
		s.playPosIndex = s.absFrameIndex
	}
	s.mu.Unlock()

	if itemChanged {
		s.events.Put(Event{Kind: NowPlaying, Item: item})
	}
	if reopen {
		s.reopenDevice(buf.Format)
	}

	s.writeToRing(buf.Data[0])

	bytesPerFrame := buf.Format.BytesPerFrame()
	if bytesPerFrame <= 0 {
		return
	}
	ring := s.ring.Load()
	threshold := ring.cap() / 2
	if ring.Available() >= threshold {
		s.mu.Lock()
		s.prebuffering = false
		s.mu.Unlock()
	}
}

func (s *Sink) writeToRing(data []byte) {
	written := 0
	for written < len(data) {
		select {
		case <-s.helperStop:
			return
		default:
		}
		n := s.ring.Load().Write(data[written:])
		written += n
		if n == 0 {
			time.Sleep(time.Millisecond)
		}
	}
}

func (s *Sink) reopenDevice(format audiofmt.Format) {
	s.mu.Lock()
	wasStarted := s.isStarted
	s.mu.Unlock()
	if oldDev := s.dev.Load(); oldDev != nil {
		_ = oldDev.Close()
	}

	s.ring.Store(newRingBuffer(ringSizeBytes(format)))
	s.mu.Lock()
	s.prebuffering = true
	s.mu.Unlock()

	dev, err := device.Open(format, s.pullFromRing)
	if err != nil {
		s.events.Put(Event{Kind: DeviceOpenError, Err: err})
		return
	}
	s.dev.Store(dev)
	if wasStarted {
		dev.Start()
	}
	s.events.Put(Event{Kind: DeviceReopened})
}

func (s *Sink) handleEndOfPlaylist() {
	s.mu.Lock()
	s.deviceCloseFrameIndex = s.absFrameIndex + int64(s.ring.Load().Available()/s.format.BytesPerFrame())
	s.mu.Unlock()
	s.events.Put(Event{Kind: EndOfPlaylist})
}

// pullFromRing is the device's real-time callback: it must never block or
// allocate (spec.md §4.6 "Device callback").
func (s *Sink) pullFromRing(p []byte) (int, bool) {
	s.mu.Lock()
	prebuf := s.prebuffering
	closeIdx := s.deviceCloseFrameIndex
	skip := s.skipToIndex
	bytesPerFrame := s.format.BytesPerFrame()
	s.mu.Unlock()

	ring := s.ring.Load()
	if skip >= 0 && bytesPerFrame > 0 {
		discard := int((skip - s.absFrameIndex) * int64(bytesPerFrame))
		if discard > 0 {
			ring.Discard(discard)
		}
		s.mu.Lock()
		s.skipToIndex = -1
		s.mu.Unlock()
	}

	if prebuf {
		zero(p)
		s.publishStamp(len(p), bytesPerFrame)
		return len(p), true
	}

	n := ring.Read(p)
	if n < len(p) {
		zero(p[n:])
		s.mu.Lock()
		s.prebuffering = true
		s.mu.Unlock()
		s.events.Put(Event{Kind: BufferUnderrun})
	}

	if bytesPerFrame > 0 {
		frames := int64(len(p) / bytesPerFrame)
		s.mu.Lock()
		s.absFrameIndex += frames
		if closeIdx >= 0 && s.absFrameIndex >= closeIdx {
			tailBytes := int(s.absFrameIndex-closeIdx) * bytesPerFrame
			if tailBytes > len(p) {
				tailBytes = len(p)
			}
			zero(p[len(p)-tailBytes:])
		}
		s.mu.Unlock()
	}

	s.publishStamp(len(p), bytesPerFrame)
	return len(p), true
}

func (s *Sink) publishStamp(byteCount, bytesPerFrame int) {
	delayFrames := int64(0)
	if bytesPerFrame > 0 {
		delayFrames = int64(byteCount / bytesPerFrame)
	}
	s.mu.Lock()
	frameIndex := s.absFrameIndex
	s.mu.Unlock()
	s.ts.Write(triplebuffer.Stamp{
		FrameIndex: frameIndex,
		Delay:      delayFrames,
		TimeNanos:  time.Now().UnixNano(),
	})
}

func zero(p []byte) {
	for i := range p {
		p[i] = 0
	}
}

// Position reports the current play position, per spec.md §4.6's
// play_position formula: given the latest time stamp (F, D, T), the frame
// audible at T+D is F; the play head sits at playPosIndex; so
// seconds = play_pos + (now - (T + D_seconds)) + (playPosIndex-F)/sample_rate.
func (s *Sink) Position() (item *decodeengine.Item, seconds float64) {
	s.mu.Lock()
	item = s.playItem
	playPos := s.playPos
	playPosIndex := s.playPosIndex
	sampleRate := s.format.SampleRate
	s.mu.Unlock()

	if sampleRate <= 0 {
		return item, playPos
	}

	stamp := s.ts.Read()
	stampTime := time.Unix(0, stamp.TimeNanos)
	delaySeconds := float64(stamp.Delay) / float64(sampleRate)
	indexDrift := float64(playPosIndex-stamp.FrameIndex) / float64(sampleRate)
	elapsed := time.Since(stampTime).Seconds() - delaySeconds

	return item, playPos + elapsed + indexDrift
}

func (rb *ringBuffer) cap() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return len(rb.buf)
}
