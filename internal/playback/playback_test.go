package playback

import (
	"testing"
	"time"

	"github.com/climp-audio/groove/internal/audiofmt"
	"github.com/climp-audio/groove/internal/refbuffer"
	"github.com/climp-audio/groove/internal/triplebuffer"
)

func testFormat() audiofmt.Format {
	return audiofmt.Format{SampleRate: 44100, ChannelLayout: audiofmt.ChannelLayoutStereo, SampleFormat: audiofmt.SampleFormatS16}
}

// newTestSink returns a Sink in the attached-to-a-ring state without going
// through Attach, so tests can drive handleBuffer/pullFromRing directly
// without opening a real audio device.
func newTestSink(format audiofmt.Format, ringBytes int) *Sink {
	s := New()
	s.format = format
	s.ring.Store(newRingBuffer(ringBytes))
	return s
}

func TestHandleBufferFillsRingAndClearsPrebufferingAtThreshold(t *testing.T) {
	format := testFormat()
	ringBytes := 1000
	s := newTestSink(format, ringBytes)

	data := make([]byte, ringBytes/2) // exactly the prebuffer threshold
	for i := range data {
		data[i] = byte(i)
	}
	buf := refbuffer.New([][]byte{data}, format, len(data)/format.BytesPerFrame(), nil)

	s.handleBuffer(buf)

	if s.ring.Load().Available() != len(data) {
		t.Fatalf("ring available = %d, want %d", s.ring.Load().Available(), len(data))
	}
	if s.prebuffering {
		t.Fatal("prebuffering should have cleared once the ring reached half capacity")
	}
}

func TestHandleBufferLeavesPrebufferingSetBelowThreshold(t *testing.T) {
	format := testFormat()
	s := newTestSink(format, 1000)

	data := make([]byte, 10)
	buf := refbuffer.New([][]byte{data}, format, 0, nil)
	s.handleBuffer(buf)

	if !s.prebuffering {
		t.Fatal("prebuffering should still be set below the fill threshold")
	}
}

func TestPullFromRingReturnsSilenceWhilePrebuffering(t *testing.T) {
	format := testFormat()
	s := newTestSink(format, 1000)
	// New() starts prebuffering; put some data in the ring anyway to prove
	// it is ignored while prebuffering.
	s.ring.Load().Write(make([]byte, 100))

	p := make([]byte, 64)
	for i := range p {
		p[i] = 0xFF
	}
	n, ok := s.pullFromRing(p)
	if n != len(p) || !ok {
		t.Fatalf("pullFromRing() = (%d, %v), want (%d, true)", n, ok, len(p))
	}
	for i, b := range p {
		if b != 0 {
			t.Fatalf("byte %d = %#x, want silence while prebuffering", i, b)
		}
	}
}

func TestPullFromRingDrainsRingOnceNotPrebuffering(t *testing.T) {
	format := testFormat()
	s := newTestSink(format, 1000)
	s.mu.Lock()
	s.prebuffering = false
	s.mu.Unlock()

	want := make([]byte, 64)
	for i := range want {
		want[i] = byte(i + 1)
	}
	s.ring.Load().Write(want)

	got := make([]byte, len(want))
	n, ok := s.pullFromRing(got)
	if n != len(got) || !ok {
		t.Fatalf("pullFromRing() = (%d, %v), want (%d, true)", n, ok, len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestPullFromRingUnderrunsAndReturnsToPrebuffering(t *testing.T) {
	format := testFormat()
	s := newTestSink(format, 1000)
	s.mu.Lock()
	s.prebuffering = false
	s.mu.Unlock()

	available := make([]byte, 8)
	for i := range available {
		available[i] = byte(i + 1)
	}
	s.ring.Load().Write(available)

	p := make([]byte, 64) // more than the ring holds
	n, ok := s.pullFromRing(p)
	if n != len(p) || !ok {
		t.Fatalf("pullFromRing() = (%d, %v), want (%d, true)", n, ok, len(p))
	}
	for i := len(available); i < len(p); i++ {
		if p[i] != 0 {
			t.Fatalf("byte %d = %#x, want silence past the ring's available bytes", i, p[i])
		}
	}

	s.mu.Lock()
	prebuffering := s.prebuffering
	s.mu.Unlock()
	if !prebuffering {
		t.Fatal("an underrun should re-enter prebuffering")
	}

	ev, ok := s.events.Get(false)
	if !ok || ev.Kind != BufferUnderrun {
		t.Fatalf("events.Get() = (%+v, %v), want a BufferUnderrun event", ev, ok)
	}
}

func TestHandleEndOfPlaylistComputesDeviceCloseFrameIndex(t *testing.T) {
	format := testFormat()
	s := newTestSink(format, 1000)
	s.ring.Load().Write(make([]byte, format.BytesPerFrame()*10))
	s.mu.Lock()
	s.absFrameIndex = 500
	s.mu.Unlock()

	s.handleEndOfPlaylist()

	s.mu.Lock()
	closeIdx := s.deviceCloseFrameIndex
	s.mu.Unlock()
	if want := int64(510); closeIdx != want {
		t.Fatalf("deviceCloseFrameIndex = %d, want %d", closeIdx, want)
	}

	ev, ok := s.events.Get(false)
	if !ok || ev.Kind != EndOfPlaylist {
		t.Fatalf("events.Get() = (%+v, %v), want an EndOfPlaylist event", ev, ok)
	}
}

func TestPullFromRingSilencesTailPastDeviceCloseFrameIndex(t *testing.T) {
	format := testFormat()
	bytesPerFrame := format.BytesPerFrame()
	s := newTestSink(format, 1000)
	s.mu.Lock()
	s.prebuffering = false
	s.absFrameIndex = 0
	s.deviceCloseFrameIndex = 2 // close after 2 frames
	s.mu.Unlock()

	framesInBuf := 8
	data := make([]byte, framesInBuf*bytesPerFrame)
	for i := range data {
		data[i] = 1
	}
	s.ring.Load().Write(data)

	p := make([]byte, framesInBuf*bytesPerFrame)
	n, ok := s.pullFromRing(p)
	if n != len(p) || !ok {
		t.Fatalf("pullFromRing() = (%d, %v), want (%d, true)", n, ok, len(p))
	}
	silentFrom := 2 * bytesPerFrame
	for i := silentFrom; i < len(p); i++ {
		if p[i] != 0 {
			t.Fatalf("byte %d = %#x, want silence past deviceCloseFrameIndex", i, p[i])
		}
	}
	for i := 0; i < silentFrom; i++ {
		if p[i] != 1 {
			t.Fatalf("byte %d = %#x, want the ring's data before deviceCloseFrameIndex", i, p[i])
		}
	}
}

func TestPositionCombinesTripleBufferStampWithElapsedWallClock(t *testing.T) {
	format := testFormat()
	s := newTestSink(format, 1000)
	s.mu.Lock()
	s.playPos = 10.0
	s.playPosIndex = 44100 // one second of frames ahead of the stamp below
	s.mu.Unlock()

	stampTime := time.Now().Add(-500 * time.Millisecond)
	s.ts.Write(triplebuffer.Stamp{
		FrameIndex: 0,
		Delay:      0,
		TimeNanos:  stampTime.UnixNano(),
	})

	_, seconds := s.Position()

	// play_pos + elapsed-since-stamp + (playPosIndex-stampFrame)/sampleRate
	wantMin := 10.0 + 0.5 + 1.0 - 0.05
	wantMax := 10.0 + 0.5 + 1.0 + 0.2
	if seconds < wantMin || seconds > wantMax {
		t.Fatalf("Position() seconds = %v, want roughly within [%v, %v]", seconds, wantMin, wantMax)
	}
}

func TestPositionWithZeroSampleRateReturnsPlayPosUnchanged(t *testing.T) {
	s := newTestSink(audiofmt.Format{}, 1000)
	s.mu.Lock()
	s.playPos = 3.5
	s.mu.Unlock()

	_, seconds := s.Position()
	if seconds != 3.5 {
		t.Fatalf("Position() seconds = %v, want 3.5 unchanged", seconds)
	}
}
