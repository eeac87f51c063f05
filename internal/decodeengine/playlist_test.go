package decodeengine

import (
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/climp-audio/groove/internal/audiofmt"
	"github.com/climp-audio/groove/internal/sinkcore"
)

// fakeDecoder produces frameCount frames of constant-tone 16-bit stereo
// PCM at sampleRate, implementing decode.Decoder without touching a real
// file.
type fakeDecoder struct {
	sampleRate, channels int
	frames               int
	pos                  int64
}

func newFakeDecoder(sampleRate, channels, frames int) *fakeDecoder {
	return &fakeDecoder{sampleRate: sampleRate, channels: channels, frames: frames}
}

func (d *fakeDecoder) bytesPerFrame() int64 { return int64(d.channels) * 2 }
func (d *fakeDecoder) totalBytes() int64    { return int64(d.frames) * d.bytesPerFrame() }

func (d *fakeDecoder) Read(p []byte) (int, error) {
	remaining := d.totalBytes() - d.pos
	if remaining <= 0 {
		return 0, io.EOF
	}
	n := int64(len(p))
	if n > remaining {
		n = remaining
	}
	n -= n % d.bytesPerFrame()
	if n == 0 {
		return 0, io.EOF
	}
	for i := int64(0); i < n; i += 2 {
		binary.LittleEndian.PutUint16(p[i:], 1000)
	}
	d.pos += n
	return int(n), nil
}

func (d *fakeDecoder) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = d.pos + offset
	case io.SeekEnd:
		next = d.totalBytes() + offset
	}
	d.pos = next
	return next, nil
}

func (d *fakeDecoder) Length() int64     { return d.totalBytes() }
func (d *fakeDecoder) SampleRate() int   { return d.sampleRate }
func (d *fakeDecoder) ChannelCount() int { return d.channels }

func testSinkFormat() audiofmt.Format {
	return audiofmt.Format{SampleRate: 44100, ChannelLayout: audiofmt.ChannelLayoutStereo, SampleFormat: audiofmt.SampleFormatS16}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

func TestInsertDecodesIntoAttachedSink(t *testing.T) {
	pl := New(nil)
	defer pl.Destroy()

	s := sinkcore.New()
	s.Format = testSinkFormat()
	s.BufferSize = 1 << 20
	if err := pl.AttachSink(s); err != nil {
		t.Fatalf("AttachSink() error = %v", err)
	}

	dec := newFakeDecoder(44100, 2, chunkFrames*2)
	file := NewFile(dec)
	pl.Insert(file, 1.0, 1.0, nil)

	waitFor(t, func() bool {
		return s.BufferPeek(false) == sinkcore.Yes
	})

	buf, res := s.BufferGet(false)
	if res != sinkcore.Yes {
		t.Fatalf("BufferGet() result = %v, want Yes", res)
	}
	if buf.FrameCount == 0 {
		t.Fatal("FrameCount = 0, want > 0")
	}
	buf.Unref()
}

func TestEndOfPlaylistSentinelObserved(t *testing.T) {
	pl := New(nil)
	defer pl.Destroy()

	s := sinkcore.New()
	s.Format = testSinkFormat()
	s.BufferSize = 1 << 20
	if err := pl.AttachSink(s); err != nil {
		t.Fatalf("AttachSink() error = %v", err)
	}

	waitFor(t, func() bool {
		return s.ContainsEndOfPlaylist()
	})
	_, res := s.BufferGet(false)
	if res != sinkcore.End {
		t.Fatalf("BufferGet() result = %v, want End", res)
	}
}

// TestDrainUnblocksFullSink guards against the decode worker stalling
// forever in Blocked-on-sink: with a sink small enough to fill after one
// chunk, the worker must resume decoding each time the sink is drained
// below its threshold, all the way to the end-of-playlist sentinel.
func TestDrainUnblocksFullSink(t *testing.T) {
	pl := New(nil)
	defer pl.Destroy()

	s := sinkcore.New()
	s.Format = testSinkFormat()
	s.BufferSize = chunkFrames
	if err := pl.AttachSink(s); err != nil {
		t.Fatalf("AttachSink() error = %v", err)
	}

	dec := newFakeDecoder(44100, 2, chunkFrames*20)
	pl.Insert(NewFile(dec), 1.0, 1.0, nil)

	done := make(chan struct{})
	go func() {
		for {
			buf, res := s.BufferGet(true)
			switch res {
			case sinkcore.Yes:
				buf.Unref()
			case sinkcore.End:
				close(done)
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("decode worker stalled on a full sink and never reached end of playlist")
	}
}

func TestRemoveAdvancesCursorAndPurges(t *testing.T) {
	pl := New(nil)
	defer pl.Destroy()

	pl.Pause() // keep the worker from racing ahead of the list edits

	dec1 := newFakeDecoder(44100, 2, chunkFrames)
	dec2 := newFakeDecoder(44100, 2, chunkFrames)
	item1 := pl.Insert(NewFile(dec1), 1.0, 1.0, nil)
	item2 := pl.Insert(NewFile(dec2), 1.0, 1.0, nil)

	pl.Remove(item1)

	cursor, _ := pl.Position()
	if cursor != item2 {
		t.Fatalf("cursor after removing item1 = %v, want item2", cursor)
	}
}

func TestSeekRequestsFileSeek(t *testing.T) {
	pl := New(nil)
	defer pl.Destroy()
	pl.Pause()

	dec := newFakeDecoder(44100, 2, chunkFrames*4)
	file := NewFile(dec)
	item := pl.Insert(file, 1.0, 1.0, nil)

	pl.Seek(item, 1.0)

	_, _, pending := file.takeSeekRequest()
	if !pending {
		t.Fatal("expected a pending seek request after Seek()")
	}
}
