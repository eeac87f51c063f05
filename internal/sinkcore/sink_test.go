package sinkcore

import (
	"testing"

	"github.com/climp-audio/groove/internal/audiofmt"
	"github.com/climp-audio/groove/internal/refbuffer"
)

func testFormat() audiofmt.Format {
	return audiofmt.Format{
		SampleRate:    44100,
		ChannelLayout: audiofmt.ChannelLayoutStereo,
		SampleFormat:  audiofmt.SampleFormatS16,
	}
}

func TestAttachComputesThreshold(t *testing.T) {
	s := New()
	s.Format = testFormat()
	s.BufferSize = 100

	if err := s.Attach("playlist-a"); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	want := 100 * testFormat().BytesPerFrame()
	if got := s.Threshold(); got != want {
		t.Fatalf("Threshold() = %d, want %d", got, want)
	}
}

func TestAttachTwiceFails(t *testing.T) {
	s := New()
	s.Format = testFormat()
	if err := s.Attach("a"); err != nil {
		t.Fatalf("first Attach() error = %v", err)
	}
	if err := s.Attach("a"); err == nil {
		t.Fatal("second Attach() error = nil, want error")
	}
}

func TestBufferGetOrderAndRefcount(t *testing.T) {
	s := New()
	s.Format = testFormat()
	if err := s.Attach("a"); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	itemA := "item-a"
	b1 := refbuffer.New(nil, testFormat(), 512, nil)
	b1.Item = itemA
	b1.Size = 2048
	b2 := refbuffer.New(nil, testFormat(), 512, nil)
	b2.Item = itemA
	b2.Size = 2048

	s.Enqueue(b1)
	s.Enqueue(b2)

	if got := s.FillLevel(); got != 4096 {
		t.Fatalf("FillLevel() = %d, want 4096", got)
	}

	got1, res := s.BufferGet(false)
	if res != Yes || got1 != b1 {
		t.Fatalf("BufferGet() = (%v, %v), want (b1, Yes)", got1, res)
	}
	if got := s.FillLevel(); got != 2048 {
		t.Fatalf("FillLevel() after one Get = %d, want 2048", got)
	}

	got2, res := s.BufferGet(false)
	if res != Yes || got2 != b2 {
		t.Fatalf("BufferGet() = (%v, %v), want (b2, Yes)", got2, res)
	}
}

func TestSentinelObservedOnce(t *testing.T) {
	s := New()
	s.Format = testFormat()
	_ = s.Attach("a")

	if s.ContainsEndOfPlaylist() {
		t.Fatal("ContainsEndOfPlaylist() = true before sentinel enqueued")
	}
	s.EnqueueSentinel()
	if !s.ContainsEndOfPlaylist() {
		t.Fatal("ContainsEndOfPlaylist() = false after sentinel enqueued")
	}

	_, res := s.BufferGet(false)
	if res != End {
		t.Fatalf("BufferGet() result = %v, want End", res)
	}
	if s.ContainsEndOfPlaylist() {
		t.Fatal("ContainsEndOfPlaylist() = true after sentinel consumed")
	}
}

func TestBufferPeekReportsEndForSentinel(t *testing.T) {
	s := New()
	s.Format = testFormat()
	_ = s.Attach("a")

	buf := refbuffer.New(nil, testFormat(), 1, nil)
	buf.Size = 16
	s.Enqueue(buf)

	if res := s.BufferPeek(false); res != Yes {
		t.Fatalf("BufferPeek() with a real buffer at the head = %v, want Yes", res)
	}
	s.BufferGet(false)

	s.EnqueueSentinel()
	if res := s.BufferPeek(false); res != End {
		t.Fatalf("BufferPeek() with the sentinel at the head = %v, want End", res)
	}
	// peeking must not have popped it.
	if !s.ContainsEndOfPlaylist() {
		t.Fatal("sentinel consumed by BufferPeek()")
	}
}

func TestDrainNotifyFiresOnBufferGet(t *testing.T) {
	s := New()
	s.Format = testFormat()
	_ = s.Attach("a")

	notified := 0
	s.DrainNotify = func() { notified++ }

	buf := refbuffer.New(nil, testFormat(), 1, nil)
	buf.Size = 16
	s.Enqueue(buf)
	if notified != 0 {
		t.Fatalf("DrainNotify fired on Enqueue, want only on BufferGet")
	}

	s.BufferGet(false)
	if notified != 1 {
		t.Fatalf("DrainNotify fired %d times after one BufferGet, want 1", notified)
	}
}

func TestPurgeItemRemovesMatchingBuffers(t *testing.T) {
	s := New()
	s.Format = testFormat()
	_ = s.Attach("a")

	itemA, itemB := "item-a", "item-b"
	var purged []any
	s.Purge = func(item any) { purged = append(purged, item) }

	bufA := refbuffer.New(nil, testFormat(), 1, nil)
	bufA.Item = itemA
	bufB := refbuffer.New(nil, testFormat(), 1, nil)
	bufB.Item = itemB

	s.Enqueue(bufA)
	s.Enqueue(bufB)
	s.PurgeItem(itemA)

	got, res := s.BufferGet(false)
	if res != Yes || got != bufB {
		t.Fatalf("BufferGet() = (%v, %v), want (bufB, Yes)", got, res)
	}
	if len(purged) != 1 || purged[0] != itemA {
		t.Fatalf("purged = %v, want [%v]", purged, itemA)
	}
}

func TestDetachIsIdempotent(t *testing.T) {
	s := New()
	s.Format = testFormat()
	_ = s.Attach("a")
	s.Detach()
	if s.Attached() {
		t.Fatal("Attached() = true after Detach()")
	}
	s.Detach() // must not panic or error
}

func TestSinkMapGroupsCompatibleSinks(t *testing.T) {
	a := New()
	a.Format = testFormat()
	a.Gain = 1.0
	b := New()
	b.Format = testFormat()
	b.Gain = 1.0
	c := New()
	c.Format = audiofmt.Format{SampleRate: 48000, ChannelLayout: audiofmt.ChannelLayoutMono, SampleFormat: audiofmt.SampleFormatFlt}
	c.Gain = 1.0

	m := Build([]*Sink{a, b, c})
	if len(m.Groups) != 2 {
		t.Fatalf("len(Groups) = %d, want 2", len(m.Groups))
	}
	if m.GroupOf(a) != m.GroupOf(b) {
		t.Fatal("compatible sinks a and b placed in different groups")
	}
	if m.GroupOf(a) == m.GroupOf(c) {
		t.Fatal("incompatible sinks a and c placed in the same group")
	}
}
