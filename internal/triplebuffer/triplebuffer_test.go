package triplebuffer

import (
	"sync"
	"testing"
)

func TestReadReturnsZeroStampBeforeFirstWrite(t *testing.T) {
	b := New()
	if got := b.Read(); got != (Stamp{}) {
		t.Fatalf("Read() = %+v, want zero Stamp", got)
	}
}

func TestReadObservesLatestWrite(t *testing.T) {
	b := New()
	b.Write(Stamp{FrameIndex: 1, Delay: 2, TimeNanos: 3})
	b.Write(Stamp{FrameIndex: 4, Delay: 5, TimeNanos: 6})

	got := b.Read()
	want := Stamp{FrameIndex: 4, Delay: 5, TimeNanos: 6}
	if got != want {
		t.Fatalf("Read() = %+v, want %+v", got, want)
	}
}

func TestReadWithoutNewWriteReturnsSameStamp(t *testing.T) {
	b := New()
	b.Write(Stamp{FrameIndex: 1})
	first := b.Read()
	second := b.Read()
	if first != second {
		t.Fatalf("two Reads with no intervening Write disagree: %+v vs %+v", first, second)
	}
}

func TestConcurrentWriteAndReadNeverTornOrStale(t *testing.T) {
	b := New()
	var wg sync.WaitGroup
	wg.Add(2)

	const n = 10000
	go func() {
		defer wg.Done()
		for i := int64(1); i <= n; i++ {
			b.Write(Stamp{FrameIndex: i, Delay: i, TimeNanos: i})
		}
	}()

	maxSeen := int64(0)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			s := b.Read()
			if s.FrameIndex != s.Delay || s.Delay != s.TimeNanos {
				t.Errorf("torn stamp observed: %+v", s)
			}
			if s.FrameIndex < maxSeen {
				t.Errorf("stamp went backwards: saw %d after %d", s.FrameIndex, maxSeen)
			}
			maxSeen = s.FrameIndex
		}
	}()
	wg.Wait()
}
