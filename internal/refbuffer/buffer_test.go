package refbuffer

import (
	"sync"
	"testing"

	"github.com/climp-audio/groove/internal/audiofmt"
)

func TestRefUnrefReleasesAtZero(t *testing.T) {
	released := false
	b := New([][]byte{{1, 2, 3}}, audiofmt.Format{SampleRate: 44100}, 1, func(*Buffer) {
		released = true
	})

	b.Ref()
	b.Ref()
	if got := b.RefCount(); got != 3 {
		t.Fatalf("RefCount() = %d, want 3", got)
	}

	b.Unref()
	if released {
		t.Fatal("Release called before ref count reached zero")
	}
	b.Unref()
	if released {
		t.Fatal("Release called before ref count reached zero")
	}
	b.Unref()
	if !released {
		t.Fatal("Release not called when ref count reached zero")
	}
}

func TestUnrefNilIsNoOp(t *testing.T) {
	var b *Buffer
	b.Unref() // must not panic
}

func TestConcurrentRefUnref(t *testing.T) {
	var releasedCount int
	var mu sync.Mutex
	b := New(nil, audiofmt.Format{}, 0, func(*Buffer) {
		mu.Lock()
		releasedCount++
		mu.Unlock()
	})

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		b.Ref()
	}
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			b.Unref()
		}()
	}
	wg.Wait()
	b.Unref() // drop the initial reference from New

	if releasedCount != 1 {
		t.Fatalf("releasedCount = %d, want 1", releasedCount)
	}
}
