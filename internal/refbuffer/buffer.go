// Package refbuffer implements a reference-counted audio buffer. A Buffer
// is produced once by a decoder or encoder and handed to one or more sinks;
// each holder calls Ref to take a reference and Unref to release it. The
// buffer's Release callback runs exactly once, when the last reference is
// dropped, mirroring groove_buffer_ref/groove_buffer_unref.
package refbuffer

import (
	"sync"

	"github.com/climp-audio/groove/internal/audiofmt"
)

// Buffer is a reference-counted chunk of audio. For interleaved PCM, Data
// holds one slice; for planar PCM, Data holds one slice per channel; for
// encoded audio, Data holds a single slice of container bytes.
type Buffer struct {
	mu       sync.Mutex
	refCount int

	Data       [][]byte
	Format     audiofmt.Format
	FrameCount int // 0 for encoded buffers, whose frame count is unknown
	Item       any // *decodeengine.Item; nil for a format header/trailer buffer
	Pos        float64
	Size       int
	PTS        uint64

	// Release is invoked exactly once, when the reference count drops to
	// zero. It must not itself call Ref or Unref on this Buffer.
	Release func(*Buffer)
}

// New returns a Buffer with one initial reference. release, if non-nil, runs
// once when the last reference is dropped.
func New(data [][]byte, format audiofmt.Format, frameCount int, release func(*Buffer)) *Buffer {
	return &Buffer{
		Data:       data,
		Format:     format,
		FrameCount: frameCount,
		refCount:   1,
		Release:    release,
	}
}

// Ref takes a reference on b. Every Ref must be matched by exactly one
// Unref.
func (b *Buffer) Ref() {
	b.mu.Lock()
	b.refCount++
	b.mu.Unlock()
}

// Unref releases a reference on b. Unref on a nil Buffer is a no-op, so
// callers may unconditionally Unref a buffer slot that may never have been
// populated.
func (b *Buffer) Unref() {
	if b == nil {
		return
	}

	b.mu.Lock()
	b.refCount--
	zero := b.refCount == 0
	b.mu.Unlock()

	if zero && b.Release != nil {
		b.Release(b)
	}
}

// RefCount returns the current reference count. Intended for tests and
// diagnostics; callers must not make liveness decisions based on a racing
// read of this value.
func (b *Buffer) RefCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refCount
}
