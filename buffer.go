package groove

import "github.com/climp-audio/groove/internal/refbuffer"

// Buffer is a reference-counted frame of audio: decoded PCM (one slice in
// Data for interleaved, one per channel for planar) or, from an encoder
// Sink, a single slice of encoded container bytes (spec.md §3 "Buffer").
// ref_count >= 1 while a Buffer is observable; Unref to zero is the sole
// free point.
type Buffer struct {
	inner *refbuffer.Buffer
}

func newBuffer(b *refbuffer.Buffer) *Buffer {
	if b == nil {
		return nil
	}
	return &Buffer{inner: b}
}

// Ref takes a reference on the buffer. Every Ref must be matched by
// exactly one Unref.
func (b *Buffer) Ref() { b.inner.Ref() }

// Unref releases a reference on the buffer, running its release callback
// once the count reaches zero. Unref on a nil Buffer is a no-op.
func (b *Buffer) Unref() {
	if b == nil {
		return
	}
	b.inner.Unref()
}

// Pts returns the buffer's presentation timestamp.
func (b *Buffer) Pts() uint64 { return b.inner.PTS }

// Data returns the buffer's raw sample data: one slice for interleaved PCM
// or encoded bytes, one slice per channel for planar PCM.
func (b *Buffer) Data() [][]byte { return b.inner.Data }

// Format reports the format the buffer's Data is stored in.
func (b *Buffer) Format() Format { return b.inner.Format }

// FrameCount returns the number of sample frames in the buffer, or 0 for
// an encoded buffer (whose frame count is unknown).
func (b *Buffer) FrameCount() int { return b.inner.FrameCount }

// Size returns the buffer's payload size in bytes.
func (b *Buffer) Size() int { return b.inner.Size }

// Pos returns the number of seconds into the originating playlist item at
// which this buffer begins.
func (b *Buffer) Pos() float64 { return b.inner.Pos }
