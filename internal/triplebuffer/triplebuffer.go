// Package triplebuffer implements the wait-free single-writer/single-reader
// timestamp primitive spec.md §5 describes for the playback sink's device
// callback to publish a new time stamp without ever blocking the reader
// (or vice versa): three preallocated slots and one atomic index/dirty
// word, so Write never allocates and never blocks — safe to call from a
// real-time device callback.
package triplebuffer

import "sync/atomic"

// Stamp is the (frame_index, delay, timestamp) triple spec.md §4.6
// publishes from the device callback and position() reads back.
type Stamp struct {
	FrameIndex int64
	Delay      int64 // frames
	TimeNanos  int64 // time.Time.UnixNano() at the callback invocation
}

const (
	indexMask = 0x3
	dirtyFlag = 0x4
)

// Buffer holds three Stamp slots and the shared state word. writeIdx and
// readIdx are owned exclusively by the writer and reader respectively and
// must never be touched by the other side.
type Buffer struct {
	slots [3]Stamp
	state atomic.Uint32 // low 2 bits: index, bit 2: dirty

	writeIdx uint32
	readIdx  uint32
}

// New returns a Buffer whose initial Read returns the zero Stamp. The
// three slot indices are assigned so the writer, the reader, and the
// shared "last published" slot start out distinct, the invariant the
// exchange algorithm in Write/Read preserves from then on.
func New() *Buffer {
	b := &Buffer{writeIdx: 1, readIdx: 0}
	b.state.Store(2) // index 2, not dirty
	return b
}

// Write stores s into the writer's slot and publishes it, reclaiming
// whichever slot was previously published (now guaranteed not to be the
// one the reader is currently looking at).
func (b *Buffer) Write(s Stamp) {
	b.slots[b.writeIdx] = s
	old := b.state.Swap(b.writeIdx | dirtyFlag)
	b.writeIdx = old & indexMask
}

// Read returns the most recently published Stamp, swapping in a fresh one
// if Write has published since the last Read.
func (b *Buffer) Read() Stamp {
	if b.state.Load()&dirtyFlag != 0 {
		old := b.state.Swap(b.readIdx)
		b.readIdx = old & indexMask
	}
	return b.slots[b.readIdx]
}
