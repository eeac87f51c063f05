package decodeengine

import (
	"io"
	"sync"

	"github.com/climp-audio/groove/internal/audiofmt"
	"github.com/climp-audio/groove/internal/decode"
)

// File is a decode worker's view of a playlist item's audio stream: a
// decode.Decoder plus the seek request spec.md §3/§4.5 describes, guarded
// by its own mutex so a seek may be issued from any goroutine without
// blocking the decode worker's playlist-wide lock.
type File struct {
	dec    decode.Decoder
	closer io.Closer

	mu          sync.Mutex
	seekPending bool
	seekPos     float64 // seconds
	seekFlush   bool
}

// NewFile wraps dec (and, if it also implements io.Closer, arranges for
// Close to release it).
func NewFile(dec decode.Decoder) *File {
	f := &File{dec: dec}
	if c, ok := dec.(io.Closer); ok {
		f.closer = c
	}
	return f
}

// Format reports the decoder's native output format. Decoders in
// internal/decode always emit interleaved 16-bit PCM, never planar.
func (f *File) Format() audiofmt.Format {
	return audiofmt.Format{
		SampleRate:    f.dec.SampleRate(),
		ChannelLayout: audiofmt.ChannelLayoutDefault(f.dec.ChannelCount()),
		SampleFormat:  audiofmt.SampleFormatS16,
	}
}

// Length returns the stream's total length in bytes, or -1 if unknown.
func (f *File) Length() int64 { return f.dec.Length() }

// RequestSeek records a pending seek to pos seconds, to be honored by the
// decode worker on its next chunk (spec.md §4.5 "Seek protocol"). flush
// tells the worker to flush every sink's queue once the seek lands.
func (f *File) RequestSeek(pos float64, flush bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seekPending = true
	f.seekPos = pos
	f.seekFlush = flush
}

// takeSeekRequest returns and clears the pending seek request, if any.
func (f *File) takeSeekRequest() (pos float64, flush bool, pending bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.seekPending {
		return 0, false, false
	}
	pos, flush = f.seekPos, f.seekFlush
	f.seekPending = false
	return pos, flush, true
}

// Read fills p with interleaved native-format PCM, per decode.Decoder.
func (f *File) Read(p []byte) (int, error) { return f.dec.Read(p) }

// Seek performs an immediate seek on the underlying decoder (used by the
// decode worker once it has taken a pending seek request).
func (f *File) Seek(offset int64, whence int) (int64, error) {
	return f.dec.Seek(offset, whence)
}

// Close releases the underlying decoder and, if owned, its file handle.
func (f *File) Close() error {
	if f.closer != nil {
		return f.closer.Close()
	}
	return nil
}
