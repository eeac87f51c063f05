package groove

import (
	"github.com/climp-audio/groove/internal/decodeengine"
	"github.com/climp-audio/groove/internal/media"
)

// FillMode selects when the decode worker considers the playlist "full"
// and stops decoding ahead of its sinks (spec.md §4.5).
type FillMode = decodeengine.FillMode

const (
	AnySinkFull   = decodeengine.AnySinkFull
	EverySinkFull = decodeengine.EverySinkFull
)

// Item is one playlist entry.
type Item struct {
	inner *decodeengine.Item
}

func wrapItem(it *decodeengine.Item) *Item {
	if it == nil {
		return nil
	}
	return &Item{inner: it}
}

// Next returns the item following it in its playlist, or nil at the tail.
func (it *Item) Next() *Item { return wrapItem(it.inner.Next()) }

// Prev returns the item preceding it in its playlist, or nil at the head.
func (it *Item) Prev() *Item { return wrapItem(it.inner.Prev()) }

// Gain returns the item's per-item linear gain.
func (it *Item) Gain() float64 { return it.inner.Gain }

// Peak returns the item's per-item peak.
func (it *Item) Peak() float64 { return it.inner.Peak }

// Playlist is an ordered list of playlist items driving one decode worker
// that fans decoded audio out to every attached Sink (spec.md §1–§2).
type Playlist struct {
	inner *decodeengine.Playlist
}

// NewPlaylist creates a Playlist with default global gain 1.0 and
// AnySinkFull fill mode, and starts its decode worker.
func NewPlaylist() *Playlist {
	return &Playlist{inner: decodeengine.New(nil)}
}

// Destroy stops the decode worker and releases the playlist. Attached
// sinks must be detached first.
func (pl *Playlist) Destroy() { pl.inner.Destroy() }

// Insert adds a new item wrapping file before the before item (or at the
// tail if before is nil), returning the new item.
func (pl *Playlist) Insert(file *File, gain, peak float64, before *Item) *Item {
	var beforeInner *decodeengine.Item
	if before != nil {
		beforeInner = before.inner
	}
	return wrapItem(pl.inner.Insert(file.inner, gain, peak, beforeInner))
}

// Remove unlinks item from the playlist, advancing the decode cursor past
// it and purging every sink's queue of buffers referencing it.
func (pl *Playlist) Remove(item *Item) { pl.inner.Remove(item.inner) }

// Clear removes every item from the playlist.
func (pl *Playlist) Clear() { pl.inner.Clear() }

// Count returns the number of items currently in the playlist.
func (pl *Playlist) Count() int { return pl.inner.Count() }

// Play clears the paused flag and resumes decoding.
func (pl *Playlist) Play() { pl.inner.Play() }

// Pause stops the decode worker from producing new buffers.
func (pl *Playlist) Pause() { pl.inner.Pause() }

// Playing reports whether the playlist is neither paused nor idle.
func (pl *Playlist) Playing() bool { return pl.inner.Playing() }

// Seek moves the decode cursor to item and requests a file-level seek to
// seconds, flushing every attached sink once the worker honors it.
func (pl *Playlist) Seek(item *Item, seconds float64) { pl.inner.Seek(item.inner, seconds) }

// SetGain sets the playlist's global linear gain.
func (pl *Playlist) SetGain(gain float64) { pl.inner.SetGain(gain) }

// SetItemGainPeak updates item's per-item gain and peak.
func (pl *Playlist) SetItemGainPeak(item *Item, gain, peak float64) {
	pl.inner.SetItemGainPeak(item.inner, gain, peak)
}

// SetFillMode changes when the decode worker considers itself "full".
func (pl *Playlist) SetFillMode(mode FillMode) { pl.inner.SetFillMode(mode) }

// Position returns the decode cursor's current item and seconds-within-item.
func (pl *Playlist) Position() (*Item, float64) {
	it, pos := pl.inner.Position()
	return wrapItem(it), pos
}

// InsertPlaylistFile parses an .m3u/.m3u8/.pls playlist file and inserts
// each of its playable entries before the before item (or at the tail if
// before is nil), in order. Entries that don't exist, aren't regular
// files, or name an unsupported format are skipped rather than failing
// the whole insert. It returns the items actually inserted.
func (pl *Playlist) InsertPlaylistFile(path string, before *Item) ([]*Item, error) {
	entries, err := media.ParseLocalPlaylist(path)
	if err != nil {
		return nil, &Error{Kind: FileSystem, Op: "InsertPlaylistFile", Err: err}
	}

	items := make([]*Item, 0, len(entries))
	for _, p := range media.FilterPlayableLocalPaths(entries) {
		f, err := Open(p)
		if err != nil {
			continue
		}
		items = append(items, pl.Insert(f, 1.0, 1.0, before))
	}
	return items, nil
}

// SupportedExt reports whether ext (including the leading dot) names a
// container groove can decode directly, or a playlist file
// InsertPlaylistFile can parse.
func SupportedExt(ext string) bool {
	return media.IsSupportedExt(ext) || media.IsPlaylistExt(ext)
}
