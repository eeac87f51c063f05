package groove

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/dhowden/tag"
	frolovotag "github.com/frolovo22/tag"
	"github.com/google/uuid"
)

// Tag is a format-agnostic view over a media file's metadata. MP3 files are
// read and written through their ID3v2 frames directly; every other
// supported container goes through a generic tag library, with a read-only
// fallback for formats the generic writer cannot open.
//
// A Tag is not safe for concurrent use.
type Tag struct {
	path string
	ext  string

	title, artist, album string
	dirty                bool

	id3     *id3v2.Tag
	generic frolovotag.Metadata
}

// OpenTag reads the tag of the file at path. The returned Tag reflects the
// fields groove understands (title, artist, album); unrecognized fields on
// disk are preserved across Save.
func OpenTag(path string) (*Tag, error) {
	ext := strings.ToLower(filepath.Ext(path))
	t := &Tag{path: path, ext: ext}

	if ext == ".mp3" {
		id3tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
		if err != nil {
			return nil, &Error{Kind: FileSystem, Op: "OpenTag", Err: err}
		}
		t.id3 = id3tag
		t.title = strings.TrimSpace(id3tag.Title())
		t.artist = strings.TrimSpace(id3tag.Artist())
		t.album = strings.TrimSpace(id3tag.Album())
		return t, nil
	}

	generic, err := frolovotag.ReadFile(path)
	if err == nil {
		t.generic = generic
		t.title = strings.TrimSpace(generic.GetTitle())
		t.artist = strings.TrimSpace(generic.GetArtist())
		t.album = strings.TrimSpace(generic.GetAlbum())
		return t, nil
	}

	// Fall back to a read-only generic reader for formats frolovo22/tag
	// cannot parse; Save on such a Tag returns an error rather than
	// silently discarding the edit.
	f, ferr := os.Open(path)
	if ferr != nil {
		return nil, &Error{Kind: FileSystem, Op: "OpenTag", Err: ferr}
	}
	defer f.Close()

	m, rerr := tag.ReadFrom(f)
	if rerr != nil {
		return nil, &Error{Kind: UnknownFormat, Op: "OpenTag", Err: err}
	}
	t.title = strings.TrimSpace(m.Title())
	t.artist = strings.TrimSpace(m.Artist())
	t.album = strings.TrimSpace(m.Album())
	return t, nil
}

// Title returns the track title, falling back to the filename stem when the
// file carries no title frame.
func (t *Tag) Title() string {
	if t.title != "" {
		return t.title
	}
	base := filepath.Base(t.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Artist returns the track artist.
func (t *Tag) Artist() string { return t.artist }

// Album returns the track album.
func (t *Tag) Album() string { return t.album }

// SetTitle stages a new title to be written on the next Save.
func (t *Tag) SetTitle(v string) { t.title = v; t.dirty = true }

// SetArtist stages a new artist to be written on the next Save.
func (t *Tag) SetArtist(v string) { t.artist = v; t.dirty = true }

// SetAlbum stages a new album to be written on the next Save.
func (t *Tag) SetAlbum(v string) { t.album = v; t.dirty = true }

// Save writes staged edits back to the file the Tag was opened from. Save on
// a Tag with no staged edits is a no-op that returns nil (spec Open Question
// #4: Save on a clean file silently succeeds).
func (t *Tag) Save() error {
	return t.SaveAs(t.path)
}

// SaveAs writes staged edits to path, which may differ from the file the Tag
// was opened from.
func (t *Tag) SaveAs(path string) error {
	if !t.dirty && path == t.path {
		return nil
	}

	switch {
	case t.id3 != nil:
		t.id3.SetTitle(t.title)
		t.id3.SetArtist(t.artist)
		t.id3.SetAlbum(t.album)
		if path == t.path {
			if err := t.id3.Save(); err != nil {
				return &Error{Kind: FileSystem, Op: "Save", Err: err}
			}
			t.dirty = false
			return nil
		}
		return t.saveID3Copy(path)
	case t.generic != nil:
		t.generic.SetTitle(t.title)
		t.generic.SetArtist(t.artist)
		t.generic.SetAlbum(t.album)
		if err := t.generic.SaveFile(path); err != nil {
			return &Error{Kind: FileSystem, Op: "SaveAs", Err: err}
		}
		t.dirty = false
		return nil
	default:
		return &Error{Kind: UnknownFormat, Op: "SaveAs",
			Err: fmt.Errorf("%s was opened read-only (no generic tag writer for this format)", t.path)}
	}
}

// saveID3Copy duplicates the source file's bytes to path, then writes the
// staged ID3v2 frames onto the copy, since id3v2.Tag.Save always targets the
// file it was opened from.
func (t *Tag) saveID3Copy(path string) error {
	src, err := os.Open(t.path)
	if err != nil {
		return &Error{Kind: FileSystem, Op: "SaveAs", Err: err}
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return &Error{Kind: FileSystem, Op: "SaveAs", Err: err}
	}
	if _, err := dst.ReadFrom(src); err != nil {
		dst.Close()
		return &Error{Kind: FileSystem, Op: "SaveAs", Err: err}
	}
	if err := dst.Close(); err != nil {
		return &Error{Kind: FileSystem, Op: "SaveAs", Err: err}
	}

	copyTag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return &Error{Kind: FileSystem, Op: "SaveAs", Err: err}
	}
	defer copyTag.Close()
	copyTag.SetTitle(t.title)
	copyTag.SetArtist(t.artist)
	copyTag.SetAlbum(t.album)
	if err := copyTag.Save(); err != nil {
		return &Error{Kind: FileSystem, Op: "SaveAs", Err: err}
	}
	t.dirty = false
	return nil
}

// Close releases resources held open by the underlying tag library. Callers
// should Close a Tag once they are done reading or writing it.
func (t *Tag) Close() error {
	if t.id3 != nil {
		return t.id3.Close()
	}
	return nil
}

// CreateRandName returns a filesystem-safe random basename (no extension):
// a random UUID with its hyphens removed. SaveAs does not use it; it writes
// straight to the destination path rather than through a temporary copy.
func CreateRandName() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")
}
