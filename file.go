package groove

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/climp-audio/groove/internal/decode"
	"github.com/climp-audio/groove/internal/decodeengine"
)

// MetadataFlag modifies MetadataGet's key lookup and MetadataSet's key
// lookup and write behavior (spec.md §6's "Metadata flags").
type MetadataFlag int

const (
	// MatchCase requires an exact-case key match in MetadataGet and
	// MetadataSet; by default key lookups are case-insensitive.
	MatchCase MetadataFlag = 1
	// DontOverwrite makes MetadataSet a no-op when the key already holds
	// a non-empty value.
	DontOverwrite MetadataFlag = 16
	// Append joins value onto the key's existing value instead of
	// replacing it.
	Append MetadataFlag = 32
)

// File is an open playlist-item source: a decodable audio stream plus the
// metadata tag backing metadata_get/metadata_set/Save/SaveAs (spec.md §6).
// A File is not safe for concurrent use; internal/decodeengine.File
// provides the mutex-guarded seek-request path a Playlist's decode worker
// needs once the File is inserted.
type File struct {
	path    string
	ext     string
	inner   *decodeengine.File
	tag     *Tag
	tagErr  error
	tagOpen bool
}

// Open opens path, detects its container/codec, and returns a File ready
// to be inserted into a Playlist. The underlying OS file handle is owned
// by the returned File and released by Close.
func Open(path string) (*File, error) {
	osFile, err := os.Open(path)
	if err != nil {
		return nil, &Error{Kind: FileSystem, Op: "Open", Err: err}
	}

	dec, err := decode.Open(osFile)
	if err != nil {
		osFile.Close()
		return nil, &Error{Kind: UnknownFormat, Op: "Open", Err: err}
	}

	return &File{
		path:  path,
		ext:   strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")),
		inner: decodeengine.NewFile(dec),
	}, nil
}

// Close releases the File's decoder, OS file handle, and tag library
// handle (if metadata was read or written).
func (f *File) Close() error {
	var tagErr error
	if f.tag != nil {
		tagErr = f.tag.Close()
	}
	if err := f.inner.Close(); err != nil {
		return &Error{Kind: FileSystem, Op: "Close", Err: err}
	}
	if tagErr != nil {
		return &Error{Kind: FileSystem, Op: "Close", Err: tagErr}
	}
	return nil
}

// AudioFormat reports the file's native decode format (spec.md §3).
func (f *File) AudioFormat() Format { return f.inner.Format() }

// Duration returns the file's length in seconds, or -1 if unknown.
func (f *File) Duration() float64 {
	length := f.inner.Length()
	if length < 0 {
		return -1
	}
	format := f.AudioFormat()
	bytesPerFrame := format.BytesPerFrame()
	if bytesPerFrame <= 0 || format.SampleRate <= 0 {
		return -1
	}
	frames := float64(length) / float64(bytesPerFrame)
	return frames / float64(format.SampleRate)
}

// ShortNames returns the lowercase container extension groove detected
// this file as (e.g. "mp3"), mirroring libgroove's demuxer short-name
// string.
func (f *File) ShortNames() string { return f.ext }

// tagLazy opens (and caches) this file's Tag on first metadata access.
func (f *File) tagLazy() (*Tag, error) {
	if f.tagOpen {
		return f.tag, f.tagErr
	}
	f.tagOpen = true
	f.tag, f.tagErr = OpenTag(f.path)
	return f.tag, f.tagErr
}

// MetadataGet reads one of the fields groove's Tag understands
// ("title", "artist", "album"); the key comparison is case-insensitive
// unless flags includes MatchCase. It reports false if key names an
// unrecognized field or the tag failed to open.
func (f *File) MetadataGet(key string, flags MetadataFlag) (string, bool) {
	tag, err := f.tagLazy()
	if err != nil {
		return "", false
	}
	match := strings.EqualFold
	if flags&MatchCase != 0 {
		match = func(a, b string) bool { return a == b }
	}
	switch {
	case match(key, "title"):
		return tag.Title(), true
	case match(key, "artist"):
		return tag.Artist(), true
	case match(key, "album"):
		return tag.Album(), true
	default:
		return "", false
	}
}

// MetadataSet stages a new value for one of the fields groove's Tag
// understands ("title", "artist", "album"), to be written on the next
// Save/SaveAs. DontOverwrite skips fields that already hold a non-empty
// value; Append joins value onto the existing value instead of replacing
// it.
func (f *File) MetadataSet(key, value string, flags MetadataFlag) error {
	tag, err := f.tagLazy()
	if err != nil {
		return &Error{Kind: FileSystem, Op: "MetadataSet", Err: err}
	}

	var current string
	var setter func(string)
	match := strings.EqualFold
	if flags&MatchCase != 0 {
		match = func(a, b string) bool { return a == b }
	}
	switch {
	case match(key, "title"):
		current, setter = tag.Title(), tag.SetTitle
	case match(key, "artist"):
		current, setter = tag.Artist(), tag.SetArtist
	case match(key, "album"):
		current, setter = tag.Album(), tag.SetAlbum
	default:
		return &Error{Kind: UnknownFormat, Op: "MetadataSet",
			Err: errUnknownMetadataKey(key)}
	}

	if flags&DontOverwrite != 0 && current != "" {
		return nil
	}
	if flags&Append != 0 && current != "" {
		value = current + "; " + value
	}
	setter(value)
	return nil
}

// Save writes any staged metadata edits back to the file Open read from.
func (f *File) Save() error {
	if f.tag == nil {
		return nil
	}
	return f.tag.Save()
}

// SaveAs writes any staged metadata edits to a new path.
func (f *File) SaveAs(path string) error {
	if f.tag == nil {
		return nil
	}
	return f.tag.SaveAs(path)
}

type errUnknownMetadataKey string

func (e errUnknownMetadataKey) Error() string { return "unknown metadata key: " + string(e) }
