package groove

import "github.com/climp-audio/groove/internal/audiofmt"

// Format, SampleFormat, and ChannelLayout are groove's public audio format
// vocabulary (spec.md §3), aliased directly onto internal/audiofmt's types
// so every internal package and the public API describe "what shape is
// this PCM" with the same definition.
type (
	Format        = audiofmt.Format
	SampleFormat  = audiofmt.SampleFormat
	ChannelLayout = audiofmt.ChannelLayout
)

const (
	SampleFormatU8  = audiofmt.SampleFormatU8
	SampleFormatS16 = audiofmt.SampleFormatS16
	SampleFormatS32 = audiofmt.SampleFormatS32
	SampleFormatFlt = audiofmt.SampleFormatFlt
	SampleFormatDbl = audiofmt.SampleFormatDbl
)

const (
	ChannelLayoutMono   = audiofmt.ChannelLayoutMono
	ChannelLayoutStereo = audiofmt.ChannelLayoutStereo
)

// AudioFormatsEqual reports whether a and b describe the same format
// (spec.md §6's audio_formats_equal).
func AudioFormatsEqual(a, b Format) bool { return audiofmt.Equal(a, b) }

// ChannelLayoutCount returns the number of channels set in layout.
func ChannelLayoutCount(layout ChannelLayout) int { return layout.Count() }

// ChannelLayoutDefault returns the canonical layout for count channels.
func ChannelLayoutDefault(count int) ChannelLayout { return audiofmt.ChannelLayoutDefault(count) }

// SampleFormatBytesPerSample returns the storage size of one sample in
// format.
func SampleFormatBytesPerSample(format SampleFormat) int { return format.BytesPerSample() }
