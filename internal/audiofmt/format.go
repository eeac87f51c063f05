// Package audiofmt defines groove's audio format triple and the small set
// of pure functions the public API exposes over it (spec.md §6's
// audio_formats_equal, channel_layout_count, channel_layout_default,
// sample_format_bytes_per_sample). It has no dependents outside the
// module's own internal packages, so every package that needs to describe
// "what shape is this PCM" shares one definition instead of redeclaring it.
package audiofmt

// SampleFormat names a PCM sample representation, interleaved or planar.
type SampleFormat int

const (
	SampleFormatU8 SampleFormat = iota
	SampleFormatS16
	SampleFormatS32
	SampleFormatFlt
	SampleFormatDbl
)

// BytesPerSample returns the storage size of a single sample in the given
// format.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFormatU8:
		return 1
	case SampleFormatS16:
		return 2
	case SampleFormatS32, SampleFormatFlt:
		return 4
	case SampleFormatDbl:
		return 8
	default:
		return 0
	}
}

func (f SampleFormat) String() string {
	switch f {
	case SampleFormatU8:
		return "u8"
	case SampleFormatS16:
		return "s16"
	case SampleFormatS32:
		return "s32"
	case SampleFormatFlt:
		return "flt"
	case SampleFormatDbl:
		return "dbl"
	default:
		return "unknown"
	}
}

// ChannelLayout is a bitmask of channel positions, one bit per channel
// present. Mono and stereo are the two layouts groove's decoders and device
// backend actually produce/consume; the bitmask shape is kept general so a
// future source with more exotic layouts (5.1, 7.1) has somewhere to grow.
type ChannelLayout uint64

const (
	ChannelFrontLeft ChannelLayout = 1 << iota
	ChannelFrontRight
	ChannelFrontCenter
	ChannelLowFrequency
	ChannelBackLeft
	ChannelBackRight
)

// ChannelLayoutMono and ChannelLayoutStereo are the layouts groove's decode
// and device backends actually use.
const (
	ChannelLayoutMono   = ChannelFrontCenter
	ChannelLayoutStereo = ChannelFrontLeft | ChannelFrontRight
)

// Count returns the number of channels set in the layout.
func (l ChannelLayout) Count() int {
	n := 0
	for l != 0 {
		n += int(l & 1)
		l >>= 1
	}
	return n
}

// ChannelLayoutCount returns the number of channels set in layout.
func ChannelLayoutCount(layout ChannelLayout) int { return layout.Count() }

// ChannelLayoutDefault returns the canonical layout for the given channel
// count: mono for 1, stereo for 2. Channel counts above 2 are not produced
// by any decoder in this module, so they report the stereo layout as the
// closest approximation rather than an error.
func ChannelLayoutDefault(count int) ChannelLayout {
	if count <= 1 {
		return ChannelLayoutMono
	}
	return ChannelLayoutStereo
}

// Format is groove's audio format triple plus the planar bit (spec.md §3).
type Format struct {
	SampleRate    int
	ChannelLayout ChannelLayout
	SampleFormat  SampleFormat
	Planar        bool
}

// Equal reports whether a and b describe the same format. Equality is
// structural on all four fields (spec.md §3).
func Equal(a, b Format) bool {
	return a.SampleRate == b.SampleRate &&
		a.ChannelLayout == b.ChannelLayout &&
		a.SampleFormat == b.SampleFormat &&
		a.Planar == b.Planar
}

// SampleFormatBytesPerSample returns the storage size of a single sample in
// the given format.
func SampleFormatBytesPerSample(f SampleFormat) int { return f.BytesPerSample() }

// BytesPerFrame returns the number of bytes one sample frame (one sample on
// every channel) occupies for interleaved storage of f.
func (f Format) BytesPerFrame() int {
	return f.SampleFormat.BytesPerSample() * f.ChannelLayout.Count()
}
