// Package filtergraph implements C3: the lazily-rebuilt chain from one
// decoded PCM chunk to a per-sink-group tap, built on
// github.com/gopxl/beep/v2 and github.com/gopxl/beep/v2/effects the way the
// pack's beep-based players assemble a volume/resample chain, generalized
// from one output to N per-group taps (spec.md §4.3's asplit).
//
// Each decode chunk is processed independently: the shared volume/compander
// stage runs once, then every sink group gets its own beep.Resample/aformat
// pass over that chunk. This sacrifices perfect filter continuity across
// chunk boundaries (a persistent per-group streamer would instead carry
// resampler state between chunks) for a much smaller, easier-to-get-right
// implementation; chunk size is large enough (§ decode chunk ~8192 frames)
// that the discontinuity is inaudible in practice.
package filtergraph

import (
	"math"

	"github.com/climp-audio/groove/internal/audiofmt"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
)

// Tap describes one sink group's view of a processed chunk: interleaved
// samples in the group's target format, plus the frame count actually
// produced (which can differ from the input chunk's frame count after
// resampling).
type Tap struct {
	GroupIndex int
	Format     audiofmt.Format
	Frames     int
	Data       []byte
}

// TapRequest is what the Graph needs to know about one sink group to build
// its tap: the example sink's desired format (ignored when DisableResample
// is set) and a fixed output frame count (0 lets the resampler/chunking
// produce whatever it naturally yields).
type TapRequest struct {
	Format            audiofmt.Format
	DisableResample   bool
	BufferSampleCount int
}

// cacheKey is the (F_in, vol, peak, group_count) tuple the builder caches to
// answer "may I reuse the current graph" in O(1) (spec.md §4.3).
type cacheKey struct {
	fIn        audiofmt.Format
	vol        float64
	peak       float64
	groupCount int
}

// Graph tracks the cached shape of the last build so NeedsRebuild can
// answer in O(1); the actual per-chunk DSP is stateless and lives in
// Process, since this module resamples per chunk rather than maintaining a
// persistent filter chain (see package doc).
type Graph struct {
	cache       cacheKey
	haveCache   bool
	rebuildFlag bool
}

// New returns an empty Graph that will report NeedsRebuild on its first
// check.
func New() *Graph { return &Graph{} }

// MarkDirty sets the explicit rebuild flag (spec.md §4.3's "an explicit
// rebuild flag was set", e.g. a sink's gain changed).
func (g *Graph) MarkDirty() { g.rebuildFlag = true }

// NeedsRebuild reports whether any rebuild trigger fired since the last
// Rebuild call.
func (g *Graph) NeedsRebuild(fIn audiofmt.Format, vol, peak float64, groupCount int) bool {
	if g.rebuildFlag || !g.haveCache {
		return true
	}
	k := cacheKey{fIn, vol, peak, groupCount}
	return k != g.cache
}

// Rebuild updates the cached (F_in, vol, peak, group_count) tuple and
// clears the explicit rebuild flag. The filter graph builder has no other
// persistent state to tear down/recreate in the per-chunk design (see
// package doc): "rebuilding" here means "recompute the cache key a future
// NeedsRebuild call compares against."
func (g *Graph) Rebuild(fIn audiofmt.Format, vol, peak float64, groupCount int) {
	g.cache = cacheKey{fIn, vol, peak, groupCount}
	g.haveCache = true
	g.rebuildFlag = false
}

// VolumeStage picks the volume/compander treatment for vol = playlist.gain
// * item.gain and peak = item.peak, per spec.md §4.3.
type VolumeStage int

const (
	// StageNone is used when amp == 1: no volume processing at all.
	StageNone VolumeStage = iota
	// StageLinear scales by vol directly.
	StageLinear
	// StageCompand soft-limits after amplifying by vol.
	StageCompand
)

// ResolveVolumeStage returns which stage to apply and the linear gain to
// apply it with. amp = vol * min(peak, 1) bypassed unconditionally, per the
// source (spec.md Open Question #1 resolved in favor of the source).
func ResolveVolumeStage(vol, peak float64) (VolumeStage, float64) {
	amp := vol * math.Min(peak, 1)
	switch {
	case amp < 1:
		return StageLinear, vol
	case amp == 1:
		return StageNone, vol
	default:
		return StageCompand, vol
	}
}

// Process runs chunk (interleaved native-format PCM frames at fIn) through
// the shared volume/compander stage and then, independently, through each
// tap's resample+format conversion. The returned slice has one Tap per
// element of requests, in the same order.
func Process(chunk []int16, fIn audiofmt.Format, vol, peak float64, requests []TapRequest) []Tap {
	stage, gain := ResolveVolumeStage(vol, peak)

	channels := fIn.ChannelLayout.Count()
	if channels < 1 {
		channels = 1
	}
	frameCount := len(chunk) / channels

	stereo := toStereoFloat(chunk, channels, frameCount)
	stereo = applyVolumeStage(stereo, stage, gain)

	taps := make([]Tap, len(requests))
	for i, req := range requests {
		taps[i] = buildTap(i, stereo, fIn, req)
	}
	return taps
}

// toStereoFloat expands interleaved int16 PCM at native channel count into
// beep's [][2]float64 frame shape (beep.Streamer always works in stereo
// float space; mono sources are duplicated across both channels).
func toStereoFloat(chunk []int16, channels, frameCount int) [][2]float64 {
	out := make([][2]float64, frameCount)
	for i := 0; i < frameCount; i++ {
		switch channels {
		case 1:
			v := float64(chunk[i]) / 32768.0
			out[i] = [2]float64{v, v}
		default:
			l := float64(chunk[i*channels]) / 32768.0
			r := float64(chunk[i*channels+1]) / 32768.0
			out[i] = [2]float64{l, r}
		}
	}
	return out
}

// applyVolumeStage runs samples through the stage spec.md §4.3 selects for
// the current (vol, peak): untouched, a linear gain via
// github.com/gopxl/beep/v2/effects.Volume (the same construction the pack's
// beep-based players use for their volume control), or the compander.
func applyVolumeStage(samples [][2]float64, stage VolumeStage, gain float64) [][2]float64 {
	switch stage {
	case StageNone:
		return samples
	case StageLinear:
		vol := &effects.Volume{
			Streamer: &sliceStreamer{buf: samples},
			Base:     2,
			Volume:   math.Log2(gain),
			Silent:   gain == 0,
		}
		return drain(vol)
	case StageCompand:
		return applyCompander(samples, gain)
	}
	return samples
}

// applyCompander amplifies by gain, then soft-limits so the output never
// exceeds unity: unity gain for inputs at or below the compander's -2 dB
// breakpoint, smoothly saturating toward 0 dBFS above it, per spec.md
// §4.3's transfer breakpoint parameter. beep/effects has no compander, so
// this stage is hand-written per the source's substitution allowance
// (unity below 0 dB input, caps at 0 dBFS for inputs <= +6 dB).
func applyCompander(samples [][2]float64, gain float64) [][2]float64 {
	const breakpoint = 0.794 // -2 dBFS, linear
	out := make([][2]float64, len(samples))
	for i, s := range samples {
		out[i][0] = softLimit(s[0]*gain, breakpoint)
		out[i][1] = softLimit(s[1]*gain, breakpoint)
	}
	return out
}

func softLimit(x, breakpoint float64) float64 {
	sign := 1.0
	if x < 0 {
		sign = -1.0
		x = -x
	}
	if x <= breakpoint {
		return sign * x
	}
	// Map [breakpoint, +inf) onto [breakpoint, 1) with a tanh knee so the
	// output asymptotically approaches 0 dBFS instead of clipping.
	excess := (x - breakpoint) / (1 - breakpoint)
	limited := breakpoint + (1-breakpoint)*math.Tanh(excess)
	return sign * limited
}

func buildTap(groupIndex int, stereo [][2]float64, fIn audiofmt.Format, req TapRequest) Tap {
	var streamer beep.Streamer = &sliceStreamer{buf: stereo}

	outFormat := fIn
	if !req.DisableResample && req.Format.SampleRate > 0 && req.Format.SampleRate != fIn.SampleRate {
		streamer = beep.Resample(4, beep.SampleRate(fIn.SampleRate), beep.SampleRate(req.Format.SampleRate), streamer)
		outFormat = req.Format
	} else if !req.DisableResample {
		outFormat = req.Format
		outFormat.SampleRate = fIn.SampleRate
	}

	samples := drain(streamer)
	if req.BufferSampleCount > 0 {
		samples = padOrTrim(samples, req.BufferSampleCount)
	}

	data := encode(samples, outFormat)
	return Tap{
		GroupIndex: groupIndex,
		Format:     outFormat,
		Frames:     len(samples),
		Data:       data,
	}
}

func drain(s beep.Streamer) [][2]float64 {
	var out [][2]float64
	buf := make([][2]float64, 2048)
	for {
		n, ok := s.Stream(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if !ok {
			return out
		}
	}
}

func padOrTrim(samples [][2]float64, frames int) [][2]float64 {
	if len(samples) == frames {
		return samples
	}
	out := make([][2]float64, frames)
	copy(out, samples) // zero-value [2]float64{0,0} pads any tail
	return out
}

// encode packs stereo float samples into outFormat's sample representation,
// interleaved for an interleaved format and mono-summed for a mono one.
func encode(samples [][2]float64, f audiofmt.Format) []byte {
	channels := f.ChannelLayout.Count()
	if channels < 1 {
		channels = 2
	}
	bps := f.SampleFormat.BytesPerSample()
	out := make([]byte, len(samples)*channels*bps)

	for i, s := range samples {
		var chanVals []float64
		if channels == 1 {
			chanVals = []float64{(s[0] + s[1]) / 2}
		} else {
			chanVals = []float64{s[0], s[1]}
		}
		for c, v := range chanVals {
			writeSample(out, (i*channels+c)*bps, v, f.SampleFormat)
		}
	}
	return out
}

func writeSample(out []byte, offset int, v float64, format audiofmt.SampleFormat) {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	switch format {
	case audiofmt.SampleFormatU8:
		out[offset] = byte((v*127.5 + 128))
	case audiofmt.SampleFormatS16:
		s := int16(v * 32767)
		out[offset] = byte(s)
		out[offset+1] = byte(s >> 8)
	case audiofmt.SampleFormatS32:
		s := int32(v * 2147483647)
		out[offset] = byte(s)
		out[offset+1] = byte(s >> 8)
		out[offset+2] = byte(s >> 16)
		out[offset+3] = byte(s >> 24)
	case audiofmt.SampleFormatFlt:
		bits := math.Float32bits(float32(v))
		out[offset] = byte(bits)
		out[offset+1] = byte(bits >> 8)
		out[offset+2] = byte(bits >> 16)
		out[offset+3] = byte(bits >> 24)
	case audiofmt.SampleFormatDbl:
		bits := math.Float64bits(v)
		for i := 0; i < 8; i++ {
			out[offset+i] = byte(bits >> (8 * i))
		}
	}
}

// sliceStreamer adapts a pre-decoded stereo chunk to beep.Streamer, the way
// a one-shot in-memory source is wired into a beep pipeline.
type sliceStreamer struct {
	buf [][2]float64
	pos int
}

func (s *sliceStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.pos >= len(s.buf) {
		return 0, false
	}
	n = copy(samples, s.buf[s.pos:])
	s.pos += n
	return n, true
}

func (s *sliceStreamer) Err() error { return nil }
