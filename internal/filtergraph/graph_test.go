package filtergraph

import (
	"testing"

	"github.com/climp-audio/groove/internal/audiofmt"
)

func TestResolveVolumeStage(t *testing.T) {
	tests := []struct {
		name      string
		vol, peak float64
		want      VolumeStage
	}{
		{"half volume scaled linearly", 0.5, 1.0, StageLinear},
		{"unity passthrough", 1.0, 1.0, StageNone},
		{"peak above one bypassed", 1.5, 2.0, StageCompand},
		{"peak above one with vol below one stays linear", 0.5, 2.0, StageLinear},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stage, _ := ResolveVolumeStage(tc.vol, tc.peak)
			if stage != tc.want {
				t.Fatalf("ResolveVolumeStage(%v, %v) stage = %v, want %v", tc.vol, tc.peak, stage, tc.want)
			}
		})
	}
}

func TestNeedsRebuildTriggers(t *testing.T) {
	g := New()
	fIn := audiofmt.Format{SampleRate: 44100, ChannelLayout: audiofmt.ChannelLayoutStereo, SampleFormat: audiofmt.SampleFormatS16}

	if !g.NeedsRebuild(fIn, 1.0, 1.0, 1) {
		t.Fatal("NeedsRebuild() = false before first Rebuild()")
	}
	g.Rebuild(fIn, 1.0, 1.0, 1)
	if g.NeedsRebuild(fIn, 1.0, 1.0, 1) {
		t.Fatal("NeedsRebuild() = true with unchanged cache key")
	}

	if !g.NeedsRebuild(fIn, 0.8, 1.0, 1) {
		t.Fatal("NeedsRebuild() = false after vol changed")
	}
	g.Rebuild(fIn, 0.8, 1.0, 1)

	if !g.NeedsRebuild(fIn, 0.8, 1.0, 2) {
		t.Fatal("NeedsRebuild() = false after group_count changed")
	}
	g.Rebuild(fIn, 0.8, 1.0, 2)

	g.MarkDirty()
	if !g.NeedsRebuild(fIn, 0.8, 1.0, 2) {
		t.Fatal("NeedsRebuild() = false after MarkDirty()")
	}
}

func TestProcessProducesOneTapPerRequest(t *testing.T) {
	fIn := audiofmt.Format{SampleRate: 44100, ChannelLayout: audiofmt.ChannelLayoutStereo, SampleFormat: audiofmt.SampleFormatS16}

	// 100 stereo frames of a constant tone.
	chunk := make([]int16, 100*2)
	for i := range chunk {
		chunk[i] = 1000
	}

	requests := []TapRequest{
		{Format: audiofmt.Format{SampleRate: 44100, ChannelLayout: audiofmt.ChannelLayoutStereo, SampleFormat: audiofmt.SampleFormatS16}},
		{Format: audiofmt.Format{SampleRate: 48000, ChannelLayout: audiofmt.ChannelLayoutMono, SampleFormat: audiofmt.SampleFormatFlt}},
	}

	taps := Process(chunk, fIn, 1.0, 1.0, requests)
	if len(taps) != 2 {
		t.Fatalf("len(taps) = %d, want 2", len(taps))
	}
	if taps[0].Frames != 100 {
		t.Fatalf("taps[0].Frames = %d, want 100 (no resample, unity gain)", taps[0].Frames)
	}
	if taps[1].Format.SampleRate != 48000 {
		t.Fatalf("taps[1].Format.SampleRate = %d, want 48000", taps[1].Format.SampleRate)
	}
	// Upsampling 44.1k -> 48k should roughly scale the frame count.
	wantApprox := 100 * 48000 / 44100
	if d := taps[1].Frames - wantApprox; d < -5 || d > 5 {
		t.Fatalf("taps[1].Frames = %d, want ~%d", taps[1].Frames, wantApprox)
	}
}

func TestSoftLimitUnityBelowBreakpoint(t *testing.T) {
	if got := softLimit(0.5, 0.794); got != 0.5 {
		t.Fatalf("softLimit(0.5) = %v, want 0.5 (unity below breakpoint)", got)
	}
	if got := softLimit(-0.5, 0.794); got != -0.5 {
		t.Fatalf("softLimit(-0.5) = %v, want -0.5", got)
	}
	if got := softLimit(2.0, 0.794); got >= 1.0 || got <= 0.794 {
		t.Fatalf("softLimit(2.0) = %v, want in (0.794, 1.0)", got)
	}
}
