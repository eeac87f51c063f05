package groove

import "testing"

func TestAudioFormatsEqual(t *testing.T) {
	a := Format{SampleRate: 44100, ChannelLayout: ChannelLayoutStereo, SampleFormat: SampleFormatS16}
	b := a
	if !AudioFormatsEqual(a, b) {
		t.Fatal("AudioFormatsEqual(a, a) = false, want true")
	}
	b.SampleRate = 48000
	if AudioFormatsEqual(a, b) {
		t.Fatal("AudioFormatsEqual(a, b) = true with differing sample rates, want false")
	}
}

func TestChannelLayoutHelpers(t *testing.T) {
	if got := ChannelLayoutCount(ChannelLayoutStereo); got != 2 {
		t.Errorf("ChannelLayoutCount(stereo) = %d, want 2", got)
	}
	if got := ChannelLayoutDefault(1); got != ChannelLayoutMono {
		t.Errorf("ChannelLayoutDefault(1) = %v, want mono", got)
	}
	if got := ChannelLayoutDefault(2); got != ChannelLayoutStereo {
		t.Errorf("ChannelLayoutDefault(2) = %v, want stereo", got)
	}
}

func TestSampleFormatBytesPerSample(t *testing.T) {
	cases := []struct {
		format SampleFormat
		want   int
	}{
		{SampleFormatU8, 1},
		{SampleFormatS16, 2},
		{SampleFormatS32, 4},
		{SampleFormatDbl, 8},
	}
	for _, c := range cases {
		if got := SampleFormatBytesPerSample(c.format); got != c.want {
			t.Errorf("SampleFormatBytesPerSample(%v) = %d, want %d", c.format, got, c.want)
		}
	}
}
