// Package device wraps github.com/ebitengine/oto/v3 behind the Open/Start/
// Pause/ClearBuffer/Latency surface spec.md §6 expects of the audio device
// library, following climp's initOto/warmAudioOutput/friendlyAudioInitError
// (internal/player/player.go) for context setup and Linux headless-VM error
// translation.
//
// Unlike climp, which keeps one process-wide oto.Context behind a
// sync.Once (it never needed to reopen for a different sample rate), Open
// always creates a fresh oto.Context: internal/playback's format-change
// reopen (spec.md §4.6) requires a new context whenever the decoded
// format's sample rate changes out from under the device.
package device

import (
	"bytes"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/climp-audio/groove/internal/audiofmt"
	"github.com/ebitengine/oto/v3"
)

// PullFunc is called by the device's real-time callback path to fill p
// with the next frames to play; it must never block or allocate. It
// returns the number of bytes written; ok is false once the source is
// permanently exhausted (the device then plays silence).
type PullFunc func(p []byte) (n int, ok bool)

// Device is one open real-time audio output stream.
type Device struct {
	ctx    *oto.Context
	player *oto.Player
	format audiofmt.Format
	pull   PullFunc
}

// Open creates a new oto.Context at format's sample rate/channel count and
// starts an oto.Player pulling from pull. The returned Device is paused;
// call Start to begin playback.
func Open(format audiofmt.Format, pull PullFunc) (*Device, error) {
	op := &oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.ChannelLayout.Count(),
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, friendlyAudioInitError(err)
	}
	<-ready
	if ctx.Err() != nil {
		return nil, friendlyAudioInitError(ctx.Err())
	}
	warmAudioOutput(ctx, format.SampleRate, format.ChannelLayout.Count())

	d := &Device{ctx: ctx, format: format, pull: pull}
	d.player = ctx.NewPlayer(&pullReader{pull: pull})
	return d, nil
}

// Start begins or resumes playback.
func (d *Device) Start() { d.player.Play() }

// Pause suspends playback without discarding the device's internal buffer.
func (d *Device) Pause() { d.player.Pause() }

// ClearBuffer discards whatever the device has already buffered by
// recreating the underlying oto.Player, the same dispose/recreate pattern
// climp's SeekTo/Restart use (internal/player/player.go).
func (d *Device) ClearBuffer() {
	wasPlaying := d.player.IsPlaying()
	d.player.Pause()
	_ = d.player.Close()
	d.player = d.ctx.NewPlayer(&pullReader{pull: d.pull})
	if wasPlaying {
		d.player.Play()
	}
}

// Latency estimates the device's software buffering delay from its
// currently queued byte count.
func (d *Device) Latency() time.Duration {
	bytesPerFrame := d.format.BytesPerFrame()
	if bytesPerFrame <= 0 || d.format.SampleRate <= 0 {
		return 0
	}
	frames := d.player.BufferedSize() / bytesPerFrame
	return time.Duration(frames) * time.Second / time.Duration(d.format.SampleRate)
}

// Close releases the device.
func (d *Device) Close() error {
	_ = d.player.Close()
	return d.ctx.Suspend()
}

func warmAudioOutput(ctx *oto.Context, sampleRate, channelCount int) {
	if runtime.GOOS != "windows" || ctx == nil {
		return
	}
	const warmup = 500 * time.Millisecond
	byteCount := sampleRate * channelCount * 2 * int(warmup) / int(time.Second)
	if byteCount <= 0 {
		return
	}
	silence := bytes.NewReader(make([]byte, byteCount))
	p := ctx.NewPlayer(silence)
	p.SetVolume(0)
	p.Play()
	time.Sleep(warmup)
	_ = p.Close()
}

func friendlyAudioInitError(err error) error {
	if err == nil {
		return nil
	}
	if runtime.GOOS != "linux" {
		return err
	}
	msg := strings.ToLower(err.Error())
	isNoDevice := strings.Contains(msg, "alsa error at snd_pcm_open") ||
		strings.Contains(msg, "unknown pcm default") ||
		strings.Contains(msg, "cannot find card '0'")
	if !isNoDevice {
		return err
	}
	return fmt.Errorf("no Linux audio output device found (ALSA default device unavailable): configure ALSA/PipeWire/PulseAudio or use a machine with audio: %w", err)
}

// pullReader adapts a PullFunc to io.Reader, the shape oto.Context.NewPlayer
// requires; Read runs on oto's real-time audio goroutine.
type pullReader struct {
	pull PullFunc
}

func (r *pullReader) Read(p []byte) (int, error) {
	n, ok := r.pull(p)
	if !ok && n == 0 {
		return 0, io.EOF
	}
	return n, nil
}
