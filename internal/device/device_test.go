package device

import (
	"errors"
	"io"
	"runtime"
	"testing"
)

func TestFriendlyAudioInitErrorTranslatesLinuxNoDevice(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("ALSA message translation only applies on linux")
	}
	err := errors.New("ALSA error at snd_pcm_open")
	got := friendlyAudioInitError(err)
	if got == err {
		t.Fatal("friendlyAudioInitError did not translate a known ALSA no-device error")
	}
}

func TestFriendlyAudioInitErrorPassesThroughUnknownError(t *testing.T) {
	err := errors.New("some other failure")
	if got := friendlyAudioInitError(err); got != err {
		t.Fatalf("friendlyAudioInitError(%v) = %v, want unchanged", err, got)
	}
}

func TestFriendlyAudioInitErrorNil(t *testing.T) {
	if got := friendlyAudioInitError(nil); got != nil {
		t.Fatalf("friendlyAudioInitError(nil) = %v, want nil", got)
	}
}

func TestPullReaderTranslatesExhaustionToEOF(t *testing.T) {
	r := &pullReader{pull: func(p []byte) (int, bool) { return 0, false }}
	n, err := r.Read(make([]byte, 16))
	if n != 0 || err != io.EOF {
		t.Fatalf("Read() = (%d, %v), want (0, io.EOF)", n, err)
	}
}

func TestPullReaderPassesThroughPartialReadsWithoutEOF(t *testing.T) {
	r := &pullReader{pull: func(p []byte) (int, bool) { return 4, true }}
	n, err := r.Read(make([]byte, 16))
	if n != 4 || err != nil {
		t.Fatalf("Read() = (%d, %v), want (4, nil)", n, err)
	}
}
