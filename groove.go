// Package groove is a playlist-driven audio graph library: one decoder
// fans out through a lazily rebuilt filter graph to an arbitrary number of
// heterogeneous sinks (playback, encoding, and whatever else a caller
// attaches through Sink), each pulling audio in the format it requested.
package groove

import "github.com/climp-audio/groove/internal/logging"

// Version numbers, mirroring original_source/groove/groove.h's
// GROOVE_VERSION_MAJOR/MINOR/PATCH.
const (
	VersionMajor = 4
	VersionMinor = 3
	VersionPatch = 0
)

// Version returns the library's version string.
func Version() string {
	return "4.3.0"
}

// Init prepares groove for use. Unlike the C library this is ported from,
// no global codec/network registration is needed, but Init still exists
// to set the default (quiet) logging level and give callers a single
// startup call to pair with Finish.
func Init() error {
	logging.SetLevel(logging.Quiet)
	return nil
}

// Finish releases any process-wide state Init acquired. Currently a
// no-op, kept for API symmetry with Init.
func Finish() {}

// SetLogging sets the minimum verbosity of messages groove logs, on
// spec.md §6's QUIET/ERROR/WARNING/INFO scale.
func SetLogging(level int) {
	logging.SetLevel(logging.Level(level))
}

// LoudnessToReplayGain converts an EBU R128 integrated loudness
// measurement (LUFS) to a ReplayGain 2.0 adjustment in dB, using the
// reference-level convention original_source/src/gain_analysis.h's
// loudness detector was calibrated against.
func LoudnessToReplayGain(loudnessDB float64) float64 {
	return 89.0 - loudnessDB
}
