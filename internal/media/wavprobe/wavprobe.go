// Package wavprobe derives the exact duration of a mono WAV rendering
// directly from its header, avoiding a second ffprobe round-trip after the
// Media Tool Adapter has already extracted the audio (§4.C step 5).
package wavprobe

import (
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// Duration reads the WAV header at path and returns its duration as
// reported by the decoder. It does not decode the PCM payload.
func Duration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return 0, fmt.Errorf("%s is not a valid WAV file", path)
	}

	d, err := decoder.Duration()
	if err != nil {
		return 0, fmt.Errorf("read wav duration: %w", err)
	}
	return d, nil
}
