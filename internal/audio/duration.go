// Package audio plays a transmission's audio content through an
// external playback subsystem while the rig's PTT is keyed.
package audio

import (
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// FileDuration computes the play duration of a wav file from its
// header.
func FileDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	dur, err := decoder.Duration()
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", path, err)
	}
	return dur, nil
}
