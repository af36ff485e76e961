package audio

import (
	"math"
	"time"
)

// Cue tone played before the microphone opens.
const (
	CueFrequency = 800.0
	CueDuration  = 300 * time.Millisecond
	CueAmplitude = 0.5
)

// Tone generates a sine wave of freq Hz lasting d in format f. amplitude is a
// fraction of full scale.
func Tone(f Format, freq float64, d time.Duration, amplitude float64) Clip {
	n := int(int64(f.SampleRate) * int64(d) / int64(time.Second))
	channels := max(f.Channels, 1)
	samples := make([]int16, n*channels)
	for i := range n {
		t := float64(i) / float64(f.SampleRate)
		s := clamp16(math.Sin(2*math.Pi*freq*t) * FullScale * amplitude)
		for ch := range channels {
			samples[i*channels+ch] = s
		}
	}
	return NewClip(PCM(samples), f)
}

// Cue returns the standard pre-listening beep in format f.
func Cue(f Format) Clip {
	return Tone(f, CueFrequency, CueDuration, CueAmplitude)
}
