package whisper

import "encoding/binary"

// pcmToFloat32Mono converts 16-bit little-endian PCM to mono float32 samples
// in [-1.0, 1.0], averaging channels when there is more than one.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	channels = max(channels, 1)
	frames := len(pcm) / (2 * channels)
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sum += float32(int16(binary.LittleEndian.Uint16(pcm[idx:]))) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
