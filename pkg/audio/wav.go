package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// ErrInvalidWAV is returned by [DecodeWAV] for input that is not 16-bit PCM
// RIFF/WAVE.
var ErrInvalidWAV = errors.New("audio: invalid wav")

// wavHeaderSize is the size of a canonical PCM RIFF header.
const wavHeaderSize = 44

// EncodeWAV wraps the clip's PCM in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(c Clip) []byte {
	channels := max(c.Channels, 1)
	byteRate := c.SampleRate * channels * 2
	blockAlign := channels * 2
	dataLen := len(c.PCM)

	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + dataLen)

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(c.SampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(c.PCM)

	return buf.Bytes()
}

// DecodeWAV walks the RIFF chunks of b and returns the PCM of the data chunk.
// The fmt chunk may be longer than 16 bytes and may be followed by other
// chunks before data. Only 16-bit integer PCM is accepted.
func DecodeWAV(b []byte) (Clip, error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return Clip{}, ErrInvalidWAV
	}
	var (
		c      Clip
		gotFmt bool
	)
	for off := 12; off+8 <= len(b); {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		body := b[off+8:]
		switch id {
		case "fmt ":
			if size < 16 || len(body) < 16 {
				return Clip{}, ErrInvalidWAV
			}
			if binary.LittleEndian.Uint16(body[0:2]) != 1 || binary.LittleEndian.Uint16(body[14:16]) != 16 {
				return Clip{}, ErrInvalidWAV
			}
			c.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			c.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			gotFmt = true
		case "data":
			if !gotFmt {
				return Clip{}, ErrInvalidWAV
			}
			// Streaming servers write 0 or 0xFFFFFFFF when the length is unknown.
			size = min(size, len(body))
			if size == 0 {
				size = len(body)
			}
			c.PCM = body[:size&^1]
			return c, nil
		}
		off += 8 + size + size%2
	}
	return Clip{}, ErrInvalidWAV
}
