package audio

import "encoding/binary"

// StreamHeader returns a WAV header for an endless live stream. The
// RIFF and data chunk sizes are set to 0xFFFFFFFF since the total
// length is unknown; players treat that as "read until the connection
// ends", which fits chunked HTTP delivery.
func StreamHeader() []byte {
	const byteRate = SampleRate * ChannelCount * BytesPerSample
	const blockAlign = ChannelCount * BytesPerSample

	h := make([]byte, 44)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], 0xFFFFFFFF)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(h[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(h[22:24], ChannelCount)
	binary.LittleEndian.PutUint32(h[24:28], SampleRate)
	binary.LittleEndian.PutUint32(h[28:32], byteRate)
	binary.LittleEndian.PutUint16(h[32:34], blockAlign)
	binary.LittleEndian.PutUint16(h[34:36], 8*BytesPerSample)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], 0xFFFFFFFF)
	return h
}

// FrameBytes encodes a rendered frame as little-endian PCM bytes.
func FrameBytes(frame []int16) []byte {
	out := make([]byte, len(frame)*BytesPerSample)
	for i, s := range frame {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
