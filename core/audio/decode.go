package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/go-audio/aiff"
	gowav "github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// Decode reads an encoded audio resource and returns a buffer conformed
// to the engine format (stereo int16 at SampleRate). The container is
// identified by its magic bytes, falling back to the extension of hint
// (a filename or URL). Containers without a native decoder (flac, m4a)
// go through ffmpeg when it is installed; otherwise decoding fails with
// ErrUnsupportedFormat.
func Decode(r io.Reader, hint string) (*Buffer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	if len(data) < 4 {
		return nil, ErrUnsupportedFormat
	}

	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return decodeWAV(data)
	case bytes.HasPrefix(data, []byte("FORM")):
		return decodeAIFF(data)
	case bytes.HasPrefix(data, []byte("OggS")):
		return decodeOgg(data)
	case bytes.HasPrefix(data, []byte("fLaC")):
		return decodeFallback(data)
	case bytes.HasPrefix(data, []byte("ID3")) || isMP3FrameSync(data):
		return decodeMP3(data)
	}

	// The magic bytes told us nothing, try the name.
	switch strings.ToLower(path.Ext(stripQuery(hint))) {
	case ".wav":
		return decodeWAV(data)
	case ".aiff", ".aif":
		return decodeAIFF(data)
	case ".ogg":
		return decodeOgg(data)
	case ".mp3":
		return decodeMP3(data)
	}
	return decodeFallback(data)
}

// decodeFallback hands unrecognized containers to ffmpeg.
func decodeFallback(data []byte) (*Buffer, error) {
	if !FFmpegAvailable() {
		return nil, ErrUnsupportedFormat
	}
	return decodeFFmpeg(data)
}

func stripQuery(s string) string {
	if i := strings.IndexByte(s, '?'); i >= 0 {
		return s[:i]
	}
	return s
}

func isMP3FrameSync(data []byte) bool {
	return data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

func decodeWAV(data []byte) (*Buffer, error) {
	d := gowav.NewDecoder(bytes.NewReader(data))
	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	if pcm == nil || pcm.Format == nil || pcm.Format.NumChannels == 0 {
		return nil, fmt.Errorf("decode wav: %w", ErrUnsupportedFormat)
	}
	samples := make([]int16, len(pcm.Data))
	for i, v := range pcm.Data {
		samples[i] = intSampleTo16(v, pcm.SourceBitDepth, true)
	}
	return conform(samples, pcm.Format.NumChannels, pcm.Format.SampleRate), nil
}

func decodeAIFF(data []byte) (*Buffer, error) {
	d := aiff.NewDecoder(bytes.NewReader(data))
	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode aiff: %w", err)
	}
	if pcm == nil || pcm.Format == nil || pcm.Format.NumChannels == 0 {
		return nil, fmt.Errorf("decode aiff: %w", ErrUnsupportedFormat)
	}
	samples := make([]int16, len(pcm.Data))
	for i, v := range pcm.Data {
		samples[i] = intSampleTo16(v, pcm.SourceBitDepth, false)
	}
	return conform(samples, pcm.Format.NumChannels, pcm.Format.SampleRate), nil
}

func decodeMP3(data []byte) (*Buffer, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode mp3: %w", err)
	}
	raw, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("decode mp3: %w", err)
	}
	// go-mp3 always yields 16-bit little-endian stereo.
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return conform(samples, 2, d.SampleRate()), nil
}

func decodeOgg(data []byte) (*Buffer, error) {
	floats, format, err := oggvorbis.ReadAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode ogg: %w", err)
	}
	samples := make([]int16, len(floats))
	for i, f := range floats {
		v := f * 32767
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		samples[i] = int16(v)
	}
	return conform(samples, format.Channels, format.SampleRate), nil
}

// intSampleTo16 scales a PCM sample of the given source bit depth to
// int16. 8-bit WAV data is unsigned, 8-bit AIFF data is signed.
func intSampleTo16(v, bitDepth int, unsigned8 bool) int16 {
	switch bitDepth {
	case 8:
		if unsigned8 {
			return int16((v - 128) << 8)
		}
		return int16(v << 8)
	case 16, 0:
		return int16(v)
	case 24:
		return int16(v >> 8)
	case 32:
		return int16(v >> 16)
	default:
		return int16(v)
	}
}

// conform normalizes channel count and sample rate to the engine format.
func conform(samples []int16, channels, rate int) *Buffer {
	switch {
	case channels == 1:
		stereo := make([]int16, len(samples)*2)
		for i, s := range samples {
			stereo[i*2] = s
			stereo[i*2+1] = s
		}
		samples = stereo
	case channels > 2:
		// Keep the front pair, drop the rest.
		frames := len(samples) / channels
		stereo := make([]int16, frames*2)
		for i := 0; i < frames; i++ {
			stereo[i*2] = samples[i*channels]
			stereo[i*2+1] = samples[i*channels+1]
		}
		samples = stereo
	}
	if rate > 0 && rate != SampleRate {
		samples = resampleLinear(samples, rate, SampleRate)
	}
	return NewBuffer(samples)
}

// resampleLinear converts interleaved stereo samples between rates with
// linear interpolation, which is plenty for preview playback.
func resampleLinear(samples []int16, from, to int) []int16 {
	frames := len(samples) / ChannelCount
	if frames == 0 {
		return nil
	}
	outFrames := int(int64(frames) * int64(to) / int64(from))
	out := make([]int16, outFrames*ChannelCount)
	ratio := float64(from) / float64(to)
	for i := 0; i < outFrames; i++ {
		srcPos := float64(i) * ratio
		i0 := int(srcPos)
		if i0 >= frames {
			i0 = frames - 1
		}
		i1 := i0 + 1
		if i1 >= frames {
			i1 = frames - 1
		}
		frac := srcPos - float64(i0)
		for ch := 0; ch < ChannelCount; ch++ {
			s0 := float64(samples[i0*ChannelCount+ch])
			s1 := float64(samples[i1*ChannelCount+ch])
			out[i*ChannelCount+ch] = int16(s0 + (s1-s0)*frac)
		}
	}
	return out
}
