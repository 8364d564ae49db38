package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
)

// ffmpegBinary is the transcoder used for containers the native
// decoders cannot read (flac, m4a). Resolved through PATH unless
// SetFFmpegPath points at a specific binary.
var (
	ffmpegMu     sync.RWMutex
	ffmpegBinary = "ffmpeg"
)

// SetFFmpegPath overrides the ffmpeg binary used for fallback decoding.
// An empty path keeps the current setting.
func SetFFmpegPath(path string) {
	if path == "" {
		return
	}
	ffmpegMu.Lock()
	ffmpegBinary = path
	ffmpegMu.Unlock()
}

func ffmpegPath() string {
	ffmpegMu.RLock()
	defer ffmpegMu.RUnlock()
	return ffmpegBinary
}

// FFmpegAvailable reports whether the fallback transcoder is installed
// on this host.
func FFmpegAvailable() bool {
	_, err := exec.LookPath(ffmpegPath())
	return err == nil
}

// decodeFFmpeg shells out to ffmpeg to transcode an encoded resource
// into raw interleaved stereo int16 at the engine rate. The input goes
// through a temp file because some containers (mp4) need seekable
// input.
func decodeFFmpeg(data []byte) (*Buffer, error) {
	tmp, err := os.CreateTemp("", "stemdeck-decode-*")
	if err != nil {
		return nil, fmt.Errorf("decode ffmpeg: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("decode ffmpeg: %w", err)
	}
	tmp.Close()

	cmd := exec.Command(ffmpegPath(),
		"-i", tmp.Name(),
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(ChannelCount),
		"pipe:1",
	)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("decode ffmpeg: %w: %s", err, stderrTail(stderr.String()))
	}

	raw := out.Bytes()
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return NewBuffer(samples), nil
}

// stderrTail keeps error messages readable: ffmpeg prints its banner
// and progress before the actual failure reason.
func stderrTail(s string) string {
	const max = 400
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
