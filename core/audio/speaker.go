package audio

import (
	"fmt"
	"io"

	"github.com/hajimehoshi/oto/v2"

	"stemdeck/logger"
)

// speaker routes the rendered mix to the local audio device through
// oto. It subscribes to the output broadcaster and pumps frames into a
// pipe the oto player drains at device pace.
type speaker struct {
	out    *Broadcaster
	frames chan []int16
	player oto.Player
	pw     *io.PipeWriter
}

func newSpeaker(out *Broadcaster) (*speaker, error) {
	otoCtx, ready, err := oto.NewContext(SampleRate, ChannelCount, BytesPerSample)
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	<-ready

	pr, pw := io.Pipe()
	s := &speaker{
		out:    out,
		frames: out.Subscribe(),
		pw:     pw,
	}
	go s.pump()

	s.player = otoCtx.NewPlayer(pr)
	s.player.Play()
	logger.Info("speaker sink attached")
	return s, nil
}

func (s *speaker) pump() {
	for frame := range s.frames {
		if _, err := s.pw.Write(FrameBytes(frame)); err != nil {
			return
		}
	}
	s.pw.Close()
}

func (s *speaker) close() {
	s.out.Unsubscribe(s.frames)
	s.pw.Close()
	if err := s.player.Close(); err != nil {
		logger.Warn("closing speaker", logger.ErrorField(err))
	}
}
