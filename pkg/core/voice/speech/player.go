package speech

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/vango-go/vai-voice/pkg/core/voice/capture"
)

const playbackPoll = 20 * time.Millisecond

// Player plays PCM on the default output device. The audio backend allows a
// single context per process, so the first clip fixes the output format.
type Player struct {
	mu     sync.Mutex
	ctx    *oto.Context
	format capture.Format
}

// NewPlayer returns a player that opens the output device on first use.
func NewPlayer() *Player {
	return &Player{}
}

func (p *Player) context(format capture.Format) (*oto.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx != nil {
		if format != p.format {
			return nil, fmt.Errorf("output already opened at %d Hz/%d ch, cannot play %d Hz/%d ch",
				p.format.SampleRate, p.format.Channels, format.SampleRate, format.Channels)
		}
		return p.ctx, nil
	}

	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("open speaker: %w", err)
	}
	<-ready
	p.ctx = otoCtx
	p.format = format
	return otoCtx, nil
}

// Play blocks until pcm has played or ctx is cancelled.
func (p *Player) Play(ctx context.Context, pcm []byte, format capture.Format, volume float64) error {
	otoCtx, err := p.context(format)
	if err != nil {
		return err
	}

	player := otoCtx.NewPlayer(bytes.NewReader(pcm))
	defer player.Close()
	player.SetVolume(volume)
	player.Play()

	ticker := time.NewTicker(playbackPoll)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
