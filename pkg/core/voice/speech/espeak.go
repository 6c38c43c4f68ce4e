package speech

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/vango-go/vai-voice/pkg/core/voice/capture"
)

// Espeak synthesizes with espeak-ng (or espeak) and plays the result through
// a Player.
type Espeak struct {
	bin    string
	player *Player
	run    runFunc
	play   func(ctx context.Context, pcm []byte, format capture.Format, volume float64) error
}

// NewEspeak returns an engine invoking bin and playing through player.
func NewEspeak(bin string, player *Player) *Espeak {
	if bin == "" {
		bin = "espeak-ng"
	}
	e := &Espeak{bin: bin, player: player, run: runCommand}
	e.play = player.Play
	return e
}

// Voices lists installed voices.
func (e *Espeak) Voices(ctx context.Context) ([]Voice, error) {
	out, err := e.run(ctx, "", e.bin, "--voices")
	if err != nil {
		return nil, err
	}
	return parseEspeakVoices(out), nil
}

// Speak synthesizes text to WAV and blocks until it has played.
func (e *Espeak) Speak(ctx context.Context, text string, opts Options) error {
	out, err := e.run(ctx, text, e.bin, e.args(opts)...)
	if err != nil {
		return err
	}
	pcm, format, err := capture.DecodeWAV(out)
	if err != nil {
		return fmt.Errorf("decode %s output: %w", e.bin, err)
	}
	volume := opts.Volume
	if volume <= 0 {
		volume = 1
	}
	return e.play(ctx, pcm, format, volume)
}

func (e *Espeak) args(opts Options) []string {
	pitch := opts.Pitch
	if pitch <= 0 {
		pitch = 1
	}
	args := []string{
		"--stdout",
		"--stdin",
		"-s", strconv.Itoa(wordsPerMinute(opts.Rate)),
		"-p", strconv.Itoa(min(99, int(50*pitch+0.5))),
	}
	if opts.Voice.ID != "" {
		args = append(args, "-v", opts.Voice.ID)
	}
	return args
}

// parseEspeakVoices reads the table printed by --voices:
//
//	Pty Language       Age/Gender VoiceName          File                 Other Languages
//	 5  en-us            --/M      English_(America)  gmw/en-US            (en 2)
func parseEspeakVoices(out []byte) []Voice {
	var voices []Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || fields[0] == "Pty" {
			continue
		}
		voices = append(voices, Voice{
			ID:   fields[1],
			Name: strings.ReplaceAll(fields[3], "_", " "),
			Lang: fields[1],
		})
	}
	return voices
}
