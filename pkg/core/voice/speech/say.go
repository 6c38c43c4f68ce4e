package speech

import (
	"bufio"
	"bytes"
	"context"
	"strconv"
	"strings"
)

// Say speaks through the macOS say command. Pitch and volume are not
// adjustable from the command line and are ignored.
type Say struct {
	bin string
	run runFunc
}

// NewSay returns an engine invoking the say binary at bin.
func NewSay(bin string) *Say {
	if bin == "" {
		bin = "say"
	}
	return &Say{bin: bin, run: runCommand}
}

// Voices lists installed voices.
func (s *Say) Voices(ctx context.Context) ([]Voice, error) {
	out, err := s.run(ctx, "", s.bin, "-v", "?")
	if err != nil {
		return nil, err
	}
	return parseSayVoices(out), nil
}

// Speak blocks until text has been spoken.
func (s *Say) Speak(ctx context.Context, text string, opts Options) error {
	args := []string{"-r", strconv.Itoa(wordsPerMinute(opts.Rate)), "-f", "-"}
	if opts.Voice.ID != "" {
		args = append([]string{"-v", opts.Voice.ID}, args...)
	}
	_, err := s.run(ctx, text, s.bin, args...)
	return err
}

// parseSayVoices reads lines such as
//
//	Eddy (English (UK)) en_GB    # Hello! My name is Eddy.
func parseSayVoices(out []byte) []Voice {
	var voices []Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		cut := strings.LastIndexAny(line, " \t")
		if cut < 0 {
			continue
		}
		name := strings.TrimSpace(line[:cut])
		lang := strings.ReplaceAll(line[cut+1:], "_", "-")
		if name == "" {
			continue
		}
		voices = append(voices, Voice{ID: name, Name: name, Lang: lang})
	}
	return voices
}
