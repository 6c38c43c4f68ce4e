package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// ErrNoEngine is returned by Detect when no synthesizer is installed.
var ErrNoEngine = errors.New("speech: no synthesizer found (install espeak-ng, or use macOS say)")

// runFunc runs a command with stdin and returns its stdout.
type runFunc func(ctx context.Context, stdin string, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, stdin string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = strings.NewReader(stdin)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Detect returns the best synthesizer available on this machine.
func Detect() (Engine, error) {
	return detect(runtime.GOOS, exec.LookPath)
}

func detect(goos string, lookPath func(string) (string, error)) (Engine, error) {
	if goos == "darwin" {
		if path, err := lookPath("say"); err == nil {
			return NewSay(path), nil
		}
	}
	for _, bin := range []string{"espeak-ng", "espeak"} {
		if path, err := lookPath(bin); err == nil {
			return NewEspeak(path, NewPlayer()), nil
		}
	}
	return nil, ErrNoEngine
}

// wordsPerMinute scales a relative rate against a 175 wpm baseline.
func wordsPerMinute(rate float64) int {
	if rate <= 0 {
		rate = 1
	}
	return int(175*rate + 0.5)
}
