package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/vango-go/vai-voice/pkg/core"
	"github.com/vango-go/vai-voice/pkg/core/turn"
)

const helpText = "Keys: r record/stop · t type · space interrupt · c clear · m mute · a test mic · q quit"

// console renders orchestrator events and maps keys to actions.
type console struct {
	mu   sync.Mutex
	out  io.Writer
	raw  bool
	orch *turn.Orchestrator
	log  *slog.Logger

	ctx     context.Context
	timeout func() (context.Context, context.CancelFunc)
	wg      sync.WaitGroup
}

func newConsole(ctx context.Context, out io.Writer, raw bool, orch *turn.Orchestrator, cfg clientConfig, logger *slog.Logger) *console {
	return &console{
		out:  out,
		raw:  raw,
		orch: orch,
		log:  logger,
		ctx:  ctx,
		timeout: func() (context.Context, context.CancelFunc) {
			return context.WithTimeout(ctx, cfg.TurnTimeout)
		},
	}
}

func (c *console) println(format string, args ...any) {
	nl := "\n"
	if c.raw {
		nl = "\r\n"
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+nl, args...)
}

func (c *console) printRaw(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	io.WriteString(c.out, s)
}

func (c *console) render(ev turn.Event) {
	switch ev.Kind {
	case turn.EventTurn:
		c.println("[%s] %s", speakerLabel(ev.Turn.Speaker), ev.Turn.Content)
	case turn.EventState:
		switch ev.State {
		case turn.Recording:
			c.println("⏺  Recording... press r to stop")
		case turn.Submitting:
			c.println("⏳ Processing...")
		case turn.Speaking:
			c.println("🔊 Speaking... press space to interrupt")
		}
	case turn.EventBanner:
		if ev.Banner != "" {
			c.println("⚠  %s", ev.Banner)
		}
	case turn.EventCountdown:
		switch {
		case ev.Seconds == 0:
			c.println("✅ You can talk again")
		case ev.Seconds <= 5 || ev.Seconds%10 == 0:
			c.println("⏰ Retry in %ds", ev.Seconds)
		}
	case turn.EventRecording:
		c.println("⏺  %ds", ev.Seconds)
	case turn.EventCleared:
		c.println("Conversation cleared.")
	}
}

func speakerLabel(s core.Speaker) string {
	switch s {
	case core.SpeakerUser:
		return "you"
	case core.SpeakerAI:
		return "ai"
	default:
		return "system"
	}
}

// report prints failures the orchestrator does not already show as a banner.
func (c *console) report(err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, turn.ErrBusy):
		c.println("⏳ Still working on the last turn")
	case errors.Is(err, turn.ErrClosed):
	case core.Classify(err).Code == "backoff_active":
		c.println("⏰ %s", core.Classify(err).Message)
	default:
		c.log.Debug("action failed", "error", err)
	}
}

// async runs fn in the background and reports its error.
func (c *console) async(fn func() error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.report(fn())
	}()
}

// run reads keys from in until q, Ctrl-C, Ctrl-D or end of input. At end of
// input it waits for turns already started.
func (c *console) run(in io.Reader) error {
	r := bufio.NewReader(in)
	c.println("%s", helpText)
	for {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.wg.Wait()
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
		if quit := c.key(b, r); quit {
			return nil
		}
	}
}

func (c *console) key(b byte, r *bufio.Reader) (quit bool) {
	switch b {
	case 'q', 0x03, 0x04:
		return true
	case ' ':
		if !c.orch.Interrupt() {
			c.log.Debug("nothing to interrupt", "state", c.orch.State().String())
		}
	case 'r':
		if c.orch.State() == turn.Recording {
			c.async(func() error {
				ctx, cancel := c.timeout()
				defer cancel()
				return c.orch.StopCapture(ctx)
			})
			return false
		}
		c.report(c.orch.StartCapture())
	case 't':
		text, ok := c.readLine(r)
		if !ok || strings.TrimSpace(text) == "" {
			return false
		}
		c.async(func() error {
			ctx, cancel := c.timeout()
			defer cancel()
			return c.orch.SendText(ctx, text)
		})
	case 'c':
		c.orch.Clear()
	case 'm':
		enabled := !c.orch.SpeechEnabled()
		c.orch.SetSpeechEnabled(enabled)
		if enabled {
			c.println("🔊 Speech on")
		} else {
			c.println("🔇 Speech off")
		}
	case 'a':
		c.println("🎙  Recording a 3 second test clip...")
		c.async(func() error {
			report, err := c.orch.TestAudio(c.ctx)
			if err != nil {
				c.println("Test failed: %s", core.Classify(err).Message)
				return nil
			}
			c.println("%s", report)
			return nil
		})
	case '?', 'h':
		c.println("%s", helpText)
	}
	return false
}

// readLine collects a typed line. In raw mode it echoes input and handles
// backspace; Esc abandons the line.
func (c *console) readLine(r *bufio.Reader) (string, bool) {
	c.printRaw("💬 > ")
	if !c.raw {
		c.printRaw("\n")
	}
	var line []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return string(line), len(line) > 0
		}
		switch b {
		case '\r', '\n':
			if c.raw {
				c.printRaw("\r\n")
			}
			return string(line), true
		case 0x1b, 0x03:
			if c.raw {
				c.printRaw("\r\n")
			}
			return "", false
		case 0x7f, 0x08:
			if len(line) > 0 {
				_, size := utf8.DecodeLastRune(line)
				line = line[:len(line)-size]
				if c.raw {
					c.printRaw("\b \b")
				}
			}
		default:
			line = append(line, b)
			if c.raw {
				c.printRaw(string([]byte{b}))
			}
		}
	}
}
