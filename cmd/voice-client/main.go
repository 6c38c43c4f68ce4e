// Command voice-client is a terminal front end for the voice gateway: record
// or type a turn, hear the reply, and interrupt it with the space bar.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/term"

	"github.com/vango-go/vai-voice/internal/dotenv"
	"github.com/vango-go/vai-voice/pkg/core/turn"
	"github.com/vango-go/vai-voice/pkg/core/voice/capture"
	"github.com/vango-go/vai-voice/pkg/core/voice/speech"
	vai "github.com/vango-go/vai-voice/sdk"
)

type clientDeps struct {
	openDevice   capture.DeviceFactory
	detectSpeech func() (speech.Engine, error)
	rawMode      func(in io.Reader) (restore func(), err error)
}

func defaultClientDeps() clientDeps {
	return clientDeps{
		openDevice:   capture.OpenMalgo,
		detectSpeech: speech.Detect,
		rawMode:      terminalRawMode,
	}
}

// terminalRawMode switches in to raw mode when it is a terminal. It returns
// a nil restore func otherwise.
func terminalRawMode(in io.Reader) (func(), error) {
	f, ok := in.(*os.File)
	if !ok {
		return nil, nil
	}
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil, nil
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("enable raw terminal: %w", err)
	}
	return func() { _ = term.Restore(fd, oldState) }, nil
}

func runClient(ctx context.Context, cfg clientConfig, in io.Reader, out io.Writer, logger *slog.Logger, deps clientDeps) error {
	if err := validateClientConfig(cfg); err != nil {
		return err
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := []vai.ClientOption{vai.WithBaseURL(cfg.BaseURL), vai.WithLogger(logger)}
	if cfg.SessionID != "" {
		opts = append(opts, vai.WithSessionID(cfg.SessionID))
	}
	client := vai.NewClient(opts...)

	var recorder turn.Recorder
	if !cfg.NoMic && deps.openDevice != nil {
		recorder = capture.NewRecorder(deps.openDevice)
	}

	var speaker turn.Speaker
	var controller *speech.Controller
	if deps.detectSpeech != nil {
		engine, err := deps.detectSpeech()
		if err != nil {
			logger.Warn("spoken replies unavailable", "error", err)
		} else {
			speechOpts := []speech.Option{speech.WithLogger(logger), speech.WithRate(cfg.SpeechRate)}
			if cfg.Voice != "" {
				speechOpts = append(speechOpts, speech.WithVoice(speech.Voice{ID: cfg.Voice, Name: cfg.Voice}))
			}
			controller = speech.NewController(engine, speechOpts...)
			speaker = controller
		}
	}

	orch := turn.New(gatewayBackend{client: client}, recorder, speaker, turn.WithLogger(logger))
	if cfg.NoSpeech {
		orch.SetSpeechEnabled(false)
	}

	raw := false
	if deps.rawMode != nil {
		restore, err := deps.rawMode(in)
		if err != nil {
			logger.Warn("single-key mode unavailable", "error", err)
		} else if restore != nil {
			raw = true
			defer restore()
		}
	}

	ui := newConsole(ctx, out, raw, orch, cfg, logger)
	orch.OnEvent(ui.render)
	ui.println("Voice client for %s (session %s)", client.BaseURL(), client.SessionID())

	var bg sync.WaitGroup
	bg.Add(1)
	go func() {
		defer bg.Done()
		watchGateway(ctx, client, ui, logger)
	}()

	startCtx, startCancel := ui.timeout()
	if err := orch.Start(startCtx); err != nil {
		logger.Warn("conversation start failed; turns will retry", "error", err)
	}
	startCancel()

	runErr := ui.run(in)

	cancel()
	orch.Close()
	if controller != nil {
		controller.Close()
	}
	ui.wg.Wait()
	bg.Wait()
	ui.println("bye")
	return runErr
}

// watchGateway follows the session event stream and prints gateway notices.
func watchGateway(ctx context.Context, client *vai.Client, ui *console, logger *slog.Logger) {
	stream, err := client.Events(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("gateway events unavailable", "error", err)
		}
		return
	}
	defer stream.Close()

	err = stream.Run(ctx, func(ev vai.Event) {
		logger.Debug("gateway event", "type", ev.Type, "status", ev.Status, "mime_type", ev.MIMEType)
		if ev.Type == vai.EventNotice && ev.Message != "" {
			ui.println("📣 %s", ev.Message)
		}
	})
	if err != nil && !errors.Is(err, io.EOF) && ctx.Err() == nil {
		logger.Warn("gateway events ended", "error", err)
	}
}

func runMain(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer, getenv func(string) string, deps clientDeps) int {
	if _, err := dotenv.LoadFirst(".env", "client/.env"); err != nil {
		fmt.Fprintf(errOut, "voice-client: %v\n", err)
		return 1
	}

	cfg, err := parseClientConfig(args, getenv)
	if err != nil {
		fmt.Fprintf(errOut, "voice-client: %v\n", err)
		return 1
	}
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: cfg.LogLevel}))

	if err := runClient(ctx, cfg, in, out, logger, deps); err != nil {
		fmt.Fprintf(errOut, "voice-client: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr, os.Getenv, defaultClientDeps())
	stop()
	os.Exit(code)
}
