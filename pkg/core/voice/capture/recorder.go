// Package capture records microphone audio for one turn at a time and
// hands it over as a WAV clip.
package capture

import (
	"errors"
	"sync"
	"time"

	"github.com/vango-go/vai-voice/pkg/core"
)

const bytesPerSample = 2

// Format describes signed 16-bit PCM.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) frameSize() int { return f.Channels * bytesPerSample }

func (f Format) bytesPerSecond() int { return f.SampleRate * f.frameSize() }

// Duration returns how long n bytes of PCM play for.
func (f Format) Duration(n int) time.Duration {
	bps := f.bytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// Defaults for recorded clips.
const (
	DefaultSampleRate  = 16000
	DefaultChannels    = 1
	DefaultMinDuration = 2 * time.Second

	ClipName     = "recording.wav"
	ClipMIMEType = "audio/wav"
)

// User-facing capture messages.
const (
	MicrophoneErrorMessage = "Error accessing microphone. Please check permissions."
	TooShortMessage        = "Recording too short. Please speak for at least 2-3 seconds."
)

// ErrNotRecording is returned by Stop when no recording is active.
var ErrNotRecording = errors.New("capture: not recording")

// ErrAlreadyRecording is returned by Start while a recording is active.
var ErrAlreadyRecording = errors.New("capture: already recording")

// Device is a raw PCM source. Start begins delivering frames to onData from
// the device's own goroutine; Close stops delivery and releases the device.
type Device interface {
	Start(format Format, onData func(pcm []byte)) error
	Close() error
}

// DeviceFactory opens a fresh device for each recording.
type DeviceFactory func() (Device, error)

// Status is a snapshot of the current recording.
type Status struct {
	Active  bool
	Elapsed time.Duration
	Bytes   int
}

// ElapsedSeconds is the whole-second counter shown while recording.
func (s Status) ElapsedSeconds() int {
	return int(s.Elapsed / time.Second)
}

// Recorder owns at most one recording at a time. The device is released on
// every exit path so nothing leaks across turns.
type Recorder struct {
	open        DeviceFactory
	format      Format
	minDuration time.Duration
	now         func() time.Time

	mu      sync.Mutex
	device  Device
	started time.Time
	pcm     []byte
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithFormat sets the capture format.
func WithFormat(f Format) Option {
	return func(r *Recorder) {
		if f.SampleRate > 0 && f.Channels > 0 {
			r.format = f
		}
	}
}

// WithMinDuration sets the shortest clip Stop accepts.
func WithMinDuration(d time.Duration) Option {
	return func(r *Recorder) {
		if d >= 0 {
			r.minDuration = d
		}
	}
}

// WithClock overrides time.Now for elapsed-time reporting.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder creates a recorder over devices produced by open.
func NewRecorder(open DeviceFactory, opts ...Option) *Recorder {
	r := &Recorder{
		open:        open,
		format:      Format{SampleRate: DefaultSampleRate, Channels: DefaultChannels},
		minDuration: DefaultMinDuration,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Format returns the capture format.
func (r *Recorder) Format() Format {
	return r.format
}

// Start opens the device and begins accumulating PCM.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.device != nil {
		return ErrAlreadyRecording
	}
	if r.open == nil {
		return core.NewDeviceError(MicrophoneErrorMessage, errors.New("no capture device configured"))
	}
	dev, err := r.open()
	if err != nil {
		return core.NewDeviceError(MicrophoneErrorMessage, err)
	}
	r.pcm = r.pcm[:0]
	r.started = r.now()
	r.device = dev
	if err := dev.Start(r.format, r.appendPCM(dev)); err != nil {
		r.device = nil
		_ = dev.Close()
		return core.NewDeviceError(MicrophoneErrorMessage, err)
	}
	return nil
}

// appendPCM returns the data callback for dev. Frames delivered after dev
// stopped being the active device are dropped.
func (r *Recorder) appendPCM(dev Device) func([]byte) {
	return func(pcm []byte) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.device != dev {
			return
		}
		r.pcm = append(r.pcm, pcm...)
	}
}

// Stop releases the device and returns the recording as a WAV clip. A
// recording shorter than the minimum duration returns a too-short error.
func (r *Recorder) Stop() (core.Clip, error) {
	dev, pcm, err := r.detach()
	if err != nil {
		return core.Clip{}, err
	}
	closeErr := dev.Close()

	if whole := len(pcm) - len(pcm)%r.format.frameSize(); whole != len(pcm) {
		pcm = pcm[:whole]
	}
	if r.format.Duration(len(pcm)) < r.minDuration {
		return core.Clip{}, core.NewTooShortError(TooShortMessage)
	}
	if closeErr != nil && len(pcm) == 0 {
		return core.Clip{}, core.NewDeviceError(MicrophoneErrorMessage, closeErr)
	}

	data, err := EncodeWAV(pcm, r.format)
	if err != nil {
		return core.Clip{}, core.NewDeviceError("failed to encode recording", err)
	}
	return core.Clip{Name: ClipName, MIMEType: ClipMIMEType, Data: data}, nil
}

// Abort releases the device and discards anything recorded. It is a no-op
// when idle.
func (r *Recorder) Abort() {
	dev, _, err := r.detach()
	if err != nil {
		return
	}
	_ = dev.Close()
}

func (r *Recorder) detach() (Device, []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.device == nil {
		return nil, nil, ErrNotRecording
	}
	dev := r.device
	pcm := make([]byte, len(r.pcm))
	copy(pcm, r.pcm)
	r.device = nil
	r.pcm = r.pcm[:0]
	return dev, pcm, nil
}

// Status reports the active recording, if any.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.device == nil {
		return Status{}
	}
	return Status{Active: true, Elapsed: r.now().Sub(r.started), Bytes: len(r.pcm)}
}

// Active reports whether a recording is in progress.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.device != nil
}
