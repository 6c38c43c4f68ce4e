package capture

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// MalgoDevice captures from the system default microphone.
type MalgoDevice struct {
	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
}

// OpenMalgo is a DeviceFactory for the default capture device.
func OpenMalgo() (Device, error) {
	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	ctx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &MalgoDevice{ctx: ctx}, nil
}

// Start begins capturing format PCM into onData.
func (d *MalgoDevice) Start(format Format, onData func(pcm []byte)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctx == nil {
		return fmt.Errorf("audio context closed")
	}
	if d.device != nil {
		return fmt.Errorf("capture device already started")
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(format.Channels)
	cfg.SampleRate = uint32(format.SampleRate)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			if len(in) == 0 {
				return
			}
			frame := make([]byte, len(in))
			copy(frame, in)
			onData(frame)
		},
	}

	device, err := malgo.InitDevice(d.ctx.Context, cfg, callbacks)
	if err != nil {
		return fmt.Errorf("init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start capture device: %w", err)
	}
	d.device = device
	return nil
}

// Close stops capture and releases the device and its context.
func (d *MalgoDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	if d.device != nil {
		if stopErr := d.device.Stop(); stopErr != nil {
			err = fmt.Errorf("stop capture device: %w", stopErr)
		}
		d.device.Uninit()
		d.device = nil
	}
	if d.ctx != nil {
		_ = d.ctx.Uninit()
		d.ctx.Free()
		d.ctx = nil
	}
	return err
}
