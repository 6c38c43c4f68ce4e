package main

import (
	"context"
	"fmt"

	"github.com/vango-go/vai-voice/pkg/core"
	vai "github.com/vango-go/vai-voice/sdk"
)

// gatewayBackend adapts the SDK client to the orchestrator.
type gatewayBackend struct {
	client *vai.Client
}

func (b gatewayBackend) Start(ctx context.Context) error {
	return b.client.Start(ctx)
}

func (b gatewayBackend) ProcessText(ctx context.Context, text string) (core.Reply, error) {
	return b.client.ProcessText(ctx, text)
}

func (b gatewayBackend) ProcessAudio(ctx context.Context, clip core.Clip) (core.Reply, error) {
	return b.client.ProcessAudio(ctx, clip)
}

func (b gatewayBackend) Interrupt(ctx context.Context) error {
	_, err := b.client.Interrupt(ctx)
	return err
}

func (b gatewayBackend) TestAudio(ctx context.Context, clip core.Clip) (string, error) {
	info, err := b.client.TestAudio(ctx, clip)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Audio test successful! File size: %d bytes (%s, %s)", info.Size, info.Name, info.MIMEType), nil
}
