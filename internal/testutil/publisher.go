package testutil

import (
	"context"
	"sync"

	"github.com/josh-kwaku/transfer-engine/internal/events"
)

// RecordingPublisher keeps every published message in memory.
type RecordingPublisher struct {
	mu       sync.Mutex
	messages []events.TransferMessage
}

func (p *RecordingPublisher) PublishTransfer(_ context.Context, msg events.TransferMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *RecordingPublisher) Close() {}

func (p *RecordingPublisher) Messages() []events.TransferMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.TransferMessage, len(p.messages))
	copy(out, p.messages)
	return out
}
