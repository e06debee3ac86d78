package program

import (
	"context"
	"errors"
	"time"

	"github.com/playbooks-ai/playbooks-runtime/internal/channel"
	"github.com/playbooks-ai/playbooks-runtime/internal/eventbus"
	"github.com/playbooks-ai/playbooks-runtime/internal/inbox"
	"github.com/playbooks-ai/playbooks-runtime/internal/router"
)

// ErrUnknownStream is returned by stream callbacks for a streamID Program
// never opened.
var ErrUnknownStream = errors.New("program: unknown stream")

// streamMeta tracks the bookkeeping BeginStream hands off to
// StreamChunk/CompleteStream without re-resolving the receiver spec.
type streamMeta struct {
	channel  *channel.Channel
	senderID string
}

// StartStream decides whether streaming is enabled for a turn targeting
// receiverSpec: on iff the resolved recipient is a human participant with
// StreamingEnabled (spec §4.9).
func (p *Program) StartStream(senderID, senderKlass, receiverSpec, streamID string) (shouldStream bool, err error) {
	recipientID, err := p.resolveSingleTarget(receiverSpec)
	if err != nil {
		return false, err
	}
	a, ok := p.Agent(recipientID)
	shouldStream = ok && a.IsHuman() && a.DeliveryPreferences.StreamingEnabled
	return shouldStream, nil
}

func (p *Program) resolveSingleTarget(spec string) (string, error) {
	targets, err := router.ParseSpec(spec)
	if err != nil {
		return "", err
	}
	switch targets[0].Kind {
	case router.TargetHuman:
		return p.ResolveHuman()
	case router.TargetAgent:
		return p.ResolveAgentRef(targets[0].ID)
	default:
		return "", router.ErrSpecParseError
	}
}

// BeginStream implements agentruntime.Callbacks.BeginStream: it always opens
// the stream on the resolved direct channel. The channel-level StreamManager
// tracks every stream regardless of human streaming preference; preference
// only affects CompleteStream's buffered fallback.
func (p *Program) BeginStream(senderID, senderKlass, spec, streamID string) error {
	recipientID, err := p.resolveSingleTarget(spec)
	if err != nil {
		return err
	}
	ch := p.GetOrCreateDirectChannel(senderID, recipientID)
	if err := ch.StartStream(senderID, recipientID, streamID); err != nil {
		return err
	}

	p.mu.Lock()
	p.streamChans[streamID] = ch
	p.streams[streamID] = streamMeta{channel: ch, senderID: senderID}
	p.mu.Unlock()

	p.Bus.Publish(context.Background(), eventbus.New(eventbus.EventStreamStart, "", senderID, eventbus.StreamStartPayload{
		StreamID: streamID, ChannelID: ch.ID, SenderID: senderID, RecipientID: recipientID,
	}))
	return nil
}

// StreamChunk implements agentruntime.Callbacks.StreamChunk.
func (p *Program) StreamChunk(streamID, chunk string) error {
	p.mu.Lock()
	ch, ok := p.streamChans[streamID]
	p.mu.Unlock()
	if !ok {
		return ErrUnknownStream
	}
	if err := ch.StreamChunk(streamID, chunk); err != nil {
		return err
	}
	p.Bus.Publish(context.Background(), eventbus.New(eventbus.EventStreamChunk, "", "", eventbus.StreamChunkPayload{
		StreamID: streamID, Chunk: chunk,
	}))
	return nil
}

// CompleteStream implements agentruntime.Callbacks.CompleteStream: it
// finalizes the channel-level stream and separately delivers the final
// message as a regular inbox message to every participant who wasn't
// consuming the stream in real time (spec §4.3's "ALSO broadcast to
// non-streaming recipients").
func (p *Program) CompleteStream(streamID, finalContent string) error {
	p.mu.Lock()
	ch, ok := p.streamChans[streamID]
	meta := p.streams[streamID]
	delete(p.streamChans, streamID)
	delete(p.streams, streamID)
	p.mu.Unlock()
	if !ok {
		return ErrUnknownStream
	}

	var bufferedRecipients []inbox.Message
	for _, part := range ch.Participants() {
		if part.ID == meta.senderID {
			continue
		}
		a, known := p.Agent(part.ID)
		if known && a.IsHuman() && a.DeliveryPreferences.StreamingEnabled {
			continue // already saw every chunk in real time
		}
		bufferedRecipients = append(bufferedRecipients, inbox.Message{
			SenderID:    meta.senderID,
			RecipientID: part.ID,
			Content:     finalContent,
			Type:        inbox.Direct,
			Timestamp:   time.Now(),
			Priority:    inbox.Normal,
		})
	}

	if err := ch.CompleteStream(streamID, finalContent, bufferedRecipients, inbox.Normal); err != nil {
		return err
	}
	p.Bus.Publish(context.Background(), eventbus.New(eventbus.EventStreamComplete, "", "", eventbus.StreamCompletePayload{
		StreamID: streamID, FinalText: finalContent,
	}))
	return nil
}
