package channel

import (
	"time"

	"github.com/playbooks-ai/playbooks-runtime/internal/inbox"
	"github.com/playbooks-ai/playbooks-runtime/internal/metrics"
)

// StartStream begins a new stream on this channel (spec §4.3, §4.8). The
// streamID is caller-generated (the sender) and must be unique within the
// channel; starting it twice is a BadStreamState error.
func (c *Channel) StartStream(senderID, recipientID, streamID string) error {
	c.mu.Lock()
	if _, exists := c.streams[streamID]; exists {
		c.mu.Unlock()
		return ErrBadStreamState
	}
	s := &Stream{
		ID:          streamID,
		ChannelID:   c.ID,
		SenderID:    senderID,
		RecipientID: recipientID,
		StartedAt:   time.Now(),
		State:       StreamOpen,
	}
	c.streams[streamID] = s
	observers := append([]StreamObserver(nil), c.observers...)
	c.mu.Unlock()

	ev := StreamStartEvent{StreamID: streamID, ChannelID: c.ID, SenderID: senderID, RecipientID: recipientID}
	for _, o := range observers {
		if o.matches(recipientID) && o.OnStart != nil {
			o.OnStart(ev)
		}
	}
	return nil
}

// StreamChunk appends a fragment to an Open stream. seq assigned to the
// fragment is monotonically increasing starting at 0, per stream (spec
// invariant 4). Calling this on a non-Open stream fails with
// ErrBadStreamState (spec §4.3).
func (c *Channel) StreamChunk(streamID, chunk string) error {
	c.mu.Lock()
	s, ok := c.streams[streamID]
	if !ok {
		c.mu.Unlock()
		return ErrUnknownStream
	}
	if s.State != StreamOpen {
		c.mu.Unlock()
		return ErrBadStreamState
	}
	seq := s.nextSeq
	s.nextSeq++
	s.TotalBytes += len(chunk)
	observers := append([]StreamObserver(nil), c.observers...)
	recipientID := s.RecipientID
	c.mu.Unlock()

	metrics.RecordStreamFragment(c.ID)
	ev := StreamChunkEvent{StreamID: streamID, Seq: seq, Chunk: chunk, RecipientID: recipientID}
	for _, o := range observers {
		if o.matches(recipientID) && o.OnChunk != nil {
			o.OnChunk(ev)
		}
	}
	return nil
}

// CompleteStream transitions a stream to Completed and emits a final
// Message that is ALSO broadcast to non-streaming recipients, per spec
// §4.3 ("CompleteStream emits a final Message that is ALSO broadcast to
// non-streaming recipients"). Callers pass the participants to broadcast to
// (typically every participant except the sender who isn't consuming the
// stream); this package stays agnostic of delivery-preference policy, which
// lives in internal/program.
func (c *Channel) CompleteStream(streamID, finalMessage string, bufferedRecipients []inbox.Message, priority inbox.Priority) error {
	c.mu.Lock()
	s, ok := c.streams[streamID]
	if !ok {
		c.mu.Unlock()
		return ErrUnknownStream
	}
	if s.State != StreamOpen {
		c.mu.Unlock()
		return ErrBadStreamState
	}
	s.State = StreamCompleted
	observers := append([]StreamObserver(nil), c.observers...)
	recipientID := s.RecipientID
	c.mu.Unlock()

	ev := StreamCompleteEvent{StreamID: streamID, FinalText: finalMessage, RecipientID: recipientID}
	for _, o := range observers {
		if o.matches(recipientID) && o.OnComplete != nil {
			o.OnComplete(ev)
		}
	}

	for _, msg := range bufferedRecipients {
		_ = c.Deliver(msg.RecipientID, msg, priority)
	}
	return nil
}

// AbortStream transitions a stream to Aborted with the given reason (spec
// §4.3, §4.8).
func (c *Channel) AbortStream(streamID, reason string) error {
	c.mu.Lock()
	s, ok := c.streams[streamID]
	if !ok {
		c.mu.Unlock()
		return ErrUnknownStream
	}
	if s.State != StreamOpen {
		c.mu.Unlock()
		return ErrBadStreamState
	}
	s.State = StreamAborted
	observers := append([]StreamObserver(nil), c.observers...)
	c.mu.Unlock()

	notifyAbort(observers, s, reason)
	return nil
}

func notifyAbort(observers []StreamObserver, s *Stream, reason string) {
	ev := StreamAbortEvent{StreamID: s.ID, Reason: reason, RecipientID: s.RecipientID}
	for _, o := range observers {
		if o.matches(s.RecipientID) && o.OnAbort != nil {
			o.OnAbort(ev)
		}
	}
}

// StreamStateOf returns the current state of a stream.
func (c *Channel) StreamStateOf(streamID string) (StreamState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.streams[streamID]
	if !ok {
		return 0, false
	}
	return s.State, true
}
