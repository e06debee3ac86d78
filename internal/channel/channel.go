// Package channel implements the bidirectional conduit between participants
// (spec §4.3, C3) and the per-channel stream state machine (spec §4.8, C8).
// Concurrency follows the teacher's per-resource-lock-with-snapshot-dispatch
// idiom (internal/session/active.go's participant bookkeeping, and the
// perles event_bus.go "collect subscribers, dispatch outside the lock"
// pattern from the retrieval pack).
package channel

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/playbooks-ai/playbooks-runtime/internal/inbox"
	"github.com/playbooks-ai/playbooks-runtime/internal/metrics"
)

// ErrBadStreamState is returned when a stream operation is invalid for the
// stream's current state (spec §4.3).
var ErrBadStreamState = errors.New("channel: bad stream state")

// ErrUnknownStream is returned when a stream operation targets an unknown
// streamID.
var ErrUnknownStream = errors.New("channel: unknown stream")

// Inboxer is the narrow interface Channel needs from an agent's inbox, so
// this package doesn't need to know about Agent/Program.
type Inboxer interface {
	Put(msg inbox.Message, priority inbox.Priority) error
}

// Participant is a channel member: either an agent or the well-known human
// participant (spec §9: "Participant interface with two variants").
type Participant struct {
	ID    string
	Klass string
	Inbox Inboxer
	// IsHuman distinguishes a HumanParticipant for delivery-preference and
	// stream-filtering purposes (spec §9).
	IsHuman bool
}

// StreamObserver receives stream lifecycle events for a channel. TargetHumanID,
// if set, restricts delivery per the filtering rule in spec §4.3.
type StreamObserver struct {
	ID            string
	TargetHumanID string // empty means "no filter": receive everything
	OnStart       func(s StreamStartEvent)
	OnChunk       func(c StreamChunkEvent)
	OnComplete    func(c StreamCompleteEvent)
	OnAbort       func(a StreamAbortEvent)
}

// matches implements the observer filtering rule (spec §4.3): an observer
// with no TargetHumanID receives everything; one with TargetHumanID=H
// receives the event iff recipientID is H or empty (broadcast).
func (o StreamObserver) matches(recipientID string) bool {
	if o.TargetHumanID == "" {
		return true
	}
	return recipientID == o.TargetHumanID || recipientID == ""
}

type StreamStartEvent struct {
	StreamID    string
	ChannelID   string
	SenderID    string
	RecipientID string
}

type StreamChunkEvent struct {
	StreamID    string
	Seq         int
	Chunk       string
	RecipientID string
}

type StreamCompleteEvent struct {
	StreamID    string
	FinalText   string
	RecipientID string
}

type StreamAbortEvent struct {
	StreamID    string
	Reason      string
	RecipientID string
}

// StreamState is a stream's place in the Open -> {Completed, Aborted}
// machine (spec §4.3).
type StreamState int

const (
	StreamOpen StreamState = iota
	StreamCompleted
	StreamAborted
)

// Stream tracks one in-flight streaming response (spec §3).
type Stream struct {
	ID          string
	ChannelID   string
	SenderID    string
	RecipientID string
	StartedAt   time.Time
	State       StreamState
	TotalBytes  int
	nextSeq     int
}

// Channel is a conduit between >=2 participants (spec §3, §4.3).
type Channel struct {
	ID        string
	CreatedAt time.Time

	mu           sync.Mutex
	participants []Participant
	observers    []StreamObserver
	streams      map[string]*Stream
	isMeetingTag bool // explicit meeting flag per spec §4.3's isMeeting definition
	lastActivity time.Time
}

// New creates a Channel with the given ID and initial participants.
// isMeeting forces meeting semantics even for exactly 2 participants, per
// spec §3's "isMeeting ⇔ |participants| ≥ 3 OR explicitly created as a
// meeting".
func New(id string, participants []Participant, isMeeting bool) *Channel {
	now := time.Now()
	c := &Channel{
		ID:           id,
		CreatedAt:    now,
		participants: append([]Participant(nil), participants...),
		streams:      make(map[string]*Stream),
		isMeetingTag: isMeeting,
		lastActivity: now,
	}
	metrics.RecordChannelCreated(c.IsMeeting())
	return c
}

// LastActivity returns the last time a message was delivered or broadcast
// on this channel, for idle-sweep purposes (internal/housekeeping).
func (c *Channel) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// touch records activity now. Callers must hold c.mu.
func (c *Channel) touch() {
	c.lastActivity = time.Now()
}

// IsDirect reports whether this is a plain two-party channel (spec §3).
func (c *Channel) IsDirect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.participants) == 2 && !c.isMeetingTag
}

// IsMeeting reports whether this channel has meeting semantics (spec §3).
func (c *Channel) IsMeeting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.participants) >= 3 || c.isMeetingTag
}

// Participants returns a snapshot of the current participant list, ordered
// by join order (spec §3: "ordered set of participants").
func (c *Channel) Participants() []Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Participant(nil), c.participants...)
}

// ParticipantIDs returns the IDs of current participants, sorted, for
// logging/events.
func (c *Channel) ParticipantIDs() []string {
	ps := c.Participants()
	ids := make([]string, len(ps))
	for i, p := range ps {
		ids[i] = p.ID
	}
	sort.Strings(ids)
	return ids
}

// AddParticipant adds p to the channel, unless already present.
func (c *Channel) AddParticipant(p Participant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.participants {
		if existing.ID == p.ID {
			return
		}
	}
	c.participants = append(c.participants, p)
}

// RemoveParticipant removes p by ID and aborts any Open stream it
// initiated or was targeted by, per spec §4.8 ("on channel close or
// participant departure, all Open streams ... transition to Aborted with
// reason participant_left").
func (c *Channel) RemoveParticipant(id string) {
	c.mu.Lock()
	var toAbort []*Stream
	for i, p := range c.participants {
		if p.ID == id {
			c.participants = append(c.participants[:i], c.participants[i+1:]...)
			break
		}
	}
	for _, s := range c.streams {
		if s.State == StreamOpen && (s.SenderID == id || s.RecipientID == id) {
			s.State = StreamAborted
			toAbort = append(toAbort, s)
		}
	}
	observers := append([]StreamObserver(nil), c.observers...)
	c.mu.Unlock()

	for _, s := range toAbort {
		notifyAbort(observers, s, "participant_left")
	}
}

// AddStreamObserver registers obs to receive stream events on this channel.
func (c *Channel) AddStreamObserver(obs StreamObserver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, obs)
}

// RemoveStreamObserver unregisters the observer with the given ID.
func (c *Channel) RemoveStreamObserver(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, o := range c.observers {
		if o.ID == id {
			c.observers = append(c.observers[:i], c.observers[i+1:]...)
			return
		}
	}
}

// Broadcast enqueues msg into every participant's inbox except the
// sender's (spec invariant 3: "no self-delivery"). Meeting channels should
// route broadcasts through the meeting's rolling collector instead of
// calling this directly; see internal/meeting.
func (c *Channel) Broadcast(msg inbox.Message, priority inbox.Priority) []string {
	c.mu.Lock()
	participants := append([]Participant(nil), c.participants...)
	c.touch()
	c.mu.Unlock()

	var delivered []string
	for _, p := range participants {
		if p.ID == msg.SenderID {
			continue
		}
		if err := p.Inbox.Put(msg, priority); err == nil {
			delivered = append(delivered, p.ID)
		}
	}
	return delivered
}

// Deliver enqueues msg into exactly one participant's inbox (direct
// delivery), used for two-party Direct messages.
func (c *Channel) Deliver(recipientID string, msg inbox.Message, priority inbox.Priority) error {
	c.mu.Lock()
	var target *Participant
	for i := range c.participants {
		if c.participants[i].ID == recipientID {
			target = &c.participants[i]
			break
		}
	}
	c.touch()
	c.mu.Unlock()
	if target == nil {
		return errors.New("channel: unknown recipient " + recipientID)
	}
	return target.Inbox.Put(msg, priority)
}
