// Package inbox implements the per-agent AgentInbox (spec §4.2, C2): an
// ordered, optionally bounded queue with predicate-filtered get, batch get,
// peek, and selective remove. Modeled on the teacher's ring-buffer event
// store (internal/session/event_buffer.go) for the bounded/drop-oldest
// policy, and on internal/session/locks.go for per-key locking elsewhere in
// the runtime.
package inbox

import "time"

// MessageType enumerates the kinds of Message a channel can carry (spec §3).
type MessageType string

const (
	Direct          MessageType = "direct"
	MeetingInvite   MessageType = "meeting_invite"
	MeetingBroadcast MessageType = "meeting_broadcast"
	MeetingEnd      MessageType = "meeting_end"
	System          MessageType = "system"
)

// Priority is a message's delivery priority; High messages are inserted at
// the front of the inbox and are consumed before Normal ones (spec §4.2).
type Priority int

const (
	Normal Priority = iota
	High
)

// Message is immutable once constructed (spec §3).
type Message struct {
	SenderID        string
	SenderKlass     string
	RecipientID     string
	RecipientKlass  string
	Content         string
	Type            MessageType
	MeetingID       string
	TargetAgentIDs  map[string]struct{}
	Timestamp       time.Time
	Priority        Priority
}

// TargetsAgent reports whether id is named in TargetAgentIDs.
func (m Message) TargetsAgent(id string) bool {
	if m.TargetAgentIDs == nil {
		return false
	}
	_, ok := m.TargetAgentIDs[id]
	return ok
}

// Predicate filters messages during Get/GetBatch/Peek/Remove. Predicates
// must be pure and cheap: they run under the inbox lock (spec §4.2).
type Predicate func(Message) bool

// Any matches every message.
func Any(Message) bool { return true }

// FromSender matches messages of any type sent by senderID.
func FromSender(senderID string) Predicate {
	return func(m Message) bool { return m.SenderID == senderID }
}

// OfType matches messages of the given type.
func OfType(t MessageType) Predicate {
	return func(m Message) bool { return m.Type == t }
}

// Or matches if any of the given predicates match.
func Or(preds ...Predicate) Predicate {
	return func(m Message) bool {
		for _, p := range preds {
			if p(m) {
				return true
			}
		}
		return false
	}
}

// And matches if all of the given predicates match.
func And(preds ...Predicate) Predicate {
	return func(m Message) bool {
		for _, p := range preds {
			if !p(m) {
				return false
			}
		}
		return true
	}
}
