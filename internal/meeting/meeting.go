// Package meeting implements Meeting (spec §4.4, C4): a Channel wrapped with
// owner/attendee lifecycle and a rolling-batch collector that coalesces
// bursts of broadcast messages before delivery. The two-timer collector
// (rolling + absolute max-wait) has no direct analogue in the teacher, so it
// is grounded on the teacher's background-ticker idiom
// (internal/session/manager.go's idle-sweep ticker) generalized to a
// per-meeting pair of timers.
package meeting

import (
	"errors"
	"sync"
	"time"

	"github.com/playbooks-ai/playbooks-runtime/internal/channel"
	"github.com/playbooks-ai/playbooks-runtime/internal/inbox"
	"github.com/playbooks-ai/playbooks-runtime/internal/metrics"
)

// State is a Meeting's lifecycle state (spec §3, §4.4).
type State int

const (
	Forming State = iota
	Active
	Ended
)

func (s State) String() string {
	switch s {
	case Forming:
		return "forming"
	case Active:
		return "active"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

var (
	// ErrMeetingEnded is returned when broadcasting to an Ended meeting
	// (spec §4.5's MeetingEnded error condition).
	ErrMeetingEnded = errors.New("meeting: ended")
	// ErrNotOwner is returned by End when a non-owner attendee attempts to
	// end the meeting. spec §9's Open Question on this is resolved in
	// DESIGN.md: only the owner may end a meeting.
	ErrNotOwner = errors.New("meeting: only the owner may end the meeting")
	// ErrUnknownAttendee is returned by Join for an ID that was never invited.
	ErrUnknownAttendee = errors.New("meeting: not an invited attendee")
)

// DefaultRollingTimeout and DefaultMaxBatchWait are the tunable defaults
// from spec §5 ("Default meeting rolling timeout: ~0.5-2s"; "absolute
// max-batch wait: ~5x rolling timeout").
const (
	DefaultRollingTimeout = 750 * time.Millisecond
	DefaultMaxBatchWait   = 5 * DefaultRollingTimeout
)

// DeliveryFilter decides whether recipientID should receive msg out of a
// flushed batch. Program installs this to apply each human's
// DeliveryPreferences.MeetingNotifications policy (spec §4.4); the default
// filter delivers every message to every participant except its own sender.
type DeliveryFilter func(recipientID string, msg inbox.Message) bool

func defaultFilter(recipientID string, msg inbox.Message) bool {
	return recipientID != msg.SenderID
}

// Meeting is a Channel with N>=2 participants, owner/attendee roles, and a
// rolling-batch collector (spec §3, §4.4).
type Meeting struct {
	ID      string
	Channel *channel.Channel
	OwnerID string

	Filter DeliveryFilter

	mu       sync.Mutex
	joined   map[string]struct{}
	invited  map[string]struct{}
	state    State
	endedAt  time.Time

	rollingTimeout time.Duration
	maxBatchWait   time.Duration

	batchMu      sync.Mutex
	buffer       []inbox.Message
	rollingTimer *time.Timer
	maxTimer     *time.Timer

	onFlush func(batch []inbox.Message) // test/observability hook, optional
}

// New creates a Forming meeting owned by ownerID on ch, with the owner
// already joined and invitees pending (spec §4.4: "attendee set seeded with
// invitees").
func New(id string, ch *channel.Channel, ownerID string, invitees []string) *Meeting {
	m := &Meeting{
		ID:             id,
		Channel:        ch,
		OwnerID:        ownerID,
		joined:         map[string]struct{}{ownerID: {}},
		invited:        make(map[string]struct{}, len(invitees)),
		state:          Forming,
		rollingTimeout: DefaultRollingTimeout,
		maxBatchWait:   DefaultMaxBatchWait,
		Filter:         defaultFilter,
	}
	for _, id := range invitees {
		m.invited[id] = struct{}{}
	}
	return m
}

// WithTimeouts overrides the rolling/max-batch-wait timers; must be called
// before any Broadcast.
func (m *Meeting) WithTimeouts(rolling, maxWait time.Duration) *Meeting {
	m.rollingTimeout = rolling
	m.maxBatchWait = maxWait
	return m
}

// State returns the meeting's current lifecycle state.
func (m *Meeting) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Join transitions id from invited to joined, and activates the meeting once
// joinedAttendees reaches 2 (spec §4.4). Returns ErrUnknownAttendee if id was
// never invited and isn't the owner.
func (m *Meeting) Join(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, already := m.joined[id]; already {
		return nil
	}
	if _, invited := m.invited[id]; !invited && id != m.OwnerID {
		return ErrUnknownAttendee
	}
	delete(m.invited, id)
	m.joined[id] = struct{}{}
	if m.state == Forming && len(m.joined) >= 2 {
		m.state = Active
	}
	return nil
}

// JoinedAttendees returns a snapshot of the joined-attendee ID set.
func (m *Meeting) JoinedAttendees() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.joined))
	for id := range m.joined {
		out = append(out, id)
	}
	return out
}

// InvitedAttendees returns a snapshot of attendees still pending a join.
func (m *Meeting) InvitedAttendees() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.invited))
	for id := range m.invited {
		out = append(out, id)
	}
	return out
}

// End transitions the meeting to Ended (owner-only per spec §9's resolved
// Open Question) and flushes any pending batch immediately so nothing is
// lost. The caller (Program) is responsible for broadcasting the final
// MeetingEnd message to joined attendees.
func (m *Meeting) End(requestedBy string) error {
	m.mu.Lock()
	if requestedBy != m.OwnerID {
		m.mu.Unlock()
		return ErrNotOwner
	}
	if m.state == Ended {
		m.mu.Unlock()
		return nil
	}
	m.state = Ended
	m.endedAt = time.Now()
	m.mu.Unlock()

	m.flush()
	return nil
}

// EndedAt returns when End succeeded, or the zero time if still running.
func (m *Meeting) EndedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endedAt
}

// Broadcast appends msg to the rolling batch buffer (spec §4.4). A
// rollingTimeout timer restarts on every message; a maxBatchWait timer
// starts on the first message of a batch and does not reset. Either firing
// flushes the whole buffer as one delivery.
func (m *Meeting) Broadcast(msg inbox.Message) error {
	if m.State() == Ended {
		return ErrMeetingEnded
	}

	m.batchMu.Lock()
	m.buffer = append(m.buffer, msg)
	if len(m.buffer) == 1 {
		m.maxTimer = time.AfterFunc(m.maxBatchWait, m.flush)
	}
	if m.rollingTimer != nil {
		m.rollingTimer.Stop()
	}
	m.rollingTimer = time.AfterFunc(m.rollingTimeout, m.flush)
	m.batchMu.Unlock()
	return nil
}

// flush delivers the current batch, if any, and resets both timers so the
// next message starts a fresh batch (spec §4.4 step 4). Idempotent: if the
// rolling and max timers both fire close together, only the first does
// anything.
func (m *Meeting) flush() {
	m.batchMu.Lock()
	if len(m.buffer) == 0 {
		m.batchMu.Unlock()
		return
	}
	batch := m.buffer
	m.buffer = nil
	if m.rollingTimer != nil {
		m.rollingTimer.Stop()
		m.rollingTimer = nil
	}
	if m.maxTimer != nil {
		m.maxTimer.Stop()
		m.maxTimer = nil
	}
	m.batchMu.Unlock()

	metrics.RecordMeetingBatch(m.ID, len(batch))
	m.deliver(batch)
	if m.onFlush != nil {
		m.onFlush(batch)
	}
}

// deliver enqueues every message in batch into every participant's inbox
// that the DeliveryFilter approves, preserving batch order and never
// delivering a message back to its own sender (spec invariant 3, §4.4).
func (m *Meeting) deliver(batch []inbox.Message) {
	participants := m.Channel.Participants()
	for _, p := range participants {
		for _, msg := range batch {
			if !m.Filter(p.ID, msg) {
				continue
			}
			_ = p.Inbox.Put(msg, inbox.Normal)
		}
	}
}

// FlushNow forces an immediate flush of any pending batch, bypassing the
// timers. Used by Program.Stop and by tests that need deterministic
// delivery without sleeping through the rolling window.
func (m *Meeting) FlushNow() {
	m.flush()
}

// SetFlushHook installs an observability callback invoked after every
// flush with the delivered batch; intended for tests and metrics, not
// production delivery logic.
func (m *Meeting) SetFlushHook(fn func(batch []inbox.Message)) {
	m.batchMu.Lock()
	defer m.batchMu.Unlock()
	m.onFlush = fn
}
