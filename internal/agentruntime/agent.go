package agentruntime

import (
	"sync"

	"github.com/playbooks-ai/playbooks-runtime/internal/callstack"
	"github.com/playbooks-ai/playbooks-runtime/internal/inbox"
)

// Kind distinguishes an AI-driven agent from a human-adapter agent (spec
// §3's "kind ∈ {AI, Human}").
type Kind int

const (
	AI Kind = iota
	Human
)

// MeetingNotifications is a human's policy for meeting message delivery
// (spec §3, §4.4).
type MeetingNotifications string

const (
	NotifyAll      MeetingNotifications = "all"
	NotifyTargeted MeetingNotifications = "targeted"
	NotifyNone     MeetingNotifications = "none"
)

// DeliveryPreferences governs how a human agent receives messages (spec
// §3): streaming vs. buffered, and the meeting-notification policy.
type DeliveryPreferences struct {
	Channel               string // "streaming" | "buffered"
	StreamingEnabled      bool
	StreamingChunkSize    int
	BufferTimeout         int // milliseconds
	BufferMessages        int
	MeetingNotifications  MeetingNotifications
}

// Agent is one runtime agent instance (spec §3: "{ id, klass, kind, state,
// inbox, deliveryPreferences, program }").
type Agent struct {
	ID                  string
	Klass               string
	Kind                Kind
	Inbox               *inbox.Inbox
	DeliveryPreferences DeliveryPreferences
	CallStack           *callstack.CallStack

	mu             sync.Mutex
	busy           bool
	waitingMode    WaitingMode
	waitingTimeout *int // milliseconds; nil = infinite
	runErrors      []string
}

// NewAgent constructs an idle agent with a fresh CallStack and the given
// inbox.
func NewAgent(id, klass string, kind Kind, ownerInbox *inbox.Inbox, artifactThreshold int) *Agent {
	return &Agent{
		ID:        id,
		Klass:     klass,
		Kind:      kind,
		Inbox:     ownerInbox,
		CallStack: callstack.New(artifactThreshold),
	}
}

// SetBusy updates the busy flag (spec §4.6: "The busy flag is exposed in
// agent.state (key _busy) so that Program.GetOrCreate can prefer idle
// instances.").
func (a *Agent) SetBusy(busy bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.busy = busy
}

// Busy reports the current busy flag.
func (a *Agent) Busy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.busy
}

// State returns the externally-visible state map, keyed per spec §4.6
// ("_busy").
func (a *Agent) State() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return map[string]any{
		"_busy":   a.busy,
		"_errors": append([]string(nil), a.runErrors...),
	}
}

// SetWaitingMode records the mode the agent yielded with, consulted by the
// runtime loop on its next GetBatch.
func (a *Agent) SetWaitingMode(mode WaitingMode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.waitingMode = mode
}

// WaitingMode returns the agent's current waiting mode.
func (a *Agent) WaitingMode() WaitingMode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.waitingMode
}

// RecordError appends msg to the agent's error list (spec §7: "agent
// crashes are captured, recorded on the agent's state (errors list)").
func (a *Agent) RecordError(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runErrors = append(a.runErrors, msg)
}

// Errors returns a snapshot of the agent's recorded errors.
func (a *Agent) Errors() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.runErrors...)
}

// IsHuman reports whether this agent is the human-adapter kind.
func (a *Agent) IsHuman() bool {
	return a.Kind == Human
}
