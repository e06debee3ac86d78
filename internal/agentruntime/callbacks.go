package agentruntime

import (
	"github.com/playbooks-ai/playbooks-runtime/internal/checkpoint"
	"github.com/playbooks-ai/playbooks-runtime/internal/inbox"
)

// Callbacks is the narrow view AgentRuntime needs into Program, so this
// package doesn't import internal/program (Program wires Runtime, not the
// other way around). Every method here corresponds to one Effect kind in
// spec §6.1.
type Callbacks interface {
	// Route delivers content via receiverSpec (spec §4.5), used for both Say
	// and SendMessage effects.
	Route(senderID, senderKlass, spec, content string, typ inbox.MessageType) error

	// BeginStream resolves spec to a channel/recipient and opens streamID on
	// it, per Program.StartStream's shouldStream decision (spec §4.9).
	BeginStream(senderID, senderKlass, spec, streamID string) error
	// StreamChunk appends a fragment to an already-open stream.
	StreamChunk(streamID, chunk string) error
	// CompleteStream finalizes a stream and delivers the buffered fallback
	// message to non-streaming recipients (spec §4.3).
	CompleteStream(streamID, finalContent string) error

	// CreateMeeting creates a new meeting owned by the calling agent.
	CreateMeeting(ownerID, meetingID string, participants []string) error
	// JoinMeeting transitions agentID from invited to joined on meetingID.
	JoinMeeting(agentID, meetingID string) error
	// EndMeeting ends meetingID; fails with a not-owner error if agentID
	// isn't the owner (spec §9 Open Question, resolved in DESIGN.md).
	EndMeeting(agentID, meetingID string) error

	// Checkpoint hands a checkpoint record to the host for persistence; the
	// core never stores it itself (spec §2 Non-goals).
	Checkpoint(agentID string, record *checkpoint.Record) error

	// AgentStopped reports a terminal runtime outcome for agentID so Program
	// can publish AgentStopped and track exit-code implications (spec §7).
	AgentStopped(agentID, reason string)
	// AgentStep reports a waiting-mode transition for observability
	// (spec §6.2's AgentStep event).
	AgentStep(agentID string, mode string)
}
