package eventbus

import "time"

// EventType names one of the fixed runtime event kinds from spec §6.2.
// Topics are fixed; this is not a general pub/sub broker (spec §1).
type EventType string

// Wildcard is the special EventType that subscribes to every event, in
// addition to — not instead of — any type-specific subscription (spec §4.1:
// "Wildcard subscribers receive every event after type-specific subscribers
// are collected into the dispatch set").
const Wildcard EventType = "*"

// Event taxonomy, spec §6.2. Every event carries SessionID, AgentID and
// Timestamp; the Payload field holds the event-specific data.
const (
	EventAgentStarted      EventType = "agent_started"
	EventAgentStopped      EventType = "agent_stopped"
	EventAgentPaused       EventType = "agent_paused"
	EventAgentResumed      EventType = "agent_resumed"
	EventAgentStep         EventType = "agent_step"
	EventCallStackPush     EventType = "call_stack_push"
	EventCallStackPop      EventType = "call_stack_pop"
	EventInstructionPtr    EventType = "instruction_pointer"
	EventPlaybookStart     EventType = "playbook_start"
	EventPlaybookEnd       EventType = "playbook_end"
	EventVariableUpdate    EventType = "variable_update"
	EventChannelCreated    EventType = "channel_created"
	EventStreamStart       EventType = "stream_start"
	EventStreamChunk       EventType = "stream_chunk"
	EventStreamComplete    EventType = "stream_complete"
	EventBreakpointHit     EventType = "breakpoint_hit"
	EventLineExecuted      EventType = "line_executed"
	EventCompiledProgram   EventType = "compiled_program"
	EventProgramTerminated EventType = "program_terminated"
	EventAttendeeJoined    EventType = "attendee_joined"
	EventMeetingEnded      EventType = "meeting_ended"
)

// Event is the tagged-union envelope published on the bus. Go has no sum
// type, so the discriminant is Type and Payload carries the event-specific
// struct (one of the *Payload types below, or nil for simple signals).
type Event struct {
	Type      EventType
	SessionID string
	AgentID   string
	Timestamp time.Time
	Payload   any
}

// New builds an Event stamped with the current time.
func New(typ EventType, sessionID, agentID string, payload any) Event {
	return Event{
		Type:      typ,
		SessionID: sessionID,
		AgentID:   agentID,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

type AgentStartedPayload struct {
	Klass string
	Name  string
}

type AgentStoppedPayload struct {
	Reason string
}

type AgentPausedPayload struct {
	Reason string
	Line   int
	Step   int
}

type AgentStepPayload struct {
	Mode string
}

type CallStackPayload struct {
	Frame any
	Stack any
}

type InstructionPointerPayload struct {
	Pointer any
	Stack   any
}

type PlaybookStartPayload struct {
	Name string
}

type PlaybookEndPayload struct {
	Name        string
	ReturnValue any
	Depth       int
}

type VariableUpdatePayload struct {
	Name  string
	Value any
}

type ChannelCreatedPayload struct {
	ChannelID     string
	IsMeeting     bool
	ParticipantID []string
}

type StreamStartPayload struct {
	StreamID    string
	ChannelID   string
	SenderID    string
	RecipientID string
}

type StreamChunkPayload struct {
	StreamID    string
	Seq         int
	Chunk       string
	RecipientID string
}

type StreamCompletePayload struct {
	StreamID    string
	FinalText   string
	RecipientID string
}

type BreakpointHitPayload struct {
	FilePath       string
	LineNumber     int
	SourceLineNumber int
}

type LineExecutedPayload struct {
	Step             int
	SourceLineNumber int
	Text             string
	FilePath         string
	LineNumber       int
}

type CompiledProgramPayload struct {
	CompiledFilePath  string
	Content           string
	OriginalFilePaths []string
}

type ProgramTerminatedPayload struct {
	Reason   string
	ExitCode int
}

type AttendeeJoinedPayload struct {
	MeetingID string
}

type MeetingEndedPayload struct {
	MeetingID string
}
