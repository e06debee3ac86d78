package agentruntime

import (
	"context"

	"github.com/playbooks-ai/playbooks-runtime/internal/checkpoint"
	"github.com/playbooks-ai/playbooks-runtime/internal/inbox"
)

// AgentExecutor is the external, caller-supplied decision loop (spec §6.1):
// an LLM-driven agent or a human-adapter, invoked once per inbox batch.
// Implementations must treat ctx as cancellable: Program.Stop cancels it
// cooperatively (spec §5's "Cancellation").
type AgentExecutor interface {
	Run(ctx context.Context, agent *Agent, inputMessages []inbox.Message) (RunResult, error)
}

// AgentExecutorFunc adapts a plain function to AgentExecutor.
type AgentExecutorFunc func(ctx context.Context, agent *Agent, inputMessages []inbox.Message) (RunResult, error)

func (f AgentExecutorFunc) Run(ctx context.Context, agent *Agent, inputMessages []inbox.Message) (RunResult, error) {
	return f(ctx, agent, inputMessages)
}

// RunResult is what one AgentExecutor.Run call returns (spec §6.1).
type RunResult struct {
	Effects     []Effect
	EndsProgram bool
}

// EffectKind enumerates the Effect variants an executor may emit (spec
// §6.1).
type EffectKind int

const (
	EffectSay EffectKind = iota
	EffectSendMessage
	EffectStartStream
	EffectStreamChunk
	EffectCompleteStream
	EffectYield
	EffectCreateMeeting
	EffectJoinMeeting
	EffectEndMeeting
	EffectSetVariable
	EffectCheckpoint
)

// Effect is a single instruction emitted by an executor turn, executed by
// the runtime in order (spec §6.1: "The core executes effects in order,
// updating state and publishing events.").
type Effect struct {
	Kind EffectKind

	// Say, SendMessage, StartStream target a receiver spec (spec §6.3).
	Target      string
	Content     string
	MessageType inbox.MessageType // used by SendMessage; Say always sends Direct/MeetingBroadcast per target

	// StartStream, StreamChunk, CompleteStream.
	StreamID string
	Chunk    string

	// Yield.
	Mode WaitingMode

	// CreateMeeting, JoinMeeting, EndMeeting.
	MeetingID    string
	Participants []string

	// SetVariable.
	Name  string
	Value any

	// Checkpoint.
	CheckpointRecord *checkpoint.Record
}

// Say builds an EffectSay targeting spec with content.
func Say(spec, content string) Effect {
	return Effect{Kind: EffectSay, Target: spec, Content: content}
}

// SendMessage builds an EffectSendMessage targeting spec with an explicit
// message type.
func SendMessage(spec, content string, typ inbox.MessageType) Effect {
	return Effect{Kind: EffectSendMessage, Target: spec, Content: content, MessageType: typ}
}

// StartStream builds an EffectStartStream.
func StartStream(spec, streamID string) Effect {
	return Effect{Kind: EffectStartStream, Target: spec, StreamID: streamID}
}

// StreamChunk builds an EffectStreamChunk.
func StreamChunk(streamID, chunk string) Effect {
	return Effect{Kind: EffectStreamChunk, StreamID: streamID, Chunk: chunk}
}

// CompleteStream builds an EffectCompleteStream.
func CompleteStream(streamID, finalContent string) Effect {
	return Effect{Kind: EffectCompleteStream, StreamID: streamID, Content: finalContent}
}

// Yield builds an EffectYield.
func Yield(mode WaitingMode) Effect {
	return Effect{Kind: EffectYield, Mode: mode}
}

// CreateMeeting builds an EffectCreateMeeting.
func CreateMeeting(meetingID string, participants []string) Effect {
	return Effect{Kind: EffectCreateMeeting, MeetingID: meetingID, Participants: participants}
}

// JoinMeeting builds an EffectJoinMeeting.
func JoinMeeting(meetingID string) Effect {
	return Effect{Kind: EffectJoinMeeting, MeetingID: meetingID}
}

// EndMeeting builds an EffectEndMeeting.
func EndMeeting(meetingID string) Effect {
	return Effect{Kind: EffectEndMeeting, MeetingID: meetingID}
}

// SetVariable builds an EffectSetVariable.
func SetVariable(name string, value any) Effect {
	return Effect{Kind: EffectSetVariable, Name: name, Value: value}
}

// Checkpoint builds an EffectCheckpoint.
func Checkpoint(record *checkpoint.Record) Effect {
	return Effect{Kind: EffectCheckpoint, CheckpointRecord: record}
}
