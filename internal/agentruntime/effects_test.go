package agentruntime

import (
	"errors"
	"testing"

	"github.com/playbooks-ai/playbooks-runtime/internal/callstack"
	"github.com/playbooks-ai/playbooks-runtime/internal/checkpoint"
	"github.com/playbooks-ai/playbooks-runtime/internal/inbox"
)

type fakeCallbacks struct {
	routed       []routedCall
	streamsBegun []string
	chunks       []string
	completed    []string
	meetings     []string
	joined       []string
	ended        []string
	checkpoints  []*checkpoint.Record
	stopped      []string
	steps        []string

	routeErr error
}

type routedCall struct {
	senderID, senderKlass, spec, content string
	typ                                  inbox.MessageType
}

func (f *fakeCallbacks) Route(senderID, senderKlass, spec, content string, typ inbox.MessageType) error {
	if f.routeErr != nil {
		return f.routeErr
	}
	f.routed = append(f.routed, routedCall{senderID, senderKlass, spec, content, typ})
	return nil
}

func (f *fakeCallbacks) BeginStream(senderID, senderKlass, spec, streamID string) error {
	f.streamsBegun = append(f.streamsBegun, streamID)
	return nil
}

func (f *fakeCallbacks) StreamChunk(streamID, chunk string) error {
	f.chunks = append(f.chunks, chunk)
	return nil
}

func (f *fakeCallbacks) CompleteStream(streamID, finalContent string) error {
	f.completed = append(f.completed, finalContent)
	return nil
}

func (f *fakeCallbacks) CreateMeeting(ownerID, meetingID string, participants []string) error {
	f.meetings = append(f.meetings, meetingID)
	return nil
}

func (f *fakeCallbacks) JoinMeeting(agentID, meetingID string) error {
	f.joined = append(f.joined, meetingID)
	return nil
}

func (f *fakeCallbacks) EndMeeting(agentID, meetingID string) error {
	f.ended = append(f.ended, meetingID)
	return nil
}

func (f *fakeCallbacks) Checkpoint(agentID string, record *checkpoint.Record) error {
	f.checkpoints = append(f.checkpoints, record)
	return nil
}

func (f *fakeCallbacks) AgentStopped(agentID, reason string) {
	f.stopped = append(f.stopped, reason)
}

func (f *fakeCallbacks) AgentStep(agentID string, mode string) {
	f.steps = append(f.steps, mode)
}

func newTestRuntime(cb *fakeCallbacks) *Runtime {
	a := NewAgent("a1", "Worker", AI, inbox.New("a1", 0), 0)
	return NewRuntime(a, nil, cb, nil, nil)
}

func TestApplyEffectSay(t *testing.T) {
	cb := &fakeCallbacks{}
	rt := newTestRuntime(cb)
	rt.applyEffects([]Effect{Say("human", "hello")})

	if len(cb.routed) != 1 || cb.routed[0].spec != "human" || cb.routed[0].content != "hello" || cb.routed[0].typ != inbox.Direct {
		t.Errorf("routed = %+v, want one Direct Say to human", cb.routed)
	}
}

func TestApplyEffectSendMessage(t *testing.T) {
	cb := &fakeCallbacks{}
	rt := newTestRuntime(cb)
	rt.applyEffects([]Effect{SendMessage("agent worker-2", "ping", inbox.System)})

	if len(cb.routed) != 1 || cb.routed[0].typ != inbox.System {
		t.Errorf("routed = %+v, want one System message", cb.routed)
	}
}

func TestApplyEffectStreamLifecycle(t *testing.T) {
	cb := &fakeCallbacks{}
	rt := newTestRuntime(cb)
	rt.applyEffects([]Effect{
		StartStream("human", "s1"),
		StreamChunk("s1", "chunk-a"),
		CompleteStream("s1", "chunk-a"),
	})

	if len(cb.streamsBegun) != 1 || cb.streamsBegun[0] != "s1" {
		t.Errorf("streamsBegun = %v, want [s1]", cb.streamsBegun)
	}
	if len(cb.chunks) != 1 || cb.chunks[0] != "chunk-a" {
		t.Errorf("chunks = %v, want [chunk-a]", cb.chunks)
	}
	if len(cb.completed) != 1 || cb.completed[0] != "chunk-a" {
		t.Errorf("completed = %v, want [chunk-a]", cb.completed)
	}
}

func TestApplyEffectYieldSetsWaitingModeAndSteps(t *testing.T) {
	cb := &fakeCallbacks{}
	rt := newTestRuntime(cb)
	rt.applyEffects([]Effect{Yield(ForAgent("b1"))})

	if mode := rt.agent.WaitingMode(); mode.Kind != WaitForAgent || mode.TargetID != "b1" {
		t.Errorf("WaitingMode() = %+v, want WaitForAgent(b1)", mode)
	}
	if len(cb.steps) != 1 || cb.steps[0] != "wait_for_agent:b1" {
		t.Errorf("steps = %v, want [wait_for_agent:b1]", cb.steps)
	}
}

func TestApplyEffectMeetingLifecycle(t *testing.T) {
	cb := &fakeCallbacks{}
	rt := newTestRuntime(cb)
	rt.applyEffects([]Effect{
		CreateMeeting("m1", []string{"b1", "b2"}),
		JoinMeeting("m1"),
		EndMeeting("m1"),
	})

	if len(cb.meetings) != 1 || cb.meetings[0] != "m1" {
		t.Errorf("meetings = %v, want [m1]", cb.meetings)
	}
	if len(cb.joined) != 1 || cb.joined[0] != "m1" {
		t.Errorf("joined = %v, want [m1]", cb.joined)
	}
	if len(cb.ended) != 1 || cb.ended[0] != "m1" {
		t.Errorf("ended = %v, want [m1]", cb.ended)
	}
}

func TestApplyEffectSetVariableUpdatesCallStack(t *testing.T) {
	cb := &fakeCallbacks{}
	rt := newTestRuntime(cb)
	rt.applyEffects([]Effect{SetVariable("x", 42)})

	v, ok := rt.agent.CallStack.TopLevelVariable("x")
	if !ok {
		t.Fatalf("x not set on call stack")
	}
	if cv, ok := v.(callstack.Variable); !ok || cv.Value != 42 {
		t.Errorf("x = %v, want Variable{Value:42}", v)
	}
}

func TestApplyEffectCheckpointForwardsRecord(t *testing.T) {
	cb := &fakeCallbacks{}
	rt := newTestRuntime(cb)
	rec := &checkpoint.Record{CheckpointID: "cp1"}
	rt.applyEffects([]Effect{Checkpoint(rec)})

	if len(cb.checkpoints) != 1 || cb.checkpoints[0] != rec {
		t.Errorf("checkpoints = %v, want [rec]", cb.checkpoints)
	}
}

func TestApplyEffectsStopsAtFirstFailure(t *testing.T) {
	cb := &fakeCallbacks{routeErr: errors.New("boom")}
	rt := newTestRuntime(cb)
	rt.applyEffects([]Effect{
		Say("human", "one"),
		SetVariable("x", 1),
	})

	if len(cb.routed) != 0 {
		t.Errorf("routed should be empty since Route always errors")
	}
	if _, ok := rt.agent.CallStack.TopLevelVariable("x"); ok {
		t.Errorf("SetVariable effect after a failing Say should not have run")
	}
	errs := rt.agent.Errors()
	if len(errs) != 1 {
		t.Fatalf("agent.Errors() = %v, want one recorded error", errs)
	}
}

func TestApplyEffectRejectsInvalidExecutorInput(t *testing.T) {
	cb := &fakeCallbacks{}
	rt := newTestRuntime(cb)

	rt.applyEffects([]Effect{Say("", "hello")})
	if len(cb.routed) != 0 {
		t.Errorf("Say with an empty target should have been rejected before routing")
	}
	errs := rt.agent.Errors()
	if len(errs) != 1 {
		t.Fatalf("agent.Errors() = %v, want one recorded validation error", errs)
	}

	rt2 := newTestRuntime(&fakeCallbacks{})
	rt2.applyEffects([]Effect{SetVariable("1invalid", 1)})
	if _, ok := rt2.agent.CallStack.TopLevelVariable("1invalid"); ok {
		t.Errorf("SetVariable with an invalid name should not have reached the call stack")
	}
}

func TestModeLabel(t *testing.T) {
	cases := []struct {
		mode WaitingMode
		want string
	}{
		{Idle, "not_waiting"},
		{ForAgent("b1"), "wait_for_agent:b1"},
		{ForMeeting("m1"), "wait_for_meeting:m1"},
		{ForUser(), "wait_for_user"},
	}
	for _, c := range cases {
		if got := modeLabel(c.mode); got != c.want {
			t.Errorf("modeLabel(%+v) = %q, want %q", c.mode, got, c.want)
		}
	}
}
