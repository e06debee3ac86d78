package agentruntime

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/playbooks-ai/playbooks-runtime/internal/inbox"
)

func TestRuntimeStopsOnClosedEmptyInbox(t *testing.T) {
	cb := &fakeCallbacks{}
	in := inbox.New("a1", 0)
	a := NewAgent("a1", "Worker", AI, in, 0)
	exec := AgentExecutorFunc(func(ctx context.Context, agent *Agent, msgs []inbox.Message) (RunResult, error) {
		t.Fatalf("executor should not run on an empty closed inbox")
		return RunResult{}, nil
	})
	rt := NewRuntime(a, exec, cb, nil, nil)

	in.Close()
	rt.Start()

	select {
	case <-rt.Done():
	case <-time.After(time.Second):
		t.Fatalf("loop should exit once the closed inbox is drained")
	}

	if len(cb.stopped) != 1 || cb.stopped[0] != "closed" {
		t.Errorf("stopped reasons = %v, want [closed]", cb.stopped)
	}
}

func TestRuntimeWaitForUserClosedInboxReportsNoInput(t *testing.T) {
	cb := &fakeCallbacks{}
	in := inbox.New("human", 0)
	a := NewAgent("human-adapter", "Human", Human, in, 0)
	a.SetWaitingMode(ForUser())
	exec := AgentExecutorFunc(func(ctx context.Context, agent *Agent, msgs []inbox.Message) (RunResult, error) {
		return RunResult{}, nil
	})
	rt := NewRuntime(a, exec, cb, nil, nil)

	in.Close()
	rt.Start()

	select {
	case <-rt.Done():
	case <-time.After(time.Second):
		t.Fatalf("loop should exit once WaitForUser's closed inbox is drained")
	}

	if len(cb.stopped) != 1 || cb.stopped[0] != "no_input" {
		t.Errorf("stopped reasons = %v, want [no_input]", cb.stopped)
	}
}

func TestRuntimeRunsExecutorOnMessageAndApplesEffects(t *testing.T) {
	cb := &fakeCallbacks{}
	in := inbox.New("a1", 0)
	a := NewAgent("a1", "Worker", AI, in, 0)
	exec := AgentExecutorFunc(func(ctx context.Context, agent *Agent, msgs []inbox.Message) (RunResult, error) {
		return RunResult{Effects: []Effect{Say("human", "hi")}, EndsProgram: true}, nil
	})
	rt := NewRuntime(a, exec, cb, nil, nil)
	rt.Start()

	if err := in.Put(inbox.Message{SenderID: "human", Type: inbox.Direct, Content: "start"}, inbox.Normal); err != nil {
		t.Fatalf("Put: %v", err)
	}

	select {
	case <-rt.Done():
	case <-time.After(time.Second):
		t.Fatalf("loop should exit after EndsProgram effect result")
	}

	if len(cb.routed) != 1 || cb.routed[0].content != "hi" {
		t.Errorf("routed = %v, want one Say(hi)", cb.routed)
	}
	if len(cb.stopped) != 1 || cb.stopped[0] != "ended" {
		t.Errorf("stopped reasons = %v, want [ended]", cb.stopped)
	}
}

func TestRuntimeExecutorCrashStopsAgent(t *testing.T) {
	cb := &fakeCallbacks{}
	in := inbox.New("a1", 0)
	a := NewAgent("a1", "Worker", AI, in, 0)
	exec := AgentExecutorFunc(func(ctx context.Context, agent *Agent, msgs []inbox.Message) (RunResult, error) {
		return RunResult{}, errors.New("fatal crash")
	})
	rt := NewRuntime(a, exec, cb, nil, nil).WithRetryPolicy(RetryPolicy{MaxAttempts: 1})
	rt.Start()

	if err := in.Put(inbox.Message{SenderID: "human", Type: inbox.Direct}, inbox.Normal); err != nil {
		t.Fatalf("Put: %v", err)
	}

	select {
	case <-rt.Done():
	case <-time.After(time.Second):
		t.Fatalf("loop should exit after a fatal executor error")
	}

	if len(cb.stopped) != 1 || cb.stopped[0] != "error" {
		t.Errorf("stopped reasons = %v, want [error]", cb.stopped)
	}
	if errs := a.Errors(); len(errs) != 1 {
		t.Errorf("agent.Errors() = %v, want one recorded error", errs)
	}
}

func TestRuntimeStopCancelsLoop(t *testing.T) {
	cb := &fakeCallbacks{}
	in := inbox.New("a1", 0)
	a := NewAgent("a1", "Worker", AI, in, 0)
	blocked := make(chan struct{})
	exec := AgentExecutorFunc(func(ctx context.Context, agent *Agent, msgs []inbox.Message) (RunResult, error) {
		close(blocked)
		<-ctx.Done()
		return RunResult{}, ctx.Err()
	})
	rt := NewRuntime(a, exec, cb, nil, nil)
	rt.Start()

	if err := in.Put(inbox.Message{SenderID: "human", Type: inbox.Direct}, inbox.Normal); err != nil {
		t.Fatalf("Put: %v", err)
	}

	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatalf("executor should have started running")
	}

	done := make(chan struct{})
	go func() {
		rt.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Stop should return once the executor observes cancellation")
	}
}

func TestRuntimeRetriesTransientErrorsThenSucceeds(t *testing.T) {
	cb := &fakeCallbacks{}
	in := inbox.New("a1", 0)
	a := NewAgent("a1", "Worker", AI, in, 0)

	attempts := 0
	exec := AgentExecutorFunc(func(ctx context.Context, agent *Agent, msgs []inbox.Message) (RunResult, error) {
		attempts++
		if attempts < 2 {
			return RunResult{}, Transient(errors.New("overloaded"))
		}
		return RunResult{EndsProgram: true}, nil
	})
	rt := NewRuntime(a, exec, cb, nil, nil).WithRetryPolicy(RetryPolicy{
		MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 1, MaxDelay: 10 * time.Millisecond,
	})
	rt.Start()

	if err := in.Put(inbox.Message{SenderID: "human", Type: inbox.Direct}, inbox.Normal); err != nil {
		t.Fatalf("Put: %v", err)
	}

	select {
	case <-rt.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("loop should complete after retrying past the transient error")
	}

	if attempts != 2 {
		t.Errorf("attempts = %d, want 2 (one transient failure, then success)", attempts)
	}
	if len(cb.stopped) != 1 || cb.stopped[0] != "ended" {
		t.Errorf("stopped reasons = %v, want [ended]", cb.stopped)
	}
}

func TestRetryPolicyDelayCapsAtMaxDelay(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, Multiplier: 10, MaxDelay: 2 * time.Second}
	if got := p.delay(5); got != 2*time.Second {
		t.Errorf("delay(5) = %v, want capped at 2s", got)
	}
}

// TestScenarioProgressiveTimeoutWithLateReply implements spec §8's S2: an
// agent yields waiting on another, gets a synthetic timeout notice after
// DefaultYieldTimeout elapses with no reply, and resumes waiting; a late
// reply that then arrives is delivered once the agent yields again.
func TestScenarioProgressiveTimeoutWithLateReply(t *testing.T) {
	cb := &fakeCallbacks{}
	in := inbox.New("a1", 0)
	a := NewAgent("a1", "Worker", AI, in, 0)

	type call struct {
		step int
		msgs []inbox.Message
	}
	calls := make(chan call, 8)
	step := 0
	exec := AgentExecutorFunc(func(ctx context.Context, agent *Agent, msgs []inbox.Message) (RunResult, error) {
		step++
		calls <- call{step: step, msgs: msgs}
		switch step {
		case 1, 2:
			return RunResult{Effects: []Effect{Yield(ForAgent("b1"))}}, nil
		default:
			return RunResult{EndsProgram: true}, nil
		}
	})
	rt := NewRuntime(a, exec, cb, nil, nil)
	rt.Start()
	defer rt.Stop()

	if err := in.Put(inbox.Message{SenderID: "human", Type: inbox.Direct, Content: "start"}, inbox.Normal); err != nil {
		t.Fatalf("Put: %v", err)
	}

	first := <-calls
	if first.step != 1 || first.msgs[0].Content != "start" {
		t.Fatalf("first call = %+v, want the initial start message", first)
	}

	// Nothing replies from b1 within DefaultYieldTimeout (5s): expect the
	// runtime to synthesize a progressive-timeout notice and re-invoke the
	// executor with it, well before a generous test deadline.
	var second call
	select {
	case second = <-calls:
	case <-time.After(DefaultYieldTimeout + 5*time.Second):
		t.Fatalf("executor was never re-invoked with a progressive-timeout notice")
	}
	if second.step != 2 || len(second.msgs) != 1 {
		t.Fatalf("second call = %+v, want exactly one synthetic notice", second)
	}
	notice := second.msgs[0]
	if notice.Type != inbox.System {
		t.Errorf("notice.Type = %v, want System", notice.Type)
	}
	if !strings.Contains(notice.Content, "hasn't replied in 5") || !strings.Contains(notice.Content, "b1") {
		t.Errorf("notice.Content = %q, want it to reference b1 and the 5s window", notice.Content)
	}

	// b1's late reply should now be delivered, since the agent re-yielded
	// ForAgent("b1") after the timeout notice.
	if err := in.Put(inbox.Message{SenderID: "b1", Type: inbox.Direct, Content: "15%"}, inbox.Normal); err != nil {
		t.Fatalf("Put late reply: %v", err)
	}

	var third call
	select {
	case third = <-calls:
	case <-time.After(time.Second):
		t.Fatalf("executor was never re-invoked with the late reply")
	}
	if third.step != 3 || len(third.msgs) != 1 || third.msgs[0].Content != "15%" {
		t.Fatalf("third call = %+v, want the late reply content 15%%", third)
	}

	select {
	case <-rt.Done():
	case <-time.After(time.Second):
		t.Fatalf("loop should exit after EndsProgram")
	}
}

func TestYieldTimeoutOnlyAppliesToWaitForAgent(t *testing.T) {
	if d := yieldTimeout(Idle); d != nil {
		t.Errorf("yieldTimeout(Idle) = %v, want nil", d)
	}
	if d := yieldTimeout(ForUser()); d != nil {
		t.Errorf("yieldTimeout(ForUser) = %v, want nil", d)
	}
	d := yieldTimeout(ForAgent("b1"))
	if d == nil || *d != DefaultYieldTimeout {
		t.Errorf("yieldTimeout(ForAgent) = %v, want %v", d, DefaultYieldTimeout)
	}
}
