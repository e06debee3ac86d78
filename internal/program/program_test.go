package program

import (
	"context"
	"testing"
	"time"

	"github.com/playbooks-ai/playbooks-runtime/internal/agentruntime"
	"github.com/playbooks-ai/playbooks-runtime/internal/eventbus"
	"github.com/playbooks-ai/playbooks-runtime/internal/ids"
	"github.com/playbooks-ai/playbooks-runtime/internal/inbox"
)

func endsImmediately(ctx context.Context, a *agentruntime.Agent, msgs []inbox.Message) (agentruntime.RunResult, error) {
	return agentruntime.RunResult{EndsProgram: true}, nil
}

func idleForever(ctx context.Context, a *agentruntime.Agent, msgs []inbox.Message) (agentruntime.RunResult, error) {
	return agentruntime.RunResult{}, nil
}

func TestInitializeDefaultsToUserHuman(t *testing.T) {
	p := New()
	if err := p.Initialize(nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	a, ok := p.Agent(ids.HumanID)
	if !ok {
		t.Fatalf("default human agent not created under ids.HumanID")
	}
	if a.Klass != "User" || !a.IsHuman() {
		t.Errorf("default human agent = %+v, want klass=User, IsHuman", a)
	}
}

func TestInitializeRegistersDeclaredHuman(t *testing.T) {
	p := New()
	err := p.Initialize([]AgentDefinition{
		{Klass: "Operator", Kind: agentruntime.Human},
		{Klass: "Worker", Kind: agentruntime.AI, Executor: agentruntime.AgentExecutorFunc(idleForever)},
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	a, ok := p.Agent(ids.HumanID)
	if !ok || a.Klass != "Operator" {
		t.Fatalf("declared human agent = %+v, ok=%v, want Operator under ids.HumanID", a, ok)
	}
}

func TestCreateAgentUnknownKlass(t *testing.T) {
	p := New()
	if _, err := p.CreateAgent("Ghost"); err != ErrUnknownKlass {
		t.Errorf("CreateAgent(unknown klass) = %v, want ErrUnknownKlass", err)
	}
}

func TestCreateAgentStartsRuntimeAndPublishesAgentStarted(t *testing.T) {
	p := New()
	if err := p.Initialize([]AgentDefinition{
		{Klass: "Worker", Kind: agentruntime.AI, Executor: agentruntime.AgentExecutorFunc(endsImmediately)},
	}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	received := make(chan struct{}, 1)
	p.Bus.Subscribe(eventbus.EventAgentStarted, eventbus.Sync(func(ctx context.Context, ev eventbus.Event) error {
		received <- struct{}{}
		return nil
	}))

	a, err := p.CreateAgent("Worker")
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if a.Klass != "Worker" {
		t.Errorf("agent.Klass = %q, want Worker", a.Klass)
	}

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatalf("AgentStarted event was not published")
	}
}

func TestGetOrCreateAgentLoadBalancesToIdleInstance(t *testing.T) {
	p := New()
	if err := p.Initialize([]AgentDefinition{
		{Klass: "Worker", Kind: agentruntime.AI, Executor: agentruntime.AgentExecutorFunc(idleForever)},
	}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	first, err := p.CreateAgent("Worker")
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	// idleForever returns immediately without ever setting Busy(true), so
	// the existing instance should be reused rather than spawning a new one.
	time.Sleep(20 * time.Millisecond)

	second, err := p.GetOrCreateAgent("Worker")
	if err != nil {
		t.Fatalf("GetOrCreateAgent: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("GetOrCreateAgent created a new instance %s instead of reusing idle %s", second.ID, first.ID)
	}
}

func TestRunTillExitReturnsExitNormalWhenAllAgentsEnd(t *testing.T) {
	p := New()
	if err := p.Initialize([]AgentDefinition{
		{Klass: "Worker", Kind: agentruntime.AI, Executor: agentruntime.AgentExecutorFunc(endsImmediately)},
	}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := p.CreateAgent("Worker"); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	done := make(chan int, 1)
	go func() { done <- p.RunTillExit() }()

	select {
	case code := <-done:
		if code != ExitNormal {
			t.Errorf("RunTillExit() = %d, want ExitNormal", code)
		}
	case <-time.After(time.Second):
		t.Fatalf("RunTillExit did not return")
	}
}

func TestExitCodePriorityErrorOutranksNoInput(t *testing.T) {
	p := New()
	p.setExitCode(ExitNoInput)
	p.setExitCode(ExitError)
	if p.ExitCode() != ExitError {
		t.Errorf("ExitCode() = %d, want ExitError to outrank ExitNoInput", p.ExitCode())
	}

	// Once ExitError is set, a later ExitNoInput must not downgrade it.
	p2 := New()
	p2.setExitCode(ExitError)
	p2.setExitCode(ExitNoInput)
	if p2.ExitCode() != ExitError {
		t.Errorf("ExitCode() = %d, want ExitError to stick", p2.ExitCode())
	}
}

func TestAgentStoppedErrorSetsExitErrorForSoleNonHumanAgent(t *testing.T) {
	p := New()
	if err := p.Initialize([]AgentDefinition{
		{Klass: "Worker", Kind: agentruntime.AI, Executor: agentruntime.AgentExecutorFunc(idleForever)},
	}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	a, err := p.CreateAgent("Worker")
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	p.AgentStopped(a.ID, "error")
	if p.ExitCode() != ExitError {
		t.Errorf("ExitCode() = %d, want ExitError after the sole non-human agent crashes", p.ExitCode())
	}
}

func TestAgentStoppedNoInputSetsExitNoInput(t *testing.T) {
	p := New()
	if err := p.Initialize(nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	p.AgentStopped(ids.HumanID, "no_input")
	if p.ExitCode() != ExitNoInput {
		t.Errorf("ExitCode() = %d, want ExitNoInput", p.ExitCode())
	}
}

func TestStopCancelsRuntimesAndClosesBus(t *testing.T) {
	p := New()
	if err := p.Initialize([]AgentDefinition{
		{Klass: "Worker", Kind: agentruntime.AI, Executor: agentruntime.AgentExecutorFunc(idleForever)},
	}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := p.CreateAgent("Worker"); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	done := make(chan struct{})
	go func() {
		p.Stop("shutdown", ExitNormal)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not return")
	}
}
