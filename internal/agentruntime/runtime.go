// Package agentruntime implements AgentRuntime (spec §4.6, C6): the
// per-agent scheduling loop, progressive-timeout handling for Yield, and
// effect execution. Grounded on the teacher's session-lifecycle goroutine
// in internal/session (one goroutine per live session, cooperative
// cancellation via context) generalized to one goroutine per agent.
package agentruntime

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/playbooks-ai/playbooks-runtime/internal/eventbus"
	"github.com/playbooks-ai/playbooks-runtime/internal/inbox"
	"github.com/playbooks-ai/playbooks-runtime/internal/logger"
	"github.com/playbooks-ai/playbooks-runtime/internal/metrics"
	"github.com/playbooks-ai/playbooks-runtime/internal/ratelimit"
)

// DefaultYieldTimeout is the per-reply timeout for WaitForAgent before the
// progressive-timeout notification fires (spec §5: "Default agent-wait: 5s").
const DefaultYieldTimeout = 5 * time.Second

// TransientError marks an AgentExecutor.Run failure as retryable (spec §7:
// "Transient / recoverable: external-service overload, rate-limit").
// Executors should wrap an error with Transient to opt into the runtime's
// retry policy; any other error is treated as fatal immediately.
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err so the runtime retries the executor call per its
// RetryPolicy instead of failing the agent immediately.
func Transient(err error) error { return &TransientError{Err: err} }

func isTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// RetryPolicy configures the backoff applied to transient executor errors
// (spec §7).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is a conservative exponential backoff: 3 attempts,
// starting at 200ms, doubling, capped at 5s.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   200 * time.Millisecond,
	Multiplier:  2,
	MaxDelay:    5 * time.Second,
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	if max := float64(p.MaxDelay); d > max {
		d = max
	}
	return time.Duration(d)
}

// Runtime drives one Agent's scheduling loop (spec §4.6).
type Runtime struct {
	agent     *Agent
	executor  AgentExecutor
	callbacks Callbacks
	bus       *eventbus.EventBus
	limiter   *ratelimit.Limiter
	retry     RetryPolicy

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	wg   sync.WaitGroup
	once sync.Once
}

// NewRuntime creates a Runtime for agent, driven by executor, wired to
// callbacks for effect execution and bus for event publication.
func NewRuntime(agent *Agent, executor AgentExecutor, callbacks Callbacks, bus *eventbus.EventBus, limiter *ratelimit.Limiter) *Runtime {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runtime{
		agent:     agent,
		executor:  executor,
		callbacks: callbacks,
		bus:       bus,
		limiter:   limiter,
		retry:     DefaultRetryPolicy,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// WithRetryPolicy overrides the default retry policy.
func (rt *Runtime) WithRetryPolicy(p RetryPolicy) *Runtime {
	rt.retry = p
	return rt
}

// Start launches the scheduling loop on its own goroutine.
func (rt *Runtime) Start() {
	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		defer close(rt.done)
		rt.loop()
	}()
}

// Stop cancels the runtime cooperatively and waits for the loop to exit
// (spec §5: "Cancellation: Program.Stop broadcasts cancel ... In-flight
// AgentExecutor.Run is signaled cooperatively").
func (rt *Runtime) Stop() {
	rt.once.Do(rt.cancel)
	rt.wg.Wait()
}

// Done reports when the loop has exited.
func (rt *Runtime) Done() <-chan struct{} { return rt.done }

func (rt *Runtime) publish(typ eventbus.EventType, payload any) {
	if rt.bus == nil {
		return
	}
	_ = rt.bus.Publish(rt.ctx, eventbus.New(typ, "", rt.agent.ID, payload))
}

func (rt *Runtime) loop() {
	for {
		if rt.ctx.Err() != nil {
			return
		}

		mode := rt.agent.WaitingMode()
		pred := predicate(mode)
		timeout := yieldTimeout(mode)

		msgs, err := rt.agent.Inbox.GetBatch(rt.ctx, pred, 0, 1, timeout)
		switch {
		case errors.Is(err, inbox.ErrTimeout):
			if rt.handleProgressiveTimeout(mode) {
				return
			}
			continue
		case errors.Is(err, inbox.ErrClosedAndEmpty):
			// A non-interactive run whose only remaining agent is blocked on
			// WaitForUser with its inbox closed and empty has no further
			// input to consume (spec §6.5's exit code 3).
			if mode.Kind == WaitForUser {
				rt.callbacks.AgentStopped(rt.agent.ID, "no_input")
				rt.publish(eventbus.EventAgentStopped, eventbus.AgentStoppedPayload{Reason: "no_input"})
				return
			}
			rt.callbacks.AgentStopped(rt.agent.ID, "closed")
			rt.publish(eventbus.EventAgentStopped, eventbus.AgentStoppedPayload{Reason: "closed"})
			return
		case rt.ctx.Err() != nil:
			return
		case err != nil:
			logger.Error("agentruntime: unexpected inbox error for %s: %v", rt.agent.ID, err)
			return
		}

		rt.agent.SetBusy(true)
		rt.publish(eventbus.EventAgentStep, eventbus.AgentStepPayload{Mode: "running"})
		result, runErr := rt.runExecutor(msgs)
		rt.agent.SetBusy(false)

		if runErr != nil {
			rt.agent.RecordError(runErr.Error())
			logger.Error("agentruntime: agent %s crashed: %v", rt.agent.ID, runErr)
			rt.callbacks.AgentStopped(rt.agent.ID, "error")
			rt.publish(eventbus.EventAgentStopped, eventbus.AgentStoppedPayload{Reason: "error"})
			return
		}

		rt.applyEffects(result.Effects)

		if result.EndsProgram {
			rt.callbacks.AgentStopped(rt.agent.ID, "ended")
			rt.publish(eventbus.EventAgentStopped, eventbus.AgentStoppedPayload{Reason: "ended"})
			return
		}
	}
}

// yieldTimeout returns the GetBatch timeout implied by mode: WaitForAgent
// uses the 5s progressive-timeout window; other modes wait indefinitely
// (spec §4.6).
func yieldTimeout(mode WaitingMode) *time.Duration {
	if mode.Kind != WaitForAgent {
		return nil
	}
	t := DefaultYieldTimeout
	return &t
}

// handleProgressiveTimeout implements spec §4.6's progressive-timeout rule:
// collect interrupts that arrived during the window, synthesize a system
// notification, and hand both to the executor so it can decide whether to
// keep waiting. Only meaningful for WaitForAgent; other modes never hit this
// path since their GetBatch has no deadline. It reports whether the executor
// crashed, in which case the agent has been stopped with reason "error".
func (rt *Runtime) handleProgressiveTimeout(mode WaitingMode) bool {
	metrics.RecordProgressiveTimeout(rt.agent.ID)
	if mode.Kind != WaitForAgent {
		return false
	}

	zero := time.Duration(0)
	interrupts, err := rt.agent.Inbox.GetBatch(rt.ctx, interruptPredicate(mode.TargetID), 0, 1, &zero)
	if err != nil {
		interrupts = nil
	}

	notice := inbox.Message{
		SenderID:  "system",
		Content:   fmt.Sprintf("Agent %s hasn't replied in %s. To continue waiting, call Yield(%s) again.", mode.TargetID, DefaultYieldTimeout, mode.TargetID),
		Type:      inbox.System,
		Timestamp: time.Now(),
	}
	batch := append(interrupts, notice)

	rt.agent.SetBusy(true)
	result, err := rt.runExecutor(batch)
	rt.agent.SetBusy(false)
	if err != nil {
		rt.agent.RecordError(err.Error())
		logger.Error("agentruntime: agent %s crashed during progressive timeout: %v", rt.agent.ID, err)
		rt.callbacks.AgentStopped(rt.agent.ID, "error")
		rt.publish(eventbus.EventAgentStopped, eventbus.AgentStoppedPayload{Reason: "error"})
		return true
	}
	rt.applyEffects(result.Effects)
	return false
}

// runExecutor invokes the executor, retrying transient failures per
// rt.retry (spec §7).
func (rt *Runtime) runExecutor(msgs []inbox.Message) (RunResult, error) {
	if rt.limiter != nil {
		if err := rt.limiter.Wait(rt.ctx, rt.agent.Klass); err != nil {
			return RunResult{}, err
		}
	}

	var lastErr error
	for attempt := 0; attempt < max(rt.retry.MaxAttempts, 1); attempt++ {
		if attempt > 0 {
			metrics.RecordExecutorRetry(rt.agent.Klass, "retry")
			select {
			case <-time.After(rt.retry.delay(attempt - 1)):
			case <-rt.ctx.Done():
				return RunResult{}, rt.ctx.Err()
			}
		}
		result, err := rt.executor.Run(rt.ctx, rt.agent, msgs)
		if err == nil {
			metrics.RecordExecutorRetry(rt.agent.Klass, "success")
			return result, nil
		}
		lastErr = err
		if !isTransient(err) {
			return RunResult{}, err
		}
	}
	metrics.RecordExecutorRetry(rt.agent.Klass, "exhausted")
	return RunResult{}, lastErr
}
