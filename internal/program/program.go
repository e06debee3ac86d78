// Package program implements Program (spec §4.9, C9): the top-level
// container that owns the EventBus, the agent set, and the channel/meeting
// set, and exposes the surface every Effect ultimately calls back into.
// Grounded on the teacher's internal/session manager (the single
// program-wide registry of live sessions, guarded by one lock, with a
// goroutine-per-session lifecycle) generalized from HTTP sessions to
// runtime agents.
package program

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/playbooks-ai/playbooks-runtime/internal/agentruntime"
	"github.com/playbooks-ai/playbooks-runtime/internal/chanlock"
	"github.com/playbooks-ai/playbooks-runtime/internal/channel"
	"github.com/playbooks-ai/playbooks-runtime/internal/checkpoint"
	"github.com/playbooks-ai/playbooks-runtime/internal/eventbus"
	"github.com/playbooks-ai/playbooks-runtime/internal/ids"
	"github.com/playbooks-ai/playbooks-runtime/internal/inbox"
	"github.com/playbooks-ai/playbooks-runtime/internal/logger"
	"github.com/playbooks-ai/playbooks-runtime/internal/meeting"
	"github.com/playbooks-ai/playbooks-runtime/internal/metrics"
	"github.com/playbooks-ai/playbooks-runtime/internal/ratelimit"
	"github.com/playbooks-ai/playbooks-runtime/internal/router"
)

// ErrUnknownKlass is returned by CreateAgent/GetOrCreateAgent for a klass
// with no registered AgentDefinition.
var ErrUnknownKlass = errors.New("program: unknown agent klass")

// Process exit codes returned by RunTillExit (spec §6.5).
const (
	ExitNormal  = 0
	ExitError   = 1
	ExitNoInput = 3
)

// AgentDefinition declares one agent klass to Initialize (spec §4.9).
type AgentDefinition struct {
	Klass               string
	Kind                agentruntime.Kind
	Executor            agentruntime.AgentExecutor
	InboxSize           int // 0 = unbounded
	DeliveryPreferences agentruntime.DeliveryPreferences
}

// Program owns every live agent, channel, and meeting for one execution
// (spec §3, §4.9).
type Program struct {
	Bus *eventbus.EventBus

	mu          sync.Mutex
	definitions map[string]AgentDefinition
	agents      map[string]*agentruntime.Agent
	runtimes    map[string]*agentruntime.Runtime
	klassIndex  map[string][]string // klass -> agent IDs, insertion order

	channels     map[string]*channel.Channel // direct channels, keyed by ids.DirectChannelID
	meetings     map[string]*meeting.Meeting
	meetingChans map[string]*channel.Channel // meetingID -> its Channel
	streamChans  map[string]*channel.Channel // streamID -> the channel it was opened on
	streams      map[string]streamMeta       // streamID -> sender/channel bookkeeping
	checkpoints  map[string]*checkpoint.Record

	artifactThreshold int
	limiter           *ratelimit.Limiter
	router            *router.Router
	chanLocks         *chanlock.Map // per-direct-channel-key locks, so GetOrCreateDirectChannel for {a,b} never blocks on {c,d}

	firstHumanID string
	exitCode     atomic.Int32
}

// exitCodePriority ranks exit codes by how strongly they should override
// each other: ExitError always wins, ExitNoInput wins over ExitNormal, and
// neither numeric value reflects this ordering (3 > 1) so it's looked up
// explicitly rather than taking a raw max.
func exitCodePriority(code int32) int {
	switch code {
	case ExitError:
		return 2
	case ExitNoInput:
		return 1
	default:
		return 0
	}
}

// setExitCode raises the pending exit code if code outranks whatever is
// currently recorded, per exitCodePriority.
func (p *Program) setExitCode(code int32) {
	for {
		cur := p.exitCode.Load()
		if exitCodePriority(code) <= exitCodePriority(cur) {
			return
		}
		if p.exitCode.CompareAndSwap(cur, code) {
			return
		}
	}
}

// ExitCode returns the process exit code implied by everything that has
// happened so far (spec §6.5); meaningful once RunTillExit returns.
func (p *Program) ExitCode() int {
	return int(p.exitCode.Load())
}

// New creates an empty Program. Call Initialize before creating agents.
func New() *Program {
	p := &Program{
		Bus:               eventbus.New(),
		definitions:       make(map[string]AgentDefinition),
		agents:            make(map[string]*agentruntime.Agent),
		runtimes:          make(map[string]*agentruntime.Runtime),
		klassIndex:        make(map[string][]string),
		channels:          make(map[string]*channel.Channel),
		meetings:          make(map[string]*meeting.Meeting),
		meetingChans:      make(map[string]*channel.Channel),
		streamChans:       make(map[string]*channel.Channel),
		streams:           make(map[string]streamMeta),
		checkpoints:       make(map[string]*checkpoint.Record),
		artifactThreshold: 0,
		limiter:           ratelimit.Default(),
		chanLocks:         chanlock.New(),
	}
	p.router = router.New(p)
	return p
}

// WithLimiter replaces the default per-klass executor rate limiter. Must be
// called before any CreateAgent/Initialize call, since running agents
// already hold a reference to the old limiter.
func (p *Program) WithLimiter(l *ratelimit.Limiter) *Program {
	p.limiter = l
	return p
}

// Initialize registers agent klasses and instantiates declared humans (spec
// §4.9: "instantiates humans declared with the :Human marker (or a default
// User:Human if none)").
func (p *Program) Initialize(defs []AgentDefinition) error {
	p.mu.Lock()
	for _, d := range defs {
		p.definitions[d.Klass] = d
	}
	p.mu.Unlock()

	var humans []AgentDefinition
	for _, d := range defs {
		if d.Kind == agentruntime.Human {
			humans = append(humans, d)
		}
	}
	if len(humans) == 0 {
		humans = append(humans, AgentDefinition{Klass: "User", Kind: agentruntime.Human})
		p.mu.Lock()
		p.definitions["User"] = humans[0]
		p.mu.Unlock()
	}

	for i, h := range humans {
		id := ""
		if i == 0 {
			id = ids.HumanID
		}
		if _, err := p.createAgentWithID(h.Klass, id); err != nil {
			return fmt.Errorf("program: initializing human %q: %w", h.Klass, err)
		}
	}
	return nil
}

// CreateAgent assigns a new ID and starts its runtime (spec §4.9).
func (p *Program) CreateAgent(klass string) (*agentruntime.Agent, error) {
	return p.createAgentWithID(klass, "")
}

func (p *Program) createAgentWithID(klass, id string) (*agentruntime.Agent, error) {
	p.mu.Lock()
	def, ok := p.definitions[klass]
	p.mu.Unlock()
	if !ok {
		return nil, ErrUnknownKlass
	}

	if id == "" {
		id = ids.NewAgentID()
	}
	box := inbox.New(id, def.InboxSize)
	agent := agentruntime.NewAgent(id, klass, def.Kind, box, p.artifactThreshold)
	agent.DeliveryPreferences = def.DeliveryPreferences

	executor := def.Executor
	if executor == nil {
		executor = agentruntime.AgentExecutorFunc(func(ctx context.Context, a *agentruntime.Agent, msgs []inbox.Message) (agentruntime.RunResult, error) {
			return agentruntime.RunResult{}, nil
		})
	}

	rt := agentruntime.NewRuntime(agent, executor, p, p.Bus, p.limiter)

	p.mu.Lock()
	p.agents[id] = agent
	p.runtimes[id] = rt
	p.klassIndex[klass] = append(p.klassIndex[klass], id)
	if def.Kind == agentruntime.Human && p.firstHumanID == "" {
		p.firstHumanID = id
	}
	p.mu.Unlock()

	metrics.SetActiveAgents(klass, len(p.klassIndex[klass]))
	rt.Start()
	p.Bus.Publish(context.Background(), eventbus.New(eventbus.EventAgentStarted, "", id, eventbus.AgentStartedPayload{Klass: klass, Name: id}))
	return agent, nil
}

// GetOrCreateAgent scans existing instances of klass under the program-wide
// lock; if any is idle, returns a random idle one; otherwise creates a new
// instance (spec §4.9: "This guarantees load balancing without starving
// callers.").
func (p *Program) GetOrCreateAgent(klass string) (*agentruntime.Agent, error) {
	p.mu.Lock()
	instanceIDs := append([]string(nil), p.klassIndex[klass]...)
	var idle []*agentruntime.Agent
	for _, id := range instanceIDs {
		a := p.agents[id]
		if a != nil && !a.Busy() {
			idle = append(idle, a)
		}
	}
	p.mu.Unlock()

	if len(idle) > 0 {
		return idle[rand.Intn(len(idle))], nil
	}
	return p.CreateAgent(klass)
}

// Agent returns the agent with the given ID, if any.
func (p *Program) Agent(id string) (*agentruntime.Agent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.agents[id]
	return a, ok
}

// RunTillExit blocks until every runtime has exited, then publishes
// ProgramTerminated and returns the process exit code implied by what
// happened (spec §4.9, §6.5).
func (p *Program) RunTillExit() int {
	p.mu.Lock()
	runtimes := make([]*agentruntime.Runtime, 0, len(p.runtimes))
	for _, rt := range p.runtimes {
		runtimes = append(runtimes, rt)
	}
	p.mu.Unlock()

	for _, rt := range runtimes {
		<-rt.Done()
	}
	code := p.ExitCode()
	p.Bus.Publish(context.Background(), eventbus.New(eventbus.EventProgramTerminated, "", "", eventbus.ProgramTerminatedPayload{Reason: "all_agents_exited", ExitCode: code}))
	return code
}

// Stop cancels every runtime, flushes pending meeting batches, closes the
// bus, and publishes ProgramTerminated (spec §4.9, §5). exitCode is folded
// in via the same priority rule as AgentStopped-derived codes (setExitCode)
// rather than blindly overwriting, so a host-initiated Stop("shutdown", 0)
// doesn't erase an ExitError already recorded from a crashed agent.
func (p *Program) Stop(reason string, exitCode int) {
	p.setExitCode(int32(exitCode))
	p.mu.Lock()
	runtimes := make([]*agentruntime.Runtime, 0, len(p.runtimes))
	for _, rt := range p.runtimes {
		runtimes = append(runtimes, rt)
	}
	meetings := make([]*meeting.Meeting, 0, len(p.meetings))
	for _, m := range p.meetings {
		meetings = append(meetings, m)
	}
	p.mu.Unlock()

	for _, rt := range runtimes {
		rt.Stop()
	}
	for _, m := range meetings {
		m.FlushNow()
	}

	p.Bus.Publish(context.Background(), eventbus.New(eventbus.EventProgramTerminated, "", "", eventbus.ProgramTerminatedPayload{Reason: reason, ExitCode: p.ExitCode()}))
	if err := p.Bus.Close(); err != nil {
		logger.Error("program: event bus close: %v", err)
	}
}
