package program

import (
	"github.com/playbooks-ai/playbooks-runtime/internal/agentruntime"
	"github.com/playbooks-ai/playbooks-runtime/internal/checkpoint"
	"github.com/playbooks-ai/playbooks-runtime/internal/inbox"
	"github.com/playbooks-ai/playbooks-runtime/internal/logger"
)

// Route implements agentruntime.Callbacks.Route, used by Say and
// SendMessage effects. Priority defaults to Normal; nothing in the Effect
// surface currently asks for High (reserved for runtime-internal interrupt
// notifications).
func (p *Program) Route(senderID, senderKlass, spec, content string, typ inbox.MessageType) error {
	_, err := p.RouteMessage(senderID, senderKlass, spec, content, typ, inbox.Normal)
	return err
}

// Checkpoint implements agentruntime.Callbacks.Checkpoint: the core itself
// never persists checkpoints (spec §2 Non-goals), it only keeps the most
// recent one per checkpointID in memory for a host to read back.
func (p *Program) Checkpoint(agentID string, record *checkpoint.Record) error {
	if record == nil {
		return nil
	}
	p.mu.Lock()
	p.checkpoints[record.CheckpointID] = record
	p.mu.Unlock()
	return nil
}

// CheckpointByID returns the most recent checkpoint saved under checkpointID.
func (p *Program) CheckpointByID(checkpointID string) (*checkpoint.Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.checkpoints[checkpointID]
	return rec, ok
}

// AgentStopped implements agentruntime.Callbacks.AgentStopped (spec §7,
// §6.5). It updates the exit code RunTillExit will return once every
// runtime has joined:
//   - "error" on the program's only non-human agent -> ExitError (spec §7:
//     "unless the crashed agent is the only non-human agent, in which case
//     RunTillExit returns with a nonzero exit code").
//   - "no_input" (a non-interactive run's sole agent blocked on
//     WaitForUser with its inbox closed and empty) -> ExitNoInput.
//
// ExitError takes priority over ExitNoInput if both occur across different
// agents in the same run.
func (p *Program) AgentStopped(agentID, reason string) {
	switch reason {
	case "error":
		logger.Error("program: agent %s stopped with error", agentID)
		if p.soleNonHumanAgent(agentID) {
			p.setExitCode(ExitError)
		}
	case "no_input":
		logger.Info("program: agent %s stopped: no input available", agentID)
		p.setExitCode(ExitNoInput)
	default:
		logger.Info("program: agent %s stopped: %s", agentID, reason)
	}
}

// soleNonHumanAgent reports whether agentID is the only AI-kind agent ever
// created in this program (p.agents is never pruned, so this counts
// every instance that existed, not just currently-idle ones — the
// conservative reading of "only non-human agent").
func (p *Program) soleNonHumanAgent(agentID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for _, a := range p.agents {
		if a.Kind == agentruntime.AI {
			count++
		}
	}
	if _, ok := p.agents[agentID]; !ok {
		return false
	}
	return count <= 1
}

// AgentStep implements agentruntime.Callbacks.AgentStep: a lightweight hook
// for observability; the authoritative AgentStep event is published by the
// runtime itself onto the bus.
func (p *Program) AgentStep(agentID, mode string) {
	logger.Slog().Debug("program: agent step", "agent_id", agentID, "mode", mode)
}
