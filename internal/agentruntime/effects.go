package agentruntime

import (
	"fmt"

	"github.com/playbooks-ai/playbooks-runtime/internal/eventbus"
	"github.com/playbooks-ai/playbooks-runtime/internal/inbox"
	"github.com/playbooks-ai/playbooks-runtime/internal/validate"
)

// applyEffects executes result effects in order, stopping at the first
// failing effect and discarding the rest (spec §7: "Inside one agent's
// turn, effect execution stops at the first failing effect; remaining
// effects are discarded; the failure is attached to the agent's state and
// surfaced.").
func (rt *Runtime) applyEffects(effects []Effect) {
	for _, eff := range effects {
		if err := rt.applyEffect(eff); err != nil {
			rt.agent.RecordError(fmt.Sprintf("effect %d failed: %v", eff.Kind, err))
			return
		}
	}
}

// applyEffect validates the executor-supplied fields an effect carries
// (spec §7's "Boundary (external input)") before acting on them, via
// internal/validate, and only then dispatches to the callback surface.
func (rt *Runtime) applyEffect(eff Effect) error {
	switch eff.Kind {
	case EffectSay:
		if err := validate.NonEmpty("target", eff.Target); err != nil {
			return err
		}
		return rt.callbacks.Route(rt.agent.ID, rt.agent.Klass, eff.Target, eff.Content, inbox.Direct)

	case EffectSendMessage:
		if err := validate.NonEmpty("target", eff.Target); err != nil {
			return err
		}
		return rt.callbacks.Route(rt.agent.ID, rt.agent.Klass, eff.Target, eff.Content, eff.MessageType)

	case EffectStartStream:
		if err := validate.NonEmpty("target", eff.Target); err != nil {
			return err
		}
		if err := validate.NonEmpty("streamID", eff.StreamID); err != nil {
			return err
		}
		return rt.callbacks.BeginStream(rt.agent.ID, rt.agent.Klass, eff.Target, eff.StreamID)

	case EffectStreamChunk:
		if err := validate.NonEmpty("streamID", eff.StreamID); err != nil {
			return err
		}
		return rt.callbacks.StreamChunk(eff.StreamID, eff.Chunk)

	case EffectCompleteStream:
		if err := validate.NonEmpty("streamID", eff.StreamID); err != nil {
			return err
		}
		return rt.callbacks.CompleteStream(eff.StreamID, eff.Content)

	case EffectYield:
		rt.agent.SetWaitingMode(eff.Mode)
		rt.callbacks.AgentStep(rt.agent.ID, modeLabel(eff.Mode))
		rt.publish(eventbus.EventAgentStep, eventbus.AgentStepPayload{Mode: modeLabel(eff.Mode)})
		return nil

	case EffectCreateMeeting:
		if err := validate.NonEmpty("meetingID", eff.MeetingID); err != nil {
			return err
		}
		return rt.callbacks.CreateMeeting(rt.agent.ID, eff.MeetingID, eff.Participants)

	case EffectJoinMeeting:
		if err := validate.NonEmpty("meetingID", eff.MeetingID); err != nil {
			return err
		}
		return rt.callbacks.JoinMeeting(rt.agent.ID, eff.MeetingID)

	case EffectEndMeeting:
		if err := validate.NonEmpty("meetingID", eff.MeetingID); err != nil {
			return err
		}
		return rt.callbacks.EndMeeting(rt.agent.ID, eff.MeetingID)

	case EffectSetVariable:
		if err := validate.VariableName(eff.Name); err != nil {
			return err
		}
		rt.agent.CallStack.SetVariable(eff.Name, eff.Value)
		rt.publish(eventbus.EventVariableUpdate, eventbus.VariableUpdatePayload{Name: eff.Name, Value: eff.Value})
		return nil

	case EffectCheckpoint:
		if eff.CheckpointRecord == nil {
			return fmt.Errorf("agentruntime: checkpoint effect missing its record")
		}
		if err := validate.NonEmpty("checkpointID", eff.CheckpointRecord.CheckpointID); err != nil {
			return err
		}
		return rt.callbacks.Checkpoint(rt.agent.ID, eff.CheckpointRecord)

	default:
		return fmt.Errorf("agentruntime: unknown effect kind %d", eff.Kind)
	}
}

func modeLabel(mode WaitingMode) string {
	switch mode.Kind {
	case NotWaiting:
		return "not_waiting"
	case WaitForAgent:
		return "wait_for_agent:" + mode.TargetID
	case WaitForMeeting:
		return "wait_for_meeting:" + mode.TargetID
	case WaitForUser:
		return "wait_for_user"
	default:
		return "unknown"
	}
}
