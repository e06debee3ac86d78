package agentruntime

import "github.com/playbooks-ai/playbooks-runtime/internal/inbox"

// ModeKind enumerates the waiting-mode predicates an agent can set via
// Yield (spec §4.6).
type ModeKind int

const (
	NotWaiting ModeKind = iota
	WaitForAgent
	WaitForMeeting
	WaitForUser
)

// WaitingMode is what an agent passes to Yield: the predicate the runtime
// uses to select the next batch of messages from the agent's inbox.
type WaitingMode struct {
	Kind     ModeKind
	TargetID string // agent ID for WaitForAgent, meeting ID for WaitForMeeting
}

// Idle is the default mode: accept anything.
var Idle = WaitingMode{Kind: NotWaiting}

// ForAgent builds a WaitForAgent(B) mode.
func ForAgent(agentID string) WaitingMode {
	return WaitingMode{Kind: WaitForAgent, TargetID: agentID}
}

// ForMeeting builds a WaitForMeeting(M) mode.
func ForMeeting(meetingID string) WaitingMode {
	return WaitingMode{Kind: WaitForMeeting, TargetID: meetingID}
}

// ForUser builds a WaitForUser mode.
func ForUser() WaitingMode {
	return WaitingMode{Kind: WaitForUser}
}

const humanAgentID = "human"

// predicate translates a WaitingMode into the inbox.Predicate that selects
// matching messages, per the table in spec §4.6.
func predicate(mode WaitingMode) inbox.Predicate {
	switch mode.Kind {
	case WaitForAgent:
		target := mode.TargetID
		return inbox.Or(
			inbox.And(inbox.FromSender(target), inbox.OfType(inbox.Direct)),
			inbox.OfType(inbox.MeetingInvite),
			highPriority,
		)
	case WaitForMeeting:
		meetingID := mode.TargetID
		return func(m inbox.Message) bool {
			if m.Type == inbox.MeetingBroadcast && m.MeetingID == meetingID {
				return true
			}
			return m.Type == inbox.Direct
		}
	case WaitForUser:
		return inbox.And(inbox.FromSender(humanAgentID), inbox.OfType(inbox.Direct))
	default:
		return inbox.Any
	}
}

func highPriority(m inbox.Message) bool {
	return m.Priority == inbox.High
}

// interruptPredicate selects the messages the progressive-timeout path
// surfaces to the executor as interrupts while WaitForAgent(B) has not yet
// been satisfied (spec §4.6 step 1): direct messages from agents other than
// B, and high-priority messages.
func interruptPredicate(waitingFor string) inbox.Predicate {
	return func(m inbox.Message) bool {
		if m.Priority == inbox.High {
			return true
		}
		return m.Type == inbox.Direct && m.SenderID != waitingFor
	}
}
