// Package router implements MessageRouter (spec §4.5, C5): parsing receiver
// specifications, resolving them against live agents/meetings, and
// delivering the resulting Message through the right Channel. Grounded on
// the teacher's mcp/server.go dispatch-by-tool-name pattern (parse a small
// grammar, resolve to a concrete target, delegate) generalized from MCP tool
// names to the receiver-spec grammar.
package router

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/playbooks-ai/playbooks-runtime/internal/channel"
	"github.com/playbooks-ai/playbooks-runtime/internal/inbox"
	"github.com/playbooks-ai/playbooks-runtime/internal/meeting"
)

// Sentinel errors (spec §4.5: "Error conditions: UnknownAgent, UnknownMeeting,
// SpecParseError, MeetingEnded").
var (
	ErrUnknownAgent   = errors.New("router: unknown agent")
	ErrUnknownMeeting = errors.New("router: unknown meeting")
	ErrSpecParseError = errors.New("router: malformed receiver spec")
	ErrMeetingEnded   = errors.New("router: meeting has ended")
)

// TargetKind distinguishes the three receiver-spec target forms (spec §4.5).
type TargetKind int

const (
	TargetHuman TargetKind = iota
	TargetAgent
	TargetMeeting
)

// Target is one parsed token of a receiver spec: "human", "agent <ref>", or
// "meeting <id>". ID holds the agent id/klass or meeting id; empty for human.
type Target struct {
	Kind TargetKind
	ID   string
}

// ParseSpec parses a receiver specification per the grammar in spec §4.5:
//
//	spec    := target ("," target)*
//	target  := "human" | "agent" SP ident | "meeting" SP ident
//
// Leading/trailing whitespace around the whole spec and each comma-separated
// piece is ignored.
func ParseSpec(spec string) ([]Target, error) {
	pieces := strings.Split(spec, ",")
	targets := make([]Target, 0, len(pieces))
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			return nil, ErrSpecParseError
		}
		fields := strings.Fields(piece)
		switch {
		case len(fields) == 1 && fields[0] == "human":
			targets = append(targets, Target{Kind: TargetHuman})
		case len(fields) == 2 && fields[0] == "agent":
			targets = append(targets, Target{Kind: TargetAgent, ID: fields[1]})
		case len(fields) == 2 && fields[0] == "meeting":
			targets = append(targets, Target{Kind: TargetMeeting, ID: fields[1]})
		default:
			return nil, ErrSpecParseError
		}
	}
	if len(targets) == 0 {
		return nil, ErrSpecParseError
	}
	return targets, nil
}

// Resolver is the narrow view MessageRouter needs into Program, to avoid an
// import cycle (Program wires Router, Router doesn't know about Program).
type Resolver interface {
	// ResolveHuman returns the well-known human agent's ID (spec §4.5:
	// "the first declared" when more than one human exists).
	ResolveHuman() (string, error)
	// ResolveAgentRef resolves ref as an exact agent ID first, falling back
	// to "first idle instance of this klass, creating one if none exists"
	// (spec §4.5, §4.9 GetOrCreate) when ref names a klass instead.
	ResolveAgentRef(ref string) (agentID string, err error)
	// AgentKlass returns the klass of a known agent ID.
	AgentKlass(agentID string) string
	// GetOrCreateDirectChannel returns the unique direct channel for the
	// unordered pair {a, b} (spec §3 invariant), creating it if absent.
	GetOrCreateDirectChannel(a, b string) *channel.Channel
	// GetMeeting returns the channel and Meeting for meetingID, if it exists.
	GetMeeting(meetingID string) (*channel.Channel, *meeting.Meeting, bool)
}

// Router implements MessageRouter (C5).
type Router struct {
	resolver Resolver
}

// New creates a Router backed by resolver.
func New(resolver Resolver) *Router {
	return &Router{resolver: resolver}
}

// Result is the descriptor returned by Route (spec §4.5 step 4).
type Result struct {
	ChannelID   string
	DeliveredTo []string
}

// Route parses spec, resolves it against live agents/meetings, constructs
// the Message with the correct type, and delivers it (spec §4.5 "Routing").
func (r *Router) Route(senderID, senderKlass, spec, content string, priority inbox.Priority) (Result, error) {
	targets, err := ParseSpec(spec)
	if err != nil {
		return Result{}, err
	}

	if targets[0].Kind == TargetMeeting {
		return r.routeToMeeting(senderID, senderKlass, targets, content, priority)
	}
	return r.routeDirect(senderID, senderKlass, targets, content, priority)
}

// routeToMeeting implements "meeting <id>[, agent <id>]*": the first target
// names the meeting, any agent targets that follow become targetAgentIDs
// metadata on a single MeetingBroadcast (spec §4.5 resolution bullet 3).
func (r *Router) routeToMeeting(senderID, senderKlass string, targets []Target, content string, priority inbox.Priority) (Result, error) {
	meetingID := targets[0].ID
	ch, mtg, ok := r.resolver.GetMeeting(meetingID)
	if !ok {
		return Result{}, ErrUnknownMeeting
	}
	if mtg.State() == meeting.Ended {
		return Result{}, ErrMeetingEnded
	}

	targetAgentIDs := make(map[string]struct{})
	for _, t := range targets[1:] {
		if t.Kind != TargetAgent {
			return Result{}, ErrSpecParseError
		}
		agentID, err := r.resolver.ResolveAgentRef(t.ID)
		if err != nil {
			return Result{}, ErrUnknownAgent
		}
		targetAgentIDs[agentID] = struct{}{}
	}

	msg := inbox.Message{
		SenderID:       senderID,
		SenderKlass:    senderKlass,
		Content:        content,
		Type:           inbox.MeetingBroadcast,
		MeetingID:      meetingID,
		TargetAgentIDs: targetAgentIDs,
		Timestamp:      time.Now(),
		Priority:       priority,
	}
	if err := mtg.Broadcast(msg); err != nil {
		return Result{}, err
	}

	delivered := mtg.JoinedAttendees()
	sort.Strings(delivered)
	out := delivered[:0]
	for _, id := range delivered {
		if id != senderID {
			out = append(out, id)
		}
	}
	return Result{ChannelID: ch.ID, DeliveredTo: out}, nil
}

// routeDirect implements "human" and "agent <ref>" targets: each resolves to
// a Direct message delivered over the unique direct channel for the
// {sender, recipient} pair.
func (r *Router) routeDirect(senderID, senderKlass string, targets []Target, content string, priority inbox.Priority) (Result, error) {
	var result Result
	for _, t := range targets {
		var recipientID string
		var err error
		switch t.Kind {
		case TargetHuman:
			recipientID, err = r.resolver.ResolveHuman()
		case TargetAgent:
			recipientID, err = r.resolver.ResolveAgentRef(t.ID)
		default:
			return Result{}, ErrSpecParseError
		}
		if err != nil {
			return Result{}, ErrUnknownAgent
		}

		ch := r.resolver.GetOrCreateDirectChannel(senderID, recipientID)
		msg := inbox.Message{
			SenderID:       senderID,
			SenderKlass:    senderKlass,
			RecipientID:    recipientID,
			RecipientKlass: r.resolver.AgentKlass(recipientID),
			Content:        content,
			Type:           inbox.Direct,
			Timestamp:      time.Now(),
			Priority:       priority,
		}
		if err := ch.Deliver(recipientID, msg, priority); err != nil {
			return Result{}, err
		}
		result.ChannelID = ch.ID
		result.DeliveredTo = append(result.DeliveredTo, recipientID)
	}
	return result, nil
}
