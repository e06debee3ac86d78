package program

import (
	"errors"
	"time"

	"github.com/playbooks-ai/playbooks-runtime/internal/channel"
	"github.com/playbooks-ai/playbooks-runtime/internal/ids"
	"github.com/playbooks-ai/playbooks-runtime/internal/inbox"
	"github.com/playbooks-ai/playbooks-runtime/internal/meeting"
	"github.com/playbooks-ai/playbooks-runtime/internal/router"
)

// The methods in this file implement router.Resolver, letting Program
// plug directly into internal/router without an import cycle.

func (p *Program) ResolveHuman() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.firstHumanID == "" {
		return "", errors.New("program: no human agent registered")
	}
	return p.firstHumanID, nil
}

func (p *Program) ResolveAgentRef(ref string) (string, error) {
	p.mu.Lock()
	if _, ok := p.agents[ref]; ok {
		p.mu.Unlock()
		return ref, nil
	}
	_, hasKlass := p.definitions[ref]
	p.mu.Unlock()
	if !hasKlass {
		return "", router.ErrUnknownAgent
	}

	agent, err := p.GetOrCreateAgent(ref)
	if err != nil {
		return "", err
	}
	return agent.ID, nil
}

func (p *Program) AgentKlass(agentID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a, ok := p.agents[agentID]; ok {
		return a.Klass
	}
	return ""
}

// GetOrCreateDirectChannel returns the unique direct channel for {a, b},
// creating it if absent (spec §3 invariant: "channelID = hash(sort(a,b))").
// Serialized per channel ID via p.chanLocks rather than the program-wide
// p.mu, so creating/looking up {a,b}'s channel never blocks a concurrent
// lookup of {c,d}'s.
func (p *Program) GetOrCreateDirectChannel(a, b string) *channel.Channel {
	id := ids.DirectChannelID(a, b)

	p.chanLocks.Lock(id)
	defer p.chanLocks.Unlock(id)

	p.mu.Lock()
	ch, ok := p.channels[id]
	p.mu.Unlock()
	if ok {
		return ch
	}

	participants := []channel.Participant{p.asParticipant(a), p.asParticipant(b)}
	ch = channel.New(id, participants, false)

	p.mu.Lock()
	p.channels[id] = ch
	p.mu.Unlock()
	return ch
}

func (p *Program) asParticipant(agentID string) channel.Participant {
	p.mu.Lock()
	a, ok := p.agents[agentID]
	p.mu.Unlock()
	if !ok {
		return channel.Participant{ID: agentID, Inbox: inbox.New(agentID, 0)}
	}
	return channel.Participant{
		ID:      a.ID,
		Klass:   a.Klass,
		Inbox:   a.Inbox,
		IsHuman: a.IsHuman(),
	}
}

// GetMeeting implements router.Resolver.
func (p *Program) GetMeeting(meetingID string) (*channel.Channel, *meeting.Meeting, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.meetings[meetingID]
	if !ok {
		return nil, nil, false
	}
	return p.meetingChans[meetingID], m, true
}

// RouteMessage is Program's public routing entry point (spec §4.9). typ, if
// set to something other than the router's default inference (Direct for
// agent/human targets, MeetingBroadcast for meeting targets), overrides the
// message type the router would otherwise construct — used for example to
// send a MeetingEnd notice over a meeting's channel instead of an ordinary
// broadcast.
func (p *Program) RouteMessage(senderID, senderKlass, receiverSpec, content string, typ inbox.MessageType, priority inbox.Priority) (router.Result, error) {
	if typ == "" || typ == inbox.Direct || typ == inbox.MeetingBroadcast {
		return p.router.Route(senderID, senderKlass, receiverSpec, content, priority)
	}
	return p.routeWithExplicitType(senderID, senderKlass, receiverSpec, content, typ, priority)
}

// routeWithExplicitType handles SendMessage effects that pin a MessageType
// the router wouldn't infer on its own (System, MeetingEnd, MeetingInvite).
func (p *Program) routeWithExplicitType(senderID, senderKlass, receiverSpec, content string, typ inbox.MessageType, priority inbox.Priority) (router.Result, error) {
	targets, err := router.ParseSpec(receiverSpec)
	if err != nil {
		return router.Result{}, err
	}

	if targets[0].Kind == router.TargetMeeting {
		meetingID := targets[0].ID
		ch, mtg, ok := p.GetMeeting(meetingID)
		if !ok {
			return router.Result{}, router.ErrUnknownMeeting
		}
		if mtg.State() == meeting.Ended {
			return router.Result{}, router.ErrMeetingEnded
		}
		msg := inbox.Message{
			SenderID: senderID, SenderKlass: senderKlass, Content: content,
			Type: typ, MeetingID: meetingID, Timestamp: time.Now(), Priority: priority,
		}
		if err := mtg.Broadcast(msg); err != nil {
			return router.Result{}, err
		}
		return router.Result{ChannelID: ch.ID, DeliveredTo: mtg.JoinedAttendees()}, nil
	}

	var recipientID string
	switch targets[0].Kind {
	case router.TargetHuman:
		recipientID, err = p.ResolveHuman()
	case router.TargetAgent:
		recipientID, err = p.ResolveAgentRef(targets[0].ID)
	}
	if err != nil {
		return router.Result{}, router.ErrUnknownAgent
	}

	ch := p.GetOrCreateDirectChannel(senderID, recipientID)
	msg := inbox.Message{
		SenderID: senderID, SenderKlass: senderKlass, RecipientID: recipientID,
		RecipientKlass: p.AgentKlass(recipientID), Content: content,
		Type: typ, Timestamp: time.Now(), Priority: priority,
	}
	if err := ch.Deliver(recipientID, msg, priority); err != nil {
		return router.Result{}, err
	}
	return router.Result{ChannelID: ch.ID, DeliveredTo: []string{recipientID}}, nil
}
