package program

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/playbooks-ai/playbooks-runtime/internal/agentruntime"
	"github.com/playbooks-ai/playbooks-runtime/internal/channel"
	"github.com/playbooks-ai/playbooks-runtime/internal/eventbus"
	"github.com/playbooks-ai/playbooks-runtime/internal/ids"
	"github.com/playbooks-ai/playbooks-runtime/internal/inbox"
	"github.com/playbooks-ai/playbooks-runtime/internal/meeting"
)

// ErrMeetingExists is returned by CreateMeetingChannel for an ID already in
// use.
var ErrMeetingExists = errors.New("program: meeting already exists")

// CreateMeetingChannel creates a new Meeting owned by ownerID, invites
// participantIDs, and sends each a MeetingInvite message (spec §4.9,
// §4.4). The owner is auto-joined by meeting.New.
func (p *Program) CreateMeetingChannel(meetingID, ownerID string, participantIDs []string) (*channel.Channel, *meeting.Meeting, error) {
	p.mu.Lock()
	if _, exists := p.meetings[meetingID]; exists {
		p.mu.Unlock()
		return nil, nil, ErrMeetingExists
	}
	p.mu.Unlock()

	parts := make([]channel.Participant, 0, len(participantIDs)+1)
	parts = append(parts, p.asParticipant(ownerID))
	for _, id := range participantIDs {
		parts = append(parts, p.asParticipant(id))
	}
	ch := channel.New(ids.NewMeetingID(), parts, true)
	m := meeting.New(meetingID, ch, ownerID, participantIDs)
	m.Filter = p.meetingDeliveryFilter()

	p.mu.Lock()
	p.meetings[meetingID] = m
	p.meetingChans[meetingID] = ch
	p.mu.Unlock()

	for _, id := range participantIDs {
		invite := inbox.Message{
			SenderID: ownerID, RecipientID: id, MeetingID: meetingID,
			Content: "invited to meeting " + meetingID, Type: inbox.MeetingInvite,
			Timestamp: time.Now(), Priority: inbox.Normal,
		}
		_ = ch.Deliver(id, invite, inbox.Normal)
	}

	p.Bus.Publish(context.Background(), eventbus.New(eventbus.EventChannelCreated, "", ownerID, eventbus.ChannelCreatedPayload{
		ChannelID: ch.ID, IsMeeting: true, ParticipantID: ch.ParticipantIDs(),
	}))
	return ch, m, nil
}

// CreateMeeting implements agentruntime.Callbacks.CreateMeeting.
func (p *Program) CreateMeeting(ownerID, meetingID string, participants []string) error {
	_, _, err := p.CreateMeetingChannel(meetingID, ownerID, participants)
	return err
}

// JoinMeeting implements agentruntime.Callbacks.JoinMeeting.
func (p *Program) JoinMeeting(agentID, meetingID string) error {
	p.mu.Lock()
	m, ok := p.meetings[meetingID]
	p.mu.Unlock()
	if !ok {
		return errors.New("program: unknown meeting " + meetingID)
	}
	if err := m.Join(agentID); err != nil {
		return err
	}

	p.mu.Lock()
	ch := p.meetingChans[meetingID]
	p.mu.Unlock()
	if ch != nil {
		ch.AddParticipant(p.asParticipant(agentID))
	}

	p.Bus.Publish(context.Background(), eventbus.New(eventbus.EventAttendeeJoined, "", agentID, eventbus.AttendeeJoinedPayload{
		MeetingID: meetingID,
	}))
	return nil
}

// EndMeeting implements agentruntime.Callbacks.EndMeeting. Per spec §4.4
// ("this broadcasts a final MeetingEnd message to all joined attendees"),
// it delivers a MeetingEnd notice to every attendee still joined at the
// moment the meeting ends, besides ending the meeting itself.
func (p *Program) EndMeeting(agentID, meetingID string) error {
	p.mu.Lock()
	m, ok := p.meetings[meetingID]
	ch := p.meetingChans[meetingID]
	p.mu.Unlock()
	if !ok {
		return errors.New("program: unknown meeting " + meetingID)
	}

	attendees := m.JoinedAttendees()
	if err := m.End(agentID); err != nil {
		return err
	}

	if ch != nil {
		notice := inbox.Message{
			SenderID: agentID, MeetingID: meetingID,
			Content: "meeting " + meetingID + " has ended", Type: inbox.MeetingEnd,
			Timestamp: time.Now(), Priority: inbox.Normal,
		}
		for _, attendeeID := range attendees {
			if attendeeID == agentID {
				continue
			}
			_ = ch.Deliver(attendeeID, notice, inbox.Normal)
		}
	}

	p.Bus.Publish(context.Background(), eventbus.New(eventbus.EventMeetingEnded, "", agentID, eventbus.MeetingEndedPayload{
		MeetingID: meetingID,
	}))
	return nil
}

// meetingDeliveryFilter builds the DeliveryFilter a Meeting uses when
// flushing a batch (spec §4.4's "Targeted delivery"): never to the
// message's own sender; AI recipients and humans with meetingNotifications
// "all" (the default) always receive it; "targeted" humans only receive it
// when targetAgentIDs names them or their klass/ID appears in the content;
// "none" humans never receive a live broadcast (the meeting's final
// MeetingEnd notice isn't subject to this filter, since it isn't routed
// through Meeting.Broadcast).
func (p *Program) meetingDeliveryFilter() meeting.DeliveryFilter {
	return func(recipientID string, msg inbox.Message) bool {
		if recipientID == msg.SenderID {
			return false
		}
		a, ok := p.Agent(recipientID)
		if !ok || !a.IsHuman() {
			return true
		}
		switch a.DeliveryPreferences.MeetingNotifications {
		case agentruntime.NotifyNone:
			return false
		case agentruntime.NotifyTargeted:
			if msg.TargetsAgent(recipientID) {
				return true
			}
			return strings.Contains(msg.Content, a.Klass) || strings.Contains(msg.Content, recipientID)
		default: // NotifyAll, or unset (zero value)
			return true
		}
	}
}
