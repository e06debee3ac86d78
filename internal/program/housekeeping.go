package program

import (
	"time"

	"github.com/playbooks-ai/playbooks-runtime/internal/meeting"
)

// SweepIdleChannels implements housekeeping.Sweepable. It only ever removes
// direct (two-party) channels: meeting channels are reclaimed by
// SweepEndedMeetings instead, since a meeting channel's lifecycle is tied to
// its Meeting, not to raw message activity.
func (p *Program) SweepIdleChannels(idleFor time.Duration) int {
	cutoff := time.Now().Add(-idleFor)

	p.mu.Lock()
	var stale []string
	for id, ch := range p.channels {
		if ch.IsDirect() && ch.LastActivity().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(p.channels, id)
	}
	p.mu.Unlock()

	for _, id := range stale {
		p.chanLocks.Delete(id)
	}
	return len(stale)
}

// SweepEndedMeetings implements housekeeping.Sweepable: removes meetings
// that ended more than endedFor ago, along with their meetingChans entry.
func (p *Program) SweepEndedMeetings(endedFor time.Duration) int {
	cutoff := time.Now().Add(-endedFor)

	p.mu.Lock()
	var stale []string
	for id, m := range p.meetings {
		if m.State() == meeting.Ended && m.EndedAt().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(p.meetings, id)
		delete(p.meetingChans, id)
	}
	p.mu.Unlock()

	return len(stale)
}
