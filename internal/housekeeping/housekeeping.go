// Package housekeeping implements a background janitor that periodically
// sweeps ended meetings and idle direct channels out of Program's registries
// (spec §5: "Resource model" implies bounded growth for long-running
// programs, but leaves reclamation unspecified — an Open Question this
// package resolves by adding opt-in periodic sweeps).
//
// Grounded on the teacher's internal/schedule.Runner: a single ticker-driven
// loop under its own goroutine, started/stopped cooperatively via context,
// generalized from "run due scheduled sessions every minute" to "sweep
// reclaimable runtime state every interval". Cron-expression scheduling
// (rather than a fixed ticker) is available the same way the teacher exposes
// it in internal/schedule/cron.go, for hosts that want sweeps on a calendar
// rather than a fixed period.
package housekeeping

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/playbooks-ai/playbooks-runtime/internal/logger"
)

// Sweepable is the subset of Program's surface the janitor needs. Defined
// here (not in package program) so housekeeping has no import-cycle back to
// program; Program satisfies this interface directly.
type Sweepable interface {
	// SweepIdleChannels removes direct channels with no activity for
	// longer than idleFor and returns how many were removed.
	SweepIdleChannels(idleFor time.Duration) int
	// SweepEndedMeetings removes meetings that ended more than endedFor
	// ago and returns how many were removed.
	SweepEndedMeetings(endedFor time.Duration) int
}

// Options configures a Janitor's sweep thresholds and cadence.
type Options struct {
	// Interval is how often a fixed-period sweep runs. Ignored if CronExpr
	// is set. Defaults to 5 minutes.
	Interval time.Duration
	// CronExpr, if non-empty, schedules sweeps on a cron expression
	// instead of a fixed Interval (standard 5-field: minute hour dom
	// month dow), parsed the same way schedule.ParseCron does.
	CronExpr string
	// ChannelIdleFor is how long a direct channel may sit unused before
	// it becomes eligible for removal. Defaults to 1 hour.
	ChannelIdleFor time.Duration
	// MeetingRetention is how long an ended meeting is kept around (for
	// late readers of its final batch) before removal. Defaults to 10
	// minutes.
	MeetingRetention time.Duration
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Minute
	}
	if o.ChannelIdleFor <= 0 {
		o.ChannelIdleFor = time.Hour
	}
	if o.MeetingRetention <= 0 {
		o.MeetingRetention = 10 * time.Minute
	}
	return o
}

// Janitor periodically sweeps a Program for reclaimable state.
type Janitor struct {
	target Sweepable
	opts   Options

	cronParser cron.Parser
	cronSched  cron.Schedule

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// New creates a Janitor for target. Call Start to begin sweeping.
func New(target Sweepable, opts Options) (*Janitor, error) {
	opts = opts.withDefaults()
	j := &Janitor{
		target:     target,
		opts:       opts,
		cronParser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
	if opts.CronExpr != "" {
		sched, err := j.cronParser.Parse(opts.CronExpr)
		if err != nil {
			return nil, err
		}
		j.cronSched = sched
	}
	ctx, cancel := context.WithCancel(context.Background())
	j.ctx, j.cancel = ctx, cancel
	return j, nil
}

// Start begins the sweep loop on its own goroutine.
func (j *Janitor) Start() {
	j.wg.Add(1)
	go j.loop()
	logger.Info("housekeeping: janitor started")
}

// Stop cancels the loop and waits for it to exit.
func (j *Janitor) Stop() {
	j.once.Do(j.cancel)
	j.wg.Wait()
	logger.Info("housekeeping: janitor stopped")
}

func (j *Janitor) loop() {
	defer j.wg.Done()

	if j.cronSched != nil {
		j.cronLoop()
		return
	}

	ticker := time.NewTicker(j.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *Janitor) cronLoop() {
	for {
		next := j.cronSched.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-j.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			j.sweep()
		}
	}
}

func (j *Janitor) sweep() {
	channels := j.target.SweepIdleChannels(j.opts.ChannelIdleFor)
	meetings := j.target.SweepEndedMeetings(j.opts.MeetingRetention)
	if channels > 0 || meetings > 0 {
		logger.Info("housekeeping: swept %d idle channel(s), %d ended meeting(s)", channels, meetings)
	}
}
