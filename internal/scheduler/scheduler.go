// Package scheduler raises the weekly-summary and day-before notifications.
//
// A single loop goroutine (Run) owns both timers. Every fire, resume
// signal and reschedule request goes through Reschedule, which first
// handles any timer that is already due, then stops the rest before
// computing and arming new ones.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "trashcal/internal/log"
	"trashcal/internal/model"
	"trashcal/internal/notify"
	"trashcal/internal/schedule"
)

// Channel names one of the two notification timers.
type Channel string

const (
	ChannelWeekly    Channel = "weekly"
	ChannelDayBefore Channel = "dayBefore"
)

// State of a channel.
type State string

const (
	StateIdle  State = "idle"
	StateArmed State = "armed"
)

// ChannelStatus is a snapshot of one channel. NextFire is zero when idle.
type ChannelStatus struct {
	State    State     `json:"state"`
	NextFire time.Time `json:"nextFire,omitzero"`
	Error    string    `json:"error,omitempty"`
}

// Status is a snapshot of both channels.
type Status struct {
	Weekly    ChannelStatus `json:"weekly"`
	DayBefore ChannelStatus `json:"dayBefore"`
}

// Settings is what the scheduler reads on every reschedule and fire.
type Settings interface {
	Schedule(ctx context.Context) (model.Schedule, error)
	NotificationSettings(ctx context.Context) (model.NotificationSettings, error)
}

type Option func(*Scheduler)

// WithClock replaces the wall clock, for tests.
func WithClock(c Clock) Option { return func(s *Scheduler) { s.clock = c } }

// WithWeeklyDay sets the weekday of the weekly summary (default Monday).
func WithWeeklyDay(d time.Weekday) Option { return func(s *Scheduler) { s.weeklyDay = d } }

// WithLocation sets the zone notification times are interpreted in.
func WithLocation(loc *time.Location) Option { return func(s *Scheduler) { s.loc = loc } }

// WithResume subscribes the scheduler to a resume-from-sleep signal.
func WithResume(ch <-chan time.Time) Option { return func(s *Scheduler) { s.resume = ch } }

type Scheduler struct {
	settings  Settings
	sink      notify.Sink
	clock     Clock
	weeklyDay time.Weekday
	loc       *time.Location
	resume    <-chan time.Time

	requests chan struct{}

	// Timers are touched only by the loop goroutine.
	weekly    Timer
	dayBefore Timer

	mu     sync.Mutex
	status Status
}

func New(settings Settings, sink notify.Sink, opts ...Option) *Scheduler {
	s := &Scheduler{
		settings:  settings,
		sink:      sink,
		clock:     realClock{},
		weeklyDay: time.Monday,
		loc:       time.Local,
		requests:  make(chan struct{}, 1),
		status: Status{
			Weekly:    ChannelStatus{State: StateIdle},
			DayBefore: ChannelStatus{State: StateIdle},
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run arms both channels and processes events until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	appLog.Info("scheduler: starting", "weekly_day", s.weeklyDay.String(), "tz", s.loc.String())
	s.Reschedule(ctx)
	defer s.stopAll()

	for {
		select {
		case <-ctx.Done():
			appLog.Info("scheduler: stopping")
			return ctx.Err()
		case <-timerC(s.weekly):
			s.weekly = nil
			s.fireWeekly(ctx)
			s.Reschedule(ctx)
		case <-timerC(s.dayBefore):
			s.dayBefore = nil
			s.fireDayBefore(ctx)
			s.Reschedule(ctx)
		case at := <-s.resume:
			appLog.Info("scheduler: system resumed, rescheduling", "at", at.Format(time.RFC3339))
			s.Reschedule(ctx)
		case <-s.requests:
			s.Reschedule(ctx)
		}
	}
}

// RequestReschedule asks the loop to reschedule. It never blocks; requests
// arriving while one is pending are merged.
func (s *Scheduler) RequestReschedule() {
	select {
	case s.requests <- struct{}{}:
	default:
	}
}

// StartResync requests a reschedule on every tick of the cron spec. The
// caller stops the returned cron.
func (s *Scheduler) StartResync(spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(s.loc))
	if _, err := c.AddFunc(spec, func() {
		appLog.Debug("scheduler: periodic resync")
		s.RequestReschedule()
	}); err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

// Status returns a snapshot of both channels. Safe for any goroutine.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Reschedule fires any channel whose timer is due but not yet received,
// cancels the remaining timers, reads the notification settings and arms
// each channel whose time parses. Must run on the loop goroutine (or
// before Run starts).
func (s *Scheduler) Reschedule(ctx context.Context) {
	s.fireDue(ctx)
	s.stopAll()

	ns, err := s.settings.NotificationSettings(ctx)
	if err != nil {
		appLog.Error("scheduler: failed to read notification settings", err)
		s.setStatus(ChannelWeekly, ChannelStatus{State: StateIdle, Error: err.Error()})
		s.setStatus(ChannelDayBefore, ChannelStatus{State: StateIdle, Error: err.Error()})
		return
	}
	if !ns.Enabled {
		appLog.Debug("scheduler: notifications disabled")
		s.setStatus(ChannelWeekly, ChannelStatus{State: StateIdle})
		s.setStatus(ChannelDayBefore, ChannelStatus{State: StateIdle})
		return
	}

	now := s.clock.Now().In(s.loc)
	s.weekly = s.arm(ChannelWeekly, ns.WeeklyNotificationTime, now, func(h, m int) time.Duration {
		return DelayUntilNextWeekday(s.weeklyDay, h, m, now)
	})
	s.dayBefore = s.arm(ChannelDayBefore, ns.DayBeforeNotificationTime, now, func(h, m int) time.Duration {
		return DelayUntilNextTime(h, m, now)
	})
}

func (s *Scheduler) arm(ch Channel, clock string, now time.Time, delay func(h, m int) time.Duration) Timer {
	h, m, err := ParseClock(clock)
	if err != nil {
		appLog.Warn("scheduler: channel left unscheduled", "channel", string(ch), "err", err.Error())
		s.setStatus(ch, ChannelStatus{State: StateIdle, Error: err.Error()})
		return nil
	}
	d := delay(h, m)
	next := now.Add(d)
	appLog.Debug("scheduler: armed", "channel", string(ch), "next", next.Format(time.RFC3339), "in", d.Round(time.Minute).String())
	s.setStatus(ch, ChannelStatus{State: StateArmed, NextFire: next})
	return s.clock.NewTimer(d)
}

// fireDue delivers fires that are pending on the timer channels. A timer
// that came due while the loop handled another event is not lost.
func (s *Scheduler) fireDue(ctx context.Context) {
	if s.weekly != nil {
		select {
		case <-s.weekly.C():
			s.weekly = nil
			s.fireWeekly(ctx)
		default:
		}
	}
	if s.dayBefore != nil {
		select {
		case <-s.dayBefore.C():
			s.dayBefore = nil
			s.fireDayBefore(ctx)
		default:
		}
	}
}

func (s *Scheduler) stopAll() {
	if s.weekly != nil {
		s.weekly.Stop()
		s.weekly = nil
	}
	if s.dayBefore != nil {
		s.dayBefore.Stop()
		s.dayBefore = nil
	}
}

func (s *Scheduler) fireWeekly(ctx context.Context) {
	sched, err := s.settings.Schedule(ctx)
	if err != nil {
		appLog.Error("scheduler: weekly summary skipped", err)
		return
	}
	body := WeeklyBody(sched.Entries, s.clock.Now().In(s.loc))
	if body == "" {
		appLog.Debug("scheduler: nothing collected this week")
		return
	}
	s.show(ctx, WeeklyTitle, body)
}

func (s *Scheduler) fireDayBefore(ctx context.Context) {
	sched, err := s.settings.Schedule(ctx)
	if err != nil {
		appLog.Error("scheduler: day-before reminder skipped", err)
		return
	}
	tomorrow := model.DateOnly(s.clock.Now().In(s.loc)).AddDate(0, 0, 1)
	entries := schedule.EntriesOn(tomorrow, sched.Entries)
	if len(entries) == 0 {
		return
	}
	s.show(ctx, DayBeforeTitle, DayBeforeBody(entries))
}

func (s *Scheduler) show(ctx context.Context, title, body string) {
	if err := s.sink.Show(ctx, title, body); err != nil {
		appLog.Error("scheduler: notification failed", err, "title", title)
		return
	}
	appLog.Info("scheduler: notification shown", "title", title)
}

func (s *Scheduler) setStatus(ch Channel, st ChannelStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch == ChannelWeekly {
		s.status.Weekly = st
	} else {
		s.status.DayBefore = st
	}
}

// timerC returns t's channel, or nil (blocks forever) for an idle channel.
func timerC(t Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C()
}
