// Package resume detects that the machine woke up from sleep.
//
// The monotonic clock stops while the machine is suspended and the wall
// clock does not, so a tick whose wall-clock gap exceeds its monotonic gap
// by more than the threshold marks a resume.
package resume

import (
	"context"
	"time"

	appLog "trashcal/internal/log"
)

const (
	DefaultInterval  = 30 * time.Second
	DefaultThreshold = 2 * time.Minute
)

type Detector struct {
	interval  time.Duration
	threshold time.Duration
	out       chan time.Time

	// Replaced in tests.
	wall  func() time.Time
	ticks func(d time.Duration) (<-chan time.Time, func())
}

func New(interval, threshold time.Duration) *Detector {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{
		interval:  interval,
		threshold: threshold,
		out:       make(chan time.Time, 1),
		wall:      func() time.Time { return time.Now().Round(0) },
		ticks: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
}

// C delivers the wall time of each detected resume. Resumes detected while
// a previous one is still unread are dropped.
func (d *Detector) C() <-chan time.Time { return d.out }

// Run samples the clocks until ctx is done.
func (d *Detector) Run(ctx context.Context) {
	ticks, stop := d.ticks(d.interval)
	defer stop()

	prevTick := time.Now()
	prevWall := d.wall()
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticks:
			wallNow := d.wall()
			if Drifted(wallNow.Sub(prevWall), tick.Sub(prevTick), d.threshold) {
				appLog.Info("resume: wake from sleep detected",
					"wall_gap", wallNow.Sub(prevWall).Round(time.Second).String(),
					"mono_gap", tick.Sub(prevTick).Round(time.Second).String())
				select {
				case d.out <- wallNow:
				default:
				}
			}
			prevTick, prevWall = tick, wallNow
		}
	}
}

// Drifted reports whether the wall clock ran ahead of the monotonic clock by
// more than threshold.
func Drifted(wallGap, monoGap, threshold time.Duration) bool {
	return wallGap-monoGap > threshold
}
