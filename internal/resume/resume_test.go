package resume

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDrifted(t *testing.T) {
	assert.False(t, Drifted(30*time.Second, 30*time.Second, time.Minute))
	assert.False(t, Drifted(31*time.Second, 30*time.Second, time.Minute))
	assert.True(t, Drifted(2*time.Hour, 30*time.Second, time.Minute))
	// A wall clock moved backwards is not a resume.
	assert.False(t, Drifted(-time.Hour, 30*time.Second, time.Minute))
}

func TestRunSignalsResume(t *testing.T) {
	var mu sync.Mutex
	wall := time.Date(2026, time.February, 21, 6, 0, 0, 0, time.UTC)
	ticks := make(chan time.Time)

	d := New(30*time.Second, time.Minute)
	d.wall = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return wall
	}
	d.ticks = func(time.Duration) (<-chan time.Time, func()) { return ticks, func() {} }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	mono := time.Now()
	advance := func(wallGap, monoGap time.Duration) {
		mu.Lock()
		wall = wall.Add(wallGap)
		mu.Unlock()
		mono = mono.Add(monoGap)
		ticks <- mono
	}

	// The first tick is measured against Run's own start time, so keep it small.
	advance(0, 0)
	select {
	case <-d.C():
		t.Fatal("no resume expected on a regular tick")
	case <-time.After(20 * time.Millisecond):
	}

	advance(3*time.Hour, 30*time.Second)
	select {
	case at := <-d.C():
		assert.Equal(t, time.Date(2026, time.February, 21, 9, 0, 0, 0, time.UTC), at)
	case <-time.After(time.Second):
		t.Fatal("resume not detected")
	}
}
