package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"clipcast.systems/clipcast/internal/catalog"
	"clipcast.systems/clipcast/internal/events"
	"clipcast.systems/clipcast/internal/jobs"
)

func TestAwaitJobDrainReturnsWhenJobsFinish(t *testing.T) {
	reg := jobs.NewRegistry(events.NewBus())
	j := reg.Create(catalog.Twitch, "alpha")

	go func() {
		time.Sleep(50 * time.Millisecond)
		reg.Fail(j.ID, "shutting down")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	awaitJobDrain(ctx, reg)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAwaitJobDrainHonoursDeadline(t *testing.T) {
	reg := jobs.NewRegistry(events.NewBus())
	reg.Create(catalog.Twitch, "stuck")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	awaitJobDrain(ctx, reg)
	assert.Less(t, time.Since(start), time.Second, "drain must stop at the deadline with jobs still active")
}
