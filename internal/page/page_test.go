package page

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAttempt(t *testing.T) {
	ok := Try("label", nil)
	assert.True(t, ok.Ok())
	assert.Equal(t, "label", ok.Or("x"))

	skipped := Try("", errors.New("node detached"))
	assert.False(t, skipped.Ok())
	assert.Equal(t, "node detached", skipped.Reason)
	assert.Equal(t, "fallback", skipped.Or("fallback"))

	vis := Skipped[bool]("frame %d: %s", 2, "cross-origin")
	assert.True(t, vis.Or(true))
	assert.Equal(t, "frame 2: cross-origin", vis.Reason)
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}

func TestWaitStrategyString(t *testing.T) {
	assert.Equal(t, "networkidle", WaitNetworkIdle.String())
	assert.Equal(t, "domcontentloaded", WaitDOMContentLoaded.String())
}
