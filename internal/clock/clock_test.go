package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ridealert/ridealert/internal/clock"
)

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	fake := clock.NewFake(start)

	assert.Equal(t, start, fake.Now())

	fake.Advance(30 * time.Second)
	assert.Equal(t, start.Add(30*time.Second), fake.Now())
}

func TestFakeAfterFunc(t *testing.T) {
	fake := clock.NewFake(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))

	var fired []string
	fake.AfterFunc(10*time.Second, func() { fired = append(fired, "b") })
	fake.AfterFunc(5*time.Second, func() { fired = append(fired, "a") })

	fake.Advance(4 * time.Second)
	assert.Empty(t, fired)

	fake.Advance(10 * time.Second)
	assert.Equal(t, []string{"a", "b"}, fired)
}

func TestFakeTimerStop(t *testing.T) {
	fake := clock.NewFake(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))

	fired := false
	timer := fake.AfterFunc(5*time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	fake.Advance(10 * time.Second)
	assert.False(t, fired)
}

func TestFakeCallbackSeesFireTime(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	fake := clock.NewFake(start)

	var at time.Time
	fake.AfterFunc(7*time.Second, func() { at = fake.Now() })

	fake.Advance(time.Minute)
	assert.Equal(t, start.Add(7*time.Second), at)
}
