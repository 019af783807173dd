package matrix

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAtTime(t *testing.T) {
	hour, minute, err := parseAtTime("02:30")
	require.NoError(t, err)
	assert.Equal(t, 2, hour)
	assert.Equal(t, 30, minute)

	for _, invalid := range []string{"2", "25:00", "12:61", "aa:bb", "12:00:00"} {
		_, _, err := parseAtTime(invalid)
		assert.Error(t, err, "input %q", invalid)
	}
}

func TestShouldRunInterval(t *testing.T) {
	s := NewScheduler(&ProjectsConfig{}, nil, "")
	schedule := Schedule{Every: "1h"}

	assert.True(t, s.shouldRun(schedule, time.Time{}), "first run fires immediately")
	assert.True(t, s.shouldRun(schedule, time.Now().Add(-2*time.Hour)))
	assert.False(t, s.shouldRun(schedule, time.Now().Add(-10*time.Minute)))
}

func TestShouldRunInvalidSpecs(t *testing.T) {
	s := NewScheduler(&ProjectsConfig{}, nil, "")

	assert.False(t, s.shouldRun(Schedule{Every: "once in a while"}, time.Time{}))
	assert.False(t, s.shouldRun(Schedule{At: "nope"}, time.Time{}))
	assert.False(t, s.shouldRun(Schedule{}, time.Time{}), "a schedule with no trigger never fires")
}
