package snowflake

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIDRoundTripsTime(t *testing.T) {
	require := require.New(t)

	ts := time.Date(2023, 4, 1, 12, 30, 0, 0, time.UTC)
	id := FromTime(ts)
	require.True(ts.Equal(id.ToTime().UTC()))
}

func TestIDsAreOrderedByTime(t *testing.T) {
	require := require.New(t)

	a := FromTime(time.Unix(1000, 0))
	b := FromTime(time.Unix(1001, 0))
	require.Less(a, b)
}

func TestNowIsMonotonic(t *testing.T) {
	require := require.New(t)

	prev := Now()
	for i := 0; i < 1000; i++ {
		next := Now()
		require.Greater(next, prev)
		prev = next
	}
}

func TestParse(t *testing.T) {
	require := require.New(t)

	id := Now()
	got, err := Parse(id.String())
	require.NoError(err)
	require.Equal(id, got)

	_, err = Parse("not-a-number")
	require.Error(err)
}
