// Package snowflake provides time ordered 64 bit identifiers for local rows.
package snowflake

import (
	"math/rand"
	"strconv"
	"sync/atomic"
	"time"
)

// ID is a Snowflake identifier. The upper 48 bits hold the creation time in
// milliseconds, the lower 16 bits are random.
type ID uint64

var last atomic.Uint64

// Now returns a new ID for the current time. IDs returned by Now are
// strictly increasing within a process.
func Now() ID {
	next := TimeToID(time.Now())
	for {
		prev := last.Load()
		if next <= prev {
			next = prev + 1
		}
		if last.CompareAndSwap(prev, next) {
			return ID(next)
		}
	}
}

// FromTime returns a new ID for the given time.
func FromTime(ts time.Time) ID {
	return ID(TimeToID(ts))
}

// ToTime returns the time the ID was created.
func (id ID) ToTime() time.Time {
	return IDToTime(uint64(id))
}

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Parse parses the decimal form of an ID.
func Parse(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	return ID(v), err
}

// TimeToID converts a time.Time to a Snowflake ID.
func TimeToID(ts time.Time) uint64 {
	// 48 bits for time in milliseconds.
	// 16 bits for random.
	return uint64(ts.UnixNano()/int64(time.Millisecond))<<16 | uint64(rand.Intn(1<<16))
}

// IDToTime converts a Snowflake ID to a time.Time.
func IDToTime(id uint64) time.Time {
	return time.Unix(0, int64(id>>16)*1e6)
}
