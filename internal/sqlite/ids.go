package sqlite

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// newID generates a UUID v7 string for record identifiers.
func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

var (
	clockMu    sync.Mutex
	lastMillis int64
)

// nowMillis returns the current time in Unix milliseconds, strictly
// increasing within the process. A wall clock that stands still or steps
// backwards never yields a repeated or decreasing value.
func nowMillis() int64 {
	clockMu.Lock()
	defer clockMu.Unlock()

	now := time.Now().UnixMilli()
	if now <= lastMillis {
		now = lastMillis + 1
	}
	lastMillis = now
	return now
}
