package models

import (
	"strconv"
	"time"
)

type HealthStatus struct {
	Status     string `json:"status"`
	ActorCount *int64 `json:"actorCount,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// EpochMillis renders a timestamp as a string of milliseconds since the epoch.
func EpochMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
