package monitor

import "time"

// Freshness classifies a cached realtime snapshot
type Freshness int

const (
	// Absent no snapshot is cached
	Absent Freshness = iota
	// Recent the snapshot is young enough to be reused without fetching
	Recent
	// Usable the snapshot may replace a failed fetch
	Usable
	// Expired the snapshot is too old to use
	Expired
)

func (f Freshness) String() string {
	switch f {
	case Absent:
		return "absent"
	case Recent:
		return "recent"
	case Usable:
		return "usable"
	}
	return "expired"
}

// CachePolicy decides how a cached realtime snapshot may be used
type CachePolicy struct {
	// Coalesce snapshots younger than this are reused instead of fetching the feed
	Coalesce time.Duration
	// FallbackMaxAge is the oldest snapshot that may replace a failed fetch
	FallbackMaxAge time.Duration
}

// Classify returns the Freshness of a snapshot captured at capturedAt for the time now, both epoch
// milliseconds. A zero capturedAt means no snapshot, one captured after now is Expired.
func (p CachePolicy) Classify(capturedAt int64, now int64) Freshness {
	if capturedAt == 0 {
		return Absent
	}
	age := time.Duration(now-capturedAt) * time.Millisecond
	switch {
	case age < 0:
		return Expired
	case age < p.Coalesce:
		return Recent
	case age <= p.FallbackMaxAge:
		return Usable
	}
	return Expired
}
