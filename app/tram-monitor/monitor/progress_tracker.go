package monitor

import (
	"sync"
	"time"

	"github.com/OpenTransitTools/tramcast/business/data/gtfs"
)

type trackedProgress struct {
	progress float64
	seenAt   time.Time
}

// ProgressTracker keeps vehicle progress from decreasing across the queries of one polling session.
// Trips not seen for longer than retention are forgotten.
type ProgressTracker struct {
	mu        sync.Mutex
	retention time.Duration
	progress  map[gtfs.TripKey]trackedProgress
}

// NewProgressTracker creates an empty ProgressTracker
func NewProgressTracker(retention time.Duration) *ProgressTracker {
	return &ProgressTracker{
		retention: retention,
		progress:  make(map[gtfs.TripKey]trackedProgress),
	}
}

// Apply raises the progress of each vehicle to at least the last progress recorded for its trip and records
// the result
func (p *ProgressTracker) Apply(vehicles []gtfs.Vehicle, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range vehicles {
		key := vehicles[i].Key()
		if previous, ok := p.progress[key]; ok && previous.progress > vehicles[i].Progress {
			vehicles[i].Progress = previous.progress
		}
		p.progress[key] = trackedProgress{progress: vehicles[i].Progress, seenAt: now}
	}
	for key, tracked := range p.progress {
		if now.Sub(tracked.seenAt) > p.retention {
			delete(p.progress, key)
		}
	}
}

// Len returns the number of trips tracked
func (p *ProgressTracker) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.progress)
}
