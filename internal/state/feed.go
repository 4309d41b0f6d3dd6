package state

import "sync"

// DefaultFeedCap bounds the alert feed; oldest entries beyond it are evicted.
const DefaultFeedCap = 300

// AlertFeed is a bounded most-recent-first list of alerts.
type AlertFeed struct {
	mu     sync.RWMutex
	alerts []Alert
	cap    int
}

func NewAlertFeed(capacity int) *AlertFeed {
	if capacity <= 0 {
		capacity = DefaultFeedCap
	}
	return &AlertFeed{cap: capacity}
}

// Push inserts one alert at the head and evicts past the cap.
func (f *AlertFeed) Push(a Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append([]Alert{a}, f.alerts...)
	if len(f.alerts) > f.cap {
		f.alerts = f.alerts[:f.cap]
	}
}

// Seed replaces the feed with the REST seed load. The backend already
// returns most-recent-first; we only enforce the cap.
func (f *AlertFeed) Seed(alerts []Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(alerts)
	if n > f.cap {
		n = f.cap
	}
	f.alerts = make([]Alert, n)
	copy(f.alerts, alerts[:n])
}

// Snapshot returns a copy, most recent first.
func (f *AlertFeed) Snapshot() []Alert {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Alert, len(f.alerts))
	copy(out, f.alerts)
	return out
}

func (f *AlertFeed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.alerts)
}
