package notifications

import (
	"strings"
	"sync"
)

// Notifier defines the interface for notification services
type Notifier interface {
	// SendAlert sends an alert with the specified level and message
	SendAlert(level, message string) error
}

// levelRank orders alert levels; unknown levels rank as info
func levelRank(level string) int {
	switch strings.ToLower(level) {
	case "warning", "warn":
		return 1
	case "error":
		return 2
	case "critical":
		return 3
	default:
		return 0
	}
}

// LevelFilter forwards only alerts at or above a minimum level
type LevelFilter struct {
	next Notifier
	min  int
}

// NewLevelFilter wraps next so that alerts below minLevel are dropped
func NewLevelFilter(next Notifier, minLevel string) *LevelFilter {
	return &LevelFilter{next: next, min: levelRank(minLevel)}
}

// SendAlert forwards the alert when its level passes the filter
func (f *LevelFilter) SendAlert(level, message string) error {
	if levelRank(level) < f.min {
		return nil
	}
	return f.next.SendAlert(level, message)
}

// Multi fans an alert out to several notifiers and returns the first error
type Multi []Notifier

// SendAlert sends to every notifier
func (m Multi) SendAlert(level, message string) error {
	var first error
	for _, n := range m {
		if err := n.SendAlert(level, message); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Recorder keeps alerts in memory, used for dry runs and tests
type Recorder struct {
	mu     sync.Mutex
	alerts []Recorded
}

// Recorded is one alert captured by a Recorder
type Recorded struct {
	Level   string
	Message string
}

// SendAlert records the alert
func (r *Recorder) SendAlert(level, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, Recorded{Level: level, Message: message})
	return nil
}

// Alerts returns a copy of the recorded alerts
func (r *Recorder) Alerts() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.alerts...)
}
