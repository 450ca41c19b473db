package alerts

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/laimis/stock-analysis-sub003/internal/models"
	"github.com/laimis/stock-analysis-sub003/internal/monitors"
	"github.com/shopspring/decimal"
)

// DefaultHistoryLimit caps the recently triggered alerts kept per user
const DefaultHistoryLimit = 100

// Registry holds the active monitors and the triggered-alert history of all
// users. It is created at process start, shared by the scan loop and the
// request handlers, and closed at shutdown.
//
// Every method holds the lock only for in-memory work; callers fetch quotes
// and persist outside of it.
type Registry struct {
	mu           sync.RWMutex
	monitors     map[string]*monitors.Monitor
	recent       map[uuid.UUID][]models.TriggeredAlert
	historyLimit int
	closed       bool

	manualRun chan struct{}
}

// NewRegistry creates an empty registry
func NewRegistry(historyLimit int) *Registry {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Registry{
		monitors:     make(map[string]*monitors.Monitor),
		recent:       make(map[uuid.UUID][]models.TriggeredAlert),
		historyLimit: historyLimit,
		manualRun:    make(chan struct{}, 1),
	}
}

// Register adds m unless a monitor with the same identity exists. It reports
// whether m was added; nil monitors are ignored.
func (r *Registry) Register(m *monitors.Monitor) bool {
	if m == nil {
		return false
	}
	key := m.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	if _, exists := r.monitors[key]; exists {
		return false
	}
	r.monitors[key] = m.Copy()
	return true
}

// Deregister removes every monitor of kind for the user's ticker and
// returns how many were removed
func (r *Registry) Deregister(ticker string, userID uuid.UUID, kind monitors.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, m := range r.monitors {
		if m.Ticker == ticker && m.UserID == userID && m.Kind == kind {
			delete(r.monitors, key)
			removed++
		}
	}
	return removed
}

// Sync makes the user's monitors of kinds on ticker match want. Monitors whose
// key is still wanted stay in place with their triggered state; the rest are
// removed, and wanted monitors not yet registered are added.
func (r *Registry) Sync(ticker string, userID uuid.UUID, want []*monitors.Monitor, kinds ...monitors.Kind) (added, removed int) {
	keep := make(map[string]*monitors.Monitor, len(want))
	for _, m := range want {
		if m != nil {
			keep[m.Key()] = m
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, 0
	}
	for key, m := range r.monitors {
		if m.Ticker != ticker || m.UserID != userID || !hasKind(kinds, m.Kind) {
			continue
		}
		if _, ok := keep[key]; !ok {
			delete(r.monitors, key)
			removed++
		}
	}
	for key, m := range keep {
		if _, exists := r.monitors[key]; !exists {
			r.monitors[key] = m.Copy()
			added++
		}
	}
	return added, removed
}

// Check evaluates the monitor identified by key. A newly triggered alert is
// returned and appended to the user's history. Monitors removed since the
// caller's snapshot are skipped.
func (r *Registry) Check(key, ticker string, price decimal.Decimal, when time.Time) (models.TriggeredAlert, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.monitors[key]
	if !ok {
		return models.TriggeredAlert{}, false
	}
	if !m.Check(ticker, price, when) || m.TriggeredAlert == nil {
		return models.TriggeredAlert{}, false
	}

	alert := *m.TriggeredAlert
	history := append(r.recent[m.UserID], alert)
	if len(history) > r.historyLimit {
		history = history[len(history)-r.historyLimit:]
	}
	r.recent[m.UserID] = history
	return alert, true
}

// Snapshot returns point-in-time copies of the monitors of the given kinds,
// or of all monitors when no kinds are given
func (r *Registry) Snapshot(kinds ...monitors.Kind) []*monitors.Monitor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*monitors.Monitor, 0, len(r.monitors))
	for _, m := range r.monitors {
		if len(kinds) == 0 || hasKind(kinds, m.Kind) {
			out = append(out, m.Copy())
		}
	}
	sortMonitors(out)
	return out
}

// GetMonitors returns copies of the user's monitors ordered by triggered
// first, then ticker, then description
func (r *Registry) GetMonitors(userID uuid.UUID) []*monitors.Monitor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*monitors.Monitor
	for _, m := range r.monitors {
		if m.UserID == userID {
			out = append(out, m.Copy())
		}
	}
	sortMonitors(out)
	return out
}

// GetAlerts returns the user's currently triggered alerts ordered by most
// recent first, then ticker, then description
func (r *Registry) GetAlerts(userID uuid.UUID) []models.TriggeredAlert {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.TriggeredAlert
	for _, m := range r.monitors {
		if m.UserID == userID && m.TriggeredAlert != nil {
			out = append(out, *m.TriggeredAlert)
		}
	}
	sortAlerts(out)
	return out
}

// GetRecentlyTriggered returns the user's alert history, most recent first
func (r *Registry) GetRecentlyTriggered(userID uuid.UUID) []models.TriggeredAlert {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.recent[userID]
	out := make([]models.TriggeredAlert, len(history))
	for i, a := range history {
		out[len(history)-1-i] = a
	}
	return out
}

// PruneAnnounced removes gap and pattern monitors that already fired before
// cutoff. Their events are in the history; keeping them only grows the map.
func (r *Registry) PruneAnnounced(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, m := range r.monitors {
		if m.Kind != monitors.KindGapUp && m.Kind != monitors.KindPattern {
			continue
		}
		if m.Triggered && m.TriggeredAlert != nil && m.TriggeredAlert.When.Before(cutoff) {
			delete(r.monitors, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of registered monitors
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.monitors)
}

// RequestManualRun asks the scan loop for an extra run. Requests made before
// the loop wakes up collapse into one.
func (r *Registry) RequestManualRun() {
	select {
	case r.manualRun <- struct{}{}:
	default:
	}
}

// ManualRuns is signalled by RequestManualRun
func (r *Registry) ManualRuns() <-chan struct{} {
	return r.manualRun
}

// Close drops all monitors and rejects further registrations
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.monitors = make(map[string]*monitors.Monitor)
	r.recent = make(map[uuid.UUID][]models.TriggeredAlert)
}

func hasKind(kinds []monitors.Kind, k monitors.Kind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}

func sortMonitors(ms []*monitors.Monitor) {
	sort.Slice(ms, func(i, j int) bool {
		a, b := ms[i], ms[j]
		if a.Triggered != b.Triggered {
			return a.Triggered
		}
		if a.Ticker != b.Ticker {
			return a.Ticker < b.Ticker
		}
		if a.Description != b.Description {
			return a.Description < b.Description
		}
		return a.Key() < b.Key()
	})
}

func sortAlerts(as []models.TriggeredAlert) {
	sort.Slice(as, func(i, j int) bool {
		a, b := as[i], as[j]
		if !a.When.Equal(b.When) {
			return a.When.After(b.When)
		}
		if a.Ticker != b.Ticker {
			return a.Ticker < b.Ticker
		}
		return a.Description < b.Description
	})
}
