package schedule

import "time"

// maxLookahead bounds the search for the next trading day
const maxLookahead = 14

// Cadence describes one scan rhythm
type Cadence struct {
	Name string
	// Interval between runs while the market is open
	Interval time.Duration
	// OpenOffset delays the first run after the open
	OpenOffset time.Duration
	// Grace is how long after the close a late run is still scheduled
	Grace time.Duration
	// PostCloseSlot is the fixed run time, relative to the close, used inside the grace window
	PostCloseSlot time.Duration
}

// PatternScan is the coarse cadence used for pattern and gap discovery
var PatternScan = Cadence{
	Name:          "patterns",
	Interval:      30 * time.Minute,
	OpenOffset:    15 * time.Minute,
	Grace:         time.Hour,
	PostCloseSlot: 30 * time.Minute,
}

// StopLossScan is the fine cadence used for stop and profit monitors
var StopLossScan = Cadence{
	Name:          "stops",
	Interval:      5 * time.Minute,
	OpenOffset:    5 * time.Minute,
	Grace:         time.Hour,
	PostCloseSlot: 15 * time.Minute,
}

// NextRunTime returns when the cadence should next run after now.
//
//  1. before today's first run: today's open plus the open offset
//  2. during the session: now rounded up to the next interval boundary
//  3. after the close, inside the grace window: close plus the post-close slot
//  4. otherwise: the next trading day's open plus the open offset
//
// The result is always strictly after now.
func NextRunTime(now time.Time, cal Calendar, c Cadence) time.Time {
	loc := cal.Location()
	local := now.In(loc)

	if s, ok := cal.Session(local); ok {
		first := s.Open.Add(c.OpenOffset)
		if local.Before(first) {
			return first
		}

		if local.Before(s.Close) && c.Interval > 0 {
			if next := nextBoundary(local, c.Interval); !next.After(s.Close) {
				return next
			}
		}

		if local.Before(s.Close.Add(c.Grace)) {
			if slot := s.Close.Add(c.PostCloseSlot); slot.After(local) {
				return slot
			}
		}
	}

	return nextTradingDayRun(local, cal, c)
}

// nextBoundary rounds t up to the next multiple of interval past local midnight
func nextBoundary(t time.Time, interval time.Duration) time.Time {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	elapsed := t.Sub(midnight)
	return midnight.Add((elapsed/interval + 1) * interval)
}

func nextTradingDayRun(local time.Time, cal Calendar, c Cadence) time.Time {
	day := time.Date(local.Year(), local.Month(), local.Day(), 12, 0, 0, 0, local.Location())
	for i := 1; i <= maxLookahead; i++ {
		if s, ok := cal.Session(day.AddDate(0, 0, i)); ok {
			return s.Open.Add(c.OpenOffset)
		}
	}
	return local.Add(24 * time.Hour)
}
