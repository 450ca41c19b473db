package schedule

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// Session is one trading day's regular hours
type Session struct {
	Open  time.Time
	Close time.Time
}

// Calendar answers market-hours questions for the exchange's time zone
type Calendar interface {
	Location() *time.Location
	// Session returns the hours of the day containing t, and false when the
	// market does not trade that day.
	Session(t time.Time) (Session, bool)
}

type hours struct {
	open  time.Duration
	close time.Duration
}

// StaticCalendar is a weekday calendar with regular hours, holidays and
// per-day overrides such as early closes.
type StaticCalendar struct {
	loc       *time.Location
	regular   hours
	holidays  map[string]bool
	overrides map[string]hours
}

// NewStaticCalendar returns a Monday–Friday 09:30–16:00 calendar in loc
func NewStaticCalendar(loc *time.Location) *StaticCalendar {
	return &StaticCalendar{
		loc:       loc,
		regular:   hours{open: 9*time.Hour + 30*time.Minute, close: 16 * time.Hour},
		holidays:  make(map[string]bool),
		overrides: make(map[string]hours),
	}
}

// NewYorkCalendar returns the regular US equities calendar without holidays
func NewYorkCalendar() (*StaticCalendar, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("failed to load market time zone: %w", err)
	}
	return NewStaticCalendar(loc), nil
}

// Location returns the exchange time zone
func (c *StaticCalendar) Location() *time.Location {
	return c.loc
}

// SetRegularHours changes the default open and close, given as "15:04"
func (c *StaticCalendar) SetRegularHours(open, close string) error {
	h, err := parseHours(open, close)
	if err != nil {
		return err
	}
	c.regular = h
	return nil
}

// AddHoliday marks date (any time on it) as closed
func (c *StaticCalendar) AddHoliday(date time.Time) {
	c.holidays[date.In(c.loc).Format(dateLayout)] = true
}

// AddSession overrides the hours of one date, given as "15:04"
func (c *StaticCalendar) AddSession(date time.Time, open, close string) error {
	h, err := parseHours(open, close)
	if err != nil {
		return err
	}
	key := date.In(c.loc).Format(dateLayout)
	delete(c.holidays, key)
	c.overrides[key] = h
	return nil
}

// Session implements Calendar
func (c *StaticCalendar) Session(t time.Time) (Session, bool) {
	local := t.In(c.loc)
	key := local.Format(dateLayout)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)

	h, overridden := c.overrides[key]
	if !overridden {
		if c.holidays[key] || local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
			return Session{}, false
		}
		h = c.regular
	}

	return Session{
		Open:  wallClock(midnight, h.open),
		Close: wallClock(midnight, h.close),
	}, true
}

// calendarFile is the YAML layout accepted by LoadCalendarFile
type calendarFile struct {
	Timezone    string            `yaml:"timezone"`
	Open        string            `yaml:"open"`
	Close       string            `yaml:"close"`
	Holidays    []string          `yaml:"holidays"`
	EarlyCloses map[string]string `yaml:"early_closes"`
}

// LoadCalendarFile builds a calendar from a YAML file listing holidays and
// early closes.
func LoadCalendarFile(path string) (*StaticCalendar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar file: %w", err)
	}
	return ParseCalendar(data)
}

// ParseCalendar builds a calendar from YAML content
func ParseCalendar(data []byte) (*StaticCalendar, error) {
	var f calendarFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse calendar: %w", err)
	}

	if f.Timezone == "" {
		f.Timezone = "America/New_York"
	}
	loc, err := time.LoadLocation(f.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load time zone %s: %w", f.Timezone, err)
	}

	c := NewStaticCalendar(loc)
	if f.Open != "" || f.Close != "" {
		if err := c.SetRegularHours(orDefault(f.Open, "09:30"), orDefault(f.Close, "16:00")); err != nil {
			return nil, err
		}
	}

	for _, h := range f.Holidays {
		date, err := time.ParseInLocation(dateLayout, h, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", h, err)
		}
		c.AddHoliday(date)
	}

	for day, closeAt := range f.EarlyCloses {
		date, err := time.ParseInLocation(dateLayout, day, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid early close date %q: %w", day, err)
		}
		if err := c.AddSession(date, orDefault(f.Open, "09:30"), closeAt); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func parseHours(open, close string) (hours, error) {
	o, err := parseClock(open)
	if err != nil {
		return hours{}, err
	}
	cl, err := parseClock(close)
	if err != nil {
		return hours{}, err
	}
	if cl <= o {
		return hours{}, fmt.Errorf("close %s must be after open %s", close, open)
	}
	return hours{open: o, close: cl}, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// wallClock returns the instant at clock offset d past local midnight,
// following the wall clock across DST changes.
func wallClock(midnight time.Time, d time.Duration) time.Time {
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	return time.Date(midnight.Year(), midnight.Month(), midnight.Day(), h, m, 0, 0, midnight.Location())
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
