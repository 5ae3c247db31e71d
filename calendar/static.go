package calendar

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v2"
)

const dateLayout = "2006-01-02"

// ErrNoExpirySchedule is returned for symbols without a configured weekly expiry.
var ErrNoExpirySchedule = errors.New("no expiry schedule for symbol")

type calendarFile struct {
	Holidays     []string          `yaml:"holidays"`
	WeeklyExpiry map[string]string `yaml:"weekly_expiry"`
	Events       []struct {
		Date     string   `yaml:"date"`
		Type     string   `yaml:"type"`
		Title    string   `yaml:"title"`
		Impact   string   `yaml:"impact"`
		Affected []string `yaml:"affected"`
	} `yaml:"events"`
}

// StaticCalendar is an in-memory Calendar, usually loaded from a YAML file.
// Weekends are never trading days. Expiries that land on a holiday roll back to the previous trading day.
type StaticCalendar struct {
	mu           sync.RWMutex
	loc          *time.Location
	holidays     map[string]string
	events       map[string][]Event
	weeklyExpiry map[string]time.Weekday
}

var _ Calendar = (*StaticCalendar)(nil)

func NewStaticCalendar(loc *time.Location) *StaticCalendar {
	return &StaticCalendar{
		loc:          loc,
		holidays:     make(map[string]string),
		events:       make(map[string][]Event),
		weeklyExpiry: make(map[string]time.Weekday),
	}
}

// LoadStaticCalendar reads holidays, events and weekly expiry days from a YAML file.
func LoadStaticCalendar(path string, loc *time.Location) (*StaticCalendar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar file: %w", err)
	}
	var raw calendarFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal calendar yaml: %w", err)
	}

	c := NewStaticCalendar(loc)
	for _, d := range raw.Holidays {
		day, err := time.ParseInLocation(dateLayout, d, loc)
		if err != nil {
			return nil, fmt.Errorf("calendar holiday %q: %w", d, err)
		}
		c.AddHoliday(day, "Market holiday")
	}
	for symbol, weekday := range raw.WeeklyExpiry {
		wd, err := parseWeekday(weekday)
		if err != nil {
			return nil, fmt.Errorf("calendar weekly_expiry.%s: %w", symbol, err)
		}
		c.SetWeeklyExpiry(symbol, wd)
	}
	for _, e := range raw.Events {
		day, err := time.ParseInLocation(dateLayout, e.Date, loc)
		if err != nil {
			return nil, fmt.Errorf("calendar event %q: %w", e.Title, err)
		}
		impact, err := ParseImpact(e.Impact)
		if err != nil {
			return nil, fmt.Errorf("calendar event %q: %w", e.Title, err)
		}
		affected := e.Affected
		if len(affected) == 0 {
			affected = []string{AllInstruments}
		}
		c.AddEvent(Event{
			Date:     day,
			Type:     EventType(strings.ToUpper(e.Type)),
			Title:    e.Title,
			Impact:   impact,
			Affected: affected,
		})
	}
	return c, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.EqualFold(wd.String(), strings.TrimSpace(s)) {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

func (c *StaticCalendar) key(t time.Time) string {
	return t.In(c.loc).Format(dateLayout)
}

func (c *StaticCalendar) AddHoliday(date time.Time, title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holidays[c.key(date)] = title
}

func (c *StaticCalendar) AddEvent(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := c.key(ev.Date)
	c.events[k] = append(c.events[k], ev)
}

func (c *StaticCalendar) SetWeeklyExpiry(symbol string, wd time.Weekday) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.weeklyExpiry[strings.ToUpper(symbol)] = wd
}

// IsMarketHoliday reports weekends and configured holidays.
func (c *StaticCalendar) IsMarketHoliday(_ context.Context, date time.Time) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isHolidayLocked(date), nil
}

func (c *StaticCalendar) isHolidayLocked(date time.Time) bool {
	d := date.In(c.loc)
	if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		return true
	}
	_, ok := c.holidays[c.key(d)]
	return ok
}

// EventsForDate returns configured events plus synthetic holiday and expiry-day events.
func (c *StaticCalendar) EventsForDate(_ context.Context, date time.Time) ([]Event, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	k := c.key(date)
	out := make([]Event, 0, len(c.events[k])+2)
	if title, ok := c.holidays[k]; ok {
		out = append(out, Event{
			Date:     date,
			Type:     EventMarketHoliday,
			Title:    title,
			Impact:   ImpactCritical,
			Affected: []string{AllInstruments},
		})
	}
	out = append(out, c.events[k]...)

	symbols := make([]string, 0, len(c.weeklyExpiry))
	for s := range c.weeklyExpiry {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	for _, s := range symbols {
		exp, ok := c.nextExpiryLocked(s, date)
		if ok && c.key(exp) == k {
			out = append(out, Event{
				Date:     exp,
				Type:     EventExpiryDay,
				Title:    s + " weekly expiry",
				Impact:   ImpactMedium,
				Affected: []string{s},
			})
		}
	}
	return out, nil
}

// ExpiryInfo returns the next weekly expiry on or after date.
func (c *StaticCalendar) ExpiryInfo(_ context.Context, symbol string, date time.Time) (ExpiryInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	symbol = strings.ToUpper(symbol)
	exp, ok := c.nextExpiryLocked(symbol, date)
	if !ok {
		return ExpiryInfo{}, fmt.Errorf("%w: %s", ErrNoExpirySchedule, symbol)
	}
	day := truncateDay(date.In(c.loc))
	days := int(exp.Sub(day).Hours()/24 + 0.5)
	return ExpiryInfo{
		Symbol:       symbol,
		Date:         exp,
		DaysToExpiry: days,
		IsToday:      days == 0,
		IsTomorrow:   days == 1,
	}, nil
}

func (c *StaticCalendar) nextExpiryLocked(symbol string, date time.Time) (time.Time, bool) {
	wd, ok := c.weeklyExpiry[strings.ToUpper(symbol)]
	if !ok {
		return time.Time{}, false
	}
	day := truncateDay(date.In(c.loc))
	// Checking two weeks covers a scheduled expiry rolled back behind the reference date.
	for offset := 0; offset < 14; offset++ {
		candidate := day.AddDate(0, 0, offset)
		if candidate.Weekday() != wd {
			continue
		}
		actual := candidate
		for i := 0; i < 7 && c.isHolidayLocked(actual); i++ {
			actual = actual.AddDate(0, 0, -1)
		}
		if !actual.Before(day) {
			return actual, true
		}
	}
	return time.Time{}, false
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
