// Package availability provides a schedule-backed implementation of the
// engine's availability predicate: weekly working windows plus time-off
// ranges, loaded from a YAML file.
package availability

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Window is a weekly recurring working window. Empty Days means every day;
// empty Start/End means the whole day.
type Window struct {
	Days  []string `yaml:"days"`
	Start string   `yaml:"start"` // "09:00"
	End   string   `yaml:"end"`   // "17:30"
}

// TimeOff is an inclusive date range during which the resource is away.
type TimeOff struct {
	From string `yaml:"from"` // "2026-08-24"
	To   string `yaml:"to"`
}

// ResourceSchedule is one resource's window and time-off entries.
type ResourceSchedule struct {
	Window  Window    `yaml:"window"`
	TimeOff []TimeOff `yaml:"time_off"`
}

// scheduleFile is the on-disk document shape.
type scheduleFile struct {
	Default   *ResourceSchedule           `yaml:"default"`
	Resources map[string]ResourceSchedule `yaml:"resources"`
}

// Schedule answers availability queries. Resources without an entry fall
// back to the default schedule; with no default either, they are always
// available.
type Schedule struct {
	def       *compiled
	resources map[string]*compiled
}

type compiled struct {
	days  map[time.Weekday]bool // nil means every day
	start int                   // minutes since midnight; -1 means whole day
	end   int
	off   []offRange
}

type offRange struct {
	from time.Time // midnight UTC, inclusive
	to   time.Time // midnight UTC of the last day, inclusive
}

// Load reads and compiles a schedule file.
func Load(path string) (*Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("schedule %s: %w", path, err)
	}
	return s, nil
}

// Parse is Load for in-memory bytes.
func Parse(data []byte) (*Schedule, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	var file scheduleFile
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse schedule: %w", err)
	}

	s := &Schedule{resources: make(map[string]*compiled, len(file.Resources))}
	if file.Default != nil {
		c, err := compile(*file.Default)
		if err != nil {
			return nil, fmt.Errorf("default schedule: %w", err)
		}
		s.def = c
	}
	for id, rs := range file.Resources {
		c, err := compile(rs)
		if err != nil {
			return nil, fmt.Errorf("schedule for %s: %w", id, err)
		}
		s.resources[id] = c
	}
	return s, nil
}

// IsAvailable reports whether the resource is available at the given
// instant. Satisfies engine.AvailabilityFunc.
func (s *Schedule) IsAvailable(resourceID string, at time.Time) bool {
	c, ok := s.resources[resourceID]
	if !ok {
		c = s.def
	}
	if c == nil {
		return true
	}
	return c.covers(at)
}

func (c *compiled) covers(at time.Time) bool {
	day := at.UTC().Truncate(24 * time.Hour)
	for _, r := range c.off {
		if !day.Before(r.from) && !day.After(r.to) {
			return false
		}
	}

	if c.days != nil && !c.days[at.UTC().Weekday()] {
		return false
	}
	if c.start >= 0 {
		minutes := at.UTC().Hour()*60 + at.UTC().Minute()
		if minutes < c.start || minutes >= c.end {
			return false
		}
	}
	return true
}

func compile(rs ResourceSchedule) (*compiled, error) {
	c := &compiled{start: -1, end: -1}

	if len(rs.Window.Days) > 0 {
		c.days = make(map[time.Weekday]bool, len(rs.Window.Days))
		for _, name := range rs.Window.Days {
			day, ok := weekdays[strings.ToLower(strings.TrimSpace(name))]
			if !ok {
				return nil, fmt.Errorf("unknown weekday %q", name)
			}
			c.days[day] = true
		}
	}

	if rs.Window.Start != "" || rs.Window.End != "" {
		if rs.Window.Start == "" || rs.Window.End == "" {
			return nil, fmt.Errorf("window needs both start and end (got start=%q end=%q)", rs.Window.Start, rs.Window.End)
		}
		start, err := parseClock(rs.Window.Start)
		if err != nil {
			return nil, fmt.Errorf("window start: %w", err)
		}
		end, err := parseClock(rs.Window.End)
		if err != nil {
			return nil, fmt.Errorf("window end: %w", err)
		}
		if end <= start {
			return nil, fmt.Errorf("window end %s is not after start %s", rs.Window.End, rs.Window.Start)
		}
		c.start, c.end = start, end
	}

	for _, off := range rs.TimeOff {
		from, err := time.ParseInLocation("2006-01-02", off.From, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("time off from: %w", err)
		}
		to, err := time.ParseInLocation("2006-01-02", off.To, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("time off to: %w", err)
		}
		if to.Before(from) {
			return nil, fmt.Errorf("time off range %s..%s is inverted", off.From, off.To)
		}
		c.off = append(c.off, offRange{from: from, to: to})
	}

	return c, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("clock time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}
