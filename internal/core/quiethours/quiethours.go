// Package quiethours implements the time-window predicate controlling
// self-initiated LLM use: a configured identity timezone and start/end
// hour, with support for overnight spans (start > end).
//
// A pure predicate with no external-I/O or concurrency concerns; no teacher
// analog was needed or sought.
package quiethours

import (
	"fmt"
	"time"
)

// Config describes one identity's quiet-hours window.
type Config struct {
	Enabled  bool
	Timezone string // IANA timezone name, e.g. "America/New_York"
	// StartHour/EndHour are in [0, 24). StartHour > EndHour denotes an
	// overnight span (e.g. 22 -> 6 means quiet from 22:00 to 06:00).
	StartHour int
	EndHour   int
}

// Gate evaluates Config against wall-clock time.
type Gate struct {
	cfg  Config
	loc  *time.Location
}

// New constructs a Gate, resolving cfg.Timezone (defaulting to UTC when it
// is empty). An invalid timezone name returns an error.
func New(cfg Config) (*Gate, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("quiethours: invalid timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}
	return &Gate{cfg: cfg, loc: loc}, nil
}

// IsQuietHours reports whether now falls within the configured quiet-hours
// window, in the identity's timezone.
func (g *Gate) IsQuietHours() bool {
	return g.isQuietAt(time.Now())
}

func (g *Gate) isQuietAt(t time.Time) bool {
	if !g.cfg.Enabled {
		return false
	}
	local := t.In(g.loc)
	hour := local.Hour()
	start, end := g.cfg.StartHour, g.cfg.EndHour
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	// Overnight span: quiet from start through midnight to end.
	return hour >= start || hour < end
}

// Status reports the current quiet-hours state and time until the next
// transition.
type Status struct {
	Quiet                 bool
	SecondsUntilTransition int64
}

// GetStatus returns the Gate's current status.
func (g *Gate) GetStatus() Status {
	now := time.Now()
	quiet := g.isQuietAt(now)
	return Status{Quiet: quiet, SecondsUntilTransition: g.secondsUntilTransition(now)}
}

func (g *Gate) secondsUntilTransition(now time.Time) int64 {
	if !g.cfg.Enabled || g.cfg.StartHour == g.cfg.EndHour {
		return 0
	}
	local := now.In(g.loc)
	quiet := g.isQuietAt(now)

	var targetHour int
	if quiet {
		targetHour = g.cfg.EndHour
	} else {
		targetHour = g.cfg.StartHour
	}

	target := time.Date(local.Year(), local.Month(), local.Day(), targetHour, 0, 0, 0, g.loc)
	if !target.After(local) {
		target = target.Add(24 * time.Hour)
	}
	return int64(target.Sub(local).Seconds())
}
