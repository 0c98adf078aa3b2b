package tzsched

import (
	"time"
)

// RegionTimezones maps region codes to their constituent IANA timezones.
var RegionTimezones = map[string][]string{
	"US":   {"America/New_York", "America/Chicago", "America/Denver", "America/Los_Angeles"},
	"EU":   {"Europe/London", "Europe/Paris", "Europe/Berlin", "Europe/Rome"},
	"UK":   {"Europe/London"},
	"DE":   {"Europe/Berlin"},
	"FR":   {"Europe/Paris"},
	"APAC": {"Asia/Tokyo", "Asia/Shanghai", "Asia/Singapore", "Australia/Sydney"},
	"JP":   {"Asia/Tokyo"},
	"CN":   {"Asia/Shanghai"},
	"SG":   {"Asia/Singapore"},
	"AU":   {"Australia/Sydney"},
	"TR":   {"Europe/Istanbul"},
	"IN":   {"Asia/Kolkata"},
	"BR":   {"America/Sao_Paulo"},
	"MX":   {"America/Mexico_City"},
	"MENA": {"Asia/Dubai", "Asia/Riyadh", "Africa/Cairo"},
}

// ClockTime is a wall-clock time of day.
type ClockTime struct {
	Hour   int `json:"hour" yaml:"hour"`
	Minute int `json:"minute" yaml:"minute"`
}

func (c ClockTime) minutes() int {
	return c.Hour*60 + c.Minute
}

// DefaultEngagementWindows are the local-time windows where audiences are
// most responsive.
func DefaultEngagementWindows() [][2]ClockTime {
	return [][2]ClockTime{
		{{Hour: 7}, {Hour: 9}},   // morning commute
		{{Hour: 12}, {Hour: 14}}, // lunch break
		{{Hour: 17}, {Hour: 19}}, // after work
		{{Hour: 20}, {Hour: 22}}, // evening leisure
	}
}

// Window is an engagement window in a specific timezone.
type Window struct {
	Timezone string    `json:"timezone" yaml:"timezone"`
	Start    ClockTime `json:"start" yaml:"start"`
	End      ClockTime `json:"end" yaml:"end"`
	Priority int       `json:"priority" yaml:"priority"`
}

// ActiveAt reports whether t falls inside the window. Both boundaries are
// inclusive, so 22:00 exactly still counts for a 20:00-22:00 window.
// Windows whose end precedes their start wrap past midnight. Unknown
// timezones are treated as inactive.
func (w Window) ActiveAt(t time.Time) bool {
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return false
	}
	local := t.In(loc)
	m := local.Hour()*60 + local.Minute()
	if w.Start.minutes() <= w.End.minutes() {
		return m >= w.Start.minutes() && m <= w.End.minutes()
	}
	return m >= w.Start.minutes() || m <= w.End.minutes()
}

// NextStartUTC returns the window's next opening after from, in UTC.
func (w Window) NextStartUTC(from time.Time) time.Time {
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return from.Add(time.Hour)
	}
	local := from.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), w.Start.Hour, w.Start.Minute, 0, 0, loc)
	if local.Hour()*60+local.Minute() >= w.Start.minutes() {
		start = start.AddDate(0, 0, 1)
	}
	return start.UTC()
}

// RegionSchedule holds the engagement windows for one region.
type RegionSchedule struct {
	RegionCode string   `json:"region_code" yaml:"region_code"`
	Timezones  []string `json:"timezones" yaml:"timezones"`
	Windows    []Window `json:"windows" yaml:"windows"`
	Weight     float64  `json:"weight" yaml:"weight"`
}

// ActiveWindows returns the windows active at t.
func (r RegionSchedule) ActiveWindows(t time.Time) []Window {
	var active []Window
	for _, w := range r.Windows {
		if w.ActiveAt(t) {
			active = append(active, w)
		}
	}
	return active
}

// Slot is a concrete UTC interval during which a region is engaged.
type Slot struct {
	StartUTC time.Time `json:"start_utc"`
	EndUTC   time.Time `json:"end_utc"`
	Timezone string    `json:"timezone"`
	Region   string    `json:"region"`
	Priority int       `json:"priority"`
}

func (s Slot) Duration() time.Duration {
	return s.EndUTC.Sub(s.StartUTC)
}

// ScheduledTask is a task placed at a concrete UTC time for a region.
type ScheduledTask struct {
	Time   time.Time `json:"time"`
	Region string    `json:"region"`
}

// RegionStatus summarizes one region for the global overview.
type RegionStatus struct {
	Active             bool     `json:"active"`
	ActiveWindowsCount int      `json:"active_windows_count"`
	TotalWindows       int      `json:"total_windows"`
	Timezones          []string `json:"timezones"`
}

// Overview is a point-in-time snapshot of global schedule state.
type Overview struct {
	CurrentUTC    time.Time               `json:"current_utc"`
	ActiveRegions []string                `json:"active_regions"`
	TotalRegions  int                     `json:"total_regions"`
	Regions       map[string]RegionStatus `json:"regions"`
}
