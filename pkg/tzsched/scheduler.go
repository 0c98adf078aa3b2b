package tzsched

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grigta/outreach/pkg/logger"
)

// scanStep is how far the 24h scan advances when outside any window.
const scanStep = 30 * time.Minute

// Scheduler places work into engagement windows across timezones so a
// fleet of accounts can operate around the clock without acting at
// implausible local hours.
type Scheduler struct {
	mu      sync.RWMutex
	regions map[string]RegionSchedule

	now func() time.Time
	log logger.Logger
}

func NewScheduler(log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	s := &Scheduler{
		regions: make(map[string]RegionSchedule),
		now:     time.Now,
		log:     log,
	}
	s.initDefaults()
	return s
}

// WithClock replaces the time source. Used in tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

func (s *Scheduler) initDefaults() {
	for code, timezones := range RegionTimezones {
		var windows []Window
		for _, tz := range timezones {
			for _, w := range DefaultEngagementWindows() {
				windows = append(windows, Window{
					Timezone: tz,
					Start:    w[0],
					End:      w[1],
					Priority: 1,
				})
			}
		}
		s.regions[code] = RegionSchedule{
			RegionCode: code,
			Timezones:  timezones,
			Windows:    windows,
			Weight:     1.0,
		}
	}
}

// AddRegion adds or replaces a region schedule.
func (s *Scheduler) AddRegion(schedule RegionSchedule) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.regions[strings.ToUpper(schedule.RegionCode)] = schedule
	s.log.Info("Region schedule updated", logger.Field{Key: "region", Value: schedule.RegionCode})
}

// Region returns the schedule for a region code.
func (s *Scheduler) Region(code string) (RegionSchedule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schedule, ok := s.regions[strings.ToUpper(code)]
	return schedule, ok
}

// ActiveRegions lists regions currently inside one of their windows.
func (s *Scheduler) ActiveRegions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	var active []string
	for code, schedule := range s.regions {
		if len(schedule.ActiveWindows(now)) > 0 {
			active = append(active, code)
		}
	}
	sort.Strings(active)
	return active
}

// OptimalTime finds the soonest moment at or after from when at least one
// target region is inside an engagement window. Unknown regions fall back
// to one hour out.
func (s *Scheduler) OptimalTime(targetRegions []string, from time.Time) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var upcoming []time.Time
	for _, code := range targetRegions {
		schedule, ok := s.regions[strings.ToUpper(code)]
		if !ok {
			continue
		}
		for _, w := range schedule.Windows {
			if w.ActiveAt(from) {
				return from
			}
			upcoming = append(upcoming, w.NextStartUTC(from))
		}
	}
	if len(upcoming) == 0 {
		return from.Add(time.Hour)
	}
	sort.Slice(upcoming, func(i, j int) bool { return upcoming[i].Before(upcoming[j]) })
	return upcoming[0]
}

// Schedule24h enumerates the engagement slots for the target regions over
// the 24 hours starting at from. Passing no regions covers all of them.
func (s *Scheduler) Schedule24h(targetRegions []string, from time.Time) []Slot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	end := from.Add(24 * time.Hour)
	if len(targetRegions) == 0 {
		for code := range s.regions {
			targetRegions = append(targetRegions, code)
		}
	}

	var slots []Slot
	for _, code := range targetRegions {
		schedule, ok := s.regions[strings.ToUpper(code)]
		if !ok {
			continue
		}
		for _, w := range schedule.Windows {
			loc, err := time.LoadLocation(w.Timezone)
			if err != nil {
				s.log.Warn("Unknown timezone in schedule",
					logger.Field{Key: "timezone", Value: w.Timezone},
					logger.Field{Key: "region", Value: code},
				)
				continue
			}
			current := from
			for current.Before(end) {
				if !w.ActiveAt(current) {
					current = current.Add(scanStep)
					continue
				}
				local := current.In(loc)
				localEnd := time.Date(local.Year(), local.Month(), local.Day(), w.End.Hour, w.End.Minute, 0, 0, loc)
				if w.End.minutes() <= w.Start.minutes() {
					localEnd = localEnd.AddDate(0, 0, 1)
				}
				slotEnd := localEnd.UTC()
				if !slotEnd.After(current) {
					// Exactly at the window's closing minute.
					current = current.Add(scanStep)
					continue
				}
				if slotEnd.After(end) {
					slotEnd = end
				}
				slots = append(slots, Slot{
					StartUTC: current,
					EndUTC:   slotEnd,
					Timezone: w.Timezone,
					Region:   strings.ToUpper(code),
					Priority: w.Priority,
				})
				current = localEnd.UTC()
			}
		}
	}

	sort.SliceStable(slots, func(i, j int) bool { return slots[i].StartUTC.Before(slots[j].StartUTC) })
	return slots
}

// DistributeTasks spreads taskCount tasks across the next 24 hours of
// engagement slots, proportionally to slot duration. With no usable slots
// the tasks are spread evenly over the day.
func (s *Scheduler) DistributeTasks(taskCount int, targetRegions []string, start time.Time) []ScheduledTask {
	if taskCount <= 0 {
		return nil
	}

	slots := s.Schedule24h(targetRegions, start)
	if len(slots) == 0 {
		if len(targetRegions) == 0 {
			return nil
		}
		interval := 24 * time.Hour / time.Duration(taskCount)
		tasks := make([]ScheduledTask, 0, taskCount)
		for i := 0; i < taskCount; i++ {
			tasks = append(tasks, ScheduledTask{
				Time:   start.Add(interval * time.Duration(i)),
				Region: strings.ToUpper(targetRegions[i%len(targetRegions)]),
			})
		}
		return tasks
	}

	var total time.Duration
	for _, slot := range slots {
		total += slot.Duration()
	}
	if total == 0 {
		return nil
	}

	var tasks []ScheduledTask
	remaining := taskCount
	for _, slot := range slots {
		if remaining <= 0 {
			break
		}
		share := int(float64(taskCount) * float64(slot.Duration()) / float64(total))
		if share < 1 {
			share = 1
		}
		if share > remaining {
			share = remaining
		}
		for i := 0; i < share; i++ {
			offset := slot.Duration() * time.Duration(i+1) / time.Duration(share+1)
			tasks = append(tasks, ScheduledTask{
				Time:   slot.StartUTC.Add(offset),
				Region: slot.Region,
			})
		}
		remaining -= share
	}
	return tasks
}

// WithinWorkHours reports whether t reads as a reasonable local hour in
// the given timezone. Unknown timezones permit everything.
func (s *Scheduler) WithinWorkHours(timezone string, t time.Time) bool {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return true
	}
	hour := t.In(loc).Hour()
	return hour >= 8 && hour < 22
}

// TimezoneForRegion returns the region's primary timezone, UTC when the
// region is unknown.
func (s *Scheduler) TimezoneForRegion(code string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if schedule, ok := s.regions[strings.ToUpper(code)]; ok && len(schedule.Timezones) > 0 {
		return schedule.Timezones[0]
	}
	return "UTC"
}

// GlobalOverview reports the activity state of every configured region.
func (s *Scheduler) GlobalOverview() Overview {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	overview := Overview{
		CurrentUTC:   now.UTC(),
		TotalRegions: len(s.regions),
		Regions:      make(map[string]RegionStatus, len(s.regions)),
	}
	for code, schedule := range s.regions {
		active := schedule.ActiveWindows(now)
		overview.Regions[code] = RegionStatus{
			Active:             len(active) > 0,
			ActiveWindowsCount: len(active),
			TotalWindows:       len(schedule.Windows),
			Timezones:          schedule.Timezones,
		}
		if len(active) > 0 {
			overview.ActiveRegions = append(overview.ActiveRegions, code)
		}
	}
	sort.Strings(overview.ActiveRegions)
	return overview
}
