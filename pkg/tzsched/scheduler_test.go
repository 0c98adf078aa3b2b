package tzsched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/grigta/outreach/pkg/logger"
)

func TestWindow_ActiveAt(t *testing.T) {
	tests := []struct {
		name   string
		window Window
		at     time.Time
		want   bool
	}{
		{
			name:   "inside morning window in tokyo",
			window: Window{Timezone: "Asia/Tokyo", Start: ClockTime{Hour: 7}, End: ClockTime{Hour: 9}},
			at:     time.Date(2025, 6, 2, 22, 30, 0, 0, time.UTC), // 07:30 June 3 in Tokyo
			want:   true,
		},
		{
			name:   "outside window in tokyo",
			window: Window{Timezone: "Asia/Tokyo", Start: ClockTime{Hour: 7}, End: ClockTime{Hour: 9}},
			at:     time.Date(2025, 6, 2, 1, 0, 0, 0, time.UTC), // 10:00 in Tokyo
			want:   false,
		},
		{
			name:   "end boundary is inclusive",
			window: Window{Timezone: "UTC", Start: ClockTime{Hour: 20}, End: ClockTime{Hour: 22}},
			at:     time.Date(2025, 6, 2, 22, 0, 0, 0, time.UTC),
			want:   true,
		},
		{
			name:   "just past the end boundary",
			window: Window{Timezone: "UTC", Start: ClockTime{Hour: 20}, End: ClockTime{Hour: 22}},
			at:     time.Date(2025, 6, 2, 22, 1, 0, 0, time.UTC),
			want:   false,
		},
		{
			name:   "wrap past midnight before midnight",
			window: Window{Timezone: "UTC", Start: ClockTime{Hour: 22}, End: ClockTime{Hour: 2}},
			at:     time.Date(2025, 6, 2, 23, 0, 0, 0, time.UTC),
			want:   true,
		},
		{
			name:   "wrap past midnight after midnight",
			window: Window{Timezone: "UTC", Start: ClockTime{Hour: 22}, End: ClockTime{Hour: 2}},
			at:     time.Date(2025, 6, 2, 1, 0, 0, 0, time.UTC),
			want:   true,
		},
		{
			name:   "wrap past midnight midday",
			window: Window{Timezone: "UTC", Start: ClockTime{Hour: 22}, End: ClockTime{Hour: 2}},
			at:     time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
			want:   false,
		},
		{
			name:   "unknown timezone never active",
			window: Window{Timezone: "Mars/Olympus", Start: ClockTime{Hour: 0}, End: ClockTime{Hour: 23}},
			at:     time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.window.ActiveAt(tt.at))
		})
	}
}

func TestWindow_NextStartUTC(t *testing.T) {
	// New York is UTC-4 in June.
	w := Window{Timezone: "America/New_York", Start: ClockTime{Hour: 7}, End: ClockTime{Hour: 9}}

	// 02:00 local, window opens later today.
	from := time.Date(2025, 6, 2, 6, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC), w.NextStartUTC(from))

	// 08:00 local, already past the opening, so tomorrow.
	from = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 3, 11, 0, 0, 0, time.UTC), w.NextStartUTC(from))
}

type SchedulerTestSuite struct {
	suite.Suite
	scheduler *Scheduler
}

func (s *SchedulerTestSuite) SetupTest() {
	s.scheduler = NewScheduler(logger.Nop())
}

func (s *SchedulerTestSuite) TestDefaultRegions() {
	schedule, ok := s.scheduler.Region("US")
	s.Require().True(ok)
	s.Len(schedule.Timezones, 4)
	s.Len(schedule.Windows, 16) // 4 timezones x 4 windows

	_, ok = s.scheduler.Region("ZZ")
	s.False(ok)
}

func (s *SchedulerTestSuite) TestRegion_CaseInsensitive() {
	schedule, ok := s.scheduler.Region("jp")
	s.Require().True(ok)
	s.Equal([]string{"Asia/Tokyo"}, schedule.Timezones)
}

func (s *SchedulerTestSuite) TestAddRegion() {
	s.scheduler.AddRegion(RegionSchedule{
		RegionCode: "test",
		Timezones:  []string{"UTC"},
		Windows: []Window{
			{Timezone: "UTC", Start: ClockTime{Hour: 10}, End: ClockTime{Hour: 12}},
		},
	})

	schedule, ok := s.scheduler.Region("TEST")
	s.Require().True(ok)
	s.Len(schedule.Windows, 1)
}

func (s *SchedulerTestSuite) TestOptimalTime_AlreadyActive() {
	// 08:00 in New York, inside the morning window.
	from := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	got := s.scheduler.OptimalTime([]string{"US"}, from)
	s.Equal(from, got)
}

func (s *SchedulerTestSuite) TestOptimalTime_WaitsForNextWindow() {
	// 02:00 in New York, the middle of the night across the US. The
	// soonest window is New York's morning commute at 07:00 local.
	from := time.Date(2025, 6, 2, 6, 0, 0, 0, time.UTC)

	got := s.scheduler.OptimalTime([]string{"US"}, from)
	s.Equal(time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC), got)
}

func (s *SchedulerTestSuite) TestOptimalTime_UnknownRegionFallsBack() {
	from := time.Date(2025, 6, 2, 6, 0, 0, 0, time.UTC)

	got := s.scheduler.OptimalTime([]string{"ZZ"}, from)
	s.Equal(from.Add(time.Hour), got)
}

func (s *SchedulerTestSuite) TestSchedule24h_SingleTimezoneRegion() {
	// Tokyo is UTC+9 year round, so the four local windows map to fixed
	// UTC intervals.
	from := time.Date(2025, 6, 2, 0, 10, 0, 0, time.UTC)

	slots := s.scheduler.Schedule24h([]string{"JP"}, from)
	s.Require().Len(slots, 4)

	for i := 1; i < len(slots); i++ {
		s.False(slots[i].StartUTC.Before(slots[i-1].StartUTC))
	}
	for _, slot := range slots {
		s.Equal("JP", slot.Region)
		s.Equal("Asia/Tokyo", slot.Timezone)
		s.True(slot.EndUTC.After(slot.StartUTC))
	}

	// Lunch window, 12:00 to 14:00 local, 03:00 to 05:00 UTC. The scan
	// picks it up at its first probe inside the window.
	s.Equal(time.Date(2025, 6, 2, 3, 10, 0, 0, time.UTC), slots[0].StartUTC)
	s.Equal(time.Date(2025, 6, 2, 5, 0, 0, 0, time.UTC), slots[0].EndUTC)
}

func (s *SchedulerTestSuite) TestDistributeTasks_Proportional() {
	from := time.Date(2025, 6, 2, 0, 10, 0, 0, time.UTC)

	tasks := s.scheduler.DistributeTasks(8, []string{"JP"}, from)
	s.Require().Len(tasks, 8)

	end := from.Add(24 * time.Hour)
	for i, task := range tasks {
		s.Equal("JP", task.Region)
		s.True(task.Time.After(from))
		s.True(task.Time.Before(end))
		if i > 0 {
			s.False(task.Time.Before(tasks[i-1].Time))
		}
	}
}

func (s *SchedulerTestSuite) TestDistributeTasks_FallbackEvenSpread() {
	from := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	tasks := s.scheduler.DistributeTasks(4, []string{"ZZ"}, from)
	s.Require().Len(tasks, 4)

	s.Equal(from, tasks[0].Time)
	s.Equal(from.Add(6*time.Hour), tasks[1].Time)
	s.Equal(from.Add(12*time.Hour), tasks[2].Time)
	s.Equal(from.Add(18*time.Hour), tasks[3].Time)
	s.Equal("ZZ", tasks[0].Region)
}

func (s *SchedulerTestSuite) TestDistributeTasks_ZeroCount() {
	s.Nil(s.scheduler.DistributeTasks(0, []string{"US"}, time.Now()))
}

func (s *SchedulerTestSuite) TestActiveRegions() {
	clock := time.Date(2025, 6, 2, 12, 30, 0, 0, time.UTC)
	s.scheduler.WithClock(func() time.Time { return clock })

	active := s.scheduler.ActiveRegions()

	// 08:30 in New York, 13:30 in London, 21:30 in Tokyo.
	s.Contains(active, "US")
	s.Contains(active, "UK")
	s.Contains(active, "JP")
	// 09:30 in Sao Paulo, between windows.
	s.NotContains(active, "BR")
}

func (s *SchedulerTestSuite) TestGlobalOverview() {
	clock := time.Date(2025, 6, 2, 12, 30, 0, 0, time.UTC)
	s.scheduler.WithClock(func() time.Time { return clock })

	overview := s.scheduler.GlobalOverview()

	s.Equal(len(RegionTimezones), overview.TotalRegions)
	s.Equal(clock, overview.CurrentUTC)
	s.True(overview.Regions["JP"].Active)
	s.False(overview.Regions["BR"].Active)
	s.Equal(16, overview.Regions["US"].TotalWindows)
	s.Contains(overview.ActiveRegions, "US")
}

func (s *SchedulerTestSuite) TestTimezoneForRegion() {
	s.Equal("America/New_York", s.scheduler.TimezoneForRegion("us"))
	s.Equal("Asia/Kolkata", s.scheduler.TimezoneForRegion("IN"))
	s.Equal("UTC", s.scheduler.TimezoneForRegion("ZZ"))
}

func (s *SchedulerTestSuite) TestWithinWorkHours() {
	// 21:00 in New York.
	s.True(s.scheduler.WithinWorkHours("America/New_York", time.Date(2025, 6, 2, 1, 0, 0, 0, time.UTC)))
	// 02:00 in New York.
	s.False(s.scheduler.WithinWorkHours("America/New_York", time.Date(2025, 6, 2, 6, 0, 0, 0, time.UTC)))
	// Unknown timezones never block.
	s.True(s.scheduler.WithinWorkHours("Mars/Olympus", time.Now()))
}

func TestSchedulerTestSuite(t *testing.T) {
	suite.Run(t, new(SchedulerTestSuite))
}

func TestScheduler_Schedule24h_CoversAllRegionsByDefault(t *testing.T) {
	sched := NewScheduler(logger.Nop())
	from := time.Date(2025, 6, 2, 0, 10, 0, 0, time.UTC)

	slots := sched.Schedule24h(nil, from)
	require.NotEmpty(t, slots)

	regions := make(map[string]bool)
	for _, slot := range slots {
		regions[slot.Region] = true
	}
	assert.True(t, len(regions) > 5)
}
