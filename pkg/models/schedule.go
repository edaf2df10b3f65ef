package models

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleType selects which recurrence rule applies.
type ScheduleType string

const (
	ScheduleTypeInterval ScheduleType = "interval"
	ScheduleTypeDaily    ScheduleType = "daily"
	ScheduleTypeWeekly   ScheduleType = "weekly"
	ScheduleTypeMonthly  ScheduleType = "monthly"
	ScheduleTypeCustom   ScheduleType = "custom"
)

// IntervalUnit is the unit for interval schedules.
type IntervalUnit string

const (
	IntervalUnitMinutes IntervalUnit = "minutes"
	IntervalUnitHours   IntervalUnit = "hours"
	IntervalUnitDays    IntervalUnit = "days"
)

// Editor defaults substituted for missing or malformed rule fields.
const (
	defaultClock         = "09:00"
	defaultIntervalValue = 1
	defaultMonthlyDay    = 1
	defaultWeeklyDay     = 1 // Monday
)

// Schedule is a recurrence rule attached to a node (typically a
// group). Exactly one of the type-specific field groups is meaningful
// per Type. NextRun and LastRun are derived fields written back by the
// engine for display.
type Schedule struct {
	Enabled bool         `json:"enabled"`
	Type    ScheduleType `json:"type" validate:"required,oneof=interval daily weekly monthly custom"`

	// interval
	IntervalValue int          `json:"interval_value,omitempty" validate:"omitempty,min=1"`
	IntervalUnit  IntervalUnit `json:"interval_unit,omitempty"  validate:"omitempty,oneof=minutes hours days"`

	// daily
	DailyTime string `json:"daily_time,omitempty"`

	// weekly
	WeeklyDays []int  `json:"weekly_days,omitempty" validate:"omitempty,dive,min=0,max=6"`
	WeeklyTime string `json:"weekly_time,omitempty"`

	// monthly
	MonthlyDays []int  `json:"monthly_days,omitempty" validate:"omitempty,dive,min=1,max=31"`
	MonthlyTime string `json:"monthly_time,omitempty"`

	// custom (standard 5-field cron expression)
	CronExpression string `json:"cron_expression,omitempty"`

	NextRun *time.Time `json:"next_run,omitempty"`
	LastRun *time.Time `json:"last_run,omitempty"`
}

// ErrInvalidSchedule is returned when a schedule cannot produce a next
// run time at all (unknown type, or an unparseable custom expression).
var ErrInvalidSchedule = errors.New("invalid schedule configuration")

// Interval returns the period of an interval schedule, substituting
// defaults for missing fields (value 1, unit hours).
func (s *Schedule) Interval() time.Duration {
	value := s.IntervalValue
	if value < 1 {
		value = defaultIntervalValue
	}

	switch s.IntervalUnit {
	case IntervalUnitMinutes:
		return time.Duration(value) * time.Minute
	case IntervalUnitDays:
		return time.Duration(value) * 24 * time.Hour
	case IntervalUnitHours:
		return time.Duration(value) * time.Hour
	default:
		return time.Duration(value) * time.Hour
	}
}

// NextRunAfter computes the next fire time strictly after now, using
// local wall-clock semantics. Malformed time strings and empty day
// sets fall back to the editor defaults rather than failing.
func (s *Schedule) NextRunAfter(now time.Time) (time.Time, error) {
	switch s.Type {
	case ScheduleTypeInterval:
		return now.Add(s.Interval()), nil
	case ScheduleTypeDaily:
		return s.nextDaily(now), nil
	case ScheduleTypeWeekly:
		return s.nextWeekly(now), nil
	case ScheduleTypeMonthly:
		return s.nextMonthly(now), nil
	case ScheduleTypeCustom:
		return s.nextCustom(now)
	default:
		return time.Time{}, fmt.Errorf("%w: unknown type %q", ErrInvalidSchedule, s.Type)
	}
}

func (s *Schedule) nextDaily(now time.Time) time.Time {
	hour, minute := parseClock(s.DailyTime)

	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}

	return next
}

func (s *Schedule) nextWeekly(now time.Time) time.Time {
	hour, minute := parseClock(s.WeeklyTime)

	days := s.WeeklyDays
	if len(days) == 0 {
		days = []int{defaultWeeklyDay}
	}

	configured := make(map[int]bool, len(days))
	for _, day := range days {
		if day >= 0 && day <= 6 {
			configured[day] = true
		}
	}

	if len(configured) == 0 {
		configured[defaultWeeklyDay] = true
	}

	// Smallest offset whose candidate instant is still in the future.
	// Same-day only counts if the configured time has not passed yet.
	offset := 7

	for d := range 7 {
		weekday := (int(now.Weekday()) + d) % 7
		if !configured[weekday] {
			continue
		}

		candidate := atClock(now.AddDate(0, 0, d), hour, minute)
		if candidate.After(now) {
			offset = d

			break
		}
	}

	return atClock(now.AddDate(0, 0, offset), hour, minute)
}

func (s *Schedule) nextMonthly(now time.Time) time.Time {
	hour, minute := parseClock(s.MonthlyTime)

	days := make([]int, 0, len(s.MonthlyDays))

	for _, day := range s.MonthlyDays {
		if day >= 1 && day <= 31 {
			days = append(days, day)
		}
	}

	if len(days) == 0 {
		days = []int{defaultMonthlyDay}
	}

	sort.Ints(days)

	for _, day := range days {
		if day < now.Day() {
			continue
		}

		candidate := time.Date(now.Year(), now.Month(), day, hour, minute, 0, 0, now.Location())
		if candidate.Month() == now.Month() && candidate.After(now) {
			return candidate
		}
	}

	// Nothing left this month: first configured day of next month.
	firstOfNext := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, 1, 0)

	return time.Date(firstOfNext.Year(), firstOfNext.Month(), days[0], hour, minute, 0, 0, now.Location())
}

func (s *Schedule) nextCustom(now time.Time) (time.Time, error) {
	spec, err := cron.ParseStandard(s.CronExpression)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}

	return spec.Next(now), nil
}

// Validate checks that the schedule can produce a next run time.
func (s *Schedule) Validate() error {
	_, err := s.NextRunAfter(time.Now())

	return err
}

// parseClock parses "HH:mm", substituting 09:00 for malformed input.
func parseClock(clock string) (int, int) {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return parseClock(defaultClock)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return parseClock(defaultClock)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return parseClock(defaultClock)
	}

	return hour, minute
}

// atClock returns the instant on t's calendar day at the given wall
// clock time.
func atClock(t time.Time, hour, minute int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, t.Location())
}
