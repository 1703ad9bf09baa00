// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for rule period windows.
// Each period (daily, weekly, monthly, quarterly, yearly) has its own strategy
// that computes the calendar window containing a point in time.

package services

import (
	"fmt"
	"time"

	"fintrack/internal/core"
)

// PeriodWindow is the half-open window [Start, End) a rule is evaluated over.
// Key identifies the window for alert deduplication.
type PeriodWindow struct {
	Start core.Date
	End   core.Date
	Key   string
}

// Range returns the window as an inclusive day range.
func (w PeriodWindow) Range() core.DateRange {
	return core.DateRange{From: w.Start, To: w.End.AddDays(-1)}
}

// PeriodStrategy is the strategy interface for computing a rule's window.
type PeriodStrategy interface {
	// Window returns the window of this period type containing at's calendar day.
	Window(at time.Time) PeriodWindow
}

// DailyWindow is the calendar day.
type DailyWindow struct{}

func (DailyWindow) Window(at time.Time) PeriodWindow {
	day := core.DateOf(at)
	return PeriodWindow{Start: day, End: day.AddDays(1), Key: day.String()}
}

// WeeklyWindow is the ISO week, Monday to Sunday.
type WeeklyWindow struct{}

func (WeeklyWindow) Window(at time.Time) PeriodWindow {
	day := core.DateOf(at)
	offset := (int(day.Weekday()) + 6) % 7
	start := day.AddDays(-offset)
	year, week := day.ISOWeek()
	return PeriodWindow{Start: start, End: start.AddDays(7), Key: fmt.Sprintf("%04d-W%02d", year, week)}
}

// MonthlyWindow is the calendar month.
type MonthlyWindow struct{}

func (MonthlyWindow) Window(at time.Time) PeriodWindow {
	start := core.NewDate(at.Year(), int(at.Month()), 1)
	return PeriodWindow{
		Start: start,
		End:   core.Date{Time: start.AddDate(0, 1, 0)},
		Key:   fmt.Sprintf("%04d-%02d", at.Year(), int(at.Month())),
	}
}

// QuarterlyWindow is the calendar quarter.
type QuarterlyWindow struct{}

func (QuarterlyWindow) Window(at time.Time) PeriodWindow {
	q := (int(at.Month())-1)/3 + 1
	start := core.NewDate(at.Year(), (q-1)*3+1, 1)
	return PeriodWindow{
		Start: start,
		End:   core.Date{Time: start.AddDate(0, 3, 0)},
		Key:   fmt.Sprintf("%04d-Q%d", at.Year(), q),
	}
}

// YearlyWindow is the calendar year.
type YearlyWindow struct{}

func (YearlyWindow) Window(at time.Time) PeriodWindow {
	start := core.NewDate(at.Year(), 1, 1)
	return PeriodWindow{
		Start: start,
		End:   core.NewDate(at.Year()+1, 1, 1),
		Key:   fmt.Sprintf("%04d", at.Year()),
	}
}

// periodStrategies maps rule periods to their window strategies.
var periodStrategies = map[core.Period]PeriodStrategy{
	core.Daily:     DailyWindow{},
	core.Weekly:    WeeklyWindow{},
	core.Monthly:   MonthlyWindow{},
	core.Quarterly: QuarterlyWindow{},
	core.Yearly:    YearlyWindow{},
}

// GetPeriodStrategy returns the window strategy for a period.
// Returns an error if the period is not supported.
func GetPeriodStrategy(period core.Period) (PeriodStrategy, error) {
	s, ok := periodStrategies[period]
	if !ok {
		return nil, fmt.Errorf("unknown rule period: %s", period)
	}
	return s, nil
}

// RegisterPeriodStrategy adds or replaces the strategy for a period.
// Not safe to call concurrently with evaluations.
func RegisterPeriodStrategy(period core.Period, s PeriodStrategy) {
	periodStrategies[period] = s
}
