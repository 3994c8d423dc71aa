// Package cadence maps a recurring schedule and an instant to the next firing
// instant and to a stable identifier of the period containing the instant.
// All calendar math runs in UTC.
package cadence

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Cadence names a recurring schedule.
type Cadence string

const (
	Daily     Cadence = "DAILY"
	Weekly    Cadence = "WEEKLY"
	Biweekly  Cadence = "BIWEEKLY"
	Monthly   Cadence = "MONTHLY"
	Quarterly Cadence = "QUARTERLY"

	hoursPerDay      = 24
	biweeklyDays     = 14
	weekDays         = 7
	monthsPerQuarter = 3
)

var ErrUnknownCadence = errors.New("unknown cadence")

// biweeklyEpoch anchors 14-day periods on a Monday.
var biweeklyEpoch = time.Date(1970, time.January, 5, 0, 0, 0, 0, time.UTC)

// Parse normalizes a cadence name.
func Parse(raw string) (Cadence, error) {
	candidate := Cadence(strings.ToUpper(strings.TrimSpace(raw)))
	if !candidate.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCadence, raw)
	}
	return candidate, nil
}

func (cadence Cadence) Valid() bool {
	switch cadence {
	case Daily, Weekly, Biweekly, Monthly, Quarterly:
		return true
	default:
		return false
	}
}

func (cadence Cadence) String() string {
	return string(cadence)
}

// NextExecutionFrom returns the first period boundary at or after now. An
// instant that sits exactly on a boundary is returned unchanged.
func NextExecutionFrom(cadence Cadence, now time.Time) (time.Time, error) {
	at := now.UTC()
	start, err := periodStart(cadence, at)
	if err != nil {
		return time.Time{}, err
	}
	if at.Equal(start) {
		return start, nil
	}
	return advance(cadence, start), nil
}

// FollowingExecution returns the start of the period after the one containing
// now, the first boundary strictly after now.
func FollowingExecution(cadence Cadence, now time.Time) (time.Time, error) {
	start, err := periodStart(cadence, now.UTC())
	if err != nil {
		return time.Time{}, err
	}
	return advance(cadence, start), nil
}

func advance(cadence Cadence, start time.Time) time.Time {
	switch cadence {
	case Daily:
		return start.AddDate(0, 0, 1)
	case Weekly:
		return start.AddDate(0, 0, weekDays)
	case Biweekly:
		return start.AddDate(0, 0, biweeklyDays)
	case Monthly:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(0, monthsPerQuarter, 0)
	}
}

// PeriodKey identifies the period containing now. Keys never repeat across
// periods or across cadences.
func PeriodKey(cadence Cadence, now time.Time) (string, error) {
	at := now.UTC()
	switch cadence {
	case Daily:
		return at.Format("2006-01-02"), nil
	case Weekly:
		year, week := at.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week), nil
	case Biweekly:
		return fmt.Sprintf("BW-%d", biweeklyIndex(at)), nil
	case Monthly:
		return at.Format("2006-01"), nil
	case Quarterly:
		return fmt.Sprintf("%04d-Q%d", at.Year(), quarterOf(at.Month())), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCadence, string(cadence))
	}
}

func periodStart(cadence Cadence, at time.Time) (time.Time, error) {
	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	switch cadence {
	case Daily:
		return day, nil
	case Weekly:
		offset := (int(day.Weekday()) + weekDays - 1) % weekDays
		return day.AddDate(0, 0, -offset), nil
	case Biweekly:
		return biweeklyEpoch.AddDate(0, 0, biweeklyIndex(at)*biweeklyDays), nil
	case Monthly:
		return time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	case Quarterly:
		firstMonth := time.Month((quarterOf(at.Month())-1)*monthsPerQuarter + 1)
		return time.Date(at.Year(), firstMonth, 1, 0, 0, 0, 0, time.UTC), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownCadence, string(cadence))
	}
}

func biweeklyIndex(at time.Time) int {
	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	days := int(day.Sub(biweeklyEpoch).Hours()) / hoursPerDay
	return floorDiv(days, biweeklyDays)
}

func quarterOf(month time.Month) int {
	return (int(month)-1)/monthsPerQuarter + 1
}

func floorDiv(numerator int, denominator int) int {
	quotient := numerator / denominator
	if numerator%denominator != 0 && (numerator < 0) != (denominator < 0) {
		quotient--
	}
	return quotient
}
