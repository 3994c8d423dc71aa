package cadence

import (
	"errors"
	"testing"
	"time"
)

func TestParse(test *testing.T) {
	test.Parallel()
	parsed, err := Parse(" monthly ")
	if err != nil {
		test.Fatalf("parse: %v", err)
	}
	if parsed != Monthly {
		test.Fatalf("expected MONTHLY, got %s", parsed)
	}
	if _, err := Parse("hourly"); !errors.Is(err, ErrUnknownCadence) {
		test.Fatalf("expected ErrUnknownCadence, got %v", err)
	}
}

func TestNextExecutionFrom(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name    string
		cadence Cadence
		now     time.Time
		want    time.Time
	}{
		{
			name:    "daily mid day",
			cadence: Daily,
			now:     time.Date(2024, 1, 15, 13, 30, 0, 0, time.UTC),
			want:    time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "daily exactly on boundary fires now",
			cadence: Daily,
			now:     time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			want:    time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "monthly exactly on boundary fires now",
			cadence: Monthly,
			now:     time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			want:    time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "monthly one nanosecond past boundary",
			cadence: Monthly,
			now:     time.Date(2024, 2, 1, 0, 0, 0, 1, time.UTC),
			want:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "weekly from wednesday",
			cadence: Weekly,
			now:     time.Date(2024, 1, 17, 10, 0, 0, 0, time.UTC),
			want:    time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "weekly from sunday",
			cadence: Weekly,
			now:     time.Date(2024, 1, 21, 23, 0, 0, 0, time.UTC),
			want:    time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "monthly end of month",
			cadence: Monthly,
			now:     time.Date(2024, 1, 31, 18, 0, 0, 0, time.UTC),
			want:    time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "monthly december rolls year",
			cadence: Monthly,
			now:     time.Date(2024, 12, 5, 0, 0, 0, 0, time.UTC),
			want:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "quarterly",
			cadence: Quarterly,
			now:     time.Date(2024, 11, 20, 0, 0, 0, 0, time.UTC),
			want:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "non utc input",
			cadence: Daily,
			now:     time.Date(2024, 1, 15, 23, 30, 0, 0, time.FixedZone("UTC-5", -5*60*60)),
			want:    time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			got, err := NextExecutionFrom(testCase.cadence, testCase.now)
			if err != nil {
				test.Fatalf("next execution: %v", err)
			}
			if !got.Equal(testCase.want) {
				test.Fatalf("expected %s, got %s", testCase.want, got)
			}
		})
	}
}

func TestBiweeklyBoundariesAreFourteenDaysApart(test *testing.T) {
	test.Parallel()
	now := time.Date(2024, 5, 9, 8, 0, 0, 0, time.UTC)
	first, err := NextExecutionFrom(Biweekly, now)
	if err != nil {
		test.Fatalf("next execution: %v", err)
	}
	if first.Weekday() != time.Monday {
		test.Fatalf("expected a monday boundary, got %s", first.Weekday())
	}
	if !first.After(now) || first.Sub(now) > 14*24*time.Hour {
		test.Fatalf("boundary %s not within 14 days after %s", first, now)
	}
	same, err := NextExecutionFrom(Biweekly, first)
	if err != nil {
		test.Fatalf("next execution: %v", err)
	}
	if !same.Equal(first) {
		test.Fatalf("boundary %s must fire at itself, got %s", first, same)
	}
	second, err := FollowingExecution(Biweekly, first)
	if err != nil {
		test.Fatalf("following execution: %v", err)
	}
	if second.Sub(first) != 14*24*time.Hour {
		test.Fatalf("expected 14 day spacing, got %s", second.Sub(first))
	}
}

func TestPeriodKeyFormats(test *testing.T) {
	test.Parallel()
	at := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	expected := map[Cadence]string{
		Daily:     "2024-01-15",
		Weekly:    "2024-W03",
		Monthly:   "2024-01",
		Quarterly: "2024-Q1",
	}
	for cadenceValue, want := range expected {
		got, err := PeriodKey(cadenceValue, at)
		if err != nil {
			test.Fatalf("period key %s: %v", cadenceValue, err)
		}
		if got != want {
			test.Fatalf("%s: expected %q, got %q", cadenceValue, want, got)
		}
	}
}

func TestPeriodKeyStableWithinPeriodAndDistinctAcross(test *testing.T) {
	test.Parallel()
	now := time.Date(2024, 2, 14, 9, 15, 0, 0, time.UTC)
	for _, cadenceValue := range []Cadence{Daily, Weekly, Biweekly, Monthly, Quarterly} {
		next, err := NextExecutionFrom(cadenceValue, now)
		if err != nil {
			test.Fatalf("next execution %s: %v", cadenceValue, err)
		}
		current, err := PeriodKey(cadenceValue, now)
		if err != nil {
			test.Fatalf("period key %s: %v", cadenceValue, err)
		}
		lastInstant, err := PeriodKey(cadenceValue, next.Add(-time.Nanosecond))
		if err != nil {
			test.Fatalf("period key %s: %v", cadenceValue, err)
		}
		following, err := PeriodKey(cadenceValue, next)
		if err != nil {
			test.Fatalf("period key %s: %v", cadenceValue, err)
		}
		if current != lastInstant {
			test.Fatalf("%s: key changed inside period: %q vs %q", cadenceValue, current, lastInstant)
		}
		if current == following {
			test.Fatalf("%s: key %q repeated across periods", cadenceValue, current)
		}
	}
}

func TestFollowingExecutionIsStrictlyAfter(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name    string
		cadence Cadence
		now     time.Time
		want    time.Time
	}{
		{name: "daily on boundary", cadence: Daily, now: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), want: time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)},
		{name: "weekly on monday", cadence: Weekly, now: time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC), want: time.Date(2024, 1, 29, 0, 0, 0, 0, time.UTC)},
		{name: "monthly mid month", cadence: Monthly, now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), want: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
		{name: "quarterly on boundary", cadence: Quarterly, now: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), want: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			got, err := FollowingExecution(testCase.cadence, testCase.now)
			if err != nil {
				test.Fatalf("following execution: %v", err)
			}
			if !got.Equal(testCase.want) {
				test.Fatalf("expected %s, got %s", testCase.want, got)
			}
		})
	}
}

func TestUnknownCadenceFails(test *testing.T) {
	test.Parallel()
	if _, err := NextExecutionFrom(Cadence("YEARLY"), time.Now()); !errors.Is(err, ErrUnknownCadence) {
		test.Fatalf("expected ErrUnknownCadence, got %v", err)
	}
	if _, err := PeriodKey(Cadence(""), time.Now()); !errors.Is(err, ErrUnknownCadence) {
		test.Fatalf("expected ErrUnknownCadence, got %v", err)
	}
}
