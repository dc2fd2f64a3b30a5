package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRelativeOffset_PreviousMonth(t *testing.T) {
	now := utc(2024, 3, 15, 12, 0)

	for _, token := range []string{"-1", "!m -1", "!м -1"} {
		anchor, err := ResolveRelativeOffset(now, token, Month)
		require.NoError(t, err, token)

		p := MonthRange(anchor)
		assert.Equal(t, utc(2024, 2, 1, 0, 0), p.Start, token)
		assert.Equal(t, utc(2024, 3, 1, 0, 0), p.End, token)
		assert.Equal(t, 29, p.Days(), token)
	}
}

func TestResolveRelativeOffset_NoArgument(t *testing.T) {
	now := utc(2024, 3, 15, 12, 0)

	for _, token := range []string{"!m", "!", ""} {
		anchor, err := ResolveRelativeOffset(now, token, Month)
		require.NoError(t, err)
		assert.Equal(t, now, anchor)
	}
}

func TestResolveRelativeOffset_Forward(t *testing.T) {
	anchor, err := ResolveRelativeOffset(utc(2024, 3, 15, 12, 0), "!m +1", Month)
	require.NoError(t, err)
	assert.Equal(t, time.April, anchor.Month())
}

func TestResolveRelativeOffset_ClampsDay(t *testing.T) {
	anchor, err := ResolveRelativeOffset(utc(2024, 3, 31, 12, 0), "!m -1", Month)
	require.NoError(t, err)
	assert.Equal(t, utc(2024, 2, 29, 12, 0), anchor)
}

func TestResolveRelativeOffset_Week(t *testing.T) {
	anchor, err := ResolveRelativeOffset(utc(2024, 1, 10, 9, 0), "! -1", Week)
	require.NoError(t, err)

	p := WeekRange(anchor)
	assert.Equal(t, utc(2024, 1, 1, 0, 0), p.Start)
	assert.Equal(t, utc(2024, 1, 8, 0, 0), p.End)
}

func TestResolveRelativeOffset_Invalid(t *testing.T) {
	for _, token := range []string{"!m abc", "! x", "!m 1.5"} {
		_, err := ResolveRelativeOffset(utc(2024, 3, 15, 12, 0), token, Month)
		require.ErrorIs(t, err, ErrInvalidArgument, token)
	}
}

func TestWeekRange(t *testing.T) {
	sunday := utc(2024, 1, 7, 23, 59)
	assert.Equal(t, utc(2024, 1, 1, 0, 0), WeekRange(sunday).Start)

	monday := utc(2024, 1, 8, 0, 0)
	assert.Equal(t, monday, WeekRange(monday).Start)

	loc := MustParseOffset("-5").Location()
	local := time.Date(2024, 1, 8, 1, 0, 0, 0, loc)
	p := WeekRange(local)
	assert.Equal(t, time.Date(2024, 1, 8, 0, 0, 0, 0, loc), p.Start)
	assert.Equal(t, 7, p.Days())
}

func TestMonthRangeSplitByWeek(t *testing.T) {
	parts := MonthRangeSplitByWeek(utc(2024, 1, 20, 0, 0))
	require.Len(t, parts, 5)
	assert.Equal(t, utc(2024, 1, 8, 0, 0), parts[0].End)
	assert.Equal(t, 3, parts[4].Days())
}

func TestMonthRangeSplitByWeek_ExactWeeks(t *testing.T) {
	// February 2021 starts on a Monday and ends on a Sunday.
	parts := MonthRangeSplitByWeek(utc(2021, 2, 10, 0, 0))
	require.Len(t, parts, 4)
	for _, p := range parts {
		assert.Equal(t, 7, p.Days())
	}
}

func TestMonthRangeSplitByWeek_CoversMonth(t *testing.T) {
	locs := []*time.Location{time.UTC, MustParseOffset("+5:30").Location(), MustParseOffset("-8").Location()}
	for _, loc := range locs {
		for m := time.January; m <= time.December; m++ {
			anchor := time.Date(2023, m, 14, 12, 0, 0, 0, loc)
			month := MonthRange(anchor)
			parts := MonthRangeSplitByWeek(anchor)
			require.NotEmpty(t, parts)

			assert.Equal(t, month.Start, parts[0].Start)
			assert.Equal(t, month.End, parts[len(parts)-1].End)
			days := 0
			for i, p := range parts {
				assert.True(t, p.Start.Before(p.End), "zero-length part in %s", m)
				if i > 0 {
					assert.Equal(t, parts[i-1].End, p.Start)
					assert.Equal(t, time.Monday, p.Start.Weekday())
				}
				days += p.Days()
			}
			assert.Equal(t, month.Days(), days)
			assert.Equal(t, DaysIn(2023, m), days)
		}
	}
}

func TestPeriodContains(t *testing.T) {
	p := Period{Start: utc(2024, 1, 1, 0, 0), End: utc(2024, 1, 2, 0, 0)}
	assert.True(t, p.Contains(p.Start))
	assert.False(t, p.Contains(p.End))
	assert.False(t, p.Contains(p.Start.Add(-time.Second)))
}
