package domain

import "time"

// LateNightOffset shifts a sleep start back before its day is computed,
// so sleep that begins before 05:00 counts toward the previous day.
const LateNightOffset = 5 * time.Hour

// Granularity selects how sleep is grouped into day buckets.
type Granularity int

const (
	Week Granularity = iota
	Month
)

func (g Granularity) String() string {
	if g == Month {
		return "month"
	}
	return "week"
}

// buckets returns the number of slots for g. Week slots are weekdays with
// Monday at 0. Month slots are days of month 1..31; slot 0 collects sleep
// shifted into the last day of the previous month.
func (g Granularity) buckets() int {
	if g == Month {
		return 32
	}
	return 7
}

// Summary describes one closed sleep interval in local time.
type Summary struct {
	RecordID int64
	Day      time.Time // start shifted by the late-night offset
	Start    time.Time
	End      time.Time
	Duration time.Duration
	Emoji    string
}

// Hours is the whole-hours part of the duration.
func (s Summary) Hours() int { return int(s.Duration / time.Hour) }

// Minutes is the minutes remainder; seconds are dropped.
func (s Summary) Minutes() int { return int(s.Duration%time.Hour) / int(time.Minute) }

// Engine groups sleep intervals into day buckets for a timezone.
type Engine struct {
	Location    *time.Location
	Granularity Granularity
	Offset      time.Duration
}

// NewEngine returns an engine using LateNightOffset.
func NewEngine(loc *time.Location, g Granularity) Engine {
	if loc == nil {
		loc = time.UTC
	}
	return Engine{Location: loc, Granularity: g, Offset: LateNightOffset}
}

// ExplicitSummaries returns one summary per closed record, in input order.
func (e Engine) ExplicitSummaries(records []SleepRecord) []Summary {
	res := make([]Summary, 0, len(records))
	for _, r := range records {
		if r.Open() {
			continue
		}
		res = append(res, Summary{
			RecordID: r.ID,
			Day:      r.CreatedAt.Add(-e.Offset).In(e.Location),
			Start:    r.CreatedAt.In(e.Location),
			End:      r.WakeupAt.In(e.Location),
			Duration: r.Duration(),
			Emoji:    r.Emoji,
		})
	}
	return res
}

// BucketIndex returns the slot a sleep starting at start is attributed to.
func (e Engine) BucketIndex(start time.Time) int {
	shifted := start.Add(-e.Offset).In(e.Location)
	if e.Granularity == Month {
		if shifted.Month() != start.In(e.Location).Month() {
			return 0
		}
		return shifted.Day()
	}
	return (int(shifted.Weekday()) + 6) % 7
}

// BucketTotals sums closed records per bucket and returns the non-zero
// totals in slot order. The result is sparse: its length is the number of
// buckets that saw any sleep.
func (e Engine) BucketTotals(records []SleepRecord) []time.Duration {
	slots := make([]time.Duration, e.Granularity.buckets())
	for _, r := range records {
		if r.Open() {
			continue
		}
		slots[e.BucketIndex(r.CreatedAt)] += r.Duration()
	}
	res := make([]time.Duration, 0, len(slots))
	for _, d := range slots {
		if d > 0 {
			res = append(res, d)
		}
	}
	return res
}

// AveragePerDay averages over buckets that had sleep, not calendar days.
// It returns zero for no buckets.
func AveragePerDay(buckets []time.Duration) time.Duration {
	var sum time.Duration
	for _, d := range buckets {
		sum += d
	}
	n := len(buckets)
	if n < 1 {
		n = 1
	}
	return sum / time.Duration(n)
}

// Section is a sub-range of a report with the summaries that start in it.
type Section struct {
	Period
	Summaries []Summary
}

// Report is the computed statistics for one period.
type Report struct {
	Granularity Granularity
	Period      Period
	Summaries   []Summary
	Sections    []Section
	Buckets     []time.Duration
	Average     time.Duration
}

// Empty reports whether no sleep was recorded in the period.
func (r *Report) Empty() bool { return len(r.Summaries) == 0 }

// BuildReport computes summaries, totals and the average for records that
// belong to period. Summaries are split across sections by their start
// instant when sections are given.
func (e Engine) BuildReport(period Period, sections []Period, records []SleepRecord) *Report {
	rep := &Report{
		Granularity: e.Granularity,
		Period:      period,
		Summaries:   e.ExplicitSummaries(records),
	}
	rep.Buckets = e.BucketTotals(records)
	rep.Average = AveragePerDay(rep.Buckets)

	for _, p := range sections {
		sec := Section{Period: p}
		for _, s := range rep.Summaries {
			if p.Contains(s.Start) {
				sec.Summaries = append(sec.Summaries, s)
			}
		}
		rep.Sections = append(rep.Sections, sec)
	}
	return rep
}
