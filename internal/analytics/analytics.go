// Package analytics derives work-session durations and aggregates them into
// day/week/month buckets and per-project, per-task, and per-label totals.
//
// All arithmetic is timezone-aware. Open sessions (nil end) are measured
// against the supplied now; callers pass time.Now().UTC().
package analytics

import (
	"fmt"
	"time"

	"github.com/trackdeck/trackdeck/internal/types"
)

// Granularity selects the period bucket size.
type Granularity int

const (
	Day Granularity = iota
	Week
	Month
)

// ClipRange returns the portion of [start, end) at or after boundary. keep
// is false when the interval ends before the boundary and should be
// dropped entirely.
func ClipRange(start, end, boundary time.Time) (time.Time, time.Time, bool) {
	if !end.After(boundary) {
		return start, end, false
	}
	if start.Before(boundary) {
		start = boundary
	}
	return start, end, true
}

// PeriodKey returns the bucket key containing t: day → YYYY-MM-DD, week →
// YYYY-Www (ISO week), month → YYYY-MM.
func PeriodKey(t time.Time, g Granularity) string {
	switch g {
	case Week:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case Month:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

// NextBoundary returns the first instant strictly after t that starts a new
// period, in t's location.
func NextBoundary(t time.Time, g Granularity) time.Time {
	loc := t.Location()
	switch g {
	case Week:
		// ISO weeks start Monday.
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		offset := (8 - int(day.Weekday())) % 7
		if offset == 0 {
			offset = 7
		}
		return day.AddDate(0, 0, offset)
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, 1, 0)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	}
}

// sessionInterval resolves a session to a concrete [start, end) pair,
// substituting now for an open end. Naive handling is upstream: the store
// always yields UTC instants.
func sessionInterval(ws types.WorkSession, now time.Time) (time.Time, time.Time) {
	start := ws.StartedAt
	end := now
	if ws.EndedAt != nil {
		end = *ws.EndedAt
	}
	return start, end
}

// SumRowsSeconds totals the duration of sessions in whole seconds. A nil
// ended_at counts as running until now.
func SumRowsSeconds(sessions []types.WorkSession, now time.Time) int64 {
	var total int64
	for _, ws := range sessions {
		start, end := sessionInterval(ws, now)
		if secs := int64(end.Sub(start).Seconds()); secs > 0 {
			total += secs
		}
	}
	return total
}

// PeriodFilter narrows period aggregation to one project and/or one task.
type PeriodFilter struct {
	ProjectTitle string
	TaskURL      string
}

func (f PeriodFilter) match(ws types.WorkSession) bool {
	if f.ProjectTitle != "" && ws.ProjectTitle != f.ProjectTitle {
		return false
	}
	if f.TaskURL != "" && ws.TaskURL != f.TaskURL {
		return false
	}
	return true
}

// AggregatePeriodTotals buckets session seconds by period key, splitting
// every session across the period boundaries it straddles. Sessions ending
// before the since cutoff are clipped out.
func AggregatePeriodTotals(sessions []types.WorkSession, g Granularity, sinceDays int, filter PeriodFilter, now time.Time) map[string]int64 {
	cutoff := now.Add(-time.Duration(sinceDays) * 24 * time.Hour)
	out := map[string]int64{}

	for _, ws := range sessions {
		if !filter.match(ws) {
			continue
		}
		start, end := sessionInterval(ws, now)
		start, end, keep := ClipRange(start, end, cutoff)
		if !keep {
			continue
		}
		for start.Before(end) {
			boundary := NextBoundary(start, g)
			segEnd := end
			if boundary.Before(end) {
				segEnd = boundary
			}
			out[PeriodKey(start, g)] += int64(segEnd.Sub(start).Seconds())
			start = segEnd
		}
	}
	return out
}

// AggregateProjectTotals sums seconds per project title since the cutoff.
func AggregateProjectTotals(sessions []types.WorkSession, sinceDays int, now time.Time) map[string]int64 {
	return aggregateBy(sessions, sinceDays, now, func(ws types.WorkSession) []string {
		return []string{ws.ProjectTitle}
	})
}

// AggregateTaskTotals sums seconds per task URL since the cutoff.
func AggregateTaskTotals(sessions []types.WorkSession, sinceDays int, now time.Time) map[string]int64 {
	return aggregateBy(sessions, sinceDays, now, func(ws types.WorkSession) []string {
		return []string{ws.TaskURL}
	})
}

// AggregateLabelTotals sums seconds per label since the cutoff. Labels are
// orthogonal tags, not partitions: a session contributes its full duration
// to each of its labels.
func AggregateLabelTotals(sessions []types.WorkSession, sinceDays int, now time.Time) map[string]int64 {
	return aggregateBy(sessions, sinceDays, now, func(ws types.WorkSession) []string {
		return ws.Labels
	})
}

func aggregateBy(sessions []types.WorkSession, sinceDays int, now time.Time, keys func(types.WorkSession) []string) map[string]int64 {
	cutoff := now.Add(-time.Duration(sinceDays) * 24 * time.Hour)
	out := map[string]int64{}
	for _, ws := range sessions {
		start, end := sessionInterval(ws, now)
		start, end, keep := ClipRange(start, end, cutoff)
		if !keep {
			continue
		}
		secs := int64(end.Sub(start).Seconds())
		if secs <= 0 {
			continue
		}
		for _, k := range keys(ws) {
			if k != "" {
				out[k] += secs
			}
		}
	}
	return out
}
