package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trackdeck/trackdeck/internal/types"
)

func ts(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func closed(url, project string, labels []string, start, end time.Time) types.WorkSession {
	return types.WorkSession{TaskURL: url, ProjectTitle: project, Labels: labels, StartedAt: start, EndedAt: &end}
}

func TestClipRange(t *testing.T) {
	boundary := ts(2026, 8, 20, 0, 0)

	// Entirely after the boundary: untouched.
	s, e, keep := ClipRange(ts(2026, 8, 21, 9, 0), ts(2026, 8, 21, 10, 0), boundary)
	assert.True(t, keep)
	assert.Equal(t, ts(2026, 8, 21, 9, 0), s)
	assert.Equal(t, ts(2026, 8, 21, 10, 0), e)

	// Straddling: start clipped to the boundary.
	s, _, keep = ClipRange(ts(2026, 8, 19, 23, 0), ts(2026, 8, 20, 1, 0), boundary)
	assert.True(t, keep)
	assert.Equal(t, boundary, s)

	// Entirely before: dropped.
	_, _, keep = ClipRange(ts(2026, 8, 19, 9, 0), ts(2026, 8, 19, 10, 0), boundary)
	assert.False(t, keep)

	// Ending exactly at the boundary: dropped (half-open interval).
	_, _, keep = ClipRange(ts(2026, 8, 19, 9, 0), boundary, boundary)
	assert.False(t, keep)
}

func TestPeriodKey(t *testing.T) {
	a := ts(2026, 8, 26, 9, 0)
	b := ts(2026, 8, 26, 23, 59)
	assert.Equal(t, PeriodKey(a, Day), PeriodKey(b, Day), "same day, same key")
	assert.Equal(t, "2026-08-26", PeriodKey(a, Day))
	assert.NotEqual(t, PeriodKey(a, Day), PeriodKey(ts(2026, 8, 27, 0, 0), Day))

	assert.Equal(t, "2026-08", PeriodKey(a, Month))

	// ISO week: 2026-01-01 is a Thursday in ISO week 1; Jan 4 2026 is a
	// Sunday, still week 1; Jan 5 starts week 2.
	assert.Equal(t, "2026-W01", PeriodKey(ts(2026, 1, 1, 12, 0), Week))
	assert.Equal(t, "2026-W01", PeriodKey(ts(2026, 1, 4, 12, 0), Week))
	assert.Equal(t, "2026-W02", PeriodKey(ts(2026, 1, 5, 0, 0), Week))

	// Year boundary: 2027-01-01 is a Friday belonging to ISO week 53 of 2026.
	assert.Equal(t, "2026-W53", PeriodKey(ts(2027, 1, 1, 12, 0), Week))
}

func TestNextBoundary(t *testing.T) {
	assert.Equal(t, ts(2026, 8, 27, 0, 0), NextBoundary(ts(2026, 8, 26, 9, 30), Day))
	assert.Equal(t, ts(2026, 8, 27, 0, 0), NextBoundary(ts(2026, 8, 26, 0, 0), Day), "strictly after")

	// 2026-08-26 is a Wednesday; the next ISO week starts Monday Aug 31.
	assert.Equal(t, ts(2026, 8, 31, 0, 0), NextBoundary(ts(2026, 8, 26, 9, 0), Week))
	// From a Monday the next boundary is the following Monday.
	assert.Equal(t, ts(2026, 9, 7, 0, 0), NextBoundary(ts(2026, 8, 31, 0, 0), Week))

	assert.Equal(t, ts(2026, 9, 1, 0, 0), NextBoundary(ts(2026, 8, 26, 9, 0), Month))
}

func TestSumRowsSeconds(t *testing.T) {
	now := ts(2026, 8, 26, 12, 0)
	sessions := []types.WorkSession{
		closed("u1", "P", nil, ts(2026, 8, 26, 9, 0), ts(2026, 8, 26, 10, 0)),
		{TaskURL: "u1", StartedAt: ts(2026, 8, 26, 11, 30)}, // open, 30 min so far
	}
	assert.Equal(t, int64(3600+1800), SumRowsSeconds(sessions, now))
}

func TestAggregatePeriodTotalsSplitsAtBoundary(t *testing.T) {
	now := ts(2026, 8, 27, 12, 0)
	// 23:00 to 01:00 across midnight: one hour on each side.
	sessions := []types.WorkSession{
		closed("u1", "P", nil, ts(2026, 8, 26, 23, 0), ts(2026, 8, 27, 1, 0)),
	}

	got := AggregatePeriodTotals(sessions, Day, 30, PeriodFilter{}, now)
	assert.Equal(t, int64(3600), got["2026-08-26"])
	assert.Equal(t, int64(3600), got["2026-08-27"])
	assert.Len(t, got, 2)
}

func TestAggregatePeriodTotalsOpenSessionAtBoundary(t *testing.T) {
	// Open session started before midnight, now shortly after: each side
	// lands in its own period key.
	now := ts(2026, 8, 27, 0, 30)
	sessions := []types.WorkSession{
		{TaskURL: "u1", ProjectTitle: "P", StartedAt: ts(2026, 8, 26, 23, 30)},
	}

	got := AggregatePeriodTotals(sessions, Day, 30, PeriodFilter{}, now)
	assert.Equal(t, int64(1800), got["2026-08-26"])
	assert.Equal(t, int64(1800), got["2026-08-27"])
}

func TestAggregatePeriodTotalsFilter(t *testing.T) {
	now := ts(2026, 8, 27, 12, 0)
	sessions := []types.WorkSession{
		closed("u1", "Alpha", nil, ts(2026, 8, 26, 9, 0), ts(2026, 8, 26, 10, 0)),
		closed("u2", "Beta", nil, ts(2026, 8, 26, 9, 0), ts(2026, 8, 26, 11, 0)),
	}

	got := AggregatePeriodTotals(sessions, Day, 30, PeriodFilter{ProjectTitle: "Beta"}, now)
	assert.Equal(t, map[string]int64{"2026-08-26": 7200}, got)

	got = AggregatePeriodTotals(sessions, Day, 30, PeriodFilter{TaskURL: "u1"}, now)
	assert.Equal(t, map[string]int64{"2026-08-26": 3600}, got)
}

func TestAggregateProjectAndTaskTotals(t *testing.T) {
	now := ts(2026, 8, 27, 12, 0)
	sessions := []types.WorkSession{
		closed("u1", "Alpha", nil, ts(2026, 8, 26, 9, 0), ts(2026, 8, 26, 10, 0)),
		closed("u1", "Alpha", nil, ts(2026, 8, 26, 14, 0), ts(2026, 8, 26, 15, 0)),
		closed("u2", "Beta", nil, ts(2026, 8, 26, 9, 0), ts(2026, 8, 26, 9, 30)),
		// Too old: ended before the cutoff.
		closed("u3", "Gamma", nil, ts(2026, 6, 1, 9, 0), ts(2026, 6, 1, 10, 0)),
	}

	projects := AggregateProjectTotals(sessions, 30, now)
	assert.Equal(t, map[string]int64{"Alpha": 7200, "Beta": 1800}, projects)

	tasks := AggregateTaskTotals(sessions, 30, now)
	assert.Equal(t, map[string]int64{"u1": 7200, "u2": 1800}, tasks)
}

func TestAggregateLabelTotals(t *testing.T) {
	now := ts(2026, 8, 27, 12, 0)
	sessions := []types.WorkSession{
		closed("u1", "Alpha", []string{"infra", "urgent"}, ts(2026, 8, 26, 9, 0), ts(2026, 8, 26, 10, 0)),
		closed("u2", "Beta", []string{"infra"}, ts(2026, 8, 26, 9, 0), ts(2026, 8, 26, 9, 30)),
	}

	// A session contributes its full duration to each label.
	got := AggregateLabelTotals(sessions, 30, now)
	assert.Equal(t, map[string]int64{"infra": 5400, "urgent": 3600}, got)
}
