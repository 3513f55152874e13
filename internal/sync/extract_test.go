package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackdeck/trackdeck/internal/config"
	"github.com/trackdeck/trackdeck/internal/github"
	"github.com/trackdeck/trackdeck/internal/types"
)

var extractNow = time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

func extractTarget() scanTarget {
	return scanTarget{source: config.ProjectSource{OwnerType: config.OwnerOrg, Owner: "acme"}, number: 7}
}

func issueItem(fields []github.FieldValue) github.Item {
	return github.Item{
		ID: "ITEM_1",
		Content: &github.ItemContent{
			Typename:       "Issue",
			ID:             "I_1",
			Title:          "Fix flaky sync",
			URL:            "https://github.com/acme/app/issues/42",
			RepoFullName:   "acme/app",
			AssigneeIDs:    []string{"U_1"},
			AssigneeLogins: []string{"alice"},
			Labels:         []string{"bug"},
			AuthorLogin:    "carol",
		},
		Fields: fields,
	}
}

func TestClassifyDateField(t *testing.T) {
	assert.Equal(t, "start", classifyDateField("Start date"))
	assert.Equal(t, "start", classifyDateField("Review date"))
	assert.Equal(t, "end", classifyDateField("End date"))
	assert.Equal(t, "end", classifyDateField("Due date"))
	assert.Equal(t, "end", classifyDateField("Target date"))
	assert.Equal(t, "focus", classifyDateField("Focus day"))
}

func TestItemRowsOnePerStartDate(t *testing.T) {
	item := issueItem([]github.FieldValue{
		{Kind: github.KindDate, FieldName: "Start date", FieldID: "F_1", Date: "2026-08-26"},
		{Kind: github.KindDate, FieldName: "Review date", FieldID: "F_2", Date: "2026-09-01"},
		{Kind: github.KindDate, FieldName: "End date", FieldID: "F_3", Date: "2026-09-15"},
		{Kind: github.KindDate, FieldName: "Focus date", FieldID: "F_4", Date: "2026-08-27"},
	})

	rows := itemRows(testConfig(7), extractTarget(), "PVT_1", "Sprint", item, false, extractNow)
	require.Len(t, rows, 2, "one row per start-classified date")

	assert.Equal(t, "Start date", rows[0].StartField)
	assert.Equal(t, "2026-08-26", rows[0].StartDate)
	assert.Equal(t, "Review date", rows[1].StartField)

	// End and focus dates ride along on every row.
	for _, row := range rows {
		assert.Equal(t, "2026-09-15", row.EndDate)
		assert.Equal(t, "F_3", row.EndFieldID)
		assert.Equal(t, "2026-08-27", row.FocusDate)
	}

	// Distinct tuple keys despite sharing the URL.
	assert.NotEqual(t, rows[0].Key(), rows[1].Key())
}

func TestItemRowsDatelessRowWhenNoStartMatch(t *testing.T) {
	item := issueItem([]github.FieldValue{
		{Kind: github.KindSingleSelect, FieldName: "Status", FieldID: "F_S", OptionID: "OPT_3", OptionName: "Done",
			Options: []types.Option{{ID: "OPT_1", Name: "Todo"}, {ID: "OPT_3", Name: "Done"}}},
	})

	rows := itemRows(testConfig(7), extractTarget(), "PVT_1", "Sprint", item, false, extractNow)
	require.Len(t, rows, 1)
	assert.Equal(t, "", rows[0].StartDate)
	assert.Equal(t, "Done", rows[0].Status)
	assert.True(t, rows[0].IsDone)
}

func TestItemRowsSkipsMalformedDate(t *testing.T) {
	item := issueItem([]github.FieldValue{
		{Kind: github.KindDate, FieldName: "Start date", FieldID: "F_1", Date: "not-a-date"},
	})

	rows := itemRows(testConfig(7), extractTarget(), "PVT_1", "Sprint", item, false, extractNow)
	require.Len(t, rows, 1, "bad date degrades to a dateless row, never a crash")
	assert.Equal(t, "", rows[0].StartDate)
}

func TestItemRowsNilForMissingContent(t *testing.T) {
	assert.Nil(t, itemRows(testConfig(7), extractTarget(), "PVT_1", "Sprint", github.Item{ID: "ITEM_X"}, true, extractNow))
}

func TestItemRowsInclusionRule(t *testing.T) {
	cfg := testConfig(7)

	// Assigned to someone else, authored by someone else: excluded.
	item := issueItem(nil)
	item.Content.AssigneeLogins = []string{"bob"}
	item.Content.AssigneeIDs = []string{"U_2"}
	assert.Nil(t, itemRows(cfg, extractTarget(), "PVT_1", "Sprint", item, false, extractNow))

	// include_unassigned keeps it.
	rows := itemRows(cfg, extractTarget(), "PVT_1", "Sprint", item, true, extractNow)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].AssignedToMe)

	// Authored by the user: kept and flagged.
	item.Content.AuthorLogin = "Alice"
	rows = itemRows(cfg, extractTarget(), "PVT_1", "Sprint", item, false, extractNow)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].CreatedByMe)
}

func TestItemRowsUnionsPeopleField(t *testing.T) {
	item := issueItem([]github.FieldValue{
		{Kind: github.KindPeople, FieldName: "Assignees", FieldID: "F_P",
			UserIDs: []string{"U_1", "U_3"}, UserLogins: []string{"alice", "dave"}},
	})

	rows := itemRows(testConfig(7), extractTarget(), "PVT_1", "Sprint", item, false, extractNow)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"alice", "dave"}, rows[0].AssigneeLogins, "content and field assignees union without duplicates")
	assert.Equal(t, []string{"U_1", "U_3"}, rows[0].AssigneeIDs)
	assert.Equal(t, "F_P", rows[0].AssigneeFieldID)
	assert.True(t, rows[0].AssignedToMe)
}

func TestItemRowsIteration(t *testing.T) {
	item := issueItem([]github.FieldValue{
		{Kind: github.KindIteration, FieldName: "Sprint", FieldID: "F_I",
			IterationID: "IT_1", IterationTitle: "Sprint 12", IterationStart: "2026-08-24", IterationDuration: 14,
			IterationOptions: []types.Option{{ID: "IT_1", Name: "Sprint 12"}, {ID: "IT_2", Name: "Sprint 13"}}},
		// A non-matching iteration field name is ignored.
		{Kind: github.KindIteration, FieldName: "Cycle", FieldID: "F_C", IterationID: "C_1"},
	})

	rows := itemRows(testConfig(7), extractTarget(), "PVT_1", "Sprint", item, false, extractNow)
	require.Len(t, rows, 1)
	assert.Equal(t, "Sprint 12", rows[0].IterationTitle)
	assert.Equal(t, "F_I", rows[0].IterationFieldID)
	assert.Equal(t, 14, rows[0].IterationDuration)
	assert.Len(t, rows[0].IterationOptions, 2)
}

func TestUnionStrings(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, unionStrings([]string{"a", "b"}, []string{"b", "c", ""}))
	assert.Nil(t, unionStrings(nil, nil))
}
