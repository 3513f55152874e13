package sync

import (
	"strings"
	"time"

	"github.com/trackdeck/trackdeck/internal/config"
	"github.com/trackdeck/trackdeck/internal/github"
	"github.com/trackdeck/trackdeck/internal/types"
)

// dateMatch is one date field accepted by the configured pattern.
type dateMatch struct {
	field   string
	fieldID string
	date    string
}

// extracted is the classified field state of one project item.
type extracted struct {
	starts []dateMatch
	end    dateMatch
	focus  dateMatch

	iterField    string
	iterFieldID  string
	iterOptionID string
	iterTitle    string
	iterStart    string
	iterDuration int
	iterOptions  []types.Option

	statusFieldID  string
	statusOptionID string
	status         string
	statusOptions  []types.Option

	priorityFieldID  string
	priorityOptionID string
	priority         string
	priorityOptions  []types.Option

	peopleFieldID string
	peopleIDs     []string
	peopleLogins  []string
}

// validISODate reports whether s parses as YYYY-MM-DD.
func validISODate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// classifyDateField buckets a date field by its name. "Focus" fields and
// end-like fields ("End date", "Due date", "Target date") are schedule
// attributes shared by every row of the item; any other name matching the
// configured pattern yields its own row.
func classifyDateField(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "focus"):
		return "focus"
	case strings.Contains(lower, "end"), strings.Contains(lower, "due"), strings.Contains(lower, "target"):
		return "end"
	default:
		return "start"
	}
}

// classifyFields walks an item's field values and buckets them.
func classifyFields(cfg *config.Config, fields []github.FieldValue) extracted {
	var ex extracted
	for _, fv := range fields {
		switch fv.Kind {
		case github.KindDate:
			if !validISODate(fv.Date) {
				continue
			}
			switch classifyDateField(fv.FieldName) {
			case "focus":
				ex.focus = dateMatch{field: fv.FieldName, fieldID: fv.FieldID, date: fv.Date}
			case "end":
				ex.end = dateMatch{field: fv.FieldName, fieldID: fv.FieldID, date: fv.Date}
			default:
				if cfg.DateFieldRe.MatchString(fv.FieldName) {
					ex.starts = append(ex.starts, dateMatch{field: fv.FieldName, fieldID: fv.FieldID, date: fv.Date})
				}
			}

		case github.KindSingleSelect:
			switch strings.ToLower(fv.FieldName) {
			case "status":
				ex.statusFieldID = fv.FieldID
				ex.statusOptionID = fv.OptionID
				ex.status = fv.OptionName
				ex.statusOptions = fv.Options
			case "priority":
				ex.priorityFieldID = fv.FieldID
				ex.priorityOptionID = fv.OptionID
				ex.priority = fv.OptionName
				ex.priorityOptions = fv.Options
			}

		case github.KindIteration:
			if cfg.IterationRe == nil || !cfg.IterationRe.MatchString(fv.FieldName) {
				continue
			}
			ex.iterField = fv.FieldName
			ex.iterFieldID = fv.FieldID
			ex.iterOptionID = fv.IterationID
			ex.iterTitle = fv.IterationTitle
			ex.iterStart = fv.IterationStart
			ex.iterDuration = fv.IterationDuration
			ex.iterOptions = fv.IterationOptions

		case github.KindPeople:
			ex.peopleFieldID = fv.FieldID
			ex.peopleIDs = append(ex.peopleIDs, fv.UserIDs...)
			ex.peopleLogins = append(ex.peopleLogins, fv.UserLogins...)
		}
	}
	return ex
}

// unionStrings merges two slices preserving first-occurrence order.
func unionStrings(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// itemRows materializes the rows for one item: one row per accepted start
// date, or a single dateless row when no start field matched. Returns nil
// when the item fails the inclusion rule or has no usable content.
func itemRows(cfg *config.Config, target scanTarget, projectID, projectTitle string, item github.Item, includeUnassigned bool, now time.Time) []types.TaskRow {
	if item.Content == nil || item.Content.Title == "" {
		return nil
	}
	ex := classifyFields(cfg, item.Fields)

	assigneeIDs := unionStrings(item.Content.AssigneeIDs, ex.peopleIDs)
	assigneeLogins := unionStrings(item.Content.AssigneeLogins, ex.peopleLogins)

	assignedToMe := false
	for _, login := range assigneeLogins {
		if strings.EqualFold(login, cfg.User) {
			assignedToMe = true
			break
		}
	}
	createdByMe := strings.EqualFold(item.Content.AuthorLogin, cfg.User)
	if !assignedToMe && !createdByMe && !includeUnassigned {
		return nil
	}

	base := types.TaskRow{
		OwnerType:     target.source.OwnerType,
		Owner:         target.source.Owner,
		ProjectNumber: target.number,
		ProjectID:     projectID,
		ProjectTitle:  projectTitle,
		ItemID:        item.ID,
		ContentID:     item.Content.ID,
		RepoFullName:  item.Content.RepoFullName,
		Title:         item.Content.Title,
		URL:           item.Content.URL,

		EndField:   ex.end.field,
		EndFieldID: ex.end.fieldID,
		EndDate:    ex.end.date,

		FocusField:   ex.focus.field,
		FocusFieldID: ex.focus.fieldID,
		FocusDate:    ex.focus.date,

		IterationField:    ex.iterField,
		IterationFieldID:  ex.iterFieldID,
		IterationOptionID: ex.iterOptionID,
		IterationTitle:    ex.iterTitle,
		IterationStart:    ex.iterStart,
		IterationDuration: ex.iterDuration,
		IterationOptions:  ex.iterOptions,

		StatusFieldID:  ex.statusFieldID,
		StatusOptionID: ex.statusOptionID,
		Status:         ex.status,
		StatusOptions:  ex.statusOptions,

		PriorityFieldID:  ex.priorityFieldID,
		PriorityOptionID: ex.priorityOptionID,
		Priority:         ex.priority,
		PriorityOptions:  ex.priorityOptions,

		AssigneeFieldID: ex.peopleFieldID,
		AssigneeIDs:     assigneeIDs,
		AssigneeLogins:  assigneeLogins,
		AssignedToMe:    assignedToMe,
		CreatedByMe:     createdByMe,

		Labels: item.Content.Labels,

		UpdatedAt:  now,
		LastSeenAt: now,
		IsDone:     types.IsDoneStatus(ex.status),
	}

	if len(ex.starts) == 0 {
		// No start field matched: a single dateless row keeps the item
		// visible.
		return []types.TaskRow{base}
	}

	rows := make([]types.TaskRow, 0, len(ex.starts))
	for _, m := range ex.starts {
		row := base
		row.StartField = m.field
		row.StartFieldID = m.fieldID
		row.StartDate = m.date
		rows = append(rows, row)
	}
	return rows
}

// placeholderRow keeps an empty target visible in the UI.
func placeholderRow(target scanTarget, projectID, projectTitle string, now time.Time) types.TaskRow {
	if projectTitle == "" {
		projectTitle = target.title
	}
	return types.TaskRow{
		OwnerType:     target.source.OwnerType,
		Owner:         target.source.Owner,
		ProjectNumber: target.number,
		ProjectID:     projectID,
		ProjectTitle:  projectTitle,
		Title:         "(no items)",
		UpdatedAt:     now,
		LastSeenAt:    now,
	}
}
