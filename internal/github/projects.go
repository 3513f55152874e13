package github

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/trackdeck/trackdeck/internal/types"
)

// ProjectRef identifies one open project of an owner.
type ProjectRef struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	ProjectID string `json:"project_id"`
}

// FieldKind discriminates project field value kinds.
type FieldKind int

const (
	KindOther FieldKind = iota
	KindDate
	KindSingleSelect
	KindIteration
	KindPeople
)

// FieldValue is one field value attached to a project item, normalized
// from the wire representation.
type FieldValue struct {
	Kind      FieldKind
	FieldName string
	FieldID   string

	Date string // KindDate

	OptionID   string         // KindSingleSelect
	OptionName string         // KindSingleSelect
	Options    []types.Option // KindSingleSelect: full option list

	IterationID       string         // KindIteration
	IterationTitle    string         // KindIteration
	IterationStart    string         // KindIteration
	IterationDuration int            // KindIteration: days
	IterationOptions  []types.Option // KindIteration: full iteration list

	UserIDs    []string // KindPeople
	UserLogins []string // KindPeople
}

// ItemContent is the issue/PR/draft wrapped by a project item.
type ItemContent struct {
	Typename       string
	ID             string
	Title          string
	URL            string
	RepoFullName   string
	AssigneeIDs    []string
	AssigneeLogins []string
	Labels         []string
	AuthorLogin    string
}

// Item is one project item with its extracted field values.
type Item struct {
	ID      string
	Content *ItemContent // nil for malformed nodes
	Fields  []FieldValue
}

// ProjectPage is one page of a project item scan.
type ProjectPage struct {
	ProjectID    string
	ProjectTitle string
	Items        []Item
	HasNextPage  bool
	EndCursor    string
}

// ownerRoot maps an owner type to the GraphQL root field.
func ownerRoot(ownerType string) string {
	if ownerType == "users" {
		return "user"
	}
	return "organization"
}

// firstErrorMessage summarizes a GraphQL error list.
func firstErrorMessage(errs []GraphQLError) string {
	if len(errs) == 0 {
		return ""
	}
	return errs[0].Message
}

// DiscoverOpenProjects lists the owner's open projects, skipping nil and
// closed entries.
func (c *Client) DiscoverOpenProjects(ctx context.Context, ownerType, owner string) ([]ProjectRef, error) {
	query := fmt.Sprintf(`
query($owner: String!) {
  %s(login: $owner) {
    projectsV2(first: 50) {
      nodes { id number title closed }
    }
  }
}`, ownerRoot(ownerType))

	data, gqlErrs, err := c.GraphQLWithBackoff(ctx, query, map[string]any{"owner": owner}, nil)
	if err != nil {
		return nil, err
	}
	if IsRateLimited(gqlErrs) {
		return nil, ErrRateLimited
	}
	if len(gqlErrs) > 0 && data == nil {
		return nil, fmt.Errorf("project discovery failed: %s", firstErrorMessage(gqlErrs))
	}

	var parsed map[string]struct {
		ProjectsV2 struct {
			Nodes []*struct {
				ID     string `json:"id"`
				Number int    `json:"number"`
				Title  string `json:"title"`
				Closed bool   `json:"closed"`
			} `json:"nodes"`
		} `json:"projectsV2"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse discovery response: %w", err)
	}

	var out []ProjectRef
	for _, ownerNode := range parsed {
		for _, p := range ownerNode.ProjectsV2.Nodes {
			if p == nil || p.Closed {
				continue
			}
			out = append(out, ProjectRef{Number: p.Number, Title: p.Title, ProjectID: p.ID})
		}
	}
	return out, nil
}

// scanQuery pages through a project's items with their field values.
const scanQueryBody = `
query($owner: String!, $number: Int!, $after: String) {
  %s(login: $owner) {
    projectV2(number: $number) {
      id
      title
      items(first: %d, after: $after) {
        pageInfo { hasNextPage endCursor }
        nodes {
          id
          fieldValues(first: 50) {
            nodes {
              __typename
              ... on ProjectV2ItemFieldDateValue {
                date
                field { ... on ProjectV2FieldCommon { id name } }
              }
              ... on ProjectV2ItemFieldSingleSelectValue {
                optionId
                name
                field {
                  ... on ProjectV2SingleSelectField { id name options { id name } }
                }
              }
              ... on ProjectV2ItemFieldIterationValue {
                iterationId
                title
                startDate
                duration
                field {
                  ... on ProjectV2IterationField {
                    id name
                    configuration {
                      iterations { id title startDate duration }
                    }
                  }
                }
              }
              ... on ProjectV2ItemFieldUserValue {
                users(first: 20) { nodes { id login } }
                field { ... on ProjectV2FieldCommon { id name } }
              }
            }
          }
          content {
            __typename
            ... on Issue {
              id title url
              repository { nameWithOwner }
              assignees(first: 20) { nodes { id login } }
              labels(first: 20) { nodes { name } }
              author { login }
            }
            ... on PullRequest {
              id title url
              repository { nameWithOwner }
              assignees(first: 20) { nodes { id login } }
              labels(first: 20) { nodes { name } }
              author { login }
            }
            ... on DraftIssue {
              id title
              creator { login }
            }
          }
        }
      }
    }
  }
}`

type wireUserList struct {
	Nodes []struct {
		ID    string `json:"id"`
		Login string `json:"login"`
	} `json:"nodes"`
}

// wireFieldValue is the union of every field value shape we request; the
// __typename discriminates which members are populated.
type wireFieldValue struct {
	Typename    string       `json:"__typename"`
	Date        string       `json:"date"`
	OptionID    string       `json:"optionId"`
	Name        string       `json:"name"`
	Title       string       `json:"title"`
	IterationID string       `json:"iterationId"`
	StartDate   string       `json:"startDate"`
	Duration    int          `json:"duration"`
	Users       wireUserList `json:"users"`
	Field       struct {
		ID            string         `json:"id"`
		Name          string         `json:"name"`
		Options       []types.Option `json:"options"`
		Configuration struct {
			Iterations []struct {
				ID        string `json:"id"`
				Title     string `json:"title"`
				StartDate string `json:"startDate"`
				Duration  int    `json:"duration"`
			} `json:"iterations"`
		} `json:"configuration"`
	} `json:"field"`
}

type wireContent struct {
	Typename   string `json:"__typename"`
	ID         string `json:"id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	Repository struct {
		NameWithOwner string `json:"nameWithOwner"`
	} `json:"repository"`
	Assignees wireUserList `json:"assignees"`
	Labels    struct {
		Nodes []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	} `json:"labels"`
	Author struct {
		Login string `json:"login"`
	} `json:"author"`
	Creator struct {
		Login string `json:"login"`
	} `json:"creator"`
}

type wireScanPage struct {
	ProjectV2 *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Items struct {
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
			Nodes []struct {
				ID          string `json:"id"`
				FieldValues struct {
					Nodes []wireFieldValue `json:"nodes"`
				} `json:"fieldValues"`
				Content *wireContent `json:"content"`
			} `json:"nodes"`
		} `json:"items"`
	} `json:"projectV2"`
}

// ScanProjectPage fetches one page of a project's items. A RATE_LIMITED
// response maps to ErrRateLimited; a missing project maps to
// ErrProjectNotFound. onWait is forwarded to the backoff driver.
func (c *Client) ScanProjectPage(ctx context.Context, ownerType, owner string, number int, after string, onWait func(seconds int)) (*ProjectPage, error) {
	query := fmt.Sprintf(scanQueryBody, ownerRoot(ownerType), MaxPageSize)
	vars := map[string]any{"owner": owner, "number": number}
	if after != "" {
		vars["after"] = after
	}

	data, gqlErrs, err := c.GraphQLWithBackoff(ctx, query, vars, onWait)
	if err != nil {
		return nil, err
	}
	if IsRateLimited(gqlErrs) {
		return nil, ErrRateLimited
	}
	if notFoundOnProjectPath(gqlErrs) {
		return nil, ErrProjectNotFound
	}
	if len(gqlErrs) > 0 && data == nil {
		return nil, fmt.Errorf("project scan failed: %s", firstErrorMessage(gqlErrs))
	}

	var parsed map[string]wireScanPage
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse scan response: %w", err)
	}

	for _, ownerNode := range parsed {
		p := ownerNode.ProjectV2
		if p == nil {
			return nil, ErrProjectNotFound
		}
		page := &ProjectPage{
			ProjectID:    p.ID,
			ProjectTitle: p.Title,
			HasNextPage:  p.Items.PageInfo.HasNextPage,
			EndCursor:    p.Items.PageInfo.EndCursor,
		}
		for _, n := range p.Items.Nodes {
			item := Item{ID: n.ID, Content: normalizeContent(n.Content)}
			for _, fv := range n.FieldValues.Nodes {
				if v, ok := normalizeFieldValue(fv); ok {
					item.Fields = append(item.Fields, v)
				}
			}
			page.Items = append(page.Items, item)
		}
		return page, nil
	}
	return nil, ErrProjectNotFound
}

func normalizeContent(w *wireContent) *ItemContent {
	if w == nil || w.Typename == "" {
		return nil
	}
	content := &ItemContent{
		Typename:     w.Typename,
		ID:           w.ID,
		Title:        w.Title,
		URL:          w.URL,
		RepoFullName: w.Repository.NameWithOwner,
		AuthorLogin:  w.Author.Login,
	}
	if content.AuthorLogin == "" {
		content.AuthorLogin = w.Creator.Login
	}
	for _, u := range w.Assignees.Nodes {
		content.AssigneeIDs = append(content.AssigneeIDs, u.ID)
		content.AssigneeLogins = append(content.AssigneeLogins, u.Login)
	}
	for _, l := range w.Labels.Nodes {
		content.Labels = append(content.Labels, l.Name)
	}
	return content
}

func normalizeFieldValue(w wireFieldValue) (FieldValue, bool) {
	v := FieldValue{FieldName: w.Field.Name, FieldID: w.Field.ID}
	switch w.Typename {
	case "ProjectV2ItemFieldDateValue":
		v.Kind = KindDate
		v.Date = w.Date
	case "ProjectV2ItemFieldSingleSelectValue":
		v.Kind = KindSingleSelect
		v.OptionID = w.OptionID
		v.OptionName = w.Name
		v.Options = w.Field.Options
	case "ProjectV2ItemFieldIterationValue":
		v.Kind = KindIteration
		v.IterationID = w.IterationID
		v.IterationTitle = w.Title
		v.IterationStart = w.StartDate
		v.IterationDuration = w.Duration
		for _, it := range w.Field.Configuration.Iterations {
			v.IterationOptions = append(v.IterationOptions, types.Option{ID: it.ID, Name: it.Title})
		}
	case "ProjectV2ItemFieldUserValue":
		v.Kind = KindPeople
		for _, u := range w.Users.Nodes {
			v.UserIDs = append(v.UserIDs, u.ID)
			v.UserLogins = append(v.UserLogins, u.Login)
		}
	default:
		return v, false
	}
	return v, true
}

// mutate runs a mutation and folds GraphQL errors into a single error.
func (c *Client) mutate(ctx context.Context, query string, vars map[string]any) error {
	_, gqlErrs, err := c.GraphQLWithBackoff(ctx, query, vars, nil)
	if err != nil {
		return err
	}
	if IsRateLimited(gqlErrs) {
		return ErrRateLimited
	}
	if len(gqlErrs) > 0 {
		return fmt.Errorf("%s", firstErrorMessage(gqlErrs))
	}
	return nil
}

// SetProjectSingleSelect assigns a single-select option to an item field.
func (c *Client) SetProjectSingleSelect(ctx context.Context, projectID, itemID, fieldID, optionID string) error {
	return c.mutate(ctx, `
mutation($project: ID!, $item: ID!, $field: ID!, $option: String!) {
  updateProjectV2ItemFieldValue(input: {
    projectId: $project, itemId: $item, fieldId: $field,
    value: { singleSelectOptionId: $option }
  }) { projectV2Item { id } }
}`, map[string]any{"project": projectID, "item": itemID, "field": fieldID, "option": optionID})
}

// SetProjectDate writes a date field value; an empty date clears it.
func (c *Client) SetProjectDate(ctx context.Context, projectID, itemID, fieldID, isoDate string) error {
	if isoDate == "" {
		return c.mutate(ctx, `
mutation($project: ID!, $item: ID!, $field: ID!) {
  clearProjectV2ItemFieldValue(input: {
    projectId: $project, itemId: $item, fieldId: $field
  }) { projectV2Item { id } }
}`, map[string]any{"project": projectID, "item": itemID, "field": fieldID})
	}
	return c.mutate(ctx, `
mutation($project: ID!, $item: ID!, $field: ID!, $date: Date!) {
  updateProjectV2ItemFieldValue(input: {
    projectId: $project, itemId: $item, fieldId: $field,
    value: { date: $date }
  }) { projectV2Item { id } }
}`, map[string]any{"project": projectID, "item": itemID, "field": fieldID, "date": isoDate})
}

// SetProjectIteration assigns an iteration to an item field.
func (c *Client) SetProjectIteration(ctx context.Context, projectID, itemID, fieldID, iterationID string) error {
	return c.mutate(ctx, `
mutation($project: ID!, $item: ID!, $field: ID!, $iteration: String!) {
  updateProjectV2ItemFieldValue(input: {
    projectId: $project, itemId: $item, fieldId: $field,
    value: { iterationId: $iteration }
  }) { projectV2Item { id } }
}`, map[string]any{"project": projectID, "item": itemID, "field": fieldID, "iteration": iterationID})
}

// fieldListQuery fetches a project's field definitions.
const fieldListQueryBody = `
query($owner: String!, $number: Int!) {
  %s(login: $owner) {
    projectV2(number: $number) {
      fields(first: 100) {
        nodes {
          ... on ProjectV2FieldCommon { id name }
          ... on ProjectV2SingleSelectField { id name options { id name } }
        }
      }
    }
  }
}`

type wireFieldList struct {
	ProjectV2 *struct {
		Fields struct {
			Nodes []struct {
				ID      string         `json:"id"`
				Name    string         `json:"name"`
				Options []types.Option `json:"options"`
			} `json:"nodes"`
		} `json:"fields"`
	} `json:"projectV2"`
}

func (c *Client) projectFields(ctx context.Context, ownerType, owner string, number int) (*wireFieldList, error) {
	query := fmt.Sprintf(fieldListQueryBody, ownerRoot(ownerType))
	data, gqlErrs, err := c.GraphQLWithBackoff(ctx, query, map[string]any{"owner": owner, "number": number}, nil)
	if err != nil {
		return nil, err
	}
	if IsRateLimited(gqlErrs) {
		return nil, ErrRateLimited
	}
	if notFoundOnProjectPath(gqlErrs) {
		return nil, ErrProjectNotFound
	}

	var parsed map[string]wireFieldList
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse field list: %w", err)
	}
	for _, ownerNode := range parsed {
		if ownerNode.ProjectV2 == nil {
			return nil, ErrProjectNotFound
		}
		return &ownerNode, nil
	}
	return nil, ErrProjectNotFound
}

// GetProjectFieldIDByName resolves a field id by case-insensitive name.
func (c *Client) GetProjectFieldIDByName(ctx context.Context, ownerType, owner string, number int, name string) (string, error) {
	fields, err := c.projectFields(ctx, ownerType, owner, number)
	if err != nil {
		return "", err
	}
	for _, f := range fields.ProjectV2.Fields.Nodes {
		if strings.EqualFold(f.Name, name) {
			return f.ID, nil
		}
	}
	return "", fmt.Errorf("field %q not found", name)
}

// GetProjectFieldOptions returns the option list of a single-select field.
func (c *Client) GetProjectFieldOptions(ctx context.Context, ownerType, owner string, number int, name string) ([]types.Option, error) {
	fields, err := c.projectFields(ctx, ownerType, owner, number)
	if err != nil {
		return nil, err
	}
	for _, f := range fields.ProjectV2.Fields.Nodes {
		if strings.EqualFold(f.Name, name) {
			return f.Options, nil
		}
	}
	return nil, fmt.Errorf("field %q not found", name)
}

// CreateProjectItem adds a draft item to a project and returns its id.
func (c *Client) CreateProjectItem(ctx context.Context, projectID, title, body string) (string, error) {
	data, gqlErrs, err := c.GraphQLWithBackoff(ctx, `
mutation($project: ID!, $title: String!, $body: String!) {
  addProjectV2DraftIssue(input: { projectId: $project, title: $title, body: $body }) {
    projectItem { id }
  }
}`, map[string]any{"project": projectID, "title": title, "body": body}, nil)
	if err != nil {
		return "", err
	}
	if len(gqlErrs) > 0 {
		return "", fmt.Errorf("failed to create item: %s", firstErrorMessage(gqlErrs))
	}

	var parsed struct {
		AddProjectV2DraftIssue struct {
			ProjectItem struct {
				ID string `json:"id"`
			} `json:"projectItem"`
		} `json:"addProjectV2DraftIssue"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse create response: %w", err)
	}
	return parsed.AddProjectV2DraftIssue.ProjectItem.ID, nil
}
