// Package edit coordinates optimistic task mutations: it stages the new
// value locally, schedules the remote write on a background worker, and on
// completion either commits the canonical value or rolls back to the prior
// one. The UI observes outcomes through a bounded event channel.
package edit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trackdeck/trackdeck/internal/debug"
	"github.com/trackdeck/trackdeck/internal/github"
	"github.com/trackdeck/trackdeck/internal/store"
	"github.com/trackdeck/trackdeck/internal/types"
)

// FieldClass partitions mutations: within one class, writes to the same URL
// are serialized by the pending set; across classes they are independent.
type FieldClass int

const (
	ClassStatus FieldClass = iota
	ClassPriority
	ClassLabels
	ClassAssignees
	ClassDates
	ClassIteration
	ClassComment
)

func (c FieldClass) String() string {
	switch c {
	case ClassStatus:
		return "status"
	case ClassPriority:
		return "priority"
	case ClassLabels:
		return "labels"
	case ClassAssignees:
		return "assignees"
	case ClassDates:
		return "date"
	case ClassIteration:
		return "iteration"
	case ClassComment:
		return "comment"
	}
	return "field"
}

// Event is delivered to the UI when coordinator state changes.
type Event interface{ isEvent() }

// RowChanged means the row for URL was rewritten and should be reloaded.
type RowChanged struct{ URL string }

// StatusLine is a human-readable outcome message.
type StatusLine struct {
	Message string
	IsError bool
}

// ProgressTick advertises sync progress through the same channel.
type ProgressTick struct {
	Done    int
	Total   int
	Message string
}

func (RowChanged) isEvent()   {}
func (StatusLine) isEvent()   {}
func (ProgressTick) isEvent() {}

const (
	eventBuffer  = 64
	writeTimeout = 60 * time.Second
)

// Coordinator owns the writer capability over the store.
type Coordinator struct {
	store  *store.Store
	client *github.Client
	user   string
	now    func() time.Time

	mu      sync.Mutex
	pending map[FieldClass]map[string]context.CancelFunc

	events chan Event
	wg     sync.WaitGroup
}

// New creates a coordinator bound to a store and remote client.
func New(st *store.Store, client *github.Client, user string) *Coordinator {
	return &Coordinator{
		store:   st,
		client:  client,
		user:    user,
		now:     func() time.Time { return time.Now().UTC() },
		pending: map[FieldClass]map[string]context.CancelFunc{},
		events:  make(chan Event, eventBuffer),
	}
}

// Events is the channel the UI drains for outcomes.
func (c *Coordinator) Events() <-chan Event { return c.events }

// Emit pushes an event without blocking; when the UI is behind, the oldest
// buffered event is dropped.
func (c *Coordinator) Emit(ev Event) {
	for {
		select {
		case c.events <- ev:
			return
		default:
		}
		select {
		case <-c.events:
			debug.Logf("edit: event buffer full, dropping oldest")
		default:
		}
	}
}

// Wait blocks until all in-flight background writes finish. Used on
// shutdown and in tests.
func (c *Coordinator) Wait() { c.wg.Wait() }

// Pending reports whether a write for URL+class is in flight.
func (c *Coordinator) Pending(class FieldClass, url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[class][url]
	return ok
}

// begin inserts URL into the class's pending set. A second edit to the same
// URL+class while one is in flight is refused.
func (c *Coordinator) begin(class FieldClass, url string) (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[class][url]; ok {
		return nil, fmt.Errorf("%s update already in flight", class)
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	if c.pending[class] == nil {
		c.pending[class] = map[string]context.CancelFunc{}
	}
	c.pending[class][url] = cancel
	return ctx, nil
}

func (c *Coordinator) finish(class FieldClass, url string) {
	c.mu.Lock()
	if cancel, ok := c.pending[class][url]; ok {
		cancel()
		delete(c.pending[class], url)
	}
	c.mu.Unlock()
}

// schedule runs the remote write on a worker, then commits or rolls back.
func (c *Coordinator) schedule(class FieldClass, url string, ctx context.Context,
	remote func(context.Context) error, commit func() error, rollback func() error, successMsg string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.finish(class, url)

		if err := remote(ctx); err != nil {
			if rbErr := rollback(); rbErr != nil {
				debug.Logf("edit: rollback failed for %s %s: %v", class, url, rbErr)
			}
			c.Emit(RowChanged{URL: url})
			c.Emit(StatusLine{Message: fmt.Sprintf("%s update failed: %v", class, err), IsError: true})
			return
		}
		if err := commit(); err != nil {
			debug.Logf("edit: local commit failed for %s %s: %v", class, url, err)
		}
		c.Emit(RowChanged{URL: url})
		c.Emit(StatusLine{Message: successMsg})
	}()
}

// SetStatus stages a status change and schedules the remote write. When the
// new status counts as done and a session is running for the URL, the timer
// stops on commit.
func (c *Coordinator) SetStatus(row types.TaskRow, opt types.Option) error {
	if row.StatusFieldID == "" {
		return fmt.Errorf("task has no status field")
	}
	ctx, err := c.begin(ClassStatus, row.URL)
	if err != nil {
		return err
	}
	prior, priorOption := row.Status, row.StatusOptionID
	if err := c.store.StageStatus(row.URL, opt.Name, opt.ID); err != nil {
		c.finish(ClassStatus, row.URL)
		return err
	}
	c.Emit(RowChanged{URL: row.URL})

	c.schedule(ClassStatus, row.URL, ctx,
		func(ctx context.Context) error {
			return c.client.SetProjectSingleSelect(ctx, row.ProjectID, row.ItemID, row.StatusFieldID, opt.ID)
		},
		func() error {
			if err := c.store.UpdateStatus(row.URL, opt.Name, opt.ID); err != nil {
				return err
			}
			if types.IsDoneStatus(opt.Name) {
				return c.stopTimerIfRunning(row.URL)
			}
			return nil
		},
		func() error { return c.store.ResetStatus(row.URL, prior, priorOption) },
		fmt.Sprintf("Status → %s", opt.Name))
	return nil
}

func (c *Coordinator) stopTimerIfRunning(url string) error {
	active, err := c.store.ActiveTaskURLs()
	if err != nil {
		return err
	}
	if !active[url] {
		return nil
	}
	if err := c.store.StopSession(url, c.now()); err != nil {
		return err
	}
	c.Emit(StatusLine{Message: "Timer stopped"})
	return nil
}

// SetPriority stages a priority change and schedules the remote write.
func (c *Coordinator) SetPriority(row types.TaskRow, opt types.Option) error {
	if row.PriorityFieldID == "" {
		return fmt.Errorf("task has no priority field")
	}
	ctx, err := c.begin(ClassPriority, row.URL)
	if err != nil {
		return err
	}
	prior, priorOption := row.Priority, row.PriorityOptionID
	if err := c.store.StagePriority(row.URL, opt.Name, opt.ID); err != nil {
		c.finish(ClassPriority, row.URL)
		return err
	}
	c.Emit(RowChanged{URL: row.URL})

	c.schedule(ClassPriority, row.URL, ctx,
		func(ctx context.Context) error {
			return c.client.SetProjectSingleSelect(ctx, row.ProjectID, row.ItemID, row.PriorityFieldID, opt.ID)
		},
		func() error { return c.store.UpdatePriority(row.URL, opt.Name, opt.ID) },
		func() error { return c.store.ResetPriority(row.URL, prior, priorOption) },
		fmt.Sprintf("Priority → %s", opt.Name))
	return nil
}

// dateFieldInfo resolves the name, id, and prior value of one schedule date
// on a row.
func dateFieldInfo(row types.TaskRow, field store.DateField) (name, id, prior string) {
	switch field {
	case store.DateEnd:
		return row.EndField, row.EndFieldID, row.EndDate
	case store.DateFocus:
		return row.FocusField, row.FocusFieldID, row.FocusDate
	default:
		return row.StartField, row.StartFieldID, row.StartDate
	}
}

// SetDate validates and stages a schedule-date change. isoDate must be
// empty (clear) or YYYY-MM-DD. When the row lacks the field id it is
// resolved by name first and persisted; without a name either, the edit is
// refused.
func (c *Coordinator) SetDate(row types.TaskRow, field store.DateField, isoDate string) error {
	if isoDate != "" {
		if _, err := time.Parse("2006-01-02", isoDate); err != nil {
			return fmt.Errorf("invalid date %q", isoDate)
		}
	}
	fieldName, fieldID, prior := dateFieldInfo(row, field)
	if fieldID == "" && fieldName == "" {
		return fmt.Errorf("no field id for %d", field)
	}

	ctx, err := c.begin(ClassDates, row.URL)
	if err != nil {
		return err
	}
	if fieldID == "" {
		// Lazy resolution by field name; refusal without a remote write
		// when the lookup fails.
		resolved, err := c.client.GetProjectFieldIDByName(ctx, row.OwnerType, row.Owner, row.ProjectNumber, fieldName)
		if err != nil {
			c.finish(ClassDates, row.URL)
			return fmt.Errorf("no field id for %q: %w", fieldName, err)
		}
		fieldID = resolved
		if err := c.store.SaveDateFieldID(row.URL, field, fieldName, fieldID); err != nil {
			debug.Logf("edit: failed to persist field id: %v", err)
		}
	}

	if err := c.store.UpdateDate(row.URL, field, isoDate); err != nil {
		c.finish(ClassDates, row.URL)
		return err
	}
	c.Emit(RowChanged{URL: row.URL})

	id := fieldID
	c.schedule(ClassDates, row.URL, ctx,
		func(ctx context.Context) error {
			return c.client.SetProjectDate(ctx, row.ProjectID, row.ItemID, id, isoDate)
		},
		func() error { return nil }, // optimistic value is already canonical
		func() error { return c.store.UpdateDate(row.URL, field, prior) },
		fmt.Sprintf("%s → %s", fieldName, displayDate(isoDate)))
	return nil
}

func displayDate(iso string) string {
	if iso == "" {
		return "cleared"
	}
	return iso
}

// SetIteration stages an iteration change and schedules the remote write.
func (c *Coordinator) SetIteration(row types.TaskRow, opt types.Option) error {
	if row.IterationFieldID == "" {
		return fmt.Errorf("task has no iteration field")
	}
	ctx, err := c.begin(ClassIteration, row.URL)
	if err != nil {
		return err
	}
	prior := row
	if err := c.store.UpdateIteration(row.URL, opt.ID, opt.Name, "", 0); err != nil {
		c.finish(ClassIteration, row.URL)
		return err
	}
	c.Emit(RowChanged{URL: row.URL})

	c.schedule(ClassIteration, row.URL, ctx,
		func(ctx context.Context) error {
			return c.client.SetProjectIteration(ctx, row.ProjectID, row.ItemID, row.IterationFieldID, opt.ID)
		},
		func() error { return nil },
		func() error {
			return c.store.UpdateIteration(row.URL, prior.IterationOptionID, prior.IterationTitle,
				prior.IterationStart, prior.IterationDuration)
		},
		fmt.Sprintf("Iteration → %s", opt.Name))
	return nil
}

// NormalizeLabels trims whitespace and drops duplicates, preserving
// first-occurrence order.
func NormalizeLabels(labels []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" || seen[strings.ToLower(l)] {
			continue
		}
		seen[strings.ToLower(l)] = true
		out = append(out, l)
	}
	return out
}

// SetLabels stages a label change and schedules the remote write. Labels
// carry no dirty shadow; rollback rewrites the prior list.
func (c *Coordinator) SetLabels(row types.TaskRow, labels []string) error {
	if row.RepoFullName == "" {
		return fmt.Errorf("task has no repository")
	}
	labels = NormalizeLabels(labels)

	ctx, err := c.begin(ClassLabels, row.URL)
	if err != nil {
		return err
	}
	prior := row.Labels
	if err := c.store.UpdateLabels(row.URL, labels); err != nil {
		c.finish(ClassLabels, row.URL)
		return err
	}
	c.Emit(RowChanged{URL: row.URL})

	c.schedule(ClassLabels, row.URL, ctx,
		func(ctx context.Context) error {
			return c.client.SetIssueLabels(ctx, row.RepoFullName, row.URL, labels)
		},
		func() error { return nil },
		func() error { return c.store.UpdateLabels(row.URL, prior) },
		fmt.Sprintf("Labels updated (%d)", len(labels)))
	return nil
}

// SetAssignees stages an assignee change and schedules the diffing remote
// write.
func (c *Coordinator) SetAssignees(row types.TaskRow, logins []string) error {
	if row.RepoFullName == "" {
		return fmt.Errorf("task has no repository")
	}
	logins = NormalizeLabels(logins) // same trim/dedupe discipline

	ctx, err := c.begin(ClassAssignees, row.URL)
	if err != nil {
		return err
	}
	priorIDs, priorLogins := row.AssigneeIDs, row.AssigneeLogins
	if err := c.store.UpdateAssignees(row.URL, nil, logins, c.user); err != nil {
		c.finish(ClassAssignees, row.URL)
		return err
	}
	c.Emit(RowChanged{URL: row.URL})

	c.schedule(ClassAssignees, row.URL, ctx,
		func(ctx context.Context) error {
			return c.client.SetIssueAssignees(ctx, row.RepoFullName, row.URL, priorLogins, logins)
		},
		func() error { return nil },
		func() error { return c.store.UpdateAssignees(row.URL, priorIDs, priorLogins, c.user) },
		fmt.Sprintf("Assignees updated (%d)", len(logins)))
	return nil
}

// AddComment posts a comment. There is no local mutation to stage or roll
// back; only the outcome is reported.
func (c *Coordinator) AddComment(row types.TaskRow, body string) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("comment is empty")
	}
	if row.RepoFullName == "" {
		return fmt.Errorf("task has no repository")
	}
	ctx, err := c.begin(ClassComment, row.URL)
	if err != nil {
		return err
	}
	c.schedule(ClassComment, row.URL, ctx,
		func(ctx context.Context) error {
			return c.client.AddIssueComment(ctx, row.RepoFullName, row.URL, body)
		},
		func() error { return nil },
		func() error { return nil },
		"Comment added")
	return nil
}

// CreateDraft adds a draft item to the row's project; the next sync
// materializes it as a full row.
func (c *Coordinator) CreateDraft(projectID, title, body string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("title is empty")
	}
	if projectID == "" {
		return fmt.Errorf("no project selected")
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if _, err := c.client.CreateProjectItem(ctx, projectID, title, body); err != nil {
			c.Emit(StatusLine{Message: fmt.Sprintf("Draft creation failed: %v", err), IsError: true})
			return
		}
		c.Emit(StatusLine{Message: fmt.Sprintf("Draft %q created", title)})
	}()
	return nil
}

// ChoiceSet is the editor metadata fetched per repository: assignable users
// and the label vocabulary.
type ChoiceSet struct {
	Labels    []github.RepoLabel
	Assignees []github.RepoUser
}

// FetchChoices loads label and assignee choices in parallel and delivers
// the result asynchronously. The returned cancel func abandons the fetch;
// entering a different editor state should call it.
func (c *Coordinator) FetchChoices(row types.TaskRow, deliver func(ChoiceSet, error)) (cancel context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		var choices ChoiceSet
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			labels, err := c.client.ListRepoLabels(gctx, row.RepoFullName)
			choices.Labels = labels
			return err
		})
		g.Go(func() error {
			users, err := c.client.ListRepoAssignees(gctx, row.RepoFullName)
			choices.Assignees = users
			return err
		})
		err := g.Wait()
		if ctx.Err() != nil {
			return // cancelled; the editor moved on
		}
		deliver(choices, err)
	}()
	return cancel
}
