// Package engine owns the local task collection and keeps it in step with the
// remote API. Toggle, Edit and Delete apply locally first, then call the API,
// then either adopt the server's copy or restore what was there before.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"taskflow/internal/apiclient"
	"taskflow/internal/models"
	"taskflow/internal/projector"
	"taskflow/pkg/logger"

	"golang.org/x/sync/singleflight"
)

// Remote is the slice of the API the engine needs. *apiclient.Client satisfies it.
type Remote interface {
	ListPage(ctx context.Context, q models.ListQuery) (models.Page, error)
	Create(ctx context.Context, d models.Draft) (models.Task, error)
	Update(ctx context.Context, id string, p models.Patch) (models.Task, error)
	Remove(ctx context.Context, id string) error
}

// Notice is the user-facing signal for a failed operation.
type Notice struct {
	Op      string
	ID      string
	Message string
	Err     error
}

// Operation names used in notices and journal outcomes.
const (
	OpLoad   = "load"
	OpCreate = "create"
	OpToggle = "toggle"
	OpEdit   = "edit"
	OpDelete = "delete"
)

// Outcome is what happened to one operation.
type Outcome struct {
	Op         string    `json:"op"`
	TaskID     string    `json:"taskId,omitempty"`
	OK         bool      `json:"ok"`
	RolledBack bool      `json:"rolledBack,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Journal receives an Outcome per finished operation.
type Journal interface {
	Record(ctx context.Context, o Outcome) error
}

// Options configures an Engine. All fields are optional.
type Options struct {
	// Query is sent with every Load.
	Query models.ListQuery
	// Notify receives one Notice per failure. It is called without locks held.
	Notify  func(Notice)
	Journal Journal
	// Now decides what "today" is. Due dates are local calendar dates, so
	// the instant is read in time.Local.
	Now func() time.Time
}

// Engine is safe for concurrent use.
type Engine struct {
	remote Remote
	opts   Options

	mu    sync.RWMutex
	tasks []models.Task
	page  models.Page

	locks *keyLock
	loads singleflight.Group
}

func New(remote Remote, opts Options) *Engine {
	if opts.Notify == nil {
		opts.Notify = func(Notice) {}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{remote: remote, opts: opts, tasks: []models.Task{}, locks: newKeyLock()}
}

// Load replaces the collection with the server's list. Concurrent calls share
// one request, which no single caller can cancel for the others. On failure
// the current collection is kept.
func (e *Engine) Load(ctx context.Context) error {
	ch := e.loads.DoChan("load", func() (any, error) {
		return e.remote.ListPage(context.WithoutCancel(ctx), e.opts.Query)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		e.fail(ctx, OpLoad, "", ctx.Err(), false)
		return ctx.Err()
	}
	if res.Err != nil {
		e.fail(ctx, OpLoad, "", res.Err, false)
		return res.Err
	}
	page := res.Val.(models.Page)
	listed := page.Tasks
	fresh := make([]models.Task, 0, len(listed))
	seen := make(map[string]struct{}, len(listed))
	for _, t := range listed {
		if _, dup := seen[t.ID]; dup {
			logger.Debug(ctx, "Dropping duplicate task in list", "task_id", t.ID)
			continue
		}
		seen[t.ID] = struct{}{}
		fresh = append(fresh, t)
	}
	page.Tasks = nil
	e.mu.Lock()
	e.tasks = fresh
	e.page = page
	e.mu.Unlock()
	logger.Debug(ctx, "Tasks loaded", "count", len(fresh))
	e.record(ctx, Outcome{Op: OpLoad, OK: true})
	return nil
}

// Create posts d and prepends the created task.
func (e *Engine) Create(ctx context.Context, d models.Draft) (models.Task, error) {
	t, err := e.remote.Create(ctx, d)
	if err != nil {
		e.fail(ctx, OpCreate, "", err, false)
		return models.Task{}, err
	}
	e.mu.Lock()
	if i := e.indexOf(t.ID); i >= 0 {
		e.tasks[i] = t
	} else {
		e.tasks = append([]models.Task{t}, e.tasks...)
	}
	e.mu.Unlock()
	e.record(ctx, Outcome{Op: OpCreate, TaskID: t.ID, OK: true})
	return t, nil
}

// Toggle flips the completion of id.
func (e *Engine) Toggle(ctx context.Context, id string) (models.Task, error) {
	return e.update(ctx, OpToggle, id, func(cur models.Task) models.Patch {
		done := !cur.Completed
		return models.Patch{Completed: &done}
	})
}

// Edit applies p to id.
func (e *Engine) Edit(ctx context.Context, id string, p models.Patch) (models.Task, error) {
	return e.update(ctx, OpEdit, id, func(models.Task) models.Patch { return p })
}

func (e *Engine) update(ctx context.Context, op, id string, build func(models.Task) models.Patch) (models.Task, error) {
	unlock, err := e.locks.Lock(ctx, id)
	if err != nil {
		return models.Task{}, err
	}
	defer unlock()

	e.mu.Lock()
	i := e.indexOf(id)
	if i < 0 {
		e.mu.Unlock()
		err := &apiclient.NotFoundError{ID: id, Message: "not in the local collection"}
		e.fail(ctx, op, id, err, false)
		return models.Task{}, err
	}
	before := e.tasks[i]
	patch := build(before)
	optimistic := before
	patch.ApplyTo(&optimistic)
	e.tasks[i] = optimistic
	e.mu.Unlock()

	got, err := e.remote.Update(ctx, id, patch)

	e.mu.Lock()
	j := e.indexOf(id)
	if err != nil {
		rolledBack := false
		switch {
		case j < 0:
		case apiclient.IsNotFound(err):
			e.tasks = append(e.tasks[:j], e.tasks[j+1:]...)
		default:
			e.tasks[j] = before
			rolledBack = true
		}
		e.mu.Unlock()
		e.fail(ctx, op, id, err, rolledBack)
		return models.Task{}, err
	}
	if j < 0 {
		e.mu.Unlock()
		logger.Debug(ctx, "Ignoring result for task no longer present", "op", op, "task_id", id)
		return got, nil
	}
	e.tasks[j] = got
	e.mu.Unlock()
	e.record(ctx, Outcome{Op: op, TaskID: id, OK: true})
	return got, nil
}

// Delete removes id at once and puts it back at its old position if the
// server refuses. A task the server no longer knows counts as deleted.
func (e *Engine) Delete(ctx context.Context, id string) error {
	unlock, err := e.locks.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	e.mu.Lock()
	idx := e.indexOf(id)
	var removed models.Task
	if idx >= 0 {
		removed = e.tasks[idx]
		e.tasks = append(e.tasks[:idx], e.tasks[idx+1:]...)
	}
	e.mu.Unlock()

	err = e.remote.Remove(ctx, id)
	if err == nil || apiclient.IsNotFound(err) {
		// A Load may have brought the task back while the call was in flight.
		e.mu.Lock()
		if i := e.indexOf(id); i >= 0 {
			e.tasks = append(e.tasks[:i], e.tasks[i+1:]...)
		}
		e.mu.Unlock()
		e.record(ctx, Outcome{Op: OpDelete, TaskID: id, OK: true})
		return nil
	}

	restored := false
	if idx >= 0 {
		e.mu.Lock()
		if e.indexOf(id) < 0 {
			at := min(idx, len(e.tasks))
			e.tasks = append(e.tasks, models.Task{})
			copy(e.tasks[at+1:], e.tasks[at:])
			e.tasks[at] = removed
			restored = true
		}
		e.mu.Unlock()
	}
	e.fail(ctx, OpDelete, id, err, restored)
	return err
}

// Tasks returns a copy of the collection.
func (e *Engine) Tasks() []models.Task {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]models.Task(nil), e.tasks...)
}

// PageInfo returns the pagination metadata of the last successful Load.
// Tasks is always nil.
func (e *Engine) PageInfo() models.Page {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.page
}

// Get returns the task with id.
func (e *Engine) Get(id string) (models.Task, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if i := e.indexOf(id); i >= 0 {
		return e.tasks[i], true
	}
	return models.Task{}, false
}

// Visible projects the collection for display. An empty priority shows all.
func (e *Engine) Visible(tab projector.Tab, priority models.Priority, search string) []models.Task {
	today := models.DateOf(e.opts.Now().Local())
	e.mu.RLock()
	defer e.mu.RUnlock()
	return projector.Project(e.tasks, tab, priority, search, today)
}

// indexOf requires e.mu.
func (e *Engine) indexOf(id string) int {
	for i := range e.tasks {
		if e.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) fail(ctx context.Context, op, id string, err error, rolledBack bool) {
	if errors.Is(err, context.Canceled) {
		logger.Info(ctx, "Operation canceled", "op", op, "task_id", id)
	} else {
		logger.Error(ctx, "Operation failed", "op", op, "task_id", id, "rolled_back", rolledBack, "error", err)
	}
	e.opts.Notify(Notice{Op: op, ID: id, Message: apiclient.UserMessage(err), Err: err})
	e.record(ctx, Outcome{Op: op, TaskID: id, RolledBack: rolledBack, Error: err.Error()})
}

func (e *Engine) record(ctx context.Context, o Outcome) {
	if e.opts.Journal == nil {
		return
	}
	o.At = e.opts.Now().UTC()
	if err := e.opts.Journal.Record(ctx, o); err != nil {
		logger.Warn(ctx, "Journal write failed", "op", o.Op, "error", err)
	}
}
