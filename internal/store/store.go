package store

import (
	"context"
	"database/sql"
	"time"
)

// Kind distinguishes the two probe flavors attached to a task.
type Kind string

const (
	KindSource      Kind = "source"
	KindDestination Kind = "destination"
)

// Task is one recorded file-processing job. ID is assigned by the backend
// and is insertion ordered. Success stays false and FinishTime stays null
// until a completion write occurs.
type Task struct {
	ID         int64
	Label      string
	Success    bool
	StartTime  time.Time
	FinishTime sql.NullTime
}

// Probe is a single file-size observation belonging to a task. Probes are
// immutable once written. Size is persisted as a textual numeric so very
// large values survive the backend untouched.
type Probe struct {
	ID       int64
	TaskID   int64
	Kind     Kind
	Abspath  string
	Basename string
	Size     int64
}

// SortColumn enumerates the sortable list-view columns.
type SortColumn string

const (
	SortBasename   SortColumn = "basename"
	SortStartTime  SortColumn = "start_time"
	SortFinishTime SortColumn = "finish_time"
	SortSuccess    SortColumn = "task_success"
)

// Entity names the side of the task/probe join a sort column lives on.
type Entity int

const (
	EntityTask Entity = iota
	EntityProbe
)

// sortRouting is the explicit column -> entity table. Routing is part of the
// store contract: basename sorts on the probe row, everything else on the
// owning task. A column absent here is not sortable.
var sortRouting = map[SortColumn]Entity{
	SortBasename:   EntityProbe,
	SortStartTime:  EntityTask,
	SortFinishTime: EntityTask,
	SortSuccess:    EntityTask,
}

// Route returns the entity a sort column belongs to, or false when the
// column is not sortable.
func (c SortColumn) Route() (Entity, bool) {
	e, ok := sortRouting[c]
	return e, ok
}

// ListQuery describes one page of the destination list view.
// Limit <= 0 disables pagination and returns the full filtered set.
type ListQuery struct {
	Search string // case-insensitive substring match on the task label
	Sort   SortColumn
	Desc   bool
	Offset int64
	Limit  int64
}

// ListRow is one destination probe joined to its owning task.
type ListRow struct {
	ProbeID    int64
	Basename   string
	Abspath    string
	Success    bool
	StartTime  time.Time
	FinishTime sql.NullTime
}

// Totals carries the per-kind size sums over successful tasks. A nil field
// means no qualifying rows exist, which is distinct from a zero sum.
type Totals struct {
	Source      *int64
	Destination *int64
}

// Store persists tasks and probes and serves the fixed read queries used by
// the query engine. All writes are durable when the call returns.
// Implementations must keep the task/probe foreign-key invariant under
// concurrent writers and must never let a reader observe a half-written
// task+probe pair.
type Store interface {
	EnsureSchema(ctx context.Context) error

	// CreateTask inserts a task with success=false and no finish time.
	CreateTask(ctx context.Context, label string, startTime time.Time) (int64, error)
	// CreateProbe inserts an immutable probe row. The task reference must
	// already exist.
	CreateProbe(ctx context.Context, taskID int64, kind Kind, abspath string, size int64) (int64, error)
	// SaveSource creates a task and its source probe in a single
	// transaction so readers never see one without the other. The label is
	// the base name of abspath.
	SaveSource(ctx context.Context, abspath string, size int64, startTime time.Time) (int64, error)
	// CompleteTask marks a task successful and stamps its finish time.
	// A task referenced for the first time is materialized on the spot
	// (get-or-create semantics).
	CompleteTask(ctx context.Context, taskID int64, finishTime time.Time) error
	// TaskCount reports the total number of task rows, filtered or not.
	TaskCount(ctx context.Context) (int64, error)

	// ListDestinations returns one page of destination rows plus the
	// filtered row count ignoring pagination.
	ListDestinations(ctx context.Context, q ListQuery) ([]ListRow, int64, error)
	// ProbeDetail resolves the owning task of probeID and returns its
	// source probes plus the requested probe itself. An unknown id yields
	// an empty result, not an error.
	ProbeDetail(ctx context.Context, probeID int64) ([]Probe, error)
	// SizeTotals sums probe sizes per kind over successful tasks only.
	SizeTotals(ctx context.Context) (Totals, error)

	Close() error
}
