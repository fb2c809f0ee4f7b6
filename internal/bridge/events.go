package bridge

import "fmt"

// TaskTypeRemote marks a task scheduled as a re-execution on a different
// installation. Remote duplicates must never be counted here.
const TaskTypeRemote = "remote"

// SourceData describes the original file a task operates on.
type SourceData struct {
	Abspath  string `json:"abspath"`
	Basename string `json:"basename"`
}

// ScheduledEvent is the pipeline callback fired when a task is scheduled for
// execution on a worker.
type ScheduledEvent struct {
	TaskID     int64      `json:"task_id"`
	LibraryID  int64      `json:"library_id"`
	TaskType   string     `json:"task_type"` // "local" or "remote"
	SourceData SourceData `json:"source_data"`
}

// CompletedEvent is the pipeline callback fired when a task's output files
// have been finalized. Times are UNIX epoch seconds as reported by the
// pipeline.
type CompletedEvent struct {
	TaskID           int64      `json:"task_id"`
	LibraryID        int64      `json:"library_id"`
	TaskType         string     `json:"task_type"`
	SourceData       SourceData `json:"source_data"`
	StartTime        float64    `json:"start_time"`
	FinishTime       float64    `json:"finish_time"`
	DestinationFiles []string   `json:"destination_files"`
}

// ValidationError reports a required event field that was absent.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "missing required event field: " + e.Field
}

// IOError wraps a failed stat on a path that was expected to exist.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("stat %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
