package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/filemetrics/internal/metrics"
	"github.com/loykin/filemetrics/internal/store"
	"github.com/loykin/filemetrics/internal/telemetry"
)

// Bridge receives the two pipeline lifecycle callbacks and turns a
// schedule/complete pair into one recorded task with its source and
// destination probes. Failures are logged and swallowed: recording must
// never abort the file-processing job itself.
type Bridge struct {
	store store.Store
	slots *SlotStore
	sink  telemetry.Sink
	log   *slog.Logger

	// stat hooks, replaceable in tests
	statSize   func(path string) (int64, error)
	fileExists func(path string) bool
}

func New(st store.Store, sink telemetry.Sink, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		store:      st,
		slots:      NewSlotStore(),
		sink:       sink,
		log:        log,
		statSize:   statSize,
		fileExists: fileExists,
	}
}

// Slots exposes the ephemeral per-task store, mainly for tests and for
// embedders that want to inspect pending hand-offs.
func (b *Bridge) Slots() *SlotStore { return b.slots }

// OnScheduled captures the source file size before the pipeline starts
// rewriting the file. It never touches the history store.
func (b *Bridge) OnScheduled(_ context.Context, ev ScheduledEvent) {
	if ev.TaskType == TaskTypeRemote {
		// Remote tasks are duplicates executed on another installation;
		// counting them here would double the source size.
		return
	}

	abspath := ev.SourceData.Abspath
	if abspath == "" {
		b.log.Error("scheduled event is missing the source file abspath", "task_id", ev.TaskID)
		metrics.IncDropped("missing_source")
		return
	}

	size, err := b.statSize(abspath)
	if err != nil {
		b.log.Error("failed to stat source file", "task_id", ev.TaskID, "path", abspath, "error", err)
		metrics.IncDropped("stat_failed")
		return
	}
	b.slots.Put(ev.TaskID, SlotSourceSize, size)
}

// OnCompleted records the finished task: source probe, destination probe and
// the completion flag, plus one telemetry emission. Errors are logged, never
// returned to the pipeline.
func (b *Bridge) OnCompleted(ctx context.Context, ev CompletedEvent) {
	if err := b.complete(ctx, ev); err != nil {
		b.log.Error("failed to record completed task", "task_id", ev.TaskID, "error", err)
	}
}

func (b *Bridge) complete(ctx context.Context, ev CompletedEvent) error {
	srcPath := ev.SourceData.Abspath
	if srcPath == "" {
		metrics.IncDropped("missing_field")
		return &ValidationError{Field: "source_data.abspath"}
	}
	if ev.StartTime == 0 {
		metrics.IncDropped("missing_field")
		return &ValidationError{Field: "start_time"}
	}
	if ev.FinishTime == 0 {
		metrics.IncDropped("missing_field")
		return &ValidationError{Field: "finish_time"}
	}
	startTime := epochToTime(ev.StartTime)
	finishTime := epochToTime(ev.FinishTime)

	sourceSize, ok := b.slots.Take(ev.TaskID, SlotSourceSize)
	if !ok {
		// The scheduled callback never ran or its value was lost. Keep
		// going; the destination size is still worth recording.
		b.log.Error("source_size is missing from the task slot store", "task_id", ev.TaskID)
	}

	var (
		destPath string
		destSize int64
		found    bool
	)
	for _, f := range ev.DestinationFiles {
		p, err := filepath.Abs(f)
		if err != nil {
			b.log.Info("skipping destination file with unresolvable path", "path", f, "error", err)
			continue
		}
		if !b.fileExists(p) {
			b.log.Info("skipping destination file as it does not exist", "path", p)
			continue
		}
		size, err := b.statSize(p)
		if err != nil {
			b.log.Info("skipping unreadable destination file", "path", p, "error", err)
			continue
		}
		// Last existing file wins when several are listed.
		destPath, destSize, found = p, size, true
	}
	if !found {
		metrics.IncDropped("no_destination")
		return errors.New("no destination file exists on disk")
	}

	sizeDelta := destSize - sourceSize
	duration := ev.FinishTime - ev.StartTime

	emission := telemetry.Emission{
		SearchKey:      fmt.Sprintf("%d | %d | %s", ev.TaskID, ev.LibraryID, srcPath),
		SourceAbspath:  srcPath,
		DestAbspath:    destPath,
		SourceSize:     sourceSize,
		DestSize:       destSize,
		SizeDifference: sizeDelta,
		StartTime:      startTime,
		FinishTime:     finishTime,
		Duration:       time.Duration(duration * float64(time.Second)),
	}
	if b.sink != nil {
		if err := b.sink.Send(ctx, emission); err != nil {
			b.log.Error("telemetry emission failed", "task_id", ev.TaskID, "error", err)
		}
	}
	metrics.ObserveSizeDelta(float64(sizeDelta))
	metrics.ObserveDuration(duration)

	taskID, err := b.store.SaveSource(ctx, srcPath, sourceSize, startTime)
	if err != nil {
		metrics.IncDropped("store_failed")
		return fmt.Errorf("save source entry: %w", err)
	}
	if _, err := b.store.CreateProbe(ctx, taskID, store.KindDestination, destPath, destSize); err != nil {
		metrics.IncDropped("store_failed")
		return fmt.Errorf("save destination entry: %w", err)
	}
	if err := b.store.CompleteTask(ctx, taskID, finishTime); err != nil {
		metrics.IncDropped("store_failed")
		return fmt.Errorf("complete task: %w", err)
	}
	metrics.IncRecorded()
	return nil
}

func statSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, &IOError{Path: path, Err: err}
	}
	return fi.Size(), nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func epochToTime(secs float64) time.Time {
	whole := int64(secs)
	frac := secs - float64(whole)
	return time.Unix(whole, int64(frac*float64(time.Second)))
}
