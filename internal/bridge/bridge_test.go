package bridge

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/loykin/filemetrics/internal/store"
	"github.com/loykin/filemetrics/internal/telemetry"
)

// fakeSink captures emissions for inspection.
type fakeSink struct {
	emissions []telemetry.Emission
}

func (f *fakeSink) Send(_ context.Context, e telemetry.Emission) error {
	f.emissions = append(f.emissions, e)
	return nil
}

func (f *fakeSink) Close() error { return nil }

// newTestBridge wires a bridge against a memory store with the filesystem
// stubbed out: files maps path -> size, anything absent does not exist.
func newTestBridge(t *testing.T, files map[string]int64) (*Bridge, *store.MemoryStore, *fakeSink) {
	t.Helper()
	st := store.NewMemory()
	sink := &fakeSink{}
	b := New(st, sink, slog.Default())
	b.statSize = func(path string) (int64, error) {
		size, ok := files[path]
		if !ok {
			return 0, &IOError{Path: path}
		}
		return size, nil
	}
	b.fileExists = func(path string) bool {
		_, ok := files[path]
		return ok
	}
	return b, st, sink
}

func TestScheduleCompleteRoundTrip(t *testing.T) {
	files := map[string]int64{
		"/library/movie.mkv": 1_000_000,
		"/library/movie.mp4": 800_000,
	}
	b, st, sink := newTestBridge(t, files)
	ctx := context.Background()

	b.OnScheduled(ctx, ScheduledEvent{
		TaskID:     7,
		TaskType:   "local",
		SourceData: SourceData{Abspath: "/library/movie.mkv", Basename: "movie.mkv"},
	})
	if b.Slots().Len() != 1 {
		t.Fatalf("slot count = %d, want 1", b.Slots().Len())
	}

	b.OnCompleted(ctx, CompletedEvent{
		TaskID:           7,
		LibraryID:        2,
		SourceData:       SourceData{Abspath: "/library/movie.mkv", Basename: "movie.mkv"},
		StartTime:        1714557600.25,
		FinishTime:       1714557720.75,
		DestinationFiles: []string{"/library/movie.mp4"},
	})

	// Slot consumed.
	if b.Slots().Len() != 0 {
		t.Fatalf("slot count after completion = %d, want 0", b.Slots().Len())
	}

	// One task with both probes, marked successful.
	n, err := st.TaskCount(ctx)
	if err != nil {
		t.Fatalf("TaskCount: %v", err)
	}
	if n != 1 {
		t.Fatalf("task count = %d, want 1", n)
	}
	rows, _, err := st.ListDestinations(ctx, store.ListQuery{Sort: store.SortFinishTime, Desc: true})
	if err != nil {
		t.Fatalf("ListDestinations: %v", err)
	}
	if len(rows) != 1 || !rows[0].Success {
		t.Fatalf("unexpected list rows: %+v", rows)
	}
	if rows[0].Abspath != "/library/movie.mp4" {
		t.Fatalf("destination abspath = %q", rows[0].Abspath)
	}

	totals, err := st.SizeTotals(ctx)
	if err != nil {
		t.Fatalf("SizeTotals: %v", err)
	}
	if totals.Source == nil || *totals.Source != 1_000_000 {
		t.Fatalf("source total = %v, want 1000000", totals.Source)
	}
	if totals.Destination == nil || *totals.Destination != 800_000 {
		t.Fatalf("destination total = %v, want 800000", totals.Destination)
	}

	// One emission with the computed delta.
	if len(sink.emissions) != 1 {
		t.Fatalf("emission count = %d, want 1", len(sink.emissions))
	}
	em := sink.emissions[0]
	if em.SizeDifference != -200_000 {
		t.Fatalf("size difference = %d, want -200000", em.SizeDifference)
	}
	if em.SourceSize != 1_000_000 || em.DestSize != 800_000 {
		t.Fatalf("unexpected sizes: %+v", em)
	}
	if em.Duration < 120*time.Second || em.Duration > 121*time.Second {
		t.Fatalf("duration = %v, want ~120.5s", em.Duration)
	}
	if em.SearchKey != "7 | 2 | /library/movie.mkv" {
		t.Fatalf("search key = %q", em.SearchKey)
	}
}

func TestScheduledRemoteTaskIgnored(t *testing.T) {
	b, _, _ := newTestBridge(t, map[string]int64{"/lib/a.mkv": 10})
	b.OnScheduled(context.Background(), ScheduledEvent{
		TaskID:     1,
		TaskType:   TaskTypeRemote,
		SourceData: SourceData{Abspath: "/lib/a.mkv"},
	})
	if b.Slots().Len() != 0 {
		t.Fatal("remote task must not populate the slot store")
	}
}

func TestScheduledStatFailureDropsEvent(t *testing.T) {
	b, _, _ := newTestBridge(t, nil)
	b.OnScheduled(context.Background(), ScheduledEvent{
		TaskID:     1,
		SourceData: SourceData{Abspath: "/gone/a.mkv"},
	})
	if b.Slots().Len() != 0 {
		t.Fatal("failed stat must not populate the slot store")
	}
}

func TestCompletedMissingFieldsAbort(t *testing.T) {
	files := map[string]int64{"/lib/a.mp4": 5}
	tests := []struct {
		name  string
		ev    CompletedEvent
		field string
	}{
		{"missing abspath", CompletedEvent{
			TaskID: 1, StartTime: 1, FinishTime: 2,
			DestinationFiles: []string{"/lib/a.mp4"},
		}, "source_data.abspath"},
		{"missing start time", CompletedEvent{
			TaskID: 1, SourceData: SourceData{Abspath: "/lib/a.mkv"},
			FinishTime: 2, DestinationFiles: []string{"/lib/a.mp4"},
		}, "start_time"},
		{"missing finish time", CompletedEvent{
			TaskID: 1, SourceData: SourceData{Abspath: "/lib/a.mkv"},
			StartTime: 1, DestinationFiles: []string{"/lib/a.mp4"},
		}, "finish_time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, st, sink := newTestBridge(t, files)
			err := b.complete(context.Background(), tt.ev)
			verr, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Fatalf("field = %q, want %q", verr.Field, tt.field)
			}
			if n, _ := st.TaskCount(context.Background()); n != 0 {
				t.Fatalf("aborted event must not write tasks, count = %d", n)
			}
			if len(sink.emissions) != 0 {
				t.Fatal("aborted event must not emit telemetry")
			}
		})
	}
}

func TestCompletedNoDestinationFileAborts(t *testing.T) {
	b, st, sink := newTestBridge(t, map[string]int64{"/lib/a.mkv": 100})
	b.Slots().Put(1, SlotSourceSize, 100)

	err := b.complete(context.Background(), CompletedEvent{
		TaskID:           1,
		SourceData:       SourceData{Abspath: "/lib/a.mkv"},
		StartTime:        1,
		FinishTime:       2,
		DestinationFiles: []string{"/lib/missing.mp4"},
	})
	if err == nil {
		t.Fatal("expected error when no destination file exists")
	}
	if n, _ := st.TaskCount(context.Background()); n != 0 {
		t.Fatalf("aborted event must not write tasks, count = %d", n)
	}
	if len(sink.emissions) != 0 {
		t.Fatal("aborted event must not emit telemetry")
	}
	// The slot was still consumed before the abort.
	if b.Slots().Len() != 0 {
		t.Fatal("slot must be consumed even when the event aborts")
	}
}

func TestCompletedEmptyDestinationListAborts(t *testing.T) {
	b, st, _ := newTestBridge(t, map[string]int64{"/lib/a.mkv": 100})
	err := b.complete(context.Background(), CompletedEvent{
		TaskID:     1,
		SourceData: SourceData{Abspath: "/lib/a.mkv"},
		StartTime:  1,
		FinishTime: 2,
	})
	if err == nil {
		t.Fatal("expected error for empty destination list")
	}
	if n, _ := st.TaskCount(context.Background()); n != 0 {
		t.Fatalf("task count = %d, want 0", n)
	}
}

func TestCompletedMissingSlotRecordsZeroSource(t *testing.T) {
	files := map[string]int64{"/lib/a.mp4": 900}
	b, st, sink := newTestBridge(t, files)

	// No OnScheduled ran; the source size falls back to zero.
	b.OnCompleted(context.Background(), CompletedEvent{
		TaskID:           3,
		SourceData:       SourceData{Abspath: "/lib/a.mkv"},
		StartTime:        1,
		FinishTime:       2,
		DestinationFiles: []string{"/lib/a.mp4"},
	})

	n, err := st.TaskCount(context.Background())
	if err != nil {
		t.Fatalf("TaskCount: %v", err)
	}
	if n != 1 {
		t.Fatalf("task count = %d, want 1", n)
	}
	if len(sink.emissions) != 1 {
		t.Fatalf("emission count = %d, want 1", len(sink.emissions))
	}
	if sink.emissions[0].SourceSize != 0 {
		t.Fatalf("source size = %d, want 0", sink.emissions[0].SourceSize)
	}
	if sink.emissions[0].SizeDifference != 900 {
		t.Fatalf("size difference = %d, want 900", sink.emissions[0].SizeDifference)
	}
}

func TestCompletedLastExistingDestinationWins(t *testing.T) {
	files := map[string]int64{
		"/lib/a.mkv":   1000,
		"/out/one.mp4": 700,
		"/out/two.mp4": 600,
	}
	b, st, sink := newTestBridge(t, files)
	b.Slots().Put(5, SlotSourceSize, 1000)

	b.OnCompleted(context.Background(), CompletedEvent{
		TaskID:     5,
		SourceData: SourceData{Abspath: "/lib/a.mkv"},
		StartTime:  1,
		FinishTime: 2,
		DestinationFiles: []string{
			"/out/one.mp4",
			"/out/gone.mp4", // skipped, does not exist
			"/out/two.mp4",
		},
	})

	rows, _, err := st.ListDestinations(context.Background(), store.ListQuery{Sort: store.SortFinishTime, Desc: true})
	if err != nil {
		t.Fatalf("ListDestinations: %v", err)
	}
	if len(rows) != 1 || rows[0].Abspath != "/out/two.mp4" {
		t.Fatalf("expected the last existing file to win, got %+v", rows)
	}
	if sink.emissions[0].DestSize != 600 {
		t.Fatalf("dest size = %d, want 600", sink.emissions[0].DestSize)
	}
}

func TestCompletedStoreTimesFromEvent(t *testing.T) {
	files := map[string]int64{"/lib/a.mkv": 10, "/lib/a.mp4": 8}
	b, st, _ := newTestBridge(t, files)
	b.Slots().Put(1, SlotSourceSize, 10)

	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	finish := start.Add(90 * time.Second)
	b.OnCompleted(context.Background(), CompletedEvent{
		TaskID:           1,
		SourceData:       SourceData{Abspath: "/lib/a.mkv"},
		StartTime:        float64(start.Unix()),
		FinishTime:       float64(finish.Unix()),
		DestinationFiles: []string{"/lib/a.mp4"},
	})

	rows, _, err := st.ListDestinations(context.Background(), store.ListQuery{Sort: store.SortFinishTime, Desc: true})
	if err != nil {
		t.Fatalf("ListDestinations: %v", err)
	}
	if !rows[0].StartTime.Equal(start) {
		t.Fatalf("start time = %v, want %v", rows[0].StartTime, start)
	}
	if !rows[0].FinishTime.Valid || !rows[0].FinishTime.Time.Equal(finish) {
		t.Fatalf("finish time = %v, want %v", rows[0].FinishTime, finish)
	}
}

func TestEpochToTimeFractionalSeconds(t *testing.T) {
	got := epochToTime(1714557600.5)
	want := time.Unix(1714557600, int64(500*time.Millisecond))
	if !got.Equal(want) {
		t.Fatalf("epochToTime = %v, want %v", got, want)
	}
}
