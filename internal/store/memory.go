package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process store with the same semantics as the SQL
// backends. It backs tests and throwaway embedding; nothing survives the
// process.
type MemoryStore struct {
	mu          sync.RWMutex
	tasks       map[int64]*Task
	probes      map[int64]*Probe
	nextTaskID  int64
	nextProbeID int64
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		tasks:       make(map[int64]*Task),
		probes:      make(map[int64]*Probe),
		nextTaskID:  1,
		nextProbeID: 1,
	}
}

func (s *MemoryStore) EnsureSchema(_ context.Context) error { return nil }

func (s *MemoryStore) CreateTask(_ context.Context, label string, startTime time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createTaskLocked(label, startTime), nil
}

func (s *MemoryStore) createTaskLocked(label string, startTime time.Time) int64 {
	id := s.nextTaskID
	s.nextTaskID++
	s.tasks[id] = &Task{ID: id, Label: label, StartTime: startTime}
	return id
}

func (s *MemoryStore) CreateProbe(_ context.Context, taskID int64, kind Kind, abspath string, size int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createProbeLocked(taskID, kind, abspath, size)
}

func (s *MemoryStore) createProbeLocked(taskID int64, kind Kind, abspath string, size int64) (int64, error) {
	if size < 0 {
		return 0, &StorageError{Op: "create probe", Err: fmt.Errorf("negative size %d", size)}
	}
	if _, ok := s.tasks[taskID]; !ok {
		return 0, &StorageError{Op: "create probe", Err: &NotFoundError{Kind: "task", ID: taskID}}
	}
	id := s.nextProbeID
	s.nextProbeID++
	s.probes[id] = &Probe{
		ID:       id,
		TaskID:   taskID,
		Kind:     kind,
		Abspath:  abspath,
		Basename: filepath.Base(abspath),
		Size:     size,
	}
	return id, nil
}

func (s *MemoryStore) SaveSource(_ context.Context, abspath string, size int64, startTime time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if size < 0 {
		return 0, &StorageError{Op: "save source", Err: fmt.Errorf("negative size %d", size)}
	}
	taskID := s.createTaskLocked(filepath.Base(abspath), startTime)
	if _, err := s.createProbeLocked(taskID, KindSource, abspath, size); err != nil {
		return 0, err
	}
	return taskID, nil
}

func (s *MemoryStore) CompleteTask(_ context.Context, taskID int64, finishTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		// get-or-create: first reference materializes the row
		t = &Task{ID: taskID, StartTime: finishTime}
		s.tasks[taskID] = t
		if taskID >= s.nextTaskID {
			s.nextTaskID = taskID + 1
		}
	}
	t.Success = true
	t.FinishTime = sql.NullTime{Time: finishTime, Valid: true}
	return nil
}

func (s *MemoryStore) TaskCount(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.tasks)), nil
}

func (s *MemoryStore) ListDestinations(_ context.Context, q ListQuery) ([]ListRow, int64, error) {
	if _, ok := q.Sort.Route(); !ok {
		return nil, 0, &StorageError{Op: "list destinations", Err: fmt.Errorf("unsortable column %q", q.Sort)}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(q.Search)
	var rows []ListRow
	for _, p := range s.probes {
		if p.Kind != KindDestination {
			continue
		}
		t, ok := s.tasks[p.TaskID]
		if !ok {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.Label), search) {
			continue
		}
		rows = append(rows, ListRow{
			ProbeID:    p.ID,
			Basename:   p.Basename,
			Abspath:    p.Abspath,
			Success:    t.Success,
			StartTime:  t.StartTime,
			FinishTime: t.FinishTime,
		})
	}

	sortListRows(rows, q.Sort, q.Desc)
	filtered := int64(len(rows))

	if q.Limit > 0 {
		lo := q.Offset
		if lo > filtered {
			lo = filtered
		}
		hi := lo + q.Limit
		if hi > filtered {
			hi = filtered
		}
		rows = rows[lo:hi]
	}
	return rows, filtered, nil
}

func (s *MemoryStore) ProbeDetail(_ context.Context, probeID int64) ([]Probe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	requested, ok := s.probes[probeID]
	if !ok {
		return nil, nil
	}

	var out []Probe
	for _, p := range s.probes {
		if (p.TaskID == requested.TaskID && p.Kind == KindSource) || p.ID == probeID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) SizeTotals(_ context.Context) (Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t Totals
	for _, p := range s.probes {
		task, ok := s.tasks[p.TaskID]
		if !ok || !task.Success {
			continue
		}
		switch p.Kind {
		case KindSource:
			t.Source = addTo(t.Source, p.Size)
		case KindDestination:
			t.Destination = addTo(t.Destination, p.Size)
		}
	}
	return t, nil
}

func (s *MemoryStore) Close() error { return nil }

func addTo(total *int64, v int64) *int64 {
	if total == nil {
		return &v
	}
	sum := *total + v
	return &sum
}

// sortListRows mirrors the SQL ordering, including null finish times sorting
// before any real value and probe ids breaking ties for determinism.
func sortListRows(rows []ListRow, col SortColumn, desc bool) {
	less := func(a, b ListRow) bool {
		switch col {
		case SortBasename:
			if a.Basename != b.Basename {
				return a.Basename < b.Basename
			}
		case SortStartTime:
			if !a.StartTime.Equal(b.StartTime) {
				return a.StartTime.Before(b.StartTime)
			}
		case SortFinishTime:
			av, bv := a.FinishTime, b.FinishTime
			if av.Valid != bv.Valid {
				return !av.Valid
			}
			if av.Valid && !av.Time.Equal(bv.Time) {
				return av.Time.Before(bv.Time)
			}
		case SortSuccess:
			if a.Success != b.Success {
				return !a.Success
			}
		}
		return a.ProbeID < b.ProbeID
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if desc {
			return less(rows[j], rows[i])
		}
		return less(rows[i], rows[j])
	})
}
