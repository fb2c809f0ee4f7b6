package bridge

import "sync"

// Slot names one of the enumerated per-task hand-off values. Only the source
// size is carried today; the enum keeps additions explicit.
type Slot string

const SlotSourceSize Slot = "source_size"

type slotKey struct {
	task int64
	slot Slot
}

// SlotStore carries scalar values between the scheduled and completed
// callbacks of one task. Keys are namespaced by task identity so concurrent
// tasks never collide. A value is evicted when taken, which keeps the map
// from growing with the task history.
type SlotStore struct {
	mu sync.Mutex
	m  map[slotKey]int64
}

func NewSlotStore() *SlotStore {
	return &SlotStore{m: make(map[slotKey]int64)}
}

// Put stores v for the given task and slot, replacing any previous value.
func (s *SlotStore) Put(taskID int64, slot Slot, v int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[slotKey{task: taskID, slot: slot}] = v
}

// Take returns the stored value and removes it. The second return reports
// whether a value was present.
func (s *SlotStore) Take(taskID int64, slot Slot) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := slotKey{task: taskID, slot: slot}
	v, ok := s.m[k]
	if ok {
		delete(s.m, k)
	}
	return v, ok
}

// Len reports the number of live slots.
func (s *SlotStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
