package store

import "testing"

func TestSortColumnRouting(t *testing.T) {
	cases := []struct {
		col    SortColumn
		entity Entity
	}{
		{SortBasename, EntityProbe},
		{SortStartTime, EntityTask},
		{SortFinishTime, EntityTask},
		{SortSuccess, EntityTask},
	}
	for _, c := range cases {
		entity, ok := c.col.Route()
		if !ok {
			t.Fatalf("column %q should be routable", c.col)
		}
		if entity != c.entity {
			t.Fatalf("column %q routed to %v, want %v", c.col, entity, c.entity)
		}
	}

	if _, ok := SortColumn("abspath").Route(); ok {
		t.Fatal("abspath must not be sortable")
	}
	if _, ok := SortColumn("").Route(); ok {
		t.Fatal("empty column must not be sortable")
	}
}

func TestFactoryCreatesMemoryStore(t *testing.T) {
	st, err := New(Config{Type: "memory"})
	if err != nil {
		t.Fatalf("failed to create memory store: %v", err)
	}
	if _, ok := st.(*MemoryStore); !ok {
		t.Fatalf("expected *MemoryStore, got %T", st)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestFactoryRejectsUnknownType(t *testing.T) {
	if _, err := New(Config{Type: "etcd"}); err == nil {
		t.Fatal("expected error for unsupported store type")
	}
}

func TestFactorySupportedTypes(t *testing.T) {
	types := SupportedTypes()
	want := map[string]bool{"sqlite": false, "postgres": false, "memory": false}
	for _, ty := range types {
		if _, ok := want[ty]; ok {
			want[ty] = true
		}
	}
	for ty, seen := range want {
		if !seen {
			t.Fatalf("store type %q not registered", ty)
		}
	}
}
