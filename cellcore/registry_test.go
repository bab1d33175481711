package cellcore

import "testing"

func TestRegistryFreeCellIDReuse(t *testing.T) {
	r := NewRegistry()
	r.Insert(&Cell{ID: RootCellID, Config: CellConfig{Name: "root"}})

	id1 := r.Reserve()
	if id1 != 1 {
		t.Fatalf("first free id = %d, want 1", id1)
	}
	r.Insert(&Cell{ID: id1, Config: CellConfig{Name: "a"}})

	id2 := r.Reserve()
	if id2 != 2 {
		t.Fatalf("second free id = %d, want 2", id2)
	}
	r.Release(id2)

	r.Remove(id1)

	id3 := r.Reserve()
	if id3 != 1 {
		t.Fatalf("expected id 1 to be reused after removal, got %d", id3)
	}
}

func TestRegistryLookupByName(t *testing.T) {
	r := NewRegistry()
	r.Insert(&Cell{ID: RootCellID, Config: CellConfig{Name: "root"}})
	r.Insert(&Cell{ID: 1, Config: CellConfig{Name: "guestA"}})

	c, ok := r.LookupByName("guestA")
	if !ok || c.ID != 1 {
		t.Fatalf("LookupByName(guestA) = %v, %v", c, ok)
	}

	if _, ok := r.LookupByName("missing"); ok {
		t.Fatal("expected lookup miss")
	}
}

func TestRegistryAllOrderedByID(t *testing.T) {
	r := NewRegistry()
	r.Insert(&Cell{ID: 2, Config: CellConfig{Name: "b"}})
	r.Insert(&Cell{ID: 0, Config: CellConfig{Name: "root"}})
	r.Insert(&Cell{ID: 1, Config: CellConfig{Name: "a"}})

	all := r.All()
	for i, c := range all {
		if c.ID != i {
			t.Fatalf("All()[%d].ID = %d, want %d", i, c.ID, i)
		}
	}
}

func TestRegistryCountExcludesReservedPlaceholders(t *testing.T) {
	r := NewRegistry()
	r.Insert(&Cell{ID: RootCellID, Config: CellConfig{Name: "root"}})
	id := r.Reserve()
	if r.Count() != 1 {
		t.Fatalf("Count() = %d, want 1 (reserved placeholder %d should not count)", r.Count(), id)
	}
}
