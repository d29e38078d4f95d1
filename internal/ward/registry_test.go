package ward

import (
	"errors"
	"testing"
)

func testAnchors() []Anchor {
	return []Anchor{
		{ID: "A1", Building: "WWT", Level: "1F", SpaceType: "workshop", X: 0, Y: 0},
		{ID: "A2", Building: "WWT", Level: "1F", SpaceType: "workshop", X: 100, Y: 0},
		{ID: "A3", Building: "WWT", Level: "2F", SpaceType: "office", X: 0, Y: 100},
		{ID: "C1", Building: "Cluster", Level: "East", SpaceType: "yard", X: 500, Y: 500, Ambiguous: true},
	}
}

func mustRegistry(t *testing.T) *AnchorRegistry {
	t.Helper()
	reg, err := NewAnchorRegistry(testAnchors())
	if err != nil {
		t.Fatalf("NewAnchorRegistry: %v", err)
	}
	return reg
}

func TestNewAnchorRegistryEmpty(t *testing.T) {
	if _, err := NewAnchorRegistry(nil); !errors.Is(err, ErrNoAnchors) {
		t.Errorf("empty load error = %v, want ErrNoAnchors", err)
	}
}

func TestLookup(t *testing.T) {
	reg := mustRegistry(t)

	a, ok := reg.Lookup("A3")
	if !ok {
		t.Fatal("Lookup(A3) not found")
	}
	if a.Building != "WWT" || a.Level != "2F" {
		t.Errorf("Lookup(A3) = %+v, want WWT 2F", a)
	}

	if _, ok := reg.Lookup("nope"); ok {
		t.Error("Lookup of unknown anchor reported ok")
	}
}

func TestAllFor(t *testing.T) {
	reg := mustRegistry(t)

	got := reg.AllFor("WWT", "1F")
	if len(got) != 2 {
		t.Fatalf("AllFor(WWT,1F) returned %d anchors, want 2", len(got))
	}
	if got[0].ID != "A1" || got[1].ID != "A2" {
		t.Errorf("AllFor(WWT,1F) order = %s,%s, want A1,A2", got[0].ID, got[1].ID)
	}
	if got := reg.AllFor("WWT", "9F"); got != nil {
		t.Errorf("AllFor of unknown level = %v, want nil", got)
	}
}

func TestDuplicateIDsKeepLast(t *testing.T) {
	anchors := []Anchor{
		{ID: "A1", Building: "Old", Level: "1F"},
		{ID: "A1", Building: "New", Level: "2F"},
	}
	reg, err := NewAnchorRegistry(anchors)
	if err != nil {
		t.Fatalf("NewAnchorRegistry: %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("Len = %d, want 1", reg.Len())
	}
	a, _ := reg.Lookup("A1")
	if a.Building != "New" {
		t.Errorf("duplicate ID resolved to %q, want New", a.Building)
	}
}

func TestLocations(t *testing.T) {
	reg := mustRegistry(t)
	locs := reg.Locations()
	if len(locs) != 3 {
		t.Fatalf("Locations returned %d entries, want 3", len(locs))
	}
	// Sorted by building then level: Cluster/East, WWT/1F, WWT/2F.
	if locs[0].Building != "Cluster" || !locs[0].Ambiguous {
		t.Errorf("first location = %+v, want ambiguous Cluster", locs[0])
	}
	if locs[1].Building != "WWT" || locs[1].Level != "1F" {
		t.Errorf("second location = %+v, want WWT 1F", locs[1])
	}
}
