package h3mapper

import (
	"testing"

	h3 "github.com/uber/h3-go/v4"
)

func TestOrigin_MatchesLibraryAndIsStable(t *testing.T) {
	m := New()

	got, err := m.Origin(28.61, 77.23, 7)
	if err != nil {
		t.Fatalf("Origin: %v", err)
	}
	want, err := h3.LatLngToCell(h3.LatLng{Lat: 28.61, Lng: 77.23}, 7)
	if err != nil {
		t.Fatalf("LatLngToCell: %v", err)
	}
	if got != want.String() {
		t.Fatalf("origin=%s want %s", got, want.String())
	}

	// nearby points share a coarse area
	near, _ := m.Origin(28.6101, 77.2301, 7)
	if near != got {
		t.Fatalf("expected same area for nearby point, got %s vs %s", near, got)
	}
}

func TestOrigin_RejectsBadInput(t *testing.T) {
	m := New()
	cases := []struct {
		name     string
		lat, lon float64
		res      int
	}{
		{"lat too big", 91, 0, 7},
		{"lon too small", 0, -181, 7},
		{"res negative", 10, 10, -1},
		{"res too fine", 10, 10, 16},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := m.Origin(tc.lat, tc.lon, tc.res); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestToParent_Hierarchy(t *testing.T) {
	m := New()

	cell, err := m.Origin(59.3293, 18.0686, 8)
	if err != nil {
		t.Fatalf("Origin: %v", err)
	}

	same, err := m.ToParent(cell, 8)
	if err != nil || same != cell {
		t.Fatalf("same-res parent: got %q err=%v", same, err)
	}

	parent, err := m.ToParent(cell, 7)
	if err != nil {
		t.Fatalf("ToParent: %v", err)
	}
	viaOrigin, _ := m.Origin(59.3293, 18.0686, 7)
	if parent != viaOrigin {
		t.Fatalf("parent=%s want %s", parent, viaOrigin)
	}

	if _, err := m.ToParent(cell, 9); err == nil {
		t.Fatalf("expected error for parentRes > current res")
	}
	if _, err := m.ToParent("not-a-cell", 5); err == nil {
		t.Fatalf("expected parse error")
	}
}
