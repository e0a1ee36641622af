package geo

import (
	"math"
	"testing"
)

func TestHaversineMilesKnownPairs(t *testing.T) {
	cases := []struct {
		name     string
		a, b     Point
		want     float64
		tol      float64
	}{
		{"same point", Point{41.8781, -87.6298}, Point{41.8781, -87.6298}, 0, 1e-9},
		// Chicago -> Indianapolis is roughly 165 miles as the crow flies.
		{"chicago-indianapolis", Point{41.8781, -87.6298}, Point{39.7684, -86.1581}, 165, 5},
		// Los Angeles -> New York is roughly 2445 miles.
		{"la-nyc", Point{34.0522, -118.2437}, Point{40.7128, -74.0060}, 2445, 15},
	}
	for _, tc := range cases {
		got := Distance(tc.a, tc.b)
		if math.Abs(got-tc.want) > tc.tol {
			t.Fatalf("%s: got %.2f want %.2f±%.2f", tc.name, got, tc.want, tc.tol)
		}
	}
}

func TestHaversineSymmetric(t *testing.T) {
	a := Point{32.7767, -96.7970}
	b := Point{29.7604, -95.3698}
	if d1, d2 := Distance(a, b), Distance(b, a); math.Abs(d1-d2) > 1e-9 {
		t.Fatalf("asymmetric: %v vs %v", d1, d2)
	}
}

func TestPathMiles(t *testing.T) {
	a := Point{41.8781, -87.6298}
	b := Point{39.7684, -86.1581}
	got := PathMiles([]Point{a, b, a})
	if math.Abs(got-2*Distance(a, b)) > 1e-9 {
		t.Fatalf("path miles %v", got)
	}
	if PathMiles(nil) != 0 || PathMiles([]Point{a}) != 0 {
		t.Fatal("degenerate paths should be zero")
	}
}

func TestPointValid(t *testing.T) {
	if !(Point{45, 90}).Valid() {
		t.Fatal("expected valid")
	}
	if (Point{91, 0}).Valid() || (Point{0, -181}).Valid() || (Point{math.NaN(), 0}).Valid() {
		t.Fatal("expected invalid")
	}
}
