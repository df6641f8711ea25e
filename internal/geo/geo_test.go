package geo

import (
	"math"
	"testing"
)

func TestDistance_Identity(t *testing.T) {
	if d := Distance(44.4268, 26.1025, 44.4268, 26.1025); d != 0 {
		t.Fatalf("distance to self = %v, want 0", d)
	}
}

func TestDistance_Symmetric(t *testing.T) {
	a := Distance(44.4268, 26.1025, 51.5074, -0.1278)
	b := Distance(51.5074, -0.1278, 44.4268, 26.1025)
	if math.Abs(a-b) > 1e-6 {
		t.Fatalf("distance not symmetric: %v vs %v", a, b)
	}
}

func TestDistance_MonotoneAlongEquator(t *testing.T) {
	prev := 0.0
	for _, dlng := range []float64{0.5, 1, 2, 5, 10, 45, 90} {
		d := Distance(0, 0, 0, dlng)
		if d <= prev {
			t.Fatalf("distance not increasing at dlng=%v: %v <= %v", dlng, d, prev)
		}
		prev = d
	}
}

func TestDistance_KnownSeparation(t *testing.T) {
	// One degree of longitude at the equator on a 6372795 m sphere.
	want := 2 * math.Pi * 6372795 / 360
	got := Distance(0, 0, 0, 1)
	if math.Abs(got-want) > 1 {
		t.Fatalf("1 deg equator distance = %v, want ~%v", got, want)
	}
}

func TestBearing_RangeAndDirections(t *testing.T) {
	cases := []struct {
		lat1, lng1, lat2, lng2 float64
		want                   int
	}{
		{0, 0, 1, 0, 0},    // due north
		{0, 0, 0, 1, 90},   // due east
		{1, 0, 0, 0, 180},  // due south
		{0, 1, 0, 0, 270},  // due west
	}
	for _, c := range cases {
		got := Bearing(c.lat1, c.lng1, c.lat2, c.lng2)
		if got != c.want {
			t.Fatalf("bearing (%v,%v)->(%v,%v) = %d, want %d", c.lat1, c.lng1, c.lat2, c.lng2, got, c.want)
		}
		if got < 0 || got >= 360 {
			t.Fatalf("bearing %d outside [0,360)", got)
		}
	}
}

func TestCardinal(t *testing.T) {
	cases := map[int]string{
		0:   "N",
		11:  "N",
		12:  "NNE",
		45:  "NE",
		90:  "E",
		180: "S",
		270: "W",
		337: "NNW",
		350: "N",
		359: "N",
	}
	for bearing, want := range cases {
		if got := Cardinal(bearing); got != want {
			t.Fatalf("Cardinal(%d) = %q, want %q", bearing, got, want)
		}
	}
}

func TestLocator_KnownGrids(t *testing.T) {
	cases := []struct {
		lat, lng float64
		want     string
	}{
		{44.4268, 26.1025, "KN34bk"}, // Bucharest
		{51.5074, -0.1278, "IO91wm"}, // London
		{-33.8568, 151.2153, "QF56od"}, // Sydney
	}
	for _, c := range cases {
		if got := Locator(c.lat, c.lng); got != c.want {
			t.Fatalf("Locator(%v,%v) = %q, want %q", c.lat, c.lng, got, c.want)
		}
	}
}
