package geo

import (
	"math"
	"testing"
)

func TestHaversineKm(t *testing.T) {
	// Jakarta (-6.2, 106.816) to Bandung (-6.9175, 107.6191) ~ 115-120 km
	d := HaversineKm(-6.2, 106.816, -6.9175, 107.6191)
	if d < 100 || d > 140 {
		t.Fatalf("unexpected distance: %v", d)
	}
}

func TestDistanceKmSymmetricAndZero(t *testing.T) {
	pairs := [][2]Coordinate{
		{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 0.001}},
		{{Lat: -6.2, Lng: 106.816}, {Lat: -6.9175, Lng: 107.6191}},
		{{Lat: 89.9, Lng: -179.9}, {Lat: -89.9, Lng: 179.9}},
		{{Lat: 51.5074, Lng: -0.1278}, {Lat: 40.7128, Lng: -74.006}},
	}
	for _, p := range pairs {
		if DistanceKm(p[0], p[1]) != DistanceKm(p[1], p[0]) {
			t.Fatalf("distance not symmetric for %v", p)
		}
		if DistanceKm(p[0], p[0]) != 0 {
			t.Fatalf("expected zero distance for identical point %v", p[0])
		}
	}
}

func TestDistanceKmSmallStep(t *testing.T) {
	d := DistanceKm(Coordinate{Lat: 0, Lng: 0}, Coordinate{Lat: 0, Lng: 0.001})
	if math.Abs(d-0.1112) > 0.001 {
		t.Fatalf("unexpected distance: %v", d)
	}
}

func TestDistanceKmNaNPropagates(t *testing.T) {
	d := DistanceKm(Coordinate{Lat: math.NaN(), Lng: 0}, Coordinate{Lat: 1, Lng: 1})
	if !math.IsNaN(d) {
		t.Fatalf("expected NaN, got %v", d)
	}
}

func TestCoordinateValid(t *testing.T) {
	cases := []struct {
		c    Coordinate
		want bool
	}{
		{Coordinate{Lat: 0, Lng: 0}, true},
		{Coordinate{Lat: 90, Lng: 180}, true},
		{Coordinate{Lat: -90.1, Lng: 0}, false},
		{Coordinate{Lat: 0, Lng: 180.5}, false},
		{Coordinate{Lat: math.NaN(), Lng: 0}, false},
		{Coordinate{Lat: 0, Lng: math.Inf(1)}, false},
	}
	for _, tc := range cases {
		if tc.c.Valid() != tc.want {
			t.Fatalf("Valid(%v) = %v", tc.c, !tc.want)
		}
	}
}

func TestRound2(t *testing.T) {
	cases := map[float64]float64{
		0.111:  0.11,
		0.125:  0.13,
		10:     10,
		0.0049: 0,
	}
	for in, want := range cases {
		if got := Round2(in); math.Abs(got-want) > 1e-9 {
			t.Fatalf("Round2(%v) = %v, want %v", in, got, want)
		}
	}
}
