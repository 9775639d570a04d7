package game

import "testing"

func TestSweptCircleHit(t *testing.T) {
	cases := []struct {
		name                   string
		x0, z0, x1, z1         float64
		cx, cz, r              float64
		want                   bool
	}{
		{"segment through center", -10, 0, 10, 0, 0, 0, 5, true},
		{"segment grazes edge", -10, 5, 10, 5, 0, 0, 5, true},
		{"segment misses above", -10, 6, 10, 6, 0, 0, 5, false},
		{"segment stops short", -10, 0, -6, 0, 0, 0, 5, false},
		{"segment starts past circle", 6, 0, 10, 0, 0, 0, 5, false},
		{"endpoint inside", -10, 0, -3, 0, 0, 0, 5, true},
		{"fully inside", -1, 0, 1, 0, 0, 0, 5, true},
		{"zero-length inside", 2, 2, 2, 2, 0, 0, 5, true},
		{"zero-length outside", 9, 9, 9, 9, 0, 0, 5, false},
		{"fast bullet tunnel", -100, 0, 100, 0, 0, 0, 2, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := sweptCircleHit(tc.x0, tc.z0, tc.x1, tc.z1, tc.cx, tc.cz, tc.r)
			if got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}
