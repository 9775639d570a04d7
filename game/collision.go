package game

import "math"

// sweptCircleHit reports whether the segment (x0,z0)->(x1,z1) crosses a
// circle at (cx,cz) with radius r. Sweeping the bullet's full travel
// for the tick keeps fast projectiles from tunneling through targets.
func sweptCircleHit(x0, z0, x1, z1, cx, cz, r float64) bool {
	dx := x1 - x0
	dz := z1 - z0
	fx := x0 - cx
	fz := z0 - cz

	a := dx*dx + dz*dz
	if a == 0 {
		// Degenerate segment: point-in-circle test.
		return fx*fx+fz*fz <= r*r
	}
	b := 2 * (fx*dx + fz*dz)
	c := fx*fx + fz*fz - r*r

	disc := b*b - 4*a*c
	if disc < 0 {
		return false
	}
	sq := math.Sqrt(disc)
	t1 := (-b - sq) / (2 * a)
	t2 := (-b + sq) / (2 * a)
	return (t1 >= 0 && t1 <= 1) || (t2 >= 0 && t2 <= 1) || (t1 < 0 && t2 > 1)
}
