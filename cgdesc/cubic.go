// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgdesc

import "math"

// cubicStep returns the minimizer of the cubic Hermite interpolant
// through (a, fa, da) and (b, fb, db).
//
// The interpolant has stationary points where
//
//	v = da + db - 3(fb - fa)/(b - a)
//	w = ±√(v² - da·db)
//
// and the minimizer is chosen from the better conditioned of the two
// equivalent expressions. noStep is returned when the roots are complex
// or both denominators vanish.
func cubicStep(a, fa, da, b, fb, db float64) float64 {
	delta := b - a
	if delta == zero {
		return noStep
	}
	v := da + db - three*(fb-fa)/delta
	t := v*v - da*db
	if t < zero || math.IsNaN(t) {
		return noStep
	}
	w := math.Sqrt(t)
	if delta < zero {
		w = -w
	}
	d1 := da + v - w
	d2 := db + v + w
	if d1 == zero && d2 == zero {
		return noStep
	}
	if math.Abs(d1) >= math.Abs(d2) {
		return a + delta*da/d1
	}
	return b - delta*db/d2
}

// secantStep returns the root of the linear interpolant of the derivative
// through (a, da) and (b, db), anchored at the endpoint with the smaller slope.
func secantStep(a, da, b, db float64) float64 {
	switch {
	case da == db:
		return noStep
	case math.Abs(da) < math.Abs(db):
		return a - (a-b)*(da/(da-db))
	}
	return b - (a-b)*(db/(da-db))
}

// cubicOrSecant falls back to the secant step when the cubic estimate is unusable.
func cubicOrSecant(a, fa, da, b, fb, db float64) float64 {
	if c := cubicStep(a, fa, da, b, fb, db); c >= zero {
		return c
	}
	return secantStep(a, da, b, db)
}
