// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgdesc

// quadStep minimizes f(x) = ½xᵀHx + cᵀx exactly along d:
//
//	α = -gᵀd / dᵀHd
//	xₖ₊₁ = xₖ + α·d
//	gₖ₊₁ = gₖ + α·Hd
//	fₖ₊₁ = fₖ + α·gᵀd + ½α²·dᵀHd
//
// A direction of non-positive curvature leaves the quadratic unbounded below.
func (d *iterDriver) quadStep() Status {
	o, w, loc := d.optimizer, d.workspace, d.location
	s, k := &w.search, o.kern

	if status := d.hessian(w.d, w.hd); status != iterLoop {
		return status
	}

	dHd := k.dot(w.d, w.hd)
	switch {
	case !isFinite(dHd):
		return FunctionNaNOrInf
	case dHd <= zero:
		return QuadNoLowerBound
	}

	status := iterLoop
	alpha := -w.dphi0 / dHd
	if s.bounded(alpha) {
		alpha = s.maxStep
		status = BoundaryHit
	}

	k.axpyTo(w.xnew, loc.x, alpha, w.d)
	k.axpyTo(w.gnew, w.g, alpha, w.hd)
	s.alpha = alpha
	s.f = loc.f + alpha*(w.dphi0+half*alpha*dHd)
	s.df = k.dot(w.gnew, w.d)
	return status
}
