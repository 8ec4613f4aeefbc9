// Package lbfgs implements a limited-memory BFGS driver with orthant-wise
// (OWL-QN) handling of L1 penalties.
//
// The driver is stepped once per objective evaluation: the caller computes
// the objective and gradient at the current point, calls Optimize, and the
// point is updated in place. Curvature pairs are formed from successive
// calls, so no internal re-evaluation of the objective is needed.
package lbfgs

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// DefaultHistory is the number of curvature pairs kept.
const DefaultHistory = 7

// Epsilon is the internal convergence criterion on |g|/max(1,|x|).
const Epsilon = 1e-5

type Optimizer struct {
	m   int
	dim int

	s   [][]float64
	y   [][]float64
	rho []float64
	k   int
	size int

	prevX []float64
	prevG []float64 // effective (pseudo-)gradient of the previous call
	pg    []float64
	dir   []float64

	iter int
}

func New() *Optimizer {
	return &Optimizer{m: DefaultHistory}
}

func (o *Optimizer) init(n int) {
	o.dim = n
	o.s = make([][]float64, o.m)
	o.y = make([][]float64, o.m)
	o.rho = make([]float64, o.m)
	o.prevX = make([]float64, n)
	o.prevG = make([]float64, n)
	o.pg = make([]float64, n)
	o.dir = make([]float64, n)
}

func finiteAll(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// pseudoGradient computes the OWL-QN pseudo-gradient of f(x) + |x|/sigma:
// away from zero the penalty is differentiable; at zero the one-sided
// derivative closest to zero is taken, or zero inside the subdifferential.
func pseudoGradient(dst, x, g []float64, invSigma float64) {
	for i := range x {
		switch {
		case x[i] > 0:
			dst[i] = g[i] + invSigma
		case x[i] < 0:
			dst[i] = g[i] - invSigma
		default:
			switch {
			case g[i]+invSigma < 0:
				dst[i] = g[i] + invSigma
			case g[i]-invSigma > 0:
				dst[i] = g[i] - invSigma
			default:
				dst[i] = 0
			}
		}
	}
}

// computeDirection runs the two-loop recursion over the stored pairs,
// returning the quasi-Newton descent direction for gradient pg in o.dir.
func (o *Optimizer) computeDirection(pg []float64) []float64 {
	q := o.dir
	copy(q, pg)

	if o.size == 0 {
		floats.Scale(-1.0, q)
		return q
	}

	alpha := make([]float64, o.size)
	for i := o.size - 1; i >= 0; i-- {
		idx := (o.k - o.size + i) % o.m
		alpha[i] = o.rho[idx] * floats.Dot(o.s[idx], q)
		floats.AddScaled(q, -alpha[i], o.y[idx])
	}

	latest := (o.k - 1) % o.m
	yy := floats.Dot(o.y[latest], o.y[latest])
	if yy > 0 {
		gamma := floats.Dot(o.s[latest], o.y[latest]) / yy
		floats.Scale(gamma, q)
	}

	for i := 0; i < o.size; i++ {
		idx := (o.k - o.size + i) % o.m
		beta := o.rho[idx] * floats.Dot(o.y[idx], q)
		floats.AddScaled(q, alpha[i]-beta, o.s[idx])
	}

	floats.Scale(-1.0, q)
	return q
}

func (o *Optimizer) push(s, y []float64) {
	sy := floats.Dot(s, y)
	if sy <= 1e-10 {
		return
	}
	idx := o.k % o.m
	if o.s[idx] == nil {
		o.s[idx] = make([]float64, o.dim)
		o.y[idx] = make([]float64, o.dim)
	}
	copy(o.s[idx], s)
	copy(o.y[idx], y)
	o.rho[idx] = 1.0 / sy
	o.k++
	if o.size < o.m {
		o.size++
	}
}

func (o *Optimizer) resetHistory() {
	o.k = 0
	o.size = 0
}

// Optimize advances x by one quasi-Newton step given the objective value f
// and gradient g at x. With l1 set, the penalty |x|/sigma is assumed to be
// in f but not in g; the driver supplies the orthant-wise treatment.
//
// Returns a negative value on failure, 0 once converged, and a positive
// value when x was updated and iteration should continue.
func (o *Optimizer) Optimize(x []float64, f float64, g []float64, l1 bool, sigma float64) int {
	n := len(x)
	if n == 0 || len(g) != n {
		return -1
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || !finiteAll(g) || !finiteAll(x) {
		return -1
	}
	if o.dim == 0 {
		o.init(n)
	} else if o.dim != n {
		return -1
	}

	owlqn := l1 && sigma != 0
	if owlqn {
		pseudoGradient(o.pg, x, g, 1.0/sigma)
	} else {
		copy(o.pg, g)
	}

	gnorm := floats.Norm(o.pg, 2)
	xnorm := floats.Norm(x, 2)
	if xnorm < 1.0 {
		xnorm = 1.0
	}
	if gnorm/xnorm < Epsilon {
		return 0
	}

	if o.iter > 0 {
		s := make([]float64, n)
		yv := make([]float64, n)
		floats.SubTo(s, x, o.prevX)
		floats.SubTo(yv, o.pg, o.prevG)
		o.push(s, yv)
	}

	dir := o.computeDirection(o.pg)
	if owlqn {
		// constrain the direction to the pseudo-gradient's orthant
		for i := range dir {
			if dir[i]*o.pg[i] > 0 {
				dir[i] = 0
			}
		}
	}

	descent := floats.Dot(dir, o.pg)
	if descent >= 0 {
		o.resetHistory()
		copy(dir, o.pg)
		floats.Scale(-1.0, dir)
		descent = -gnorm * gnorm
		if descent >= 0 {
			return -1
		}
	}

	step := 1.0
	if o.size == 0 {
		// first step (or restart): unit-length move
		step = 1.0 / floats.Norm(dir, 2)
	}

	copy(o.prevX, x)
	copy(o.prevG, o.pg)
	floats.AddScaled(x, step, dir)
	if owlqn {
		// project: components may not cross zero within one step
		for i := range x {
			if x[i]*o.prevX[i] < 0 {
				x[i] = 0
			}
		}
	}

	o.iter++
	return 1
}
