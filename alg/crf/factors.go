package crf

import (
	"math"

	"github.com/cequencer/TriCRF/nlp/types"

	"gonum.org/v1/gonum/floats"
)

// workspace holds the per-sequence scratch tensors. All 2-D quantities are
// flat float64 buffers with a stateSize stride; buffers grow to the longest
// sequence seen and are reused across sequences.
type workspace struct {
	seqLen int // sequence length T plus the virtual end position

	m2    []float64 // stateSize x stateSize transition potentials
	r     []float64 // seqLen x stateSize observation potentials
	alpha []float64
	beta  []float64
	scale  []float64 // per-position forward scaling factors
	scale2 []float64 // per-position backward scaling factors
	corr   []float64 // suffix products of scale2[a]/scale[a]

	delta []float64 // Viterbi scores, log domain
	psi   []int     // Viterbi backpointers
	q     []float64 // pseudo-likelihood local distribution
}

func growFloats(buf []float64, n int) []float64 {
	if cap(buf) < n {
		return make([]float64, n)
	}
	return buf[:n]
}

func growInts(buf []int, n int) []int {
	if cap(buf) < n {
		return make([]int, n)
	}
	return buf[:n]
}

func fill(buf []float64, v float64) {
	for i := range buf {
		buf[i] = v
	}
}

// calculateEdge computes M2[y1,y2] = exp(theta.f) over bound transitions.
// Sequence-independent; recomputed once per training iteration.
func (c *CRF) calculateEdge() {
	size := c.stateSize
	c.ws.m2 = growFloats(c.ws.m2, size*size)
	fill(c.ws.m2, 1.0)
	theta := c.Param.Weights()
	for _, sp := range c.Param.StateIndex {
		c.ws.m2[sp.Y1*size+sp.Y2] *= math.Exp(theta[sp.FID] * sp.FVal)
	}
}

// calculateFactors computes the observation potentials R for seq. R rows
// run over positions 0..T; the virtual end row T stays all ones.
func (c *CRF) calculateFactors(seq types.Sequence) {
	size := c.stateSize
	c.ws.seqLen = len(seq) + 1
	c.ws.r = growFloats(c.ws.r, c.ws.seqLen*size)
	fill(c.ws.r, 1.0)
	theta := c.Param.Weights()
	for i, ev := range seq {
		row := c.ws.r[i*size : (i+1)*size]
		for _, ob := range ev.Obs {
			for _, p := range c.Param.ParamIndex[ob.ID] {
				row[p.Y] *= math.Exp(theta[p.FID] * ob.Val)
			}
		}
	}
}

// forward fills alpha and scale. Real labels occupy ids 1..stateSize-1; the
// boundary id 0 carries mass only at the virtual end position. The inner
// loop walks only the Pred list: M2 is 1 off the bound transitions, so
// R*(1 + sum alpha*(M2-1)) equals the full R*sum(alpha*M2).
func (c *CRF) forward() {
	size := c.stateSize
	last := c.ws.seqLen - 1
	c.ws.alpha = growFloats(c.ws.alpha, c.ws.seqLen*size)
	fill(c.ws.alpha, 0.0)
	c.ws.scale = growFloats(c.ws.scale, c.ws.seqLen)
	fill(c.ws.scale, 1.0)

	row := c.ws.alpha[0:size]
	copy(row[1:], c.ws.r[1:size]) // BOS->y transition is 1
	row[0] = 0.0
	sum := floats.Sum(row)
	floats.Scale(1.0/sum, row)
	c.ws.scale[0] = sum

	for i := 1; i < last; i++ {
		prev := c.ws.alpha[(i-1)*size : i*size]
		row = c.ws.alpha[i*size : (i+1)*size]
		sum = 0.0
		for j := 1; j < size; j++ {
			acc := 1.0
			for _, k := range c.Param.Pred[j] {
				acc += prev[k] * (c.ws.m2[k*size+j] - 1.0)
			}
			row[j] = c.ws.r[i*size+j] * acc
			sum += row[j]
		}
		floats.Scale(1.0/sum, row)
		c.ws.scale[i] = sum
	}

	endMass := floats.Sum(c.ws.alpha[(last-1)*size : last*size])
	c.ws.alpha[last*size] = endMass
	c.ws.scale[last] = endMass
}

// backward fills beta and scale2, mirroring forward over the Succ lists.
func (c *CRF) backward() {
	size := c.stateSize
	last := c.ws.seqLen - 1
	c.ws.beta = growFloats(c.ws.beta, c.ws.seqLen*size)
	fill(c.ws.beta, 0.0)
	c.ws.scale2 = growFloats(c.ws.scale2, c.ws.seqLen)
	fill(c.ws.scale2, 1.0)

	c.ws.beta[last*size] = 1.0

	row := c.ws.beta[(last-1)*size : last*size]
	for k := 1; k < size; k++ {
		row[k] = 1.0
	}
	sum := floats.Sum(row)
	floats.Scale(1.0/sum, row)
	c.ws.scale2[last-1] = sum

	for i := last - 1; i >= 1; i-- {
		next := c.ws.beta[i*size : (i+1)*size]
		row = c.ws.beta[(i-1)*size : i*size]
		constant := 0.0
		for k := 1; k < size; k++ {
			constant += c.ws.r[i*size+k] * next[k]
		}
		sum = 0.0
		for j := 1; j < size; j++ {
			acc := constant
			for _, k := range c.Param.Succ[j] {
				acc += c.ws.r[i*size+k] * (c.ws.m2[j*size+k] - 1.0) * next[k]
			}
			row[j] = acc
			sum += acc
		}
		floats.Scale(1.0/sum, row)
		c.ws.scale2[i-1] = sum
	}
}

// partitionZ returns the stored, unnormalized partition value; the true Z is
// this times the product of all forward scales.
func (c *CRF) partitionZ() float64 {
	return c.ws.alpha[(c.ws.seqLen-1)*c.stateSize]
}

// computeCorr fills the suffix products corr[i] = prod_{a>=i} scale2[a]/scale[a].
// The two suffix products of the scales individually overflow on long
// sequences; their ratio stays O(1), so only the ratio is stored.
func (c *CRF) computeCorr() {
	n := c.ws.seqLen
	c.ws.corr = growFloats(c.ws.corr, n+1)
	c.ws.corr[n] = 1.0
	for i := n - 1; i >= 0; i-- {
		c.ws.corr[i] = c.ws.corr[i+1] * c.ws.scale2[i] / c.ws.scale[i]
	}
}

// scaleCorrObs is the correction factor applied to alpha[i]*beta[i]/Z when
// reading a node marginal at position i.
func (c *CRF) scaleCorrObs(i int) float64 {
	return c.ws.scale2[i] * c.ws.corr[i+1]
}

// scaleCorrTrans is the correction factor for the pairwise marginal at
// positions (i-1, i).
func (c *CRF) scaleCorrTrans(i int) float64 {
	return c.ws.corr[i]
}

// seqLogProb returns log P(y|x) for the observed labels of seq, valid after
// forward has run. The running product interleaves the per-position scale
// divisions so it stays in float64 range at any sequence length.
func (c *CRF) seqLogProb(seq types.Sequence) (float64, bool) {
	size := c.stateSize
	z := c.partitionZ()
	prob := 1.0
	tran := 1.0
	prevY := 0
	for i := 0; i < c.ws.seqLen; i++ {
		var y int
		if i < c.ws.seqLen-1 {
			y = seq[i].Label
			if i > 0 {
				tran = c.ws.m2[prevY*size+y]
			}
			prob *= c.ws.r[i*size+y] * tran
		} else {
			y = 0
		}
		prevY = y
		prob /= c.ws.scale[i]
	}
	prob /= z
	lp := math.Log(prob)
	if math.IsNaN(lp) || math.IsInf(lp, 0) {
		return lp, false
	}
	return lp, true
}
