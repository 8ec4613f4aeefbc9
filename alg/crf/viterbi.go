package crf

import (
	"math"
)

// viterbiSearch finds the argmax label sequence for the factors currently in
// the workspace. Runs in the log domain: the unscaled delta products the
// max-product recurrence would build underflow float64 on long sequences.
// Returns the path over positions 0..T-1 and the path's log score.
//
// Ties break toward the lowest label id (strict > comparison, first max kept).
func (c *CRF) viterbiSearch() ([]int, float64) {
	size := c.stateSize
	last := c.ws.seqLen - 1
	c.ws.delta = growFloats(c.ws.delta, c.ws.seqLen*size)
	c.ws.psi = growInts(c.ws.psi, c.ws.seqLen*size)

	for i := 0; i < last; i++ {
		row := c.ws.delta[i*size : (i+1)*size]
		psiRow := c.ws.psi[i*size : (i+1)*size]
		for j := 1; j < size; j++ {
			best := 0.0 // BOS->j transition is 1
			bestK := 0
			if i > 0 {
				best = math.Inf(-1)
				prev := c.ws.delta[(i-1)*size : i*size]
				for k := 1; k < size; k++ {
					v := prev[k] + math.Log(c.ws.m2[k*size+j])
					if v > best {
						best = v
						bestK = k
					}
				}
			}
			row[j] = best + math.Log(c.ws.r[i*size+j])
			psiRow[j] = bestK
		}
	}

	// virtual end position: transition to the boundary state is 1
	best := math.Inf(-1)
	bestK := 0
	prev := c.ws.delta[(last-1)*size : last*size]
	for k := 1; k < size; k++ {
		if prev[k] > best {
			best = prev[k]
			bestK = k
		}
	}
	c.ws.delta[last*size] = best
	c.ws.psi[last*size] = bestK

	path := make([]int, last)
	prevY := 0
	for i := last; i >= 1; i-- {
		y := c.ws.psi[i*size+prevY]
		path[i-1] = y
		prevY = y
	}
	return path, best
}
