package crf

import (
	"github.com/cequencer/TriCRF/nlp/types"
)

// accumulateGradient adds the model-expected feature counts for seq, weighted
// by its multiplicity, into the shared gradient. The gradient starts at minus
// the empirical counts (ParamTable.InitGradient), so after a full pass it
// holds E_model[f] - E_empirical[f], the gradient of the negative
// log-likelihood. Requires factors, forward, backward and computeCorr.
func (c *CRF) accumulateGradient(seq types.Sequence, count float64) {
	size := c.stateSize
	g := c.Param.Gradient()
	z := c.partitionZ()

	for i, ev := range seq {
		scaleFactor := c.scaleCorrObs(i)
		aRow := c.ws.alpha[i*size : (i+1)*size]
		bRow := c.ws.beta[i*size : (i+1)*size]
		for _, ob := range ev.Obs {
			for _, p := range c.Param.ParamIndex[ob.ID] {
				prob := aRow[p.Y] * bRow[p.Y] / z * scaleFactor
				g[p.FID] += prob * ob.Val * count
			}
		}

		if i > 0 {
			scaleFactor2 := c.scaleCorrTrans(i)
			aPrev := c.ws.alpha[(i-1)*size : i*size]
			for _, sp := range c.Param.StateIndex {
				m := c.ws.r[i*size+sp.Y2] * c.ws.m2[sp.Y1*size+sp.Y2]
				prob := aPrev[sp.Y1] * bRow[sp.Y2] * m / z * scaleFactor2
				g[sp.FID] += prob * sp.FVal * count
			}
		}
	}
}
