package crf

import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/cequencer/TriCRF/alg/lbfgs"
	"github.com/cequencer/TriCRF/eval"

	"github.com/pkg/errors"
)

// TrainPL fits the weights by maximum pseudo-likelihood: each position is
// treated independently conditioned on the previous *true* label. Much
// cheaper than forward-backward; used as a warm start before TrainLBFGS.
func (c *CRF) TrainPL(opts TrainOptions) error {
	if c.TrainSet == nil || c.TrainSet.Len() == 0 {
		return errors.Wrap(ErrFormat, "no training data loaded")
	}
	opt := lbfgs.New()
	theta := c.Param.Weights()
	g := c.Param.Gradient()
	size := c.stateSize

	ev := eval.NewTokenEval()
	start := time.Now()

	log.Println("[Parameter estimation]")
	log.Printf("  Method = \t\tPL")
	log.Printf("  Regularization = \t%s", opts.Reg)
	log.Printf("  Penalty value = \t%.2f", opts.Sigma)
	reportHeader()

	oldObj := math.MaxFloat64
	converge := 0
	prevPrefix := log.Prefix()

	for niter := 0; niter < opts.MaxIter; niter++ {
		log.SetPrefix(fmt.Sprintf("IT #%v %s", niter, prevPrefix))
		iterStart := time.Now()
		c.Param.InitGradient()
		ev.Initialize()
		c.ws.q = growFloats(c.ws.q, size)
		q := c.ws.q

		for si, seq := range c.TrainSet.Seqs {
			count := c.TrainSet.Counts[si]
			prevOutcome := 0 // boundary before the first position
			reference := make([]int, 0, len(seq))
			hypothesis := make([]int, 0, len(seq))

			for _, e := range seq {
				fill(q, 0.0)
				for _, ob := range e.Obs {
					for _, p := range c.Param.ParamIndex[ob.ID] {
						q[p.Y] += theta[p.FID] * ob.Val
					}
				}
				for _, sp := range c.Param.StateIndex {
					if sp.Y1 == prevOutcome {
						q[sp.Y2] += theta[sp.FID] * sp.FVal
					}
				}

				sum := 0.0
				max := 0.0
				maxOutcome := 0
				for j := 1; j < size; j++ {
					q[j] = math.Exp(q[j])
					sum += q[j]
					if q[j] > max {
						max = q[j]
						maxOutcome = j
					}
				}
				for j := 1; j < size; j++ {
					q[j] /= sum
				}

				reference = append(reference, e.Label)
				hypothesis = append(hypothesis, maxOutcome)

				for _, ob := range e.Obs {
					for _, p := range c.Param.ParamIndex[ob.ID] {
						g[p.FID] += q[p.Y] * ob.Val * count
					}
				}
				for _, sp := range c.Param.StateIndex {
					if sp.Y1 == prevOutcome {
						g[sp.FID] += q[sp.Y2] * sp.FVal * count
					}
				}

				lq := math.Log(q[e.Label])
				if math.IsNaN(lq) || math.IsInf(lq, 0) {
					c.NumericWarnings++
					log.Println("non-finite node likelihood at instance", si)
				}
				for rep := 0; rep < int(count); rep++ {
					ev.AddLoglik(lq)
				}

				prevOutcome = e.Label
			}

			refs := c.labelStrings(reference)
			hyps := c.labelStrings(hypothesis)
			for rep := 0; rep < int(count); rep++ {
				ev.Append(refs, hyps)
			}
		}

		c.regularize(ev, opts)

		diff := 1.0
		if niter > 0 {
			diff = math.Abs(oldObj-ev.ObjFunc()) / oldObj
		}
		if diff < opts.Eta {
			converge++
		} else {
			converge = 0
		}
		oldObj = ev.ObjFunc()
		if converge == 3 {
			break
		}

		ret := opt.Optimize(theta, ev.ObjFunc(), g, opts.Reg == RegL1, opts.Sigma)
		if ret < 0 {
			log.SetPrefix(prevPrefix)
			return errors.Wrapf(ErrOptimizer, "driver returned %d at iteration %d", ret, niter)
		}
		report(niter, ev, nil, time.Since(iterStart))
		if ret == 0 {
			break
		}
	}
	log.SetPrefix(prevPrefix)
	log.Printf("  training time = \t%.3f", time.Since(start).Seconds())
	return nil
}
