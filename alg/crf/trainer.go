package crf

import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/cequencer/TriCRF/alg/lbfgs"
	"github.com/cequencer/TriCRF/eval"
	"github.com/cequencer/TriCRF/nlp/types"

	"github.com/pkg/errors"
)

type Regularization int

const (
	RegNone Regularization = iota
	RegL2
	RegL1
)

func (r Regularization) String() string {
	switch r {
	case RegL1:
		return "L1"
	case RegL2:
		return "L2"
	}
	return "none"
}

type TrainOptions struct {
	MaxIter int
	// Sigma scales the penalty: variance for L2, inverse strength for L1.
	Sigma float64
	Reg   Regularization
	// Eta stops training when the relative objective change stays below it
	// for three consecutive iterations.
	Eta float64
}

func (c *CRF) labelString(id int) string {
	if id < 0 || id >= c.Param.NumLabels() {
		return OutOfClass
	}
	return c.Param.Labels.ValueOf(id)
}

func (c *CRF) labelStrings(ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = c.labelString(id)
	}
	return out
}

// regularize folds the penalty into the objective and, for L2, the gradient.
// L1 touches the objective only: the optimizer owns the non-smooth term.
func (c *CRF) regularize(ev *eval.TokenEval, opts TrainOptions) {
	if opts.Sigma == 0 || opts.Reg == RegNone {
		return
	}
	theta := c.Param.Weights()
	g := c.Param.Gradient()
	switch opts.Reg {
	case RegL1:
		for _, w := range theta {
			ev.SubLoglik(math.Abs(w) / opts.Sigma)
		}
	case RegL2:
		for i, w := range theta {
			g[i] += w / opts.Sigma
			ev.SubLoglik(w * w / (2.0 * opts.Sigma))
		}
	}
}

func reportHeader() {
	log.Printf("%4s %15s %8s %8s %8s %8s", "iter", "loglikelihood", "acc", "micro-f1", "macro-f1", "sec")
}

func report(niter int, ev, devEv *eval.TokenEval, elapsed time.Duration) {
	_, _, micro := ev.MicroF1()
	_, _, macro := ev.MacroF1()
	line := fmt.Sprintf("%4d %15E %8.3f %8.3f %8.3f %8.3f",
		niter, ev.Loglik(), ev.Accuracy(), micro, macro, elapsed.Seconds())
	if devEv != nil {
		_, _, devMicro := devEv.MicroF1()
		_, _, devMacro := devEv.MacroF1()
		line += fmt.Sprintf("  |  %8.3f %8.3f %8.3f", devEv.Accuracy(), devMicro, devMacro)
	}
	log.Println(line)
}

// TrainLBFGS fits the weights by maximum penalized log-likelihood with
// full forward-backward inference.
func (c *CRF) TrainLBFGS(opts TrainOptions) error {
	if c.TrainSet == nil || c.TrainSet.Len() == 0 {
		return errors.Wrap(ErrFormat, "no training data loaded")
	}
	opt := lbfgs.New()
	theta := c.Param.Weights()
	g := c.Param.Gradient()

	ev := eval.NewTokenEval()
	devEv := eval.NewTokenEval()
	start := time.Now()

	log.Println("[Parameter estimation]")
	log.Printf("  Method = \t\tLBFGS")
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
		c.calculateEdge()

		for si, seq := range c.TrainSet.Seqs {
			count := c.TrainSet.Counts[si]
			c.calculateFactors(seq)
			c.forward()
			c.backward()
			c.computeCorr()

			path, _ := c.viterbiSearch()
			logProb, finite := c.seqLogProb(seq)
			if !finite {
				c.NumericWarnings++
				log.Println("non-finite sequence probability at instance", si)
			}
			c.accumulateGradient(seq, count)

			reference := make([]int, len(seq))
			for i, e := range seq {
				reference[i] = e.Label
			}
			refs := c.labelStrings(reference)
			hyps := c.labelStrings(path)
			for rep := 0; rep < int(count); rep++ {
				ev.AddLoglik(logProb)
				ev.Append(refs, hyps)
			}
		}

		var devReport *eval.TokenEval
		if c.DevSet != nil && c.DevSet.Len() > 0 {
			devEv.Initialize()
			c.evalCorpus(c.DevSet, devEv)
			devReport = devEv
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
		report(niter, ev, devReport, time.Since(iterStart))
		if ret == 0 {
			break
		}
	}
	log.SetPrefix(prevPrefix)
	log.Printf("  training time = \t%.3f", time.Since(start).Seconds())
	return nil
}

// evalCorpus decodes every sequence of corpus and accumulates accuracy/F1.
func (c *CRF) evalCorpus(corpus *types.Corpus, ev *eval.TokenEval) {
	for si, seq := range corpus.Seqs {
		count := corpus.Counts[si]
		c.calculateFactors(seq)
		c.forward()
		path, _ := c.viterbiSearch()

		reference := make([]int, len(seq))
		for i, e := range seq {
			reference[i] = e.Label
		}
		refs := c.labelStrings(reference)
		hyps := c.labelStrings(path)
		for rep := 0; rep < int(count); rep++ {
			ev.Append(refs, hyps)
		}
	}
}
