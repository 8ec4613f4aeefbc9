package crf

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/cequencer/TriCRF/nlp/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeTrainSequence(c *CRF, si int) []string {
	labels, _ := c.Decode(c.TrainSet.Seqs[si])
	return labels
}

func TestTwoLabelIdentity(t *testing.T) {
	c := buildModel(t, "A w=a\nB w=b\nA w=a\n")

	// the very first gradient pass from zero weights must be non-zero
	g := assembleGradient(c)
	nonzero := false
	for _, v := range g {
		if v != 0.0 {
			nonzero = true
			break
		}
	}
	require.True(t, nonzero, "gradient is identically zero at theta=0")

	require.NoError(t, c.TrainLBFGS(TrainOptions{MaxIter: 10, Eta: 1e-7}))
	assert.Equal(t, []string{"A", "B", "A"}, decodeTrainSequence(c, 0))
}

func TestL1DrivesWeightsToZero(t *testing.T) {
	// 50 observation features over two labels, each seen once; with a
	// strong L1 penalty (small sigma) the penalty dominates every small
	// empirical gradient and those weights stay exactly at zero
	var sb strings.Builder
	for i := 0; i < 50; i++ {
		label := "A"
		if i%2 == 1 {
			label = "B"
		}
		fmt.Fprintf(&sb, "%s f%d=1\n\n", label, i)
	}
	c := buildModel(t, sb.String())
	require.GreaterOrEqual(t, c.Param.Size(), 50)

	require.NoError(t, c.TrainLBFGS(TrainOptions{MaxIter: 20, Sigma: 0.1, Reg: RegL1, Eta: 1e-7}))

	zeros := 0
	for _, w := range c.Param.Weights() {
		if w == 0.0 {
			zeros++
		}
	}
	assert.GreaterOrEqual(t, float64(zeros), 0.3*float64(c.Param.Size()),
		"fewer than 30%% of weights are exactly zero")
}

func TestL2LargeSigmaMatchesUnregularized(t *testing.T) {
	const data = "A w=a\nB w=b\nA w=a\n\nB w=b\nB w=b\n"
	plain := buildModel(t, data)
	require.NoError(t, plain.TrainLBFGS(TrainOptions{MaxIter: 5, Eta: 1e-9}))

	l2 := buildModel(t, data)
	require.NoError(t, l2.TrainLBFGS(TrainOptions{MaxIter: 5, Sigma: 1e12, Reg: RegL2, Eta: 1e-9}))

	assert.InDeltaSlice(t, plain.Param.Weights(), l2.Param.Weights(), 1e-6)
}

func TestDedupProducesIdenticalWeights(t *testing.T) {
	// the same multiset of sequences in two orders dedups to the same
	// corpus and must train to identical weights
	one := buildModel(t, "A w=a\nB w=b\n\nA w=a\nB w=b\n\nB w=b\n")
	two := buildModel(t, "A w=a\nB w=b\n\nB w=b\n\nA w=a\nB w=b\n")
	require.Equal(t, one.TrainSet.Len(), two.TrainSet.Len())
	require.Equal(t, one.TrainSet.Counts, two.TrainSet.Counts)

	opts := TrainOptions{MaxIter: 5, Eta: 1e-9}
	require.NoError(t, one.TrainLBFGS(opts))
	require.NoError(t, two.TrainLBFGS(opts))
	assert.Equal(t, one.Param.Weights(), two.Param.Weights())
}

func TestPseudoLikelihoodLearns(t *testing.T) {
	c := buildModel(t, "A w=a\nB w=b\nA w=a\n\nB w=b\nA w=a\n")
	require.NoError(t, c.TrainPL(TrainOptions{MaxIter: 10, Eta: 1e-7}))

	nonzero := false
	for _, w := range c.Param.Weights() {
		if w != 0.0 {
			nonzero = true
			break
		}
	}
	require.True(t, nonzero, "pseudo-likelihood training left all weights at zero")
	assert.Equal(t, []string{"A", "B", "A"}, decodeTrainSequence(c, 0))
}

// corpusLoglik evaluates the full-model log-likelihood at the current
// weights without touching them.
func corpusLoglik(c *CRF) float64 {
	return -objective(c)
}

func TestPretrainHandoffImproves(t *testing.T) {
	// strong local features: pseudo-likelihood alone nearly solves this,
	// and the full trainer must not undo it
	const data = "A w=a\nB w=b\nA w=a\n\nB w=b\nB w=b\nA w=a\n"
	c := buildModel(t, data)
	before := corpusLoglik(c)

	require.NoError(t, c.TrainPL(TrainOptions{MaxIter: 5, Eta: 1e-7}))
	afterPL := corpusLoglik(c)
	require.Greater(t, afterPL, before, "pseudo-likelihood warm start did not improve the likelihood")

	require.NoError(t, c.TrainLBFGS(TrainOptions{MaxIter: 5, Eta: 1e-7}))
	afterFull := corpusLoglik(c)
	assert.Greater(t, afterFull, before)
	assert.False(t, math.IsNaN(afterFull) || math.IsInf(afterFull, 0))
}

func TestTrainWithDevSet(t *testing.T) {
	c := buildModel(t, "A w=a\nB w=b\nA w=a\n\nB w=b\nB w=b\n")
	c.DevSet = types.NewCorpus()
	c.DevSet.Add("dev", types.Sequence{
		{Label: 1, FVal: 1.0, Obs: obsFor(c, "w=a")},
		{Label: 2, FVal: 1.0, Obs: obsFor(c, "w=b")},
	})
	require.NoError(t, c.TrainLBFGS(TrainOptions{MaxIter: 3, Eta: 1e-7}))
}

func obsFor(c *CRF, name string) []types.Obs {
	id, exists := c.Param.ObsID(name)
	if !exists {
		return nil
	}
	return []types.Obs{{ID: id, Val: 1.0}}
}
