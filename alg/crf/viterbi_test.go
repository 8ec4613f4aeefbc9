package crf

import (
	"math"
	"testing"

	"github.com/cequencer/TriCRF/nlp/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bruteForcePath scores every label assignment of length T directly from the
// workspace potentials, keeping the first maximum (lowest ids win).
func bruteForcePath(c *CRF, T int) ([]int, float64) {
	size := c.stateSize
	best := math.Inf(-1)
	var bestPath []int

	path := make([]int, T)
	var walk func(i int)
	walk = func(i int) {
		if i == T {
			score := 0.0
			for p := 0; p < T; p++ {
				score += math.Log(c.ws.r[p*size+path[p]])
				if p > 0 {
					score += math.Log(c.ws.m2[path[p-1]*size+path[p]])
				}
			}
			if score > best {
				best = score
				bestPath = append([]int(nil), path...)
			}
			return
		}
		for y := 1; y < size; y++ {
			path[i] = y
			walk(i + 1)
		}
	}
	walk(0)
	return bestPath, best
}

const viterbiData = `A w=a p=1
B w=b p=1
C w=c p=2
A w=a q=1

C w=c
B w=b q=1
A w=a
`

func TestViterbiMatchesBruteForce(t *testing.T) {
	c := buildModel(t, viterbiData)
	randomizeWeights(c, 7)
	for si, seq := range c.TrainSet.Seqs {
		c.calculateEdge()
		c.calculateFactors(seq)
		path, score := c.viterbiSearch()
		wantPath, wantScore := bruteForcePath(c, len(seq))
		assert.Equal(t, wantPath, path, "seq %d", si)
		assert.InDelta(t, wantScore, score, 1e-9, "seq %d", si)
	}
}

// transitionFixture builds a model whose observation potentials are uniform,
// with the given transition weights.
func transitionFixture(t *testing.T, trans map[[2]string]float64) (*CRF, types.Sequence) {
	t.Helper()
	c := New()
	c.Param.AddLabel("A")
	c.Param.AddLabel("B")
	fids := make(map[[2]string]int)
	for pair := range trans {
		obsID := c.Param.AddObs("@" + pair[0])
		y2, _ := c.Param.LabelID(pair[1])
		fids[pair] = c.Param.UpdateParam(y2, obsID, 0.0)
	}
	c.EndUpdate()
	theta := c.Param.Weights()
	for pair, w := range trans {
		theta[fids[pair]] = w
	}
	seq := types.Sequence{{Label: -1, FVal: 1.0}, {Label: -1, FVal: 1.0}, {Label: -1, FVal: 1.0}}
	return c, seq
}

// With a lone A->B transition of +5 every path through it ties; the strict >
// tie-break resolves each tie toward the lowest label id, giving A B A.
func TestTransitionTieBreak(t *testing.T) {
	c, seq := transitionFixture(t, map[[2]string]float64{{"A", "B"}: 5.0})
	labels, _ := c.Decode(seq)
	require.Equal(t, []string{"A", "B", "A"}, labels)
}

// A self-transition on B makes the chain through A->B->B strictly best.
func TestTransitionDominatesObservations(t *testing.T) {
	c, seq := transitionFixture(t, map[[2]string]float64{
		{"A", "B"}: 5.0,
		{"B", "B"}: 1.0,
	})
	labels, _ := c.Decode(seq)
	require.Equal(t, []string{"A", "B", "B"}, labels)
}

func TestViterbiTieBreakLowestID(t *testing.T) {
	// all weights zero and no observations: every path ties, so decoding
	// picks the first real label everywhere
	c := buildModel(t, "A w=a\nB w=b\n")
	seq := types.Sequence{{Label: -1, FVal: 1.0}, {Label: -1, FVal: 1.0}}
	labels, _ := c.Decode(seq)
	require.Equal(t, []string{"A", "A"}, labels)
}
