package crf

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cequencer/TriCRF/nlp/format/events"
	"github.com/cequencer/TriCRF/nlp/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildModel ingests training data from a literal and freezes the table.
func buildModel(t *testing.T, data string) *CRF {
	t.Helper()
	c := New()
	corpus, err := events.Read(strings.NewReader(data), c.Param, true)
	require.NoError(t, err)
	c.TrainSet = corpus
	c.EndUpdate()
	return c
}

const tinyData = `A w=a
B w=b
A w=a

B w=b
B w=b
`

func TestSaveLoadRoundTrip(t *testing.T) {
	c := buildModel(t, tinyData)
	require.NoError(t, c.TrainLBFGS(TrainOptions{MaxIter: 5, Eta: 1e-6}))

	path := filepath.Join(t.TempDir(), "model")
	require.NoError(t, c.SaveModel(path))

	loaded := New()
	require.NoError(t, loaded.LoadModel(path))

	assert.Equal(t, c.Param.Labels.Index, loaded.Param.Labels.Index)
	assert.Equal(t, c.Param.Obs.Index, loaded.Param.Obs.Index)
	assert.Equal(t, c.Param.ParamIndex, loaded.Param.ParamIndex)
	assert.Equal(t, c.Param.Weights(), loaded.Param.Weights())

	// a second round trip must be byte-identical
	path2 := filepath.Join(t.TempDir(), "model2")
	require.NoError(t, loaded.SaveModel(path2))
	first, err := os.ReadFile(path)
	require.NoError(t, err)
	second, err := os.ReadFile(path2)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// identical predictions on a fixed input
	seq := types.Sequence{testEvent(c, "w=a"), testEvent(c, "w=b"), testEvent(c, "w=a")}
	wantLabels, wantProbs := c.Decode(seq)
	gotLabels, gotProbs := loaded.Decode(seq)
	assert.Equal(t, wantLabels, gotLabels)
	assert.InDeltaSlice(t, wantProbs, gotProbs, 1e-12)
}

func testEvent(c *CRF, obsNames ...string) types.Event {
	ev := types.Event{Label: -1, FVal: 1.0}
	for _, name := range obsNames {
		if id, exists := c.Param.ObsID(name); exists {
			ev.Obs = append(ev.Obs, types.Obs{ID: id, Val: 1.0})
		}
	}
	return ev
}

func TestLoadRejectsBadHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model")
	require.NoError(t, os.WriteFile(path, []byte("# banner\n# HMM model file\n:\n0\n"), 0666))
	err := New().LoadModel(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestLoadMissingFile(t *testing.T) {
	err := New().LoadModel(filepath.Join(t.TempDir(), "nonexistent"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)
}

func TestOutOfAlphabetLabelString(t *testing.T) {
	c := buildModel(t, tinyData)
	assert.Equal(t, OutOfClass, c.labelString(-1))
	assert.Equal(t, "A", c.labelString(1))
}

func TestTestCommandOutput(t *testing.T) {
	c := buildModel(t, tinyData)
	require.NoError(t, c.TrainLBFGS(TrainOptions{MaxIter: 10, Eta: 1e-7}))

	dir := t.TempDir()
	input := filepath.Join(dir, "input")
	output := filepath.Join(dir, "output")
	require.NoError(t, os.WriteFile(input, []byte("A w=a\nB w=b\n\nC w=a\n\n"), 0666))
	require.NoError(t, c.Test(input, output, true, false))

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	// two sequences: two labeled lines, a blank, one labeled line
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "A "))
	assert.True(t, strings.HasPrefix(lines[1], "B "))
	assert.Equal(t, "", lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "A "))
}
