// The test sits outside the package: it drives the reader through the real
// parameter table, which lives in a package that imports this one.
package events_test

import (
	"strings"
	"testing"

	"github.com/cequencer/TriCRF/alg/crf"
	. "github.com/cequencer/TriCRF/nlp/format/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadTraining(t *testing.T) {
	table := crf.NewParamTable()
	corpus, err := Read(strings.NewReader("A w=a cap\nB w=b\n\nB w=b\n"), table, true)
	require.NoError(t, err)

	require.Equal(t, 2, corpus.Len())
	assert.Equal(t, []float64{1.0, 1.0}, corpus.Counts)

	// boundary + A + B
	assert.Equal(t, 3, table.NumLabels())
	aID, _ := table.LabelID("A")
	bID, _ := table.LabelID("B")
	assert.Equal(t, 1, aID)
	assert.Equal(t, 2, bID)

	seq := corpus.Seqs[0]
	require.Len(t, seq, 2)
	assert.Equal(t, aID, seq[0].Label)
	assert.Equal(t, bID, seq[1].Label)
	assert.Len(t, seq[0].Obs, 2)
	assert.Len(t, seq[1].Obs, 1)

	// the transition observation was synthesized for position 1 only,
	// bound to both real labels
	atA, exists := table.ObsID("@A")
	require.True(t, exists)
	assert.Len(t, table.ParamIndex[atA], 2)
	_, exists = table.ObsID("@B")
	assert.False(t, exists)
}

func TestReadValues(t *testing.T) {
	table := crf.NewParamTable()
	corpus, err := Read(strings.NewReader("A:2 w=a:0.5\n"), table, true)
	require.NoError(t, err)

	seq := corpus.Seqs[0]
	require.Len(t, seq, 1)
	assert.Equal(t, 2.0, seq[0].FVal)
	require.Len(t, seq[0].Obs, 1)
	assert.Equal(t, 0.5, seq[0].Obs[0].Val)
}

func TestReadBadValue(t *testing.T) {
	table := crf.NewParamTable()
	_, err := Read(strings.NewReader("A w=a:abc\n"), table, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestReadDedup(t *testing.T) {
	table := crf.NewParamTable()
	corpus, err := Read(strings.NewReader("A w=a\nB w=b\n\nA w=a\nB w=b\n\nB w=b\n"), table, true)
	require.NoError(t, err)
	require.Equal(t, 2, corpus.Len())
	assert.Equal(t, []float64{2.0, 1.0}, corpus.Counts)
}

func TestReadLastSequenceWithoutTrailingBlank(t *testing.T) {
	table := crf.NewParamTable()
	corpus, err := Read(strings.NewReader("A w=a"), table, true)
	require.NoError(t, err)
	require.Equal(t, 1, corpus.Len())
}

func TestReadReadonly(t *testing.T) {
	table := crf.NewParamTable()
	_, err := Read(strings.NewReader("A w=a\nB w=b\n"), table, true)
	require.NoError(t, err)
	table.EndUpdate()

	numObs := table.NumObs()
	corpus, err := Read(strings.NewReader("A w=a unseen=1\nC w=b\n"), table, false)
	require.NoError(t, err)
	assert.Equal(t, numObs, table.NumObs(), "readonly read must not grow the alphabets")

	seq := corpus.Seqs[0]
	require.Len(t, seq, 2)
	aID, _ := table.LabelID("A")
	assert.Equal(t, aID, seq[0].Label)
	assert.Len(t, seq[0].Obs, 1, "unknown observations are dropped")
	assert.Equal(t, -1, seq[1].Label, "unknown label maps to -1")
}
