package crf

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cequencer/TriCRF/util"

	"github.com/pkg/errors"
)

// BoundaryLabel occupies label id 0 and stands in for the virtual BOS/EOS
// state. It is inserted when the table is created and never produced by data.
const BoundaryLabel = "__BOS_EOS__"

// ObsParam binds an observation to a label: firing observation obs at a
// position contributes weight[FID] to label Y there.
type ObsParam struct {
	Y   int
	FID int
}

// StateParam is an active state transition (y1 -> y2) with its weight index.
type StateParam struct {
	Y1, Y2 int
	FID    int
	FVal   float64
}

// ParamTable holds the label and observation alphabets, the feature index
// and the weight, gradient and empirical count vectors. Alphabets grow
// during data ingestion and are frozen by EndUpdate.
type ParamTable struct {
	Labels *util.EnumSet
	Obs    *util.EnumSet

	// ParamIndex[obsID] lists the (label, weight index) bindings of obsID.
	ParamIndex [][]ObsParam
	// StateIndex lists active transitions; built by BuildStateIndex from
	// the synthetic "@<label>" observations.
	StateIndex []StateParam
	// Pred[y2] lists the y1 with a bound (y1,y2) transition; Succ is the
	// mirror image. Both index only real labels (never the boundary).
	Pred, Succ [][]int

	weight   []float64
	gradient []float64
	count    []float64 // empirical feature counts, accumulated at ingestion

	pairs map[int64]int // (obsID,labelID) -> weight index
}

func NewParamTable() *ParamTable {
	t := &ParamTable{
		Labels: util.NewEnumSet(16),
		Obs:    util.NewEnumSet(1024),
		pairs:  make(map[int64]int, 1024),
	}
	t.Labels.Add(BoundaryLabel)
	return t
}

func (t *ParamTable) AddLabel(s string) int {
	id, _ := t.Labels.Add(s)
	return id
}

func (t *ParamTable) AddObs(s string) int {
	id, isNew := t.Obs.Add(s)
	if isNew {
		t.ParamIndex = append(t.ParamIndex, nil)
	}
	return id
}

func (t *ParamTable) LabelID(s string) (int, bool) {
	return t.Labels.IndexOf(s)
}

func (t *ParamTable) ObsID(s string) (int, bool) {
	return t.Obs.IndexOf(s)
}

func (t *ParamTable) NumLabels() int {
	return t.Labels.Len()
}

func (t *ParamTable) NumObs() int {
	return t.Obs.Len()
}

func pairKey(obsID, labelID int) int64 {
	return int64(obsID)<<32 | int64(labelID)
}

// BindFeature maps (obsID, labelID) to a weight index, allocating one on
// first use. Idempotent for a given pair.
func (t *ParamTable) BindFeature(obsID, labelID int) int {
	key := pairKey(obsID, labelID)
	if fid, exists := t.pairs[key]; exists {
		return fid
	}
	fid := len(t.count)
	t.count = append(t.count, 0.0)
	t.pairs[key] = fid
	t.ParamIndex[obsID] = append(t.ParamIndex[obsID], ObsParam{labelID, fid})
	return fid
}

// UpdateParam binds (labelID, obsID) and accumulates fval into the feature's
// empirical count.
func (t *ParamTable) UpdateParam(labelID, obsID int, fval float64) int {
	fid := t.BindFeature(obsID, labelID)
	t.count[fid] += fval
	return fid
}

// EndUpdate freezes the alphabets and allocates the weight and gradient
// vectors. Must be called once, after the last training event is ingested.
func (t *ParamTable) EndUpdate() {
	t.Labels.Frozen = true
	t.Obs.Frozen = true
	t.weight = make([]float64, len(t.count))
	t.gradient = make([]float64, len(t.count))
}

func (t *ParamTable) Size() int {
	return len(t.weight)
}

func (t *ParamTable) Weights() []float64 {
	return t.weight
}

func (t *ParamTable) Gradient() []float64 {
	return t.gradient
}

// InitGradient resets the gradient to minus the empirical counts, so that
// accumulating expected counts yields E_model[f] - E_empirical[f].
func (t *ParamTable) InitGradient() {
	for i := range t.gradient {
		t.gradient[i] = -t.count[i]
	}
}

// BuildStateIndex materializes StateIndex and the Pred/Succ neighbor lists
// from the "@<label>" observations. Safe to call again after Load.
func (t *ParamTable) BuildStateIndex() {
	size := t.Labels.Len()
	t.StateIndex = t.StateIndex[:0]
	t.Pred = make([][]int, size)
	t.Succ = make([][]int, size)
	for obsID := 0; obsID < t.Obs.Len(); obsID++ {
		name := t.Obs.ValueOf(obsID)
		if !strings.HasPrefix(name, "@") {
			continue
		}
		y1, exists := t.Labels.IndexOf(name[1:])
		if !exists {
			continue
		}
		for _, p := range t.ParamIndex[obsID] {
			t.StateIndex = append(t.StateIndex, StateParam{y1, p.Y, p.FID, 1.0})
			t.Pred[p.Y] = append(t.Pred[p.Y], y1)
			t.Succ[y1] = append(t.Succ[y1], p.Y)
		}
	}
}

// Save writes the alphabets, feature index and weights in the text model
// format: label alphabet, observation alphabet, (obs label fid) triples in
// deterministic obs-major order, then one weight per line at 20 significant
// digits.
func (t *ParamTable) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d\n", t.Labels.Len())
	for i := 0; i < t.Labels.Len(); i++ {
		fmt.Fprintf(bw, "%s\n", t.Labels.ValueOf(i))
	}
	fmt.Fprintf(bw, "%d\n", t.Obs.Len())
	for i := 0; i < t.Obs.Len(); i++ {
		fmt.Fprintf(bw, "%s\n", t.Obs.ValueOf(i))
	}
	fmt.Fprintf(bw, "%d\n", t.Size())
	for obsID := 0; obsID < t.Obs.Len(); obsID++ {
		for _, p := range t.ParamIndex[obsID] {
			fmt.Fprintf(bw, "%d %d %d\n", obsID, p.Y, p.FID)
		}
	}
	for _, wt := range t.weight {
		fmt.Fprintf(bw, "%.20g\n", wt)
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(ErrIO, err.Error())
	}
	return nil
}

// Load reads back what Save wrote, replacing the table's contents. The
// resulting alphabets are frozen; BuildStateIndex must be called afterwards.
func (t *ParamTable) Load(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	next := func() (string, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", errors.Wrap(ErrIO, err.Error())
			}
			return "", errors.Wrap(ErrFormat, "unexpected end of model body")
		}
		return sc.Text(), nil
	}
	nextInt := func() (int, error) {
		line, err := next()
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil {
			return 0, errors.Wrapf(ErrFormat, "expected count, got %q", line)
		}
		return n, nil
	}

	numLabels, err := nextInt()
	if err != nil {
		return err
	}
	labels := util.NewEnumSet(numLabels)
	for i := 0; i < numLabels; i++ {
		line, err := next()
		if err != nil {
			return err
		}
		labels.Add(line)
	}
	if numLabels < 1 || labels.ValueOf(0) != BoundaryLabel {
		return errors.Wrap(ErrFormat, "model lacks the reserved boundary label")
	}

	numObs, err := nextInt()
	if err != nil {
		return err
	}
	obs := util.NewEnumSet(numObs)
	paramIndex := make([][]ObsParam, numObs)
	for i := 0; i < numObs; i++ {
		line, err := next()
		if err != nil {
			return err
		}
		obs.Add(line)
	}

	numFeatures, err := nextInt()
	if err != nil {
		return err
	}
	pairs := make(map[int64]int, numFeatures)
	seen := make([]bool, numFeatures)
	for i := 0; i < numFeatures; i++ {
		line, err := next()
		if err != nil {
			return err
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return errors.Wrapf(ErrFormat, "bad feature line %q", line)
		}
		obsID, err1 := strconv.Atoi(fields[0])
		labelID, err2 := strconv.Atoi(fields[1])
		fid, err3 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil || err3 != nil {
			return errors.Wrapf(ErrFormat, "bad feature line %q", line)
		}
		if obsID < 0 || obsID >= numObs || labelID < 0 || labelID >= numLabels ||
			fid < 0 || fid >= numFeatures || seen[fid] {
			return errors.Wrapf(ErrFormat, "inconsistent feature line %q", line)
		}
		seen[fid] = true
		pairs[pairKey(obsID, labelID)] = fid
		paramIndex[obsID] = append(paramIndex[obsID], ObsParam{labelID, fid})
	}

	weight := make([]float64, numFeatures)
	for i := 0; i < numFeatures; i++ {
		line, err := next()
		if err != nil {
			return err
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
		if err != nil {
			return errors.Wrapf(ErrFormat, "bad weight line %q", line)
		}
		weight[i] = w
	}

	labels.Frozen = true
	obs.Frozen = true
	t.Labels = labels
	t.Obs = obs
	t.ParamIndex = paramIndex
	t.StateIndex = nil
	t.Pred, t.Succ = nil, nil
	t.pairs = pairs
	t.weight = weight
	t.gradient = make([]float64, numFeatures)
	t.count = make([]float64, numFeatures)
	return nil
}

// Dump writes a human-readable listing of the table.
func (t *ParamTable) Dump(w io.Writer) {
	fmt.Fprintf(w, "labels (%d):\n", t.Labels.Len())
	for i := 0; i < t.Labels.Len(); i++ {
		fmt.Fprintf(w, "%6d %s\n", i, t.Labels.ValueOf(i))
	}
	fmt.Fprintf(w, "features (%d):\n", t.Size())
	for obsID := 0; obsID < t.Obs.Len(); obsID++ {
		for _, p := range t.ParamIndex[obsID] {
			fmt.Fprintf(w, "%s -> %s\t%.8g\n",
				t.Obs.ValueOf(obsID), t.Labels.ValueOf(p.Y), t.weight[p.FID])
		}
	}
}
