// Package crf implements training and inference for linear-chain
// Conditional Random Fields: the parameter table, rescaled forward-backward,
// Viterbi decoding, the log-likelihood gradient and the L-BFGS and
// pseudo-likelihood trainers.
package crf

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/cequencer/TriCRF/eval"
	"github.com/cequencer/TriCRF/nlp/format/events"
	"github.com/cequencer/TriCRF/nlp/types"

	"github.com/pkg/errors"
)

// CRF is the engine: the parameter table, the loaded corpora and the
// per-sequence scratch workspace.
type CRF struct {
	Param    *ParamTable
	TrainSet *types.Corpus
	DevSet   *types.Corpus

	// NumericWarnings counts non-finite intermediates encountered during
	// training; each is logged and training continues.
	NumericWarnings int

	stateSize int
	ws        workspace
}

func New() *CRF {
	return &CRF{Param: NewParamTable()}
}

// EndUpdate freezes the parameter table and prepares the inference indices.
func (c *CRF) EndUpdate() {
	c.Param.EndUpdate()
	c.Param.BuildStateIndex()
	c.stateSize = c.Param.NumLabels()
}

// ReadTrainData ingests the training file, growing alphabets and the feature
// table, then freezes the table.
func (c *CRF) ReadTrainData(filename string) error {
	corpus, err := events.ReadFile(filename, c.Param, true)
	if err != nil {
		return readErr(err, filename)
	}
	c.TrainSet = corpus
	c.EndUpdate()
	log.Printf("  # of data = \t\t%d", corpus.Len())
	return nil
}

// ReadDevData ingests the development file against the frozen alphabets.
func (c *CRF) ReadDevData(filename string) error {
	corpus, err := events.ReadFile(filename, c.Param, false)
	if err != nil {
		return readErr(err, filename)
	}
	c.DevSet = corpus
	return nil
}

func readErr(err error, filename string) error {
	if errors.Is(err, events.ErrFormat) {
		return errors.Wrapf(ErrFormat, "%s: %v", filename, err)
	}
	return errors.Wrapf(ErrIO, "%s: %v", filename, err)
}

const modelTag = "CRF"

// SaveModel writes the model file: a '#' header carrying the CRF tag, the
// ':' sentinel, then the parameter table body.
func (c *CRF) SaveModel(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(ErrIO, "create %s: %v", filename, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "# TriCRF: structured prediction toolkit")
	fmt.Fprintf(w, "# %s model file (text format)\n", modelTag)
	fmt.Fprintln(w, "# do not edit this file")
	fmt.Fprintln(w, "#")
	fmt.Fprintln(w, ":")
	if err := w.Flush(); err != nil {
		return errors.Wrap(ErrIO, err.Error())
	}
	return c.Param.Save(f)
}

// LoadModel reads a model file written by SaveModel and rebuilds the
// inference indices.
func (c *CRF) LoadModel(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return errors.Wrapf(ErrIO, "open %s: %v", filename, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	count := 0
	for {
		line, err := r.ReadString('\n')
		if err != nil && err != io.EOF {
			return errors.Wrap(ErrIO, err.Error())
		}
		line = strings.TrimRight(line, "\n")
		if line == ":" {
			break
		}
		if len(line) > 0 && line[0] != '#' {
			return errors.Wrapf(ErrFormat, "%s: missing header sentinel", filename)
		}
		if count == 1 {
			tokens := strings.Fields(line)
			if len(tokens) < 2 || tokens[1] != modelTag {
				return errors.Wrapf(ErrFormat, "%s: invalid model header", filename)
			}
		}
		if err == io.EOF {
			return errors.Wrapf(ErrFormat, "%s: truncated header", filename)
		}
		count++
	}

	if err := c.Param.Load(r); err != nil {
		return errors.Wrapf(err, "%s", filename)
	}
	c.Param.BuildStateIndex()
	c.stateSize = c.Param.NumLabels()
	return nil
}

// Decode labels one sequence, returning the Viterbi labels and the marginal
// probability of the decoded label at each position.
func (c *CRF) Decode(seq types.Sequence) ([]string, []float64) {
	c.calculateEdge()
	c.calculateFactors(seq)
	c.forward()
	c.backward()
	c.computeCorr()
	path, _ := c.viterbiSearch()
	z := c.partitionZ()

	labels := make([]string, len(path))
	probs := make([]float64, len(path))
	size := c.stateSize
	for i, y := range path {
		labels[i] = c.labelString(y)
		probs[i] = c.ws.alpha[i*size+y] * c.ws.beta[i*size+y] / z * c.scaleCorrObs(i)
	}
	return labels, probs
}

// Test decodes a test file, reports accuracy and F1 against the reference
// labels, and optionally writes one predicted label per line. With
// confidence enabled each line carries the normalized local conditional
// R[i,y*]·M2[prev,y*] / Σ R[i,y]·M2[prev,y], an approximation that skips
// marginalization; with marginal enabled it carries the true posterior
// α·β/Z instead.
func (c *CRF) Test(inputFile, outputFile string, confidence, marginal bool) error {
	f, err := os.Open(inputFile)
	if err != nil {
		return errors.Wrapf(ErrIO, "open %s: %v", inputFile, err)
	}
	defer f.Close()

	var out *bufio.Writer
	if outputFile != "" {
		outF, err := os.Create(outputFile)
		if err != nil {
			return errors.Wrapf(ErrIO, "create %s: %v", outputFile, err)
		}
		defer outF.Close()
		out = bufio.NewWriter(outF)
		defer out.Flush()
	}

	testEv := eval.NewTokenEval()
	count := 0
	c.calculateEdge()

	var seq types.Sequence
	emit := func() error {
		if len(seq) == 0 {
			return nil
		}
		if err := c.testSequence(seq, out, testEv, confidence, marginal); err != nil {
			return err
		}
		seq = nil
		count++
		return nil
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		tokens := strings.Fields(sc.Text())
		if len(tokens) == 0 {
			if err := emit(); err != nil {
				return err
			}
			continue
		}
		ev, err := events.PackEvent(tokens, c.Param, false)
		if err != nil {
			return errors.Wrapf(ErrFormat, "%s: %v", inputFile, err)
		}
		seq = append(seq, ev)
	}
	if err := sc.Err(); err != nil {
		return errors.Wrap(ErrIO, err.Error())
	}
	if err := emit(); err != nil {
		return err
	}

	log.Printf("  # of data = \t\t%d", count)
	log.Printf("  Acc = \t\t%8.3f", testEv.Accuracy())
	_, _, micro := testEv.MicroF1()
	log.Printf("  MicroF1 = \t\t%8.3f", micro)
	testEv.Print()
	return nil
}

func (c *CRF) testSequence(seq types.Sequence, out *bufio.Writer, testEv *eval.TokenEval, confidence, marginal bool) error {
	size := c.stateSize
	c.calculateFactors(seq)
	c.forward()
	if marginal {
		c.backward()
		c.computeCorr()
	}
	path, _ := c.viterbiSearch()
	z := c.partitionZ()

	refs := make([]string, len(seq))
	hyps := make([]string, len(seq))
	for i, e := range seq {
		refs[i] = c.labelString(e.Label)
		hyps[i] = c.labelString(path[i])
	}

	if out != nil {
		prevY := 0
		for i, y := range path {
			fmt.Fprint(out, hyps[i])
			switch {
			case confidence:
				norm := 0.0
				for j := 1; j < size; j++ {
					if i > 0 {
						norm += c.ws.r[i*size+j] * c.ws.m2[prevY*size+j]
					} else {
						norm += c.ws.r[i*size+j]
					}
				}
				prob := c.ws.r[i*size+y]
				if i > 0 {
					prob *= c.ws.m2[prevY*size+y]
				}
				fmt.Fprintf(out, " %.20g", prob/norm)
				prevY = y
			case marginal:
				prob := c.ws.alpha[i*size+y] * c.ws.beta[i*size+y] / z * c.scaleCorrObs(i)
				fmt.Fprintf(out, " %.20g", prob)
			}
			fmt.Fprintln(out)
		}
		fmt.Fprintln(out)
	}

	testEv.Append(refs, hyps)
	return nil
}
