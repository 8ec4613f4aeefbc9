// Package events reads the line-oriented sequence labeling format: one token
// per line as "LABEL[:weight] OBS1[:value] OBS2[:value] ...", blank lines
// separating sequences.
package events

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cequencer/TriCRF/nlp/types"

	"github.com/pkg/errors"
)

// ErrFormat marks malformed data lines.
var ErrFormat = errors.New("malformed data line")

// Table is the parameter table surface the reader needs. Label id 0 is the
// reserved boundary and is never bound as a transition target.
type Table interface {
	AddLabel(s string) int
	AddObs(s string) int
	UpdateParam(labelID, obsID int, fval float64) int
	LabelID(s string) (int, bool)
	ObsID(s string) (int, bool)
	NumLabels() int
}

// splitValue splits a "name:value" token; the value defaults to 1.
func splitValue(tok string) (string, float64, error) {
	at := strings.LastIndexByte(tok, ':')
	if at < 0 {
		return tok, 1.0, nil
	}
	val, err := strconv.ParseFloat(tok[at+1:], 64)
	if err != nil {
		return "", 0.0, errors.Wrapf(ErrFormat, "bad value in token %q", tok)
	}
	return tok[:at], val, nil
}

// PackEvent converts one token line into an Event. In training mode labels
// and observations grow the alphabets and empirical counts accumulate; in
// readonly mode unknown observations are dropped and an unknown label maps
// to -1.
func PackEvent(tokens []string, table Table, training bool) (types.Event, error) {
	name, fval, err := splitValue(tokens[0])
	if err != nil {
		return types.Event{}, err
	}
	var label int
	if training {
		label = table.AddLabel(name)
	} else {
		var known bool
		label, known = table.LabelID(name)
		if !known {
			label = -1
		}
	}
	ev := types.Event{Label: label, FVal: fval, Obs: make([]types.Obs, 0, len(tokens)-1)}
	for _, tok := range tokens[1:] {
		oname, val, err := splitValue(tok)
		if err != nil {
			return types.Event{}, err
		}
		if training {
			obsID := table.AddObs(oname)
			table.UpdateParam(label, obsID, val)
			ev.Obs = append(ev.Obs, types.Obs{ID: obsID, Val: val})
		} else if obsID, known := table.ObsID(oname); known {
			ev.Obs = append(ev.Obs, types.Obs{ID: obsID, Val: val})
		}
	}
	return ev, nil
}

// Read parses a whole data stream into a deduplicated corpus. In training
// mode the label alphabet is grown from the full stream first (the
// transition synthesis below binds each "@<prev>" observation to every
// label), then a "@<prev_label>" observation is synthesized for every
// position after the first, carrying the event's value at the true label
// and zero elsewhere.
func Read(r io.Reader, table Table, training bool) (*types.Corpus, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(data), "\n")

	if training {
		for _, line := range lines {
			tokens := strings.Fields(line)
			if len(tokens) == 0 {
				continue
			}
			name, _, err := splitValue(tokens[0])
			if err != nil {
				return nil, err
			}
			table.AddLabel(name)
		}
	}

	corpus := types.NewCorpus()
	var (
		seq       types.Sequence
		rawLines  []string
		prevLabel string
	)
	flush := func() {
		if len(seq) == 0 {
			return
		}
		corpus.Add(strings.Join(rawLines, "\n"), seq)
		seq = nil
		rawLines = nil
		prevLabel = ""
	}

	for _, line := range lines {
		tokens := strings.Fields(line)
		if len(tokens) == 0 {
			flush()
			continue
		}
		rawLines = append(rawLines, strings.Join(tokens, " "))
		ev, err := PackEvent(tokens, table, training)
		if err != nil {
			return nil, err
		}
		seq = append(seq, ev)

		if training && prevLabel != "" {
			obsID := table.AddObs("@" + prevLabel)
			for y := 1; y < table.NumLabels(); y++ {
				if y == ev.Label {
					table.UpdateParam(y, obsID, ev.FVal)
				} else {
					table.UpdateParam(y, obsID, 0.0)
				}
			}
		}
		name, _, _ := splitValue(tokens[0])
		prevLabel = name
	}
	flush()
	return corpus, nil
}

func ReadFile(filename string, table Table, training bool) (*types.Corpus, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Read(file, table, training)
}
