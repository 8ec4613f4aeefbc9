package eval

import (
	"log"
	"sort"
)

func Precision(truePositives, testPositives int) float64 {
	return float64(truePositives) / float64(testPositives)
}

func Recall(truePositives, conditionPositives int) float64 {
	return float64(truePositives) / float64(conditionPositives)
}

func F1(precision, recall float64) float64 {
	return 2.0 * (precision * recall) / (precision + recall)
}

type Result struct {
	TP, FP, TN, FN int
}

func (r *Result) All() int {
	return r.TP + r.FP + r.TN + r.FN
}

func (r *Result) Correct() int {
	return r.TP + r.TN
}

func (r *Result) Incorrect() int {
	return r.FP + r.FN
}

func (r *Result) TestPositives() int {
	return r.TP + r.FP
}

func (r *Result) ConditionPositives() int {
	return r.TP + r.FN
}

func (r *Result) Precision() float64 {
	if r.TestPositives() == 0 {
		return 0.0
	}
	return Precision(r.TP, r.TestPositives())
}

func (r *Result) Recall() float64 {
	if r.ConditionPositives() == 0 {
		return 0.0
	}
	return Recall(r.TP, r.ConditionPositives())
}

func (r *Result) F1() float64 {
	p, rc := r.Precision(), r.Recall()
	if p+rc == 0.0 {
		return 0.0
	}
	return F1(p, rc)
}

// TokenEval accumulates the per-iteration training report: log-likelihood,
// token accuracy and per-class results for micro/macro F1.
type TokenEval struct {
	loglik         float64
	correct, total int
	sequences      int
	classes        map[string]*Result
}

func NewTokenEval() *TokenEval {
	e := &TokenEval{}
	e.Initialize()
	return e
}

func (e *TokenEval) Initialize() {
	e.loglik = 0.0
	e.correct, e.total = 0, 0
	e.sequences = 0
	e.classes = make(map[string]*Result)
}

func (e *TokenEval) AddLoglik(lp float64) {
	e.loglik += lp
}

func (e *TokenEval) SubLoglik(v float64) {
	e.loglik -= v
}

func (e *TokenEval) Loglik() float64 {
	return e.loglik
}

// ObjFunc is the value handed to the optimizer: the negative log-likelihood
// including any penalty already subtracted via SubLoglik.
func (e *TokenEval) ObjFunc() float64 {
	return -e.loglik
}

func (e *TokenEval) class(name string) *Result {
	r, exists := e.classes[name]
	if !exists {
		r = &Result{}
		e.classes[name] = r
	}
	return r
}

// Append scores one decoded sequence against its reference labeling.
func (e *TokenEval) Append(reference, hypothesis []string) {
	for i, ref := range reference {
		hyp := hypothesis[i]
		e.total++
		if ref == hyp {
			e.correct++
			e.class(ref).TP++
		} else {
			e.class(ref).FN++
			e.class(hyp).FP++
		}
	}
	e.sequences++
}

func (e *TokenEval) Sequences() int {
	return e.sequences
}

func (e *TokenEval) Accuracy() float64 {
	if e.total == 0 {
		return 0.0
	}
	return float64(e.correct) / float64(e.total)
}

// MicroF1 pools true/false positives over all classes.
func (e *TokenEval) MicroF1() (precision, recall, f1 float64) {
	var tp, fp, fn int
	for _, r := range e.classes {
		tp += r.TP
		fp += r.FP
		fn += r.FN
	}
	if tp+fp > 0 {
		precision = Precision(tp, tp+fp)
	}
	if tp+fn > 0 {
		recall = Recall(tp, tp+fn)
	}
	if precision+recall > 0 {
		f1 = F1(precision, recall)
	}
	return precision, recall, f1
}

// MacroF1 averages the per-class scores, each class weighted equally.
func (e *TokenEval) MacroF1() (precision, recall, f1 float64) {
	if len(e.classes) == 0 {
		return 0.0, 0.0, 0.0
	}
	for _, r := range e.classes {
		precision += r.Precision()
		recall += r.Recall()
		f1 += r.F1()
	}
	n := float64(len(e.classes))
	return precision / n, recall / n, f1 / n
}

// Print logs the per-class result table.
func (e *TokenEval) Print() {
	names := make([]string, 0, len(e.classes))
	for name := range e.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	log.Printf("%-16s %8s %8s %8s", "class", "prec", "recall", "f1")
	for _, name := range names {
		r := e.classes[name]
		log.Printf("%-16s %8.3f %8.3f %8.3f", name, r.Precision(), r.Recall(), r.F1())
	}
}
