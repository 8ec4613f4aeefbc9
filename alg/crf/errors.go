package crf

import (
	"github.com/pkg/errors"
)

// Error kinds. Callers match with errors.Is; context is attached at the
// failure site with pkg/errors wrapping.
var (
	ErrIO            = errors.New("i/o failure")
	ErrFormat        = errors.New("malformed input")
	ErrOptimizer     = errors.New("optimizer failure")
	ErrOutOfAlphabet = errors.New("label outside model alphabet")
)

// OutOfClass is emitted in evaluation output for test-time labels that are
// not in the model's label alphabet.
const OutOfClass = "!OUT_OF_CLASS!"
