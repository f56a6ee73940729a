package postprocess

import (
	"errors"
	"fmt"

	"github.com/ekisa-team/synbench/internal/fault"
)

// DefaultLabelOffset is the label index given to the first score. The
// deployed ImageNet label files of the native and in-guest pipelines are
// 1-based; wasi-nn style label files that reserve a background class need 2.
const DefaultLabelOffset int32 = 1

// ErrNoResult is returned for an empty score sequence.
var ErrNoResult = errors.New("no scores to rank")

// Prediction is the arg-max pair of an output sequence.
type Prediction struct {
	Score float32
	Class int32
}

func (p Prediction) String() string {
	return fmt.Sprintf("%d (score: %v)", p.Class, p.Score)
}

// TopOne returns the highest score and its label index, numbering labels from
// offset. The first maximum wins; NaN never compares greater than anything.
func TopOne(scores []float32, offset int32) (Prediction, error) {
	if len(scores) == 0 {
		return Prediction{}, fault.New(fault.NoResult, "top1", ErrNoResult)
	}

	best := Prediction{Score: scores[0], Class: offset}
	for i, score := range scores[1:] {
		if score > best.Score {
			best = Prediction{Score: score, Class: offset + int32(i) + 1}
		}
	}

	return best, nil
}
