// Package pipeline runs one classification: read the image, preprocess it,
// execute the session and pick the top class. The native backend and the
// guest program both go through Classify so their results agree.
package pipeline

import (
	"context"
	"io/fs"

	"github.com/ekisa-team/synbench/internal/engine"
	"github.com/ekisa-team/synbench/internal/fault"
	"github.com/ekisa-team/synbench/internal/postprocess"
	"github.com/ekisa-team/synbench/internal/preprocess"
	"github.com/ekisa-team/synbench/internal/timing"
)

// Options tunes a classification.
type Options struct {
	Width       int
	Height      int
	LabelOffset int32
}

// DefaultOptions returns the 224x224, offset-1 configuration.
func DefaultOptions() Options {
	return Options{
		Width:       preprocess.DefaultWidth,
		Height:      preprocess.DefaultHeight,
		LabelOffset: postprocess.DefaultLabelOffset,
	}
}

// Result is the outcome of one classification.
type Result struct {
	Prediction postprocess.Prediction
	Laps       timing.Laps
}

// Classify reads image from files and runs it through session.
func Classify(ctx context.Context, files fs.FS, image string, session engine.Session, opts Options) (*Result, error) {
	if opts.Width == 0 || opts.Height == 0 {
		opts.Width, opts.Height = preprocess.DefaultWidth, preprocess.DefaultHeight
	}

	sw := timing.Start()

	data, err := fs.ReadFile(files, image)
	if err != nil {
		return nil, fault.New(fault.ImageLoad, "read image", err)
	}
	input, err := preprocess.Transform(data, opts.Width, opts.Height)
	if err != nil {
		return nil, err
	}
	sw.Lap(timing.PhaseImageLoad)

	scores, err := session.Run(ctx, input)
	if err != nil {
		if fault.KindOf(err) == fault.Unknown {
			err = fault.New(fault.ModelRun, "run model", err)
		}
		return nil, err
	}
	sw.Lap(timing.PhaseExecution)

	prediction, err := postprocess.TopOne(scores, opts.LabelOffset)
	if err != nil {
		return nil, err
	}
	sw.Lap(timing.PhaseExtraction)

	return &Result{Prediction: prediction, Laps: sw.Laps()}, nil
}
