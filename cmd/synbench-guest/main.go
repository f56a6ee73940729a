//go:build wasip1

// Command synbench-guest is the classifier run by the guest backend. It is a
// WASI reactor:
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o synbench-guest.wasm ./cmd/synbench-guest
//
// Models and images are read from the /models and /images mounts; inference
// is delegated to the host through the synbench_nn imports.
package main

import (
	"context"
	"io/fs"
	"os"
	"strconv"

	"github.com/ekisa-team/synbench/internal/catalog"
	"github.com/ekisa-team/synbench/internal/envvar"
	"github.com/ekisa-team/synbench/internal/fault"
	"github.com/ekisa-team/synbench/internal/pipeline"
)

var (
	root     fs.FS
	catalogs *catalog.Set
	setupErr error
	opts     = pipeline.DefaultOptions()

	sessions  = make(map[catalog.Handle]*session)
	lastScore float32
)

func init() {
	root = os.DirFS("/")
	catalogs, setupErr = catalog.Load(root, catalog.Patterns{
		Models: os.Getenv(envvar.SynbenchModelsPattern),
		Images: os.Getenv(envvar.SynbenchImagesPattern),
	})

	if v := os.Getenv(envvar.SynbenchLabelOffset); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			setupErr = fault.New(fault.MissingArgument, "parse label offset", err)
			return
		}
		opts.LabelOffset = int32(n)
	}
}

func main() {}

//go:wasmexport load_model
func loadModel(model int32) int32 {
	if _, err := sessionFor(catalog.Handle(model)); err != nil {
		return fault.Code(err)
	}
	return 0
}

// runInference classifies image with model. With repeats == 0 it runs once
// and prints the phase timings; otherwise it runs repeats times silently.
// It returns the class of the last run or a negative fault code.
//
//go:wasmexport run_inference
func runInference(model, image int32, repeats uint32) int32 {
	s, err := sessionFor(catalog.Handle(model))
	if err != nil {
		return fault.Code(err)
	}
	name, err := catalogs.Images.Reverse(catalog.Handle(image))
	if err != nil {
		return fault.ImageLoad.Code()
	}

	ctx := context.Background()
	runs := max(repeats, 1)

	var res *pipeline.Result
	for range runs {
		res, err = pipeline.Classify(ctx, root, name, s, opts)
		if err != nil {
			return fault.Code(err)
		}
	}

	if repeats == 0 {
		res.Laps.Print(os.Stdout, "")
	}
	lastScore = res.Prediction.Score
	return res.Prediction.Class
}

//go:wasmexport last_score
func lastScoreOf() float32 {
	return lastScore
}

func sessionFor(model catalog.Handle) (*session, error) {
	if setupErr != nil {
		return nil, fault.New(fault.SessionCreation, "scan storage", setupErr)
	}
	if s, ok := sessions[model]; ok {
		return s, nil
	}

	name, err := catalogs.Models.Reverse(model)
	if err != nil {
		return nil, fault.New(fault.ModelLoad, "resolve model", err)
	}
	data, err := fs.ReadFile(root, name)
	if err != nil {
		return nil, fault.New(fault.ModelLoad, "read model", err)
	}

	s, err := load(data)
	if err != nil {
		return nil, err
	}
	sessions[model] = s
	return s, nil
}
