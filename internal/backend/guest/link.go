package guest

import (
	"fmt"
	"slices"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Export names of the guest contract.
const (
	ExportRunInference = "run_inference"
	ExportLoadModel    = "load_model"
	ExportLastScore    = "last_score"
	ExportInitialize   = "_initialize"
)

type signature struct {
	params  []api.ValueType
	results []api.ValueType
}

func (s signature) String() string {
	return fmt.Sprintf("(%s) -> (%s)", typeNames(s.params), typeNames(s.results))
}

func typeNames(types []api.ValueType) string {
	out := ""
	for i, t := range types {
		if i > 0 {
			out += ", "
		}
		out += api.ValueTypeName(t)
	}
	return out
}

var (
	runInferenceSig = signature{
		params:  []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32},
		results: []api.ValueType{api.ValueTypeI32},
	}
	loadModelSig = signature{
		params:  []api.ValueType{api.ValueTypeI32},
		results: []api.ValueType{api.ValueTypeI32},
	}
	lastScoreSig = signature{
		results: []api.ValueType{api.ValueTypeF32},
	}
)

// exports records which contract functions a compiled module provides.
type exports struct {
	loadModel  bool
	lastScore  bool
	initialize bool
}

// link checks the compiled module against the entry contract before it is
// instantiated, so a mismatch is an error instead of a trap.
func link(compiled wazero.CompiledModule) (exports, error) {
	defs := compiled.ExportedFunctions()

	def, ok := defs[ExportRunInference]
	if !ok {
		return exports{}, fmt.Errorf("%w: %s", ErrEntryPoint, ExportRunInference)
	}
	if err := check(ExportRunInference, def, runInferenceSig); err != nil {
		return exports{}, err
	}

	var ex exports
	if def, ok := defs[ExportLoadModel]; ok {
		if err := check(ExportLoadModel, def, loadModelSig); err != nil {
			return exports{}, err
		}
		ex.loadModel = true
	}
	if def, ok := defs[ExportLastScore]; ok {
		if err := check(ExportLastScore, def, lastScoreSig); err != nil {
			return exports{}, err
		}
		ex.lastScore = true
	}
	_, ex.initialize = defs[ExportInitialize]

	return ex, nil
}

func check(name string, def api.FunctionDefinition, want signature) error {
	got := signature{params: def.ParamTypes(), results: def.ResultTypes()}
	if !slices.Equal(got.params, want.params) || !slices.Equal(got.results, want.results) {
		return fmt.Errorf("%w: %s is %s, want %s", ErrSignature, name, got, want)
	}
	return nil
}
