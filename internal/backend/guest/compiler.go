package guest

import (
	"context"

	"github.com/tetratelabs/wazero"

	"github.com/ekisa-team/synbench/internal/modcache"
)

// wazeroModule is the wazero module path used to fingerprint cache entries.
const wazeroModule = "github.com/tetratelabs/wazero"

// compiledModule keeps the source next to the compiled form because wazero
// cannot export its machine code. The cache entry stores the source; the
// runtime's compilation cache turns rebuilding it into a lookup.
type compiledModule struct {
	wazero.CompiledModule
	source []byte
}

// compiler implements modcache.Compiler for a wazero runtime.
type compiler struct {
	runtime     wazero.Runtime
	fingerprint string
}

func newCompiler(runtime wazero.Runtime) *compiler {
	return &compiler{runtime: runtime, fingerprint: modcache.Fingerprint(wazeroModule)}
}

func (c *compiler) Compile(ctx context.Context, source []byte) (*compiledModule, error) {
	compiled, err := c.runtime.CompileModule(ctx, source)
	if err != nil {
		return nil, err
	}
	return &compiledModule{CompiledModule: compiled, source: source}, nil
}

func (c *compiler) Serialize(module *compiledModule) ([]byte, error) {
	return modcache.Seal(module.source, c.fingerprint), nil
}

func (c *compiler) Deserialize(ctx context.Context, data []byte) (*compiledModule, error) {
	source, err := modcache.Open(data, c.fingerprint)
	if err != nil {
		return nil, err
	}
	return c.Compile(ctx, source)
}

var _ modcache.Compiler[*compiledModule] = (*compiler)(nil)
