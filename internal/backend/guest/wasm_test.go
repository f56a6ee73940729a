package guest

// Minimal WebAssembly binary encoder for test modules.

const (
	i32 byte = 0x7f
	i64 byte = 0x7e
	f32 byte = 0x7d
)

type wasmImport struct {
	module, name    string
	params, results []byte
}

type wasmFunc struct {
	name            string
	params, results []byte
	body            []byte // instructions, including the final end (0x0b)
}

type wasmModule struct {
	imports []wasmImport
	funcs   []wasmFunc
	memory  bool
	data    []byte // placed at offset 0
}

func uleb(b []byte, v uint32) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b = append(b, c|0x80)
			continue
		}
		return append(b, c)
	}
}

func sleb(b []byte, v int64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

// i32Const encodes i32.const v.
func i32Const(v int32) []byte {
	return sleb([]byte{0x41}, int64(v))
}

// i64Const encodes i64.const v.
func i64Const(v int64) []byte {
	return sleb([]byte{0x42}, v)
}

// callFunc encodes a call to function index fn.
func callFunc(fn uint32) []byte {
	return uleb([]byte{0x10}, fn)
}

// instrs joins instructions and appends the final end.
func instrs(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return append(out, 0x0b)
}

func section(b []byte, id byte, content []byte) []byte {
	b = append(b, id)
	b = uleb(b, uint32(len(content)))
	return append(b, content...)
}

func name(b []byte, s string) []byte {
	b = uleb(b, uint32(len(s)))
	return append(b, s...)
}

func funcType(b []byte, params, results []byte) []byte {
	b = append(b, 0x60)
	b = uleb(b, uint32(len(params)))
	b = append(b, params...)
	b = uleb(b, uint32(len(results)))
	return append(b, results...)
}

func (m wasmModule) bytes() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	if len(m.imports) == 0 && len(m.funcs) == 0 && !m.memory {
		return out
	}

	types := uleb(nil, uint32(len(m.imports)+len(m.funcs)))
	for _, im := range m.imports {
		types = funcType(types, im.params, im.results)
	}
	for _, fn := range m.funcs {
		types = funcType(types, fn.params, fn.results)
	}
	out = section(out, 1, types)

	if len(m.imports) > 0 {
		imports := uleb(nil, uint32(len(m.imports)))
		for i, im := range m.imports {
			imports = name(imports, im.module)
			imports = name(imports, im.name)
			imports = append(imports, 0x00)
			imports = uleb(imports, uint32(i))
		}
		out = section(out, 2, imports)
	}

	funcs := uleb(nil, uint32(len(m.funcs)))
	for i := range m.funcs {
		funcs = uleb(funcs, uint32(len(m.imports)+i))
	}
	out = section(out, 3, funcs)

	if m.memory {
		out = section(out, 5, []byte{0x01, 0x00, 0x01})
	}

	exports := uleb(nil, uint32(len(m.funcs)))
	for i, fn := range m.funcs {
		exports = name(exports, fn.name)
		exports = append(exports, 0x00)
		exports = uleb(exports, uint32(len(m.imports)+i))
	}
	out = section(out, 7, exports)

	code := uleb(nil, uint32(len(m.funcs)))
	for _, fn := range m.funcs {
		body := append([]byte{0x00}, fn.body...)
		code = uleb(code, uint32(len(body)))
		code = append(code, body...)
	}
	out = section(out, 10, code)

	if m.memory && len(m.data) > 0 {
		data := []byte{0x01, 0x00, 0x41, 0x00, 0x0b}
		data = uleb(data, uint32(len(m.data)))
		data = append(data, m.data...)
		out = section(out, 11, data)
	}

	return out
}

// echoImage returns the image handle as the class.
var echoImage = wasmFunc{
	name:    ExportRunInference,
	params:  []byte{i32, i32, i32},
	results: []byte{i32},
	body:    []byte{0x20, 0x01, 0x0b},
}

// failImageLoad returns the ImageLoad code.
var failImageLoad = wasmFunc{
	name:    ExportRunInference,
	params:  []byte{i32, i32, i32},
	results: []byte{i32},
	body:    []byte{0x41, 0x7b, 0x0b},
}

// echoRepeats returns the repeat count as the class.
var echoRepeats = wasmFunc{
	name:    ExportRunInference,
	params:  []byte{i32, i32, i32},
	results: []byte{i32},
	body:    []byte{0x20, 0x02, 0x0b},
}

// halfScore reports 0.5 as the last score.
var halfScore = wasmFunc{
	name:    ExportLastScore,
	results: []byte{f32},
	body:    []byte{0x43, 0x00, 0x00, 0x00, 0x3f, 0x0b},
}

// acceptModel accepts every model handle.
var acceptModel = wasmFunc{
	name:    ExportLoadModel,
	params:  []byte{i32},
	results: []byte{i32},
	body:    []byte{0x41, 0x00, 0x0b},
}
