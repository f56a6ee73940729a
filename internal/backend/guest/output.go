package guest

import (
	"bytes"
	"io"
	"sync"
)

// prefixWriter prefixes every line the guest prints so it can be told apart
// from other backends in the report.
type prefixWriter struct {
	mu      sync.Mutex
	w       io.Writer
	prefix  []byte
	midLine bool
}

func newPrefixWriter(w io.Writer, prefix string) *prefixWriter {
	return &prefixWriter{w: w, prefix: []byte(prefix)}
}

func (p *prefixWriter) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := len(b)
	var buf bytes.Buffer
	for len(b) > 0 {
		if !p.midLine {
			buf.Write(p.prefix)
			p.midLine = true
		}
		i := bytes.IndexByte(b, '\n')
		if i < 0 {
			buf.Write(b)
			break
		}
		buf.Write(b[:i+1])
		b = b[i+1:]
		p.midLine = false
	}

	if _, err := p.w.Write(buf.Bytes()); err != nil {
		return 0, err
	}
	return total, nil
}
