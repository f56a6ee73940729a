package modcache

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"google.golang.org/protobuf/encoding/protowire"
)

// FormatVersion is the envelope layout version written by this package.
const FormatVersion uint64 = 1

const (
	fieldVersion     protowire.Number = 1
	fieldFingerprint protowire.Number = 2
	fieldModule      protowire.Number = 3
)

// Envelope is the on-disk form of a cache entry.
type Envelope struct {
	Version     uint64
	Fingerprint string
	Module      []byte
}

// EncodeEnvelope serialises env in protobuf wire format.
func EncodeEnvelope(env Envelope) []byte {
	b := make([]byte, 0, len(env.Module)+len(env.Fingerprint)+16)
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, env.Version)
	b = protowire.AppendTag(b, fieldFingerprint, protowire.BytesType)
	b = protowire.AppendString(b, env.Fingerprint)
	b = protowire.AppendTag(b, fieldModule, protowire.BytesType)
	b = protowire.AppendBytes(b, env.Module)
	return b
}

// DecodeEnvelope parses data. Unknown fields are skipped.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	var seenModule bool

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Envelope{}, fmt.Errorf("%w: %w", ErrEnvelope, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldVersion && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Envelope{}, fmt.Errorf("%w: %w", ErrEnvelope, protowire.ParseError(n))
			}
			env.Version = v
			data = data[n:]

		case num == fieldFingerprint && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return Envelope{}, fmt.Errorf("%w: %w", ErrEnvelope, protowire.ParseError(n))
			}
			env.Fingerprint = v
			data = data[n:]

		case num == fieldModule && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Envelope{}, fmt.Errorf("%w: %w", ErrEnvelope, protowire.ParseError(n))
			}
			env.Module = append([]byte(nil), v...)
			seenModule = true
			data = data[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Envelope{}, fmt.Errorf("%w: %w", ErrEnvelope, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	if !seenModule {
		return Envelope{}, fmt.Errorf("%w: missing module", ErrEnvelope)
	}
	return env, nil
}

// Open decodes data and checks it against the expected fingerprint.
func Open(data []byte, fingerprint string) ([]byte, error) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	if env.Version != FormatVersion {
		return nil, fmt.Errorf("%w: format %d, want %d", ErrIncompatible, env.Version, FormatVersion)
	}
	if env.Fingerprint != fingerprint {
		return nil, fmt.Errorf("%w: %q, want %q", ErrIncompatible, env.Fingerprint, fingerprint)
	}
	return env.Module, nil
}

// Seal wraps module in an envelope stamped with fingerprint.
func Seal(module []byte, fingerprint string) []byte {
	return EncodeEnvelope(Envelope{Version: FormatVersion, Fingerprint: fingerprint, Module: module})
}

// Fingerprint identifies a compiler build: the version of the given Go
// module as linked into this binary plus the target platform.
func Fingerprint(modulePath string) string {
	version := "devel"
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range info.Deps {
			if dep.Path == modulePath {
				version = dep.Version
				if dep.Replace != nil {
					version = dep.Replace.Version
				}
				break
			}
		}
	}
	return fmt.Sprintf("%s@%s/%s-%s", modulePath, version, runtime.GOOS, runtime.GOARCH)
}
