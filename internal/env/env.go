package env

import (
	"os"
	"strings"

	"github.com/ekisa-team/synbench/internal/envvar"
)

// Environment is the deployment environment the process runs in.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
	Test        Environment = "test"
)

// FromEnv reads SYNBENCH_ENV. Unset or unknown values mean Development.
func FromEnv() Environment {
	return Parse(os.Getenv(envvar.SynbenchEnv))
}

// Parse maps a name to an Environment.
func Parse(s string) Environment {
	switch Environment(strings.ToLower(strings.TrimSpace(s))) {
	case Production, "prod":
		return Production
	case Test:
		return Test
	default:
		return Development
	}
}

// IsProduction reports whether e is Production.
func (e Environment) IsProduction() bool {
	return e == Production
}

func (e Environment) String() string {
	return string(e)
}
