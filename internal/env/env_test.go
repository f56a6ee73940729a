package env

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekisa-team/synbench/internal/envvar"
)

func TestParse(t *testing.T) {
	assert.Equal(t, Production, Parse("production"))
	assert.Equal(t, Production, Parse(" PROD "))
	assert.Equal(t, Test, Parse("test"))
	assert.Equal(t, Development, Parse(""))
	assert.Equal(t, Development, Parse("staging"))
}

func TestFromEnv(t *testing.T) {
	t.Setenv(envvar.SynbenchEnv, "production")
	assert.True(t, FromEnv().IsProduction())

	t.Setenv(envvar.SynbenchEnv, "")
	assert.Equal(t, Development, FromEnv())
}
