package environment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pitchside/gatekit/pkg/environment"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  environment.Environment
	}{
		{input: "development", want: environment.Development},
		{input: "dev", want: environment.Development},
		{input: "local", want: environment.Development},
		{input: "staging", want: environment.Staging},
		{input: "stage", want: environment.Staging},
		{input: "production", want: environment.Production},
		// Unknown or unset values must never enable development behavior.
		{input: "", want: environment.Production},
		{input: "qa", want: environment.Production},
	}

	for _, tt := range tests {
		t.Run("input "+tt.input, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, environment.Parse(tt.input))
		})
	}
}

func TestPredicates(t *testing.T) {
	t.Parallel()

	assert.True(t, environment.Development.IsDevelopment())
	assert.False(t, environment.Development.IsProduction())
	assert.True(t, environment.Staging.IsStaging())
	assert.True(t, environment.Production.IsProduction())
	assert.False(t, environment.Production.IsDevelopment())
}
