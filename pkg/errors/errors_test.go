package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"config", WrapConfigError("sites", nil, "missing", cause), ErrInvalidConfig},
		{"resolution", NewResolutionError("example.test", cause), ErrResolution},
		{"contract", NewContractError("strategy_review", cause), ErrContract},
		{"persistence", NewPersistenceError("write", "/tmp/x", cause), ErrPersistence},
		{"convergence", NewConvergenceError("strategy", 3), ErrConvergenceExhausted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("target example.test: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			if tt.name != "convergence" {
				assert.ErrorIs(t, wrapped, cause)
			}
		})
	}
}

func TestFatalOnlyForConfig(t *testing.T) {
	assert.True(t, Fatal(NewConfigError("sites", nil, "empty")))
	assert.False(t, Fatal(NewResolutionError("x", nil)))
	assert.False(t, Fatal(NewContractError("execute", errors.New("x"))))
	assert.False(t, Fatal(nil))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "could not resolve nope.test", NewResolutionError("nope.test", nil).Error())
	assert.Equal(t, "report_review loop did not converge after 5 attempts",
		NewConvergenceError("report_review", 5).Error())
	assert.Contains(t, NewContractError("execute", errors.New("timeout")).Error(), "stage execute failed")
}
