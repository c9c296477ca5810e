package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitOK},
		{name: "validation", err: New(CodeValidationError, "bad name"), want: ExitInvalidArguments},
		{name: "confirmation", err: New(CodeConfirmationRequired, "large"), want: ExitInvalidArguments},
		{name: "not found", err: New(CodeSymbolNotFound, "nothing"), want: ExitSymbolNotFound},
		{name: "apply", err: New(CodeApplyFailed, "disk"), want: ExitApplyFailed},
		{name: "verify", err: New(CodeVerificationFailed, "syntax"), want: ExitVerificationFailed},
		{name: "overlap", err: New(CodeOverlappingEdits, "overlap"), want: ExitInternal},
		{name: "foreign", err: fmt.Errorf("boom"), want: ExitInternal},
		{name: "wrapped", err: fmt.Errorf("outer: %w", New(CodeApplyFailed, "disk")), want: ExitApplyFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestAddContext(t *testing.T) {
	err := AddContext(New(CodeSymbolNotFound, "no binding"), CtxPosition, "a.py:1:1")
	assert.True(t, IsCode(err, CodeSymbolNotFound))
	assert.Contains(t, err.Error(), "a.py:1:1")

	foreign := AddContext(fmt.Errorf("io"), CtxPath, "a.py")
	assert.Equal(t, CodeInternal, CodeOf(foreign))
	assert.Contains(t, foreign.Error(), "io")
}
