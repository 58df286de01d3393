package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/tturner/vts/internal/vtserrors"
)

func TestUserFriendlyError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      UserFriendlyError
		contains []string
	}{
		{
			name:     "message only",
			err:      UserFriendlyError{Message: "something broke"},
			contains: []string{"something broke"},
		},
		{
			name: "all fields",
			err: UserFriendlyError{
				Message: "publish failed",
				Reason:  "timeout",
				Hint:    "check interface",
				Try:     "vts interfaces",
				Err:     fmt.Errorf("send: timeout"),
			},
			contains: []string{"publish failed", "Reason: timeout", "Hint: check interface", "Try: vts interfaces", "Details: send: timeout"},
		},
		{
			name: "no reason",
			err: UserFriendlyError{
				Message: "failed",
				Hint:    "hint here",
			},
			contains: []string{"failed", "Hint: hint here"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("Error() = %q, want to contain %q", msg, s)
				}
			}
		})
	}
}

func TestUserFriendlyError_ErrorOmitsEmptyFields(t *testing.T) {
	err := UserFriendlyError{Message: "msg"}
	msg := err.Error()
	if strings.Contains(msg, "Reason:") || strings.Contains(msg, "Hint:") || strings.Contains(msg, "Try:") || strings.Contains(msg, "Details:") {
		t.Errorf("Error() = %q, should not contain empty fields", msg)
	}
}

func TestUserFriendlyError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("root cause")
	err := UserFriendlyError{Message: "wrapper", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("Unwrap should return the inner error")
	}

	var nilErr UserFriendlyError
	if nilErr.Unwrap() != nil {
		t.Error("Unwrap on nil Err should return nil")
	}
}

func TestWrapConfigError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if WrapConfigError(nil, "config.yaml") != nil {
			t.Error("expected nil")
		}
	})

	t.Run("wraps config error", func(t *testing.T) {
		err := WrapConfigError(fmt.Errorf("vlanId out of range: %w", vtserrors.ErrConfigInvalid), "vts.yaml")
		ufe := err.(UserFriendlyError)
		if !strings.Contains(ufe.Message, "vts.yaml") {
			t.Errorf("message should contain config path, got %q", ufe.Message)
		}
		if !strings.Contains(ufe.Reason, "vlanId") {
			t.Errorf("reason should be inner error message, got %q", ufe.Reason)
		}
	})
}

func TestWrapIOError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if WrapIOError(nil, "eth0") != nil {
			t.Error("expected nil")
		}
	})

	t.Run("permission denied", func(t *testing.T) {
		err := WrapIOError(fmt.Errorf("permission denied"), "eth0")
		ufe := err.(UserFriendlyError)
		if !strings.Contains(ufe.Reason, "Permission denied") {
			t.Errorf("reason should mention permission, got %q", ufe.Reason)
		}
		if !strings.Contains(ufe.Message, "eth0") {
			t.Errorf("message should contain interface, got %q", ufe.Message)
		}
	})

	t.Run("no such device", func(t *testing.T) {
		err := WrapIOError(fmt.Errorf("no such device"), "eth9")
		ufe := err.(UserFriendlyError)
		if !strings.Contains(ufe.Reason, "does not exist") {
			t.Errorf("reason should mention nonexistence, got %q", ufe.Reason)
		}
	})
}

func TestWrapParseError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if WrapParseError(nil) != nil {
			t.Error("expected nil")
		}
	})

	t.Run("truncated frame", func(t *testing.T) {
		err := WrapParseError(fmt.Errorf("goose allData: %w", vtserrors.ErrParseTruncated))
		ufe := err.(UserFriendlyError)
		if !strings.Contains(ufe.Hint, "truncated") {
			t.Errorf("hint should mention truncation, got %q", ufe.Hint)
		}
	})

	t.Run("ber overflow", func(t *testing.T) {
		err := WrapParseError(fmt.Errorf("length: %w", vtserrors.ErrBerOverflow))
		ufe := err.(UserFriendlyError)
		if !strings.Contains(ufe.Hint, "65535") {
			t.Errorf("hint should mention the limit, got %q", ufe.Hint)
		}
	})
}

func TestWrapRuleError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if WrapRuleError(nil, "A == true") != nil {
			t.Error("expected nil")
		}
	})

	t.Run("wraps with expression", func(t *testing.T) {
		err := WrapRuleError(fmt.Errorf("unexpected token at 4: %w", vtserrors.ErrRuleParse), "A ===")
		ufe := err.(UserFriendlyError)
		if !strings.Contains(ufe.Message, "A ===") {
			t.Errorf("message should contain expression, got %q", ufe.Message)
		}
	})
}

func TestWrapRunStateError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if WrapRunStateError(nil, "sequence") != nil {
			t.Error("expected nil")
		}
	})

	t.Run("wraps with component name", func(t *testing.T) {
		err := WrapRunStateError(fmt.Errorf("start: %w", vtserrors.ErrAlreadyRunning), "sequence")
		ufe := err.(UserFriendlyError)
		if !strings.Contains(ufe.Message, "sequence") {
			t.Errorf("message should contain component, got %q", ufe.Message)
		}
	})
}
