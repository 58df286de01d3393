package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tturner/vts/internal/vtserrors"
)

// UserFriendlyError provides user-friendly error messages with context and hints
type UserFriendlyError struct {
	Message string
	Reason  string
	Hint    string
	Try     string
	Err     error
}

func (e UserFriendlyError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Message)
	if e.Reason != "" {
		buf.WriteString("\n  Reason: " + e.Reason)
	}
	if e.Hint != "" {
		buf.WriteString("\n  Hint: " + e.Hint)
	}
	if e.Try != "" {
		buf.WriteString("\n  Try: " + e.Try)
	}
	if e.Err != nil {
		buf.WriteString("\n  Details: " + e.Err.Error())
	}
	return buf.String()
}

func (e UserFriendlyError) Unwrap() error {
	return e.Err
}

// WrapConfigError wraps configuration errors with user-friendly context.
func WrapConfigError(err error, configPath string) error {
	if err == nil {
		return nil
	}
	return UserFriendlyError{
		Message: fmt.Sprintf("Configuration error in %s", configPath),
		Reason:  err.Error(),
		Hint:    "Check publisher/rule/sequence field ranges against the configuration contract",
		Try:     fmt.Sprintf("vts config validate %s", configPath),
		Err:     err,
	}
}

// WrapIOError wraps raw-frame port send/recv failures.
func WrapIOError(err error, iface string) error {
	if err == nil {
		return nil
	}
	return UserFriendlyError{
		Message: fmt.Sprintf("Raw-frame I/O failed on interface %s", iface),
		Reason:  extractIOReason(err),
		Hint:    "Confirm the interface exists, is up, and the process has capture permissions",
		Try:     "vts interfaces",
		Err:     err,
	}
}

// WrapParseError wraps a frame decode failure (ParseTruncated/ParseTag/BerOverflow).
func WrapParseError(err error) error {
	if err == nil {
		return nil
	}
	msg := "Failed to decode frame"
	hint := "Frame may be malformed or from an unsupported profile"
	switch {
	case errors.Is(err, vtserrors.ErrParseTruncated):
		hint = "Frame ended before a declared TLV length; the frame is likely truncated on capture"
	case errors.Is(err, vtserrors.ErrParseTag):
		hint = "Unexpected tag byte at a position where only one tag is legal"
	case errors.Is(err, vtserrors.ErrBerOverflow):
		hint = "Declared length exceeds the 65535-byte BER long-form limit"
	}
	return UserFriendlyError{
		Message: msg,
		Reason:  err.Error(),
		Hint:    hint,
		Err:     err,
	}
}

// WrapRuleError wraps a trip-rule DSL parse or evaluation-type failure.
func WrapRuleError(err error, expression string) error {
	if err == nil {
		return nil
	}
	return UserFriendlyError{
		Message: fmt.Sprintf("Trip rule error in expression %q", expression),
		Reason:  err.Error(),
		Hint:    "Grammar: or/and/not/comparison/primary, e.g. A/B.C == true && !(X > 5)",
		Err:     err,
	}
}

// WrapRunStateError wraps AlreadyRunning/NotRunning transition errors.
func WrapRunStateError(err error, component string) error {
	if err == nil {
		return nil
	}
	return UserFriendlyError{
		Message: fmt.Sprintf("%s state transition rejected", component),
		Reason:  err.Error(),
		Err:     err,
	}
}

func extractIOReason(err error) string {
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "permission denied"):
		return "Permission denied opening the interface for raw capture"
	case strings.Contains(errStr, "no such device"):
		return "Interface does not exist"
	case strings.Contains(errStr, "timeout"):
		return "No frame observed within the recv timeout"
	default:
		return "Raw-frame I/O failed"
	}
}
