package main

import (
	stderrors "errors"

	uxerrors "github.com/tturner/vts/internal/errors"
	"github.com/tturner/vts/internal/vtserrors"
)

// present turns a core error into a UserFriendlyError for display when it
// carries a recognized vtserrors sentinel, so operators get a hint and a
// suggested next command instead of a bare Go error string. Core packages
// never do this themselves (SPEC_FULL.md §7); it happens once, here, at
// the CLI boundary.
func present(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case stderrors.Is(err, vtserrors.ErrIO):
		return uxerrors.WrapIOError(err, "")
	case stderrors.Is(err, vtserrors.ErrParseTruncated), stderrors.Is(err, vtserrors.ErrParseTag), stderrors.Is(err, vtserrors.ErrBerOverflow):
		return uxerrors.WrapParseError(err)
	case stderrors.Is(err, vtserrors.ErrRuleParse), stderrors.Is(err, vtserrors.ErrRuleEvalType):
		return uxerrors.WrapRuleError(err, "")
	case stderrors.Is(err, vtserrors.ErrAlreadyRunning), stderrors.Is(err, vtserrors.ErrNotRunning):
		return uxerrors.WrapRunStateError(err, "vts")
	default:
		return err
	}
}
