package ignorable

import (
	"errors"
	"fmt"
	"testing"
)

func TestIs(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"sentinel", ErrWrongRepo, true},
		{"wrapped sentinel", fmt.Errorf("block list: %w", ErrNotAdmin), true},
		{"constructed value", &Error{Reason: SectionNotFound}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Is(tc.err); got != tc.want {
				t.Errorf("Is(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestErrorsIsMatchesByReason(t *testing.T) {
	err := fmt.Errorf("context: %w", &Error{Reason: NoMembersChanged})

	if !errors.Is(err, ErrNoMembersChanged) {
		t.Error("expected errors.Is to match sentinel with the same reason")
	}
	if errors.Is(err, ErrReadmeNotModified) {
		t.Error("expected errors.Is not to match a different reason")
	}
}

func TestReasonOf(t *testing.T) {
	reason, ok := ReasonOf(fmt.Errorf("x: %w", ErrNonDefaultBranch))
	if !ok {
		t.Fatal("expected a reason")
	}
	if reason != NonDefaultBranch {
		t.Errorf("got %v, want %v", reason, NonDefaultBranch)
	}
	if reason.String() != "Push is on non-default branch" {
		t.Errorf("unexpected message %q", reason.String())
	}

	if _, ok := ReasonOf(errors.New("boom")); ok {
		t.Error("expected no reason for a plain error")
	}
}
