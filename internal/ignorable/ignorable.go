// Package ignorable enumerates the expected conditions under which a handler
// stops early without anything being wrong. They are logged at debug level and
// never reported as operational errors.
package ignorable

import "errors"

// Reason identifies why a handler stopped early.
type Reason int

const (
	WrongRepo Reason = iota + 1
	NonDefaultBranch
	PullRequestNonDefaultBranch
	ReadmeNotModified
	SectionNotFound
	NoMembersChanged
	NoBlockListChanges
	NotAdmin
	OwnComment
)

var reasonText = map[Reason]string{
	WrongRepo:                   "Wrong repo",
	NonDefaultBranch:            "Push is on non-default branch",
	PullRequestNonDefaultBranch: "PR is to non-default branch",
	ReadmeNotModified:           "README not modified",
	SectionNotFound:             "Members section not found",
	NoMembersChanged:            "No members changed",
	NoBlockListChanges:          "No block list changes",
	NotAdmin:                    "Bot does not have admin access to the organization",
	OwnComment:                  "Comment was authored by the bot",
}

func (r Reason) String() string {
	if text, ok := reasonText[r]; ok {
		return text
	}
	return "Unknown reason"
}

// Error carries a Reason. Wrap it with fmt.Errorf to add context; Is and
// ReasonOf still see through the wrapping.
type Error struct {
	Reason Reason
}

func (e *Error) Error() string {
	return e.Reason.String()
}

// Is matches any *Error with the same Reason, so errors.Is works against the
// sentinels below even for separately constructed values.
func (e *Error) Is(target error) bool {
	var other *Error
	return errors.As(target, &other) && other.Reason == e.Reason
}

var (
	ErrWrongRepo                   = &Error{Reason: WrongRepo}
	ErrNonDefaultBranch            = &Error{Reason: NonDefaultBranch}
	ErrPullRequestNonDefaultBranch = &Error{Reason: PullRequestNonDefaultBranch}
	ErrReadmeNotModified           = &Error{Reason: ReadmeNotModified}
	ErrSectionNotFound             = &Error{Reason: SectionNotFound}
	ErrNoMembersChanged            = &Error{Reason: NoMembersChanged}
	ErrNoBlockListChanges          = &Error{Reason: NoBlockListChanges}
	ErrNotAdmin                    = &Error{Reason: NotAdmin}
	ErrOwnComment                  = &Error{Reason: OwnComment}
)

// Is reports whether err is, or wraps, an ignorable condition.
func Is(err error) bool {
	_, ok := ReasonOf(err)
	return ok
}

// ReasonOf extracts the Reason from err, if any.
func ReasonOf(err error) (Reason, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target.Reason, true
	}
	return 0, false
}
