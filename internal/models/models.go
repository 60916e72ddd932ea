package models

import (
	"strings"
	"time"
)

// Fate is the desired block state of a user on the block list.
type Fate string

const (
	FateBlock   Fate = "block"
	FateUnblock Fate = "unblock"
)

// Action is a single side effect issued by a reconciler.
type Action string

const (
	ActionBlock   Action = "block"
	ActionUnblock Action = "unblock"
	ActionAdd     Action = "add"
	ActionRemove  Action = "remove"
)

// BlockListEntry is one data row of the block list CSV.
// A zero ExpiresAt means the block never expires.
type BlockListEntry struct {
	Username  string
	ExpiresAt time.Time
}

// HasExpiry reports whether the entry carries a valid expiration timestamp.
func (e BlockListEntry) HasExpiry() bool {
	return !e.ExpiresAt.IsZero()
}

// FateDecision maps lower-cased usernames to their desired state.
type FateDecision map[string]Fate

// ChangeSet holds the users whose desired block state differs from the org's actual state.
type ChangeSet struct {
	Block   []string
	Unblock []string
}

func (c ChangeSet) Empty() bool {
	return len(c.Block) == 0 && len(c.Unblock) == 0
}

// TeamSpec is the team section parsed from a README.
type TeamSpec struct {
	Name     string
	Mentions []string
}

// Team is an organization team as returned by the GitHub API.
type Team struct {
	ID   int64
	Slug string
	Name string
}

// MembershipChangeSet is the difference between a TeamSpec and the team's current members.
type MembershipChangeSet struct {
	Org     string
	Team    Team
	Added   []string
	Removed []string
}

func (c MembershipChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0
}

// ActionResult is the outcome of one reconciliation call. Error is empty on success.
type ActionResult struct {
	Username string
	Action   Action
	Error    string
}

// ChangedFile is a file touched by a pull request.
type ChangedFile struct {
	Filename string
	RawURL   string
}

// Comment is an issue or pull request comment.
type Comment struct {
	ID     int64
	Author string
	Body   string
}

// User is a GitHub account.
type User struct {
	ID    int64
	Login string
}

// BlockListReport is what gets sent to notifiers after a block list sync.
type BlockListReport struct {
	Org       string
	Repo      string
	Path      string
	CommitSHA string
	Results   []ActionResult
	Body      string
}

// Failures counts results that carry an error.
func (r BlockListReport) Failures() int {
	n := 0
	for _, result := range r.Results {
		if result.Error != "" {
			n++
		}
	}
	return n
}

// NormalizeLogin lower-cases a username so logins compare case-insensitively.
func NormalizeLogin(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}
