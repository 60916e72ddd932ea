package members

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	gh "github.com/google/go-github/v72/github"
	"golang.org/x/sync/errgroup"

	"github.com/navikt/appsec-orgbot/internal/github"
	"github.com/navikt/appsec-orgbot/internal/ignorable"
	"github.com/navikt/appsec-orgbot/internal/models"
	"github.com/navikt/appsec-orgbot/internal/webhook"
)

// API is the part of the GitHub client the membership sync needs.
type API interface {
	ListTeams(ctx context.Context, org, cursor string) (github.Page[models.Team], error)
	ListTeamMembers(ctx context.Context, org, teamSlug, cursor string) (github.Page[string], error)
	AddTeamMember(ctx context.Context, org, teamSlug, username string) error
	RemoveTeamMember(ctx context.Context, org, teamSlug, username string) error
	ListPullRequestFiles(ctx context.Context, owner, repo string, number int, cursor string) (github.Page[models.ChangedFile], error)
	ListIssueComments(ctx context.Context, owner, repo string, number int, cursor string) (github.Page[models.Comment], error)
	CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) error
	EditIssueComment(ctx context.Context, owner, repo string, commentID int64, body string) error
}

// ContentFetcher downloads README content from a raw URL.
type ContentFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Identity resolves the account the bot is authenticated as.
type Identity interface {
	Me(ctx context.Context) (models.User, error)
}

// TeamNotFoundError means the README names a team the organization does not have.
type TeamNotFoundError struct {
	Org  string
	Name string
}

func (e *TeamNotFoundError) Error() string {
	return "Team Not Found: " + e.Name
}

// Manager keeps a team's membership in line with the mentions in a README.
type Manager struct {
	API        API
	Content    ContentFetcher
	Identity   Identity
	RawBaseURL string
	Logger     *slog.Logger
}

func NewManager(api API, content ContentFetcher, identity Identity, rawBaseURL string, logger *slog.Logger) *Manager {
	return &Manager{
		API:        api,
		Content:    content,
		Identity:   identity,
		RawBaseURL: strings.TrimSuffix(rawBaseURL, "/"),
		Logger:     logger,
	}
}

// OnPullRequest previews the membership change a pull request would cause
// by commenting on it. The bot's earlier comment is edited when present.
func (m *Manager) OnPullRequest(ctx context.Context, event *webhook.Event) error {
	parsed, err := event.Parse()
	if err != nil {
		return fmt.Errorf("parsing pull request payload: %w", err)
	}
	prEvent, ok := parsed.(*gh.PullRequestEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for %s", parsed, event.Name)
	}
	pr := prEvent.GetPullRequest()
	number := pr.GetNumber()

	if pr.GetBase().GetRef() != prEvent.GetRepo().GetDefaultBranch() {
		return ignorable.ErrPullRequestNonDefaultBranch
	}

	readme, found, err := github.Find(ctx, func(ctx context.Context, cursor string) (github.Page[models.ChangedFile], error) {
		return m.API.ListPullRequestFiles(ctx, event.Org, event.Repo, number, cursor)
	}, func(file models.ChangedFile) bool {
		return IsRootReadme(file.Filename)
	})
	if err != nil {
		return fmt.Errorf("listing files of pull request #%d: %w", number, err)
	}
	if !found {
		return ignorable.ErrReadmeNotModified
	}

	changes, err := m.changesFromURL(ctx, event.Org, readme.RawURL)
	if err != nil {
		return err
	}
	message := MessageBody(changes)

	me, err := m.Identity.Me(ctx)
	if err != nil {
		return fmt.Errorf("resolving bot identity: %w", err)
	}
	previous, found, err := github.Find(ctx, func(ctx context.Context, cursor string) (github.Page[models.Comment], error) {
		return m.API.ListIssueComments(ctx, event.Org, event.Repo, number, cursor)
	}, func(comment models.Comment) bool {
		return strings.EqualFold(comment.Author, me.Login)
	})
	if err != nil {
		return fmt.Errorf("listing comments of pull request #%d: %w", number, err)
	}

	if found {
		err = m.API.EditIssueComment(ctx, event.Org, event.Repo, previous.ID, message)
	} else {
		err = m.API.CreateIssueComment(ctx, event.Org, event.Repo, number, message)
	}
	if err != nil {
		return fmt.Errorf("commenting on pull request #%d: %w", number, err)
	}

	m.Logger.Info("Posted team membership preview",
		slog.String("org", event.Org),
		slog.String("repo", event.Repo),
		slog.Int("pull_request", number),
		slog.String("team", changes.Team.Name),
		slog.Bool("edited", found))
	return nil
}

// OnPush applies the membership change once a README edit lands on the
// default branch. Only the head commit's added and modified files are
// considered.
func (m *Manager) OnPush(ctx context.Context, event *webhook.Event) error {
	parsed, err := event.Parse()
	if err != nil {
		return fmt.Errorf("parsing push payload: %w", err)
	}
	push, ok := parsed.(*gh.PushEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for %s", parsed, event.Name)
	}

	if push.GetRef() != "refs/heads/"+push.GetRepo().GetDefaultBranch() {
		return ignorable.ErrNonDefaultBranch
	}

	head := push.GetHeadCommit()
	if head == nil {
		return ignorable.ErrReadmeNotModified
	}
	readme := findReadme(head.Modified)
	if readme == "" {
		readme = findReadme(head.Added)
	}
	if readme == "" {
		return ignorable.ErrReadmeNotModified
	}

	url := fmt.Sprintf("%s/%s/%s/raw/%s/%s", m.RawBaseURL, event.Org, event.Repo, head.GetID(), readme)
	changes, err := m.changesFromURL(ctx, event.Org, url)
	if err != nil {
		return err
	}

	results := m.UpdateMembers(ctx, changes)
	m.Logger.Info("Updated team membership",
		slog.String("org", event.Org),
		slog.String("team", changes.Team.Name),
		slog.Int("actions", len(results)))
	return nil
}

func findReadme(files []string) string {
	for _, file := range files {
		if IsRootReadme(file) {
			return file
		}
	}
	return ""
}

func (m *Manager) changesFromURL(ctx context.Context, org, url string) (models.MembershipChangeSet, error) {
	content, err := m.Content.Fetch(ctx, url)
	if err != nil {
		return models.MembershipChangeSet{}, fmt.Errorf("fetching README: %w", err)
	}
	spec, err := ParseTeamSection(string(content))
	if err != nil {
		return models.MembershipChangeSet{}, err
	}
	m.Logger.Debug("Parsed team section", slog.String("team", spec.Name), slog.Any("mentions", spec.Mentions))
	return m.FindChangedMembers(ctx, org, spec)
}

// FindChangedMembers resolves the team named in spec and diffs its members
// against the mentions. Added keeps mention order, Removed keeps member
// order. No difference yields ignorable.ErrNoMembersChanged.
func (m *Manager) FindChangedMembers(ctx context.Context, org string, spec models.TeamSpec) (models.MembershipChangeSet, error) {
	team, found, err := github.Find(ctx, func(ctx context.Context, cursor string) (github.Page[models.Team], error) {
		return m.API.ListTeams(ctx, org, cursor)
	}, func(team models.Team) bool {
		return strings.EqualFold(team.Name, spec.Name) || strings.EqualFold(team.Slug, spec.Name)
	})
	if err != nil {
		return models.MembershipChangeSet{}, fmt.Errorf("listing teams of %s: %w", org, err)
	}
	if !found {
		return models.MembershipChangeSet{}, &TeamNotFoundError{Org: org, Name: spec.Name}
	}

	logins, err := github.Collect(ctx, func(ctx context.Context, cursor string) (github.Page[string], error) {
		return m.API.ListTeamMembers(ctx, org, team.Slug, cursor)
	})
	if err != nil {
		return models.MembershipChangeSet{}, fmt.Errorf("listing members of %s/%s: %w", org, team.Slug, err)
	}
	for i, login := range logins {
		logins[i] = models.NormalizeLogin(login)
	}

	changes := models.MembershipChangeSet{
		Org:     org,
		Team:    team,
		Added:   exclude(spec.Mentions, logins),
		Removed: exclude(logins, spec.Mentions),
	}
	if changes.Empty() {
		return changes, ignorable.ErrNoMembersChanged
	}
	return changes, nil
}

// exclude returns the items of a that are not in b, in a's order.
func exclude(a, b []string) []string {
	skip := make(map[string]bool, len(b))
	for _, item := range b {
		skip[item] = true
	}
	result := []string{}
	for _, item := range a {
		if !skip[item] {
			result = append(result, item)
		}
	}
	return result
}

// UpdateMembers adds and removes members concurrently. Failures are logged
// per user and recorded on the returned results; they never stop the others.
func (m *Manager) UpdateMembers(ctx context.Context, changes models.MembershipChangeSet) []models.ActionResult {
	results := make([]models.ActionResult, 0, len(changes.Added)+len(changes.Removed))
	for _, username := range changes.Added {
		results = append(results, models.ActionResult{Username: username, Action: models.ActionAdd})
	}
	for _, username := range changes.Removed {
		results = append(results, models.ActionResult{Username: username, Action: models.ActionRemove})
	}

	var g errgroup.Group
	for i := range results {
		result := &results[i]
		g.Go(func() error {
			var err error
			if result.Action == models.ActionAdd {
				err = m.API.AddTeamMember(ctx, changes.Org, changes.Team.Slug, result.Username)
			} else {
				err = m.API.RemoveTeamMember(ctx, changes.Org, changes.Team.Slug, result.Username)
			}
			if err != nil {
				m.Logger.Error("Failed to update team membership",
					slog.String("team", changes.Team.Slug),
					slog.String("action", string(result.Action)),
					slog.String("user", result.Username),
					slog.Any("error", err))
				result.Error = github.ErrorMessage(err)
			}
			return nil
		})
	}
	g.Wait()
	return results
}

// MessageBody is the pull request preview for changes.
func MessageBody(changes models.MembershipChangeSet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "This merge, if accepted, will cause changes to the @%s/%s team.\n", changes.Org, changes.Team.Name)
	if len(changes.Added) > 0 {
		fmt.Fprintf(&b, "- Add: @%s\n", strings.Join(changes.Added, ", @"))
	}
	if len(changes.Removed) > 0 {
		fmt.Fprintf(&b, "- Remove: @%s\n", strings.Join(changes.Removed, ", @"))
	}
	return b.String()
}
