package blocklist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	gh "github.com/google/go-github/v72/github"
	"golang.org/x/sync/errgroup"

	"github.com/navikt/appsec-orgbot/internal/config"
	"github.com/navikt/appsec-orgbot/internal/github"
	"github.com/navikt/appsec-orgbot/internal/ignorable"
	"github.com/navikt/appsec-orgbot/internal/models"
	"github.com/navikt/appsec-orgbot/internal/webhook"
)

// API is the part of the GitHub client the block list sync needs.
type API interface {
	DownloadFile(ctx context.Context, owner, repo, path, ref string) ([]byte, error)
	ListBlockedUsers(ctx context.Context, org, cursor string) (github.Page[string], error)
	BlockUser(ctx context.Context, org, username string) error
	UnblockUser(ctx context.Context, org, username string) error
	LatestCommit(ctx context.Context, owner, repo, path, ref string) (string, error)
	CreateCommitComment(ctx context.Context, owner, repo, sha, body string) error
}

// Notifier receives the summary after it has been posted as a commit comment.
type Notifier interface {
	NotifyBlockListChanges(ctx context.Context, report models.BlockListReport) error
}

// DownloadError means the block list could not be fetched for a reason other
// than the file being missing.
type DownloadError struct {
	Source config.BlockListSource
	Err    error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("failed to download block list %s: %v", e.Source, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Syncer reconciles the organization's blocked users with the block list.
type Syncer struct {
	Source    config.BlockListSource
	API       API
	Notifiers []Notifier
	Logger    *slog.Logger
	Now       func() time.Time
}

func NewSyncer(source config.BlockListSource, api API, logger *slog.Logger, notifiers ...Notifier) *Syncer {
	return &Syncer{
		Source:    source,
		API:       api,
		Notifiers: notifiers,
		Logger:    logger.With(slog.String("block_list", source.String())),
		Now:       time.Now,
	}
}

// OnPush runs a sync when the push lands on the branch and repository that
// host the block list.
func (s *Syncer) OnPush(ctx context.Context, event *webhook.Event) error {
	parsed, err := event.Parse()
	if err != nil {
		return fmt.Errorf("parsing push payload: %w", err)
	}
	push, ok := parsed.(*gh.PushEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for %s", parsed, event.Name)
	}

	if push.GetRef() != s.Source.Ref() {
		return ignorable.ErrNonDefaultBranch
	}
	if !strings.EqualFold(event.Org, s.Source.Org) || !strings.EqualFold(event.Repo, s.Source.Repo) {
		return ignorable.ErrWrongRepo
	}

	report, err := s.Sync(ctx, push.GetAfter())
	if err != nil {
		return err
	}
	s.Logger.Info("Block list synchronized",
		slog.String("commit", report.CommitSHA),
		slog.Int("actions", len(report.Results)),
		slog.Int("failures", report.Failures()))
	return nil
}

// Plan computes the ChangeSet for the block list at ref without changing
// anything. An empty ref means the configured branch.
func (s *Syncer) Plan(ctx context.Context, ref string) (models.ChangeSet, error) {
	if ref == "" {
		ref = s.Source.Branch
	}

	var (
		entries []models.BlockListEntry
		blocked []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entries, err = s.fetchBlockLog(gctx, ref)
		return err
	})
	g.Go(func() error {
		var err error
		blocked, err = s.fetchBlockedUsers(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.ChangeSet{}, err
	}

	fate := DecideFate(entries, s.Now())
	changes := BuildChangeSet(fate, usernames(entries), blocked)
	s.Logger.Debug("Block list changes computed",
		slog.Int("entries", len(entries)),
		slog.Int("currently_blocked", len(blocked)),
		slog.Any("block", changes.Block),
		slog.Any("unblock", changes.Unblock))
	return changes, nil
}

// Sync plans, applies and reports. An empty ChangeSet ends the run with
// ignorable.ErrNoBlockListChanges before anything is posted.
func (s *Syncer) Sync(ctx context.Context, ref string) (models.BlockListReport, error) {
	changes, err := s.Plan(ctx, ref)
	if err != nil {
		return models.BlockListReport{}, err
	}
	if changes.Empty() {
		return models.BlockListReport{}, ignorable.ErrNoBlockListChanges
	}

	results := s.Apply(ctx, changes)
	report := models.BlockListReport{
		Org:     s.Source.Org,
		Repo:    s.Source.Repo,
		Path:    s.Source.Path,
		Results: results,
		Body:    MessageBody(results),
	}

	if ref == "" {
		ref = s.Source.Branch
	}
	sha, err := s.API.LatestCommit(ctx, s.Source.Org, s.Source.Repo, s.Source.Path, ref)
	if err != nil {
		return report, fmt.Errorf("failed to find latest commit to %s: %w", s.Source.Path, err)
	}
	report.CommitSHA = sha

	if err := s.API.CreateCommitComment(ctx, s.Source.Org, s.Source.Repo, sha, report.Body); err != nil {
		return report, fmt.Errorf("failed to comment on commit %s: %w", sha, err)
	}

	s.notify(ctx, report)
	return report, nil
}

// Apply issues every unblock, then every block. Calls within each phase run
// concurrently. A failing call is recorded on its result and never stops the
// others.
func (s *Syncer) Apply(ctx context.Context, changes models.ChangeSet) []models.ActionResult {
	results := make([]models.ActionResult, 0, len(changes.Unblock)+len(changes.Block))
	results = append(results, s.applyAll(ctx, models.ActionUnblock, changes.Unblock, s.API.UnblockUser)...)
	results = append(results, s.applyAll(ctx, models.ActionBlock, changes.Block, s.API.BlockUser)...)
	return results
}

func (s *Syncer) applyAll(ctx context.Context, action models.Action, users []string, call func(ctx context.Context, org, username string) error) []models.ActionResult {
	results := make([]models.ActionResult, len(users))
	var g errgroup.Group
	for i, username := range users {
		g.Go(func() error {
			results[i] = models.ActionResult{Username: username, Action: action}
			s.Logger.Debug("Attempting block list action", slog.String("action", string(action)), slog.String("user", username))
			if err := call(ctx, s.Source.Org, username); err != nil {
				s.Logger.Warn("Block list action failed",
					slog.String("action", string(action)),
					slog.String("user", username),
					slog.Any("error", err))
				results[i].Error = github.ErrorMessage(err)
			}
			return nil
		})
	}
	g.Wait()
	return results
}

func (s *Syncer) fetchBlockLog(ctx context.Context, ref string) ([]models.BlockListEntry, error) {
	content, err := s.API.DownloadFile(ctx, s.Source.Org, s.Source.Repo, s.Source.Path, ref)
	if err != nil {
		if github.IsNotFound(err) {
			return nil, fmt.Errorf("block list %s not found: %w", s.Source, ignorable.ErrNotAdmin)
		}
		return nil, &DownloadError{Source: s.Source, Err: err}
	}
	return ParseBlockLog(content), nil
}

func (s *Syncer) fetchBlockedUsers(ctx context.Context) ([]string, error) {
	blocked, err := github.Collect(ctx, func(ctx context.Context, cursor string) (github.Page[string], error) {
		return s.API.ListBlockedUsers(ctx, s.Source.Org, cursor)
	})
	if err != nil {
		if github.IsNotFound(err) {
			return nil, fmt.Errorf("listing blocked users of %s: %w", s.Source.Org, ignorable.ErrNotAdmin)
		}
		return nil, fmt.Errorf("listing blocked users of %s: %w", s.Source.Org, err)
	}
	return blocked, nil
}

func (s *Syncer) notify(ctx context.Context, report models.BlockListReport) {
	var wg sync.WaitGroup
	for _, notifier := range s.Notifiers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := notifier.NotifyBlockListChanges(ctx, report); err != nil {
				s.Logger.Error("Failed to send block list notification", slog.Any("error", err))
			}
		}()
	}
	wg.Wait()
}

// MessageBody renders one line per result, in result order.
func MessageBody(results []models.ActionResult) string {
	lines := make([]string, len(results))
	for i, result := range results {
		if result.Error != "" {
			lines[i] = fmt.Sprintf("@%s failed to %s: %s", result.Username, result.Action, result.Error)
		} else {
			lines[i] = fmt.Sprintf("@%s was %sed", result.Username, result.Action)
		}
	}
	return strings.Join(lines, "\n")
}

// IsDownloadError reports whether err came from fetching the block list.
func IsDownloadError(err error) bool {
	var target *DownloadError
	return errors.As(err, &target)
}
