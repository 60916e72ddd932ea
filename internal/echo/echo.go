// Package echo re-posts every new issue comment. It is a smoke test for the
// webhook pipeline and is disabled unless listed in SCRIPTS.
package echo

import (
	"context"
	"fmt"
	"log/slog"

	gh "github.com/google/go-github/v72/github"

	"github.com/navikt/appsec-orgbot/internal/ignorable"
	"github.com/navikt/appsec-orgbot/internal/models"
	"github.com/navikt/appsec-orgbot/internal/webhook"
)

type API interface {
	CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) error
}

type Identity interface {
	Me(ctx context.Context) (models.User, error)
}

type Echo struct {
	API      API
	Identity Identity
	Logger   *slog.Logger
}

// OnIssueComment repeats the comment on the same issue. Comments written by
// the bot itself are skipped so the bot never answers itself.
func (e *Echo) OnIssueComment(ctx context.Context, event *webhook.Event) error {
	parsed, err := event.Parse()
	if err != nil {
		return fmt.Errorf("parsing issue comment payload: %w", err)
	}
	comment, ok := parsed.(*gh.IssueCommentEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for %s", parsed, event.Name)
	}
	if comment.Sender == nil {
		return fmt.Errorf("issue comment payload for %s has no sender", event.Name)
	}

	me, err := e.Identity.Me(ctx)
	if err != nil {
		return fmt.Errorf("resolving bot identity: %w", err)
	}
	if comment.GetSender().GetID() == me.ID {
		return ignorable.ErrOwnComment
	}

	number := comment.GetIssue().GetNumber()
	if err := e.API.CreateIssueComment(ctx, event.Org, event.Repo, number, comment.GetComment().GetBody()); err != nil {
		return fmt.Errorf("echoing comment on #%d: %w", number, err)
	}
	e.Logger.Debug("Echoed comment", slog.String("repo", event.Repo), slog.Int("issue", number))
	return nil
}
