package echo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/navikt/appsec-orgbot/internal/ignorable"
	"github.com/navikt/appsec-orgbot/internal/models"
	"github.com/navikt/appsec-orgbot/internal/webhook"
)

type fakeAPI struct {
	comments []string
}

func (f *fakeAPI) CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) error {
	f.comments = append(f.comments, fmt.Sprintf("%s/%s#%d: %s", owner, repo, number, body))
	return nil
}

type fakeIdentity struct {
	user models.User
	err  error
}

func (f fakeIdentity) Me(ctx context.Context) (models.User, error) {
	return f.user, f.err
}

func commentEvent(t *testing.T, senderID int64) *webhook.Event {
	t.Helper()
	body := fmt.Sprintf(`{"action":"created","issue":{"number":5},"comment":{"body":"hello"},"sender":{"id":%d,"login":"someone"},"repository":{"name":"site","owner":{"login":"acme"}}}`, senderID)
	event, err := webhook.ParseEvent("issue_comment", []byte(body))
	if err != nil {
		t.Fatal(err)
	}
	return event
}

func TestOnIssueComment(t *testing.T) {
	api := &fakeAPI{}
	e := &Echo{API: api, Identity: fakeIdentity{user: models.User{ID: 42, Login: "orgbot"}}, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	if err := e.OnIssueComment(context.Background(), commentEvent(t, 7)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(api.comments) != 1 || api.comments[0] != "acme/site#5: hello" {
		t.Errorf("comments = %v", api.comments)
	}

	err := e.OnIssueComment(context.Background(), commentEvent(t, 42))
	if !errors.Is(err, ignorable.ErrOwnComment) {
		t.Errorf("expected own comment to be skipped, got %v", err)
	}
	if len(api.comments) != 1 {
		t.Errorf("bot must not echo itself, comments = %v", api.comments)
	}
}

func TestOnIssueCommentIdentityFailure(t *testing.T) {
	api := &fakeAPI{}
	e := &Echo{API: api, Identity: fakeIdentity{err: errors.New("bad credentials")}, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	err := e.OnIssueComment(context.Background(), commentEvent(t, 7))
	if err == nil || ignorable.Is(err) {
		t.Errorf("expected genuine error, got %v", err)
	}
	if len(api.comments) != 0 {
		t.Errorf("expected no comments, got %v", api.comments)
	}
}

func TestOnIssueCommentWithoutSender(t *testing.T) {
	api := &fakeAPI{}
	e := &Echo{API: api, Identity: fakeIdentity{user: models.User{ID: 42, Login: "orgbot"}}, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	body := `{"action":"created","issue":{"number":5},"comment":{"body":"hello"},"repository":{"name":"site","owner":{"login":"acme"}}}`
	event, err := webhook.ParseEvent("issue_comment", []byte(body))
	if err != nil {
		t.Fatal(err)
	}

	err = e.OnIssueComment(context.Background(), event)
	if err == nil || ignorable.Is(err) {
		t.Errorf("expected genuine error, got %v", err)
	}
	if len(api.comments) != 0 {
		t.Errorf("expected no comments, got %v", api.comments)
	}
}
