package slack

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slack-go/slack"

	"github.com/navikt/appsec-orgbot/internal/models"
)

const (
	maxRetries = 3
	baseDelay  = time.Second
)

// SlackClient posts block list reports to a single channel.
type SlackClient struct {
	client    *slack.Client
	channelID string
	baseDelay time.Duration
}

func NewSlackClient(token, channelID string, options ...slack.Option) (*SlackClient, error) {
	if token == "" {
		return nil, errors.New("missing Slack bot token")
	}
	if channelID == "" {
		return nil, errors.New("missing Slack channel ID")
	}
	return &SlackClient{
		client:    slack.New(token, options...),
		channelID: channelID,
		baseDelay: baseDelay,
	}, nil
}

// doWithRetry retries the provided function with exponential backoff
func (s *SlackClient) doWithRetry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if i == maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.baseDelay * (1 << i)):
		}
	}
	return fmt.Errorf("after %d retries, last error: %w", maxRetries, err)
}

// NotifyBlockListChanges posts the summary of a block list sync.
func (s *SlackClient) NotifyBlockListChanges(ctx context.Context, report models.BlockListReport) error {
	text := FormatReport(report)
	return s.doWithRetry(ctx, func() error {
		_, _, err := s.client.PostMessageContext(ctx, s.channelID, slack.MsgOptionText(text, false))
		return err
	})
}

// FormatReport renders report as Slack mrkdwn.
func FormatReport(report models.BlockListReport) string {
	sha := report.CommitSHA
	if len(sha) > 7 {
		sha = sha[:7]
	}
	header := fmt.Sprintf("*Block list synchronized* for `%s/%s` (%s at `%s`)", report.Org, report.Repo, report.Path, sha)
	if failures := report.Failures(); failures > 0 {
		header += fmt.Sprintf(", %d of %d actions failed", failures, len(report.Results))
	}
	return header + "\n```\n" + report.Body + "\n```"
}
