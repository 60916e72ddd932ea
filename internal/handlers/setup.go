package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/navikt/appsec-orgbot/internal/blocklist"
	"github.com/navikt/appsec-orgbot/internal/config"
	"github.com/navikt/appsec-orgbot/internal/github"
	"github.com/navikt/appsec-orgbot/internal/msgraph"
	"github.com/navikt/appsec-orgbot/internal/rawcontent"
	"github.com/navikt/appsec-orgbot/internal/slack"
)

// NewHandlerContext builds the GitHub client, the bot identity and the
// notifiers from cfg. Missing GitHub credentials is an error; a notifier
// that fails to initialize is logged and left out.
func NewHandlerContext(ctx context.Context, cfg config.Config, log *slog.Logger) (*HandlerContext, error) {
	auth, err := cfg.GitHubAuth()
	if err != nil {
		return nil, err
	}
	client, err := github.NewClient(ctx, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}

	return &HandlerContext{
		GitHub:       client,
		Identity:     github.NewIdentity(client.Viewer),
		Content:      rawcontent.NewFetcher(nil),
		Notifiers:    BuildNotifiers(cfg, log),
		BlockListURL: cfg.BlockListURL,
		RawBaseURL:   cfg.RawContentBaseURL,
		Logger:       log,
	}, nil
}

// BuildNotifiers returns the block list notifiers switched on in cfg.
func BuildNotifiers(cfg config.Config, log *slog.Logger) []blocklist.Notifier {
	var notifiers []blocklist.Notifier

	if cfg.SlackEnabled() {
		slackClient, err := slack.NewSlackClient(cfg.Slack.BotToken, cfg.Slack.ChannelID)
		if err != nil {
			log.Error("Failed to initialize Slack client", slog.Any("error", err))
			log.Warn("Slack notifications will be disabled despite being enabled in configuration")
		} else {
			log.Info("Slack notifications are enabled", slog.String("channel", cfg.Slack.ChannelID))
			notifiers = append(notifiers, slackClient)
		}
	} else {
		log.Info("Slack notifications are disabled by feature toggle")
	}

	if cfg.EmailEnabled() {
		emailClient, err := msgraph.CreateEmailGraphClient(msgraph.Config{
			TenantID:     cfg.Email.TenantID,
			ClientID:     cfg.Email.ClientID,
			ClientSecret: cfg.Email.ClientSecret,
			FromAddress:  cfg.Email.FromAddress,
			ToAddresses:  cfg.Email.ToAddresses,
		}, log)
		if err != nil {
			log.Error("Failed to initialize MS Graph email client", slog.Any("error", err))
			log.Warn("Email notifications will be disabled despite being enabled in configuration")
		} else {
			notifiers = append(notifiers, emailClient)
		}
	} else {
		log.Info("Email notifications are disabled by feature toggle")
	}

	return notifiers
}
