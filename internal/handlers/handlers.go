package handlers

import (
	"fmt"
	"log/slog"

	"github.com/navikt/appsec-orgbot/internal/blocklist"
	"github.com/navikt/appsec-orgbot/internal/config"
	"github.com/navikt/appsec-orgbot/internal/echo"
	"github.com/navikt/appsec-orgbot/internal/members"
	"github.com/navikt/appsec-orgbot/internal/webhook"
)

// GitHubAPI is everything the scripts call on GitHub.
type GitHubAPI interface {
	blocklist.API
	members.API
	echo.API
}

// HandlerContext holds dependencies for the handlers
type HandlerContext struct {
	GitHub       GitHubAPI
	Identity     members.Identity
	Content      members.ContentFetcher
	Notifiers    []blocklist.Notifier
	BlockListURL string
	RawBaseURL   string
	Logger       *slog.Logger
}

// BlockListSyncer builds the block list sync for BlockListURL.
func (ctx *HandlerContext) BlockListSyncer() (*blocklist.Syncer, error) {
	source, err := config.ParseBlockListURL(ctx.BlockListURL)
	if err != nil {
		return nil, err
	}
	return blocklist.NewSyncer(source, ctx.GitHub, ctx.Logger.With(slog.String("script", config.ScriptBlockUsers)), ctx.Notifiers...), nil
}

// Register wires the named scripts into router. A malformed block list URL
// disables block-users with a warning; an unknown script name is an error.
func (ctx *HandlerContext) Register(router *webhook.Router, scripts []string) error {
	for _, script := range scripts {
		var err error
		switch script {
		case config.ScriptBlockUsers:
			err = ctx.registerBlockUsers(router)
		case config.ScriptManageMembers:
			err = ctx.registerManageMembers(router)
		case config.ScriptEcho:
			err = ctx.registerEcho(router)
		default:
			err = fmt.Errorf("unknown script %q", script)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (ctx *HandlerContext) registerBlockUsers(router *webhook.Router) error {
	syncer, err := ctx.BlockListSyncer()
	if err != nil {
		ctx.Logger.Warn("Block list sync is disabled",
			slog.String("script", config.ScriptBlockUsers),
			slog.String("block_list_url", ctx.BlockListURL),
			slog.Any("error", err))
		return nil
	}
	ctx.Logger.Info("Registered script",
		slog.String("script", config.ScriptBlockUsers),
		slog.String("block_list", syncer.Source.String()))
	return router.On(webhook.Push, config.ScriptBlockUsers, syncer.OnPush)
}

func (ctx *HandlerContext) registerManageMembers(router *webhook.Router) error {
	manager := members.NewManager(ctx.GitHub, ctx.Content, ctx.Identity, ctx.RawBaseURL,
		ctx.Logger.With(slog.String("script", config.ScriptManageMembers)))

	if err := router.On(webhook.Push, config.ScriptManageMembers, manager.OnPush); err != nil {
		return err
	}
	if err := router.On(webhook.PullRequestOpened, config.ScriptManageMembers, manager.OnPullRequest); err != nil {
		return err
	}
	if err := router.On(webhook.PullRequestSynchronize, config.ScriptManageMembers, manager.OnPullRequest); err != nil {
		return err
	}
	ctx.Logger.Info("Registered script", slog.String("script", config.ScriptManageMembers))
	return nil
}

func (ctx *HandlerContext) registerEcho(router *webhook.Router) error {
	e := &echo.Echo{
		API:      ctx.GitHub,
		Identity: ctx.Identity,
		Logger:   ctx.Logger.With(slog.String("script", config.ScriptEcho)),
	}
	if err := router.On(webhook.IssueCommentCreated, config.ScriptEcho, e.OnIssueComment); err != nil {
		return err
	}
	ctx.Logger.Info("Registered script", slog.String("script", config.ScriptEcho))
	return nil
}
