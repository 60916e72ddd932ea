package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/navikt/appsec-orgbot/internal/github"
)

// Script names accepted in SCRIPTS.
const (
	ScriptBlockUsers    = "block-users"
	ScriptManageMembers = "manage-members"
	ScriptEcho          = "echo"
)

var knownScripts = map[string]bool{
	ScriptBlockUsers:    true,
	ScriptManageMembers: true,
	ScriptEcho:          true,
}

type SlackConfig struct {
	Enabled   string `yaml:"enabled" env:"ENABLE_SLACK_NOTIFICATIONS"`
	BotToken  string `yaml:"bot_token" env:"SLACK_BOT_TOKEN"`
	ChannelID string `yaml:"channel_id" env:"SLACK_CHANNEL_ID"`
}

type EmailConfig struct {
	Enabled      string   `yaml:"enabled" env:"ENABLE_EMAIL_NOTIFICATIONS"`
	TenantID     string   `yaml:"tenant_id" env:"AZURE_APP_TENANT_ID"`
	ClientID     string   `yaml:"client_id" env:"AZURE_APP_CLIENT_ID"`
	ClientSecret string   `yaml:"client_secret" env:"AZURE_APP_CLIENT_SECRET"`
	FromAddress  string   `yaml:"from_address" env:"EMAIL_FROM_ADDRESS"`
	ToAddresses  []string `yaml:"to_addresses" env:"EMAIL_TO_ADDRESSES" env-separator:","`
}

type GitHubConfig struct {
	Token          string `yaml:"token" env:"GITHUB_TOKEN"`
	AppID          string `yaml:"app_id" env:"GITHUB_APP_ID"`
	InstallationID string `yaml:"app_installation_id" env:"GITHUB_APP_INSTALLATION_ID"`
	PrivateKey     string `yaml:"app_private_key" env:"GITHUB_APP_PRIVATE_KEY"`
}

type Config struct {
	WebhookPath       string        `yaml:"webhook_url" env:"WEBHOOK_URL" env-default:"/"`
	Port              string        `yaml:"port" env:"PORT" env-default:"3000"`
	WebhookSecret     string        `yaml:"webhook_secret" env:"GITHUB_WEBHOOK_SECRET"`
	Scripts           []string      `yaml:"scripts" env:"SCRIPTS" env-separator:"," env-default:"block-users,manage-members"`
	BlockListURL      string        `yaml:"block_list_url" env:"BLOCK_LIST_URL"`
	RawContentBaseURL string        `yaml:"raw_content_base_url" env:"RAW_CONTENT_BASE_URL" env-default:"https://github.com"`
	LogLevel          string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"INFO"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
	GitHub            GitHubConfig  `yaml:"github"`
	Slack             SlackConfig   `yaml:"slack"`
	Email             EmailConfig   `yaml:"email"`
}

// Load reads the file at path when one exists (yaml or .env), otherwise the
// process environment. Environment variables override file values.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("cannot read config %q: %w", path, err)
			}
			return cfg, cfg.Validate()
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("cannot read config from env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects unknown script names.
func (c Config) Validate() error {
	var errs []error
	for _, script := range c.EnabledScripts() {
		if !knownScripts[script] {
			errs = append(errs, fmt.Errorf("unknown script %q", script))
		}
	}
	return errors.Join(errs...)
}

// EnabledScripts returns the trimmed, non-empty script names.
func (c Config) EnabledScripts() []string {
	var scripts []string
	for _, script := range c.Scripts {
		script = strings.ToLower(strings.TrimSpace(script))
		if script != "" {
			scripts = append(scripts, script)
		}
	}
	return scripts
}

// ScriptEnabled reports whether name is listed in SCRIPTS.
func (c Config) ScriptEnabled(name string) bool {
	for _, script := range c.EnabledScripts() {
		if script == name {
			return true
		}
	}
	return false
}

// Addr is the listen address for the webhook server.
func (c Config) Addr() string {
	return ":" + c.Port
}

// GitHubAuth converts the GitHub section into client credentials.
func (c Config) GitHubAuth() (github.AuthConfig, error) {
	auth := github.AuthConfig{
		Token:      c.GitHub.Token,
		PrivateKey: []byte(c.GitHub.PrivateKey),
	}
	if c.GitHub.AppID != "" {
		id, err := strconv.ParseInt(c.GitHub.AppID, 10, 64)
		if err != nil {
			return github.AuthConfig{}, fmt.Errorf("invalid GITHUB_APP_ID: %w", err)
		}
		auth.AppID = id
	}
	if c.GitHub.InstallationID != "" {
		id, err := strconv.ParseInt(c.GitHub.InstallationID, 10, 64)
		if err != nil {
			return github.AuthConfig{}, fmt.Errorf("invalid GITHUB_APP_INSTALLATION_ID: %w", err)
		}
		auth.InstallationID = id
	}
	return auth, nil
}

// SlackEnabled reports whether Slack notifications are switched on.
func (c Config) SlackEnabled() bool {
	return IsFeatureEnabled(c.Slack.Enabled)
}

// EmailEnabled reports whether e-mail notifications are switched on.
func (c Config) EmailEnabled() bool {
	return IsFeatureEnabled(c.Email.Enabled)
}

// IsFeatureEnabled returns true if value is "true", "yes", "1", or "on" (case insensitive)
func IsFeatureEnabled(value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	return value == "true" || value == "yes" || value == "1" || value == "on"
}

// ParseLogLevel maps LOG_LEVEL onto a slog level. Unknown values fall back to Info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// BlockListSource identifies the CSV file holding the block list.
type BlockListSource struct {
	Org    string
	Repo   string
	Branch string
	Path   string
}

// Ref is the fully qualified ref pushes to the source branch arrive on.
func (s BlockListSource) Ref() string {
	return "refs/heads/" + s.Branch
}

func (s BlockListSource) String() string {
	return fmt.Sprintf("%s/%s@%s:%s", s.Org, s.Repo, s.Branch, s.Path)
}

const rawContentHost = "raw.githubusercontent.com"

// ParseBlockListURL splits a raw.githubusercontent.com URL of the form
// https://raw.githubusercontent.com/<org>/<repo>/<branch>/<path>.
func ParseBlockListURL(raw string) (BlockListSource, error) {
	if raw == "" {
		return BlockListSource{}, errors.New("BLOCK_LIST_URL is not set")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return BlockListSource{}, fmt.Errorf("invalid BLOCK_LIST_URL: %w", err)
	}
	if !strings.EqualFold(u.Host, rawContentHost) {
		return BlockListSource{}, fmt.Errorf("invalid BLOCK_LIST_URL: host must be %s, got %q", rawContentHost, u.Host)
	}
	parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 4)
	if len(parts) != 4 {
		return BlockListSource{}, fmt.Errorf("invalid BLOCK_LIST_URL: expected /<org>/<repo>/<branch>/<path>, got %q", u.Path)
	}
	for _, part := range parts {
		if part == "" {
			return BlockListSource{}, fmt.Errorf("invalid BLOCK_LIST_URL: empty segment in %q", u.Path)
		}
	}
	return BlockListSource{Org: parts[0], Repo: parts[1], Branch: parts[2], Path: parts[3]}, nil
}
