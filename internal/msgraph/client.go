// Package msgraph provides integration with Microsoft Graph API
package msgraph

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	graph "github.com/microsoftgraph/msgraph-sdk-go"
	graphmodels "github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/users"

	"github.com/navikt/appsec-orgbot/internal/models"
)

const (
	maxRetries  = 3
	baseDelay   = 100 * time.Millisecond
	sendTimeout = 30 * time.Second
)

//go:embed templates/*.md
var templateFS embed.FS

var reportTemplate = template.Must(template.ParseFS(templateFS, "templates/blocklist_report.md"))

// EmailClient mails block list reports via Microsoft Graph API
type EmailClient interface {
	NotifyBlockListChanges(ctx context.Context, report models.BlockListReport) error
}

// Config holds the Azure app registration and the addresses used for reports.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	FromAddress  string
	ToAddresses  []string
}

// SentEmail represents an email that was sent for testing
type SentEmail struct {
	Report models.BlockListReport
}

// MockEmailClient implements the EmailClient interface for testing
type MockEmailClient struct {
	SendEmailError error
	SentEmails     []SentEmail
}

func (m *MockEmailClient) NotifyBlockListChanges(ctx context.Context, report models.BlockListReport) error {
	if m.SendEmailError != nil {
		return m.SendEmailError
	}
	m.SentEmails = append(m.SentEmails, SentEmail{Report: report})
	return nil
}

type graphSDKClient struct {
	graphClient *graph.GraphServiceClient
	fromEmail   string
	toEmails    []string
	log         *slog.Logger
}

// CreateEmailGraphClient creates a new MS Graph API client for sending emails using the official SDK
func CreateEmailGraphClient(cfg Config, log *slog.Logger) (EmailClient, error) {
	if cfg.TenantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("missing required configuration: AZURE_APP_CLIENT_ID, AZURE_APP_CLIENT_SECRET, or AZURE_APP_TENANT_ID")
	}
	if cfg.FromAddress == "" {
		return nil, errors.New("missing required configuration: EMAIL_FROM_ADDRESS")
	}
	recipients := cleanAddresses(cfg.ToAddresses)
	if len(recipients) == 0 {
		return nil, errors.New("missing required configuration: EMAIL_TO_ADDRESSES")
	}

	credential, err := azidentity.NewClientSecretCredential(
		cfg.TenantID,
		cfg.ClientID,
		cfg.ClientSecret,
		&azidentity.ClientSecretCredentialOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	graphClient, err := graph.NewGraphServiceClientWithCredentials(
		credential,
		[]string{"https://graph.microsoft.com/.default"},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create MS Graph client: %w", err)
	}

	log.Info("Successfully created MS Graph email client", slog.Int("recipients", len(recipients)))
	return &graphSDKClient{
		graphClient: graphClient,
		fromEmail:   cfg.FromAddress,
		toEmails:    recipients,
		log:         log,
	}, nil
}

func cleanAddresses(addresses []string) []string {
	var cleaned []string
	for _, address := range addresses {
		if address = strings.TrimSpace(address); address != "" {
			cleaned = append(cleaned, address)
		}
	}
	return cleaned
}

// NotifyBlockListChanges mails the summary of a block list sync to every configured recipient.
func (g *graphSDKClient) NotifyBlockListChanges(ctx context.Context, report models.BlockListReport) error {
	requestBody, err := buildReportMail(report, g.toEmails)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	for i := 0; i < maxRetries; i++ {
		err = g.graphClient.Users().ByUserId(g.fromEmail).SendMail().Post(ctx, requestBody, nil)
		if err == nil {
			g.log.Info("Sent block list report email", slog.Int("recipients", len(g.toEmails)))
			return nil
		}
		g.log.Warn("Failed to send block list report email", slog.Int("attempt", i+1), slog.Any("error", err))
		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to send email: %w", ctx.Err())
		case <-time.After(baseDelay * (1 << i)):
		}
	}
	return fmt.Errorf("failed to send email after %d attempts: %w", maxRetries, err)
}

func buildReportMail(report models.BlockListReport, to []string) (users.ItemSendMailPostRequestBodyable, error) {
	emailBody, err := generateReportBody(report)
	if err != nil {
		return nil, fmt.Errorf("failed to generate email body: %w", err)
	}

	message := graphmodels.NewMessage()
	message.SetSubject(ptr(reportSubject(report)))

	itemBody := graphmodels.NewItemBody()
	contentType := graphmodels.TEXT_BODYTYPE
	itemBody.SetContentType(&contentType)
	itemBody.SetContent(&emailBody)
	message.SetBody(itemBody)

	recipients := make([]graphmodels.Recipientable, 0, len(to))
	for _, address := range to {
		recipient := graphmodels.NewRecipient()
		emailAddress := graphmodels.NewEmailAddress()
		emailAddress.SetAddress(ptr(address))
		recipient.SetEmailAddress(emailAddress)
		recipients = append(recipients, recipient)
	}
	message.SetToRecipients(recipients)

	requestBody := users.NewItemSendMailPostRequestBody()
	requestBody.SetMessage(message)
	requestBody.SetSaveToSentItems(boolPtr(false))
	return requestBody, nil
}

func reportSubject(report models.BlockListReport) string {
	subject := fmt.Sprintf("Block list synchronized for %s (%d actions)", report.Org, len(report.Results))
	if failures := report.Failures(); failures > 0 {
		subject += fmt.Sprintf(", %d failed", failures)
	}
	return subject
}

// generateReportBody renders the markdown body for the report email
func generateReportBody(report models.BlockListReport) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, report); err != nil {
		return "", fmt.Errorf("failed to execute email template: %w", err)
	}
	return buf.String(), nil
}

// Helper function to create string pointers
func ptr(s string) *string {
	return &s
}

// Helper function to create bool pointers
func boolPtr(b bool) *bool {
	return &b
}
