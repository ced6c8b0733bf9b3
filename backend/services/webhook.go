package services

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/models"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/system"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// WebhookService handles Discord webhook notifications
type WebhookService struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// DiscordEmbed represents a Discord embed object
type DiscordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []DiscordEmbedField `json:"fields,omitempty"`
	Footer      *DiscordEmbedFooter `json:"footer,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
}

// DiscordEmbedField represents a field in a Discord embed
type DiscordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

// DiscordWebhookPayload represents a Discord webhook message
type DiscordWebhookPayload struct {
	Username string         `json:"username,omitempty"`
	Content  string         `json:"content,omitempty"`
	Embeds   []DiscordEmbed `json:"embeds,omitempty"`
}

// NewWebhookService creates a WebhookService posting to url; an empty url
// disables it.
func NewWebhookService(url string) *WebhookService {
	w := &WebhookService{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	w.SetWebhookURL(url)

	return w
}

// SetWebhookURL sets the Discord webhook URL
func (w *WebhookService) SetWebhookURL(url string) {
	w.webhookURL = url
	w.enabled = url != ""
}

// IsEnabled returns whether the webhook is enabled
func (w *WebhookService) IsEnabled() bool {
	return w.enabled && w.webhookURL != ""
}

// Discord color constants
const (
	ColorRed    = 0xFF0000 // Attack/Error
	ColorOrange = 0xFFAA00 // Warning
	ColorGreen  = 0x00FF00 // Success
	ColorBlue   = 0x00AAFF // Info
)

const footerText = "Cyber Ledger Dashboard"

// NotifyDetection posts an embed for a session classified as an attack.
// Normal verdicts are ignored.
func (w *WebhookService) NotifyDetection(ctx context.Context, p *models.Prediction) error {
	if !w.IsEnabled() || !p.Attack {
		return nil
	}

	country := p.CountryCode
	if country == "" {
		country = "-"
	}

	embed := DiscordEmbed{
		Title:       "🚨 Attack Detected",
		Description: fmt.Sprintf("Session **%s** was classified as an attack", p.SessionID),
		Color:       ColorRed,
		Fields: []DiscordEmbedField{
			{Name: "Confidence", Value: fmt.Sprintf("%.2f", p.Confidence), Inline: true},
			{Name: "Protocol", Value: p.ProtocolType, Inline: true},
			{Name: "Failed Logins", Value: fmt.Sprintf("%d", p.FailedLogins), Inline: true},
			{Name: "IP Reputation", Value: fmt.Sprintf("%.2f", p.IPReputationScore), Inline: true},
			{Name: "Country", Value: country, Inline: true},
			{Name: "Ledger", Value: p.LedgerStatus, Inline: true},
		},
		Footer:    &DiscordEmbedFooter{Text: footerText},
		Timestamp: p.CreatedAt.UTC().Format(time.RFC3339),
	}

	return w.sendEmbed(ctx, embed)
}

// SendLedgerAlert reports a change in ledger reachability.
func (w *WebhookService) SendLedgerAlert(ctx context.Context, healthy bool, detail string) error {
	if !w.IsEnabled() {
		return nil
	}

	embed := DiscordEmbed{
		Title:       "⚠️ Ledger Unreachable",
		Description: detail,
		Color:       ColorOrange,
		Footer:      &DiscordEmbedFooter{Text: footerText},
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	if healthy {
		embed.Title = "✅ Ledger Recovered"
		embed.Color = ColorGreen
	}

	return w.sendEmbed(ctx, embed)
}

// SendDailyReport posts the detection summary for the last day.
func (w *WebhookService) SendDailyReport(ctx context.Context, stats models.PredictionStats) error {
	if !w.IsEnabled() {
		return nil
	}

	topCountry := stats.TopCountry
	if topCountry == "" {
		topCountry = "-"
	}

	embed := DiscordEmbed{
		Title:       "📊 Daily Detection Report",
		Description: fmt.Sprintf("%d sessions scored in the last 24 hours", stats.TodayCount),
		Color:       ColorBlue,
		Fields: []DiscordEmbedField{
			{Name: "Attacks", Value: fmt.Sprintf("%d", stats.TodayAttacks), Inline: true},
			{Name: "This Week", Value: fmt.Sprintf("%d", stats.WeekCount), Inline: true},
			{Name: "Top Country", Value: topCountry, Inline: true},
			{Name: "Ledger OK", Value: fmt.Sprintf("%d", stats.LedgerStatuses["ok"]), Inline: true},
			{Name: "Ledger Failed", Value: fmt.Sprintf("%d", stats.LedgerStatuses["connection_failed"]+stats.LedgerStatuses["rejected"]+stats.LedgerStatuses["timeout"]), Inline: true},
		},
		Footer:    &DiscordEmbedFooter{Text: footerText},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	return w.sendEmbed(ctx, embed)
}

// SendTestAlert sends a test notification to verify webhook connectivity
func (w *WebhookService) SendTestAlert(ctx context.Context) error {
	if !w.IsEnabled() {
		return fmt.Errorf("webhook not configured")
	}

	embed := DiscordEmbed{
		Title:       "✅ Webhook Test",
		Description: "Discord webhook is configured correctly!",
		Color:       ColorGreen,
		Fields: []DiscordEmbedField{
			{Name: "Status", Value: "Connected", Inline: true},
			{Name: "Server Time", Value: time.Now().Format("2006-01-02 15:04:05"), Inline: true},
		},
		Footer:    &DiscordEmbedFooter{Text: footerText},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	return w.sendEmbed(ctx, embed)
}

func (w *WebhookService) sendEmbed(ctx context.Context, embed DiscordEmbed) error {
	payload := DiscordWebhookPayload{
		Username: "Cyber Ledger",
		Embeds:   []DiscordEmbed{embed},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned error status: %d", resp.StatusCode)
	}

	system.Debug("Discord webhook sent: %s", embed.Title)
	return nil
}
