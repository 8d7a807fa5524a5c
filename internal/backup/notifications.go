package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/smtp"
	"net/url"
	"os"
	"strings"
	"time"

	"backup-expiry/internal/logging"
)

// DefaultTelegramAPIURL is the Telegram Bot API endpoint
const DefaultTelegramAPIURL = "https://api.telegram.org"

// NotificationManager sends run reports through the configured channels
type NotificationManager struct {
	logger   *logging.Logger
	config   NotificationConfig
	channels []NotificationChannel
}

// NotificationConfig holds configuration for notifications. A channel is
// active when its section is present.
type NotificationConfig struct {
	// Always sends a report after successful runs too, not only on errors
	Always   bool            `yaml:"always"`
	Telegram *TelegramConfig `yaml:"telegram,omitempty"`
	Email    *EmailConfig    `yaml:"email,omitempty"`
	Webhook  *WebhookConfig  `yaml:"webhook,omitempty"`
	Slack    *SlackConfig    `yaml:"slack,omitempty"`
	File     *FileConfig     `yaml:"file,omitempty"`
}

// TelegramConfig for Telegram bot notifications
type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID string `yaml:"chat_id"`
	// APIURL overrides the Bot API endpoint
	APIURL              string        `yaml:"api_url,omitempty"`
	DisableNotification bool          `yaml:"disable_notification"`
	Timeout             time.Duration `yaml:"timeout"`
}

// EmailConfig for email notifications
type EmailConfig struct {
	SMTPHost string   `yaml:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
	Subject  string   `yaml:"subject"`
}

// WebhookConfig for generic webhook notifications
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Method  string            `yaml:"method"`
	Headers map[string]string `yaml:"headers"`
	Timeout time.Duration     `yaml:"timeout"`
}

// SlackConfig for Slack notifications
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
	Username   string `yaml:"username"`
}

// FileConfig for file-based notifications
type FileConfig struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"` // json, text
}

// Validate checks the notification channel settings
func (nc *NotificationConfig) Validate() error {
	var errors ValidationErrors

	if nc.Telegram != nil && nc.Telegram.Timeout < 0 {
		errors.Add("telegram.timeout", "timeout cannot be negative", nc.Telegram.Timeout)
	}

	if nc.Email != nil {
		if nc.Email.SMTPHost == "" {
			errors.Add("email.smtp_host", "SMTP host is required", nc.Email.SMTPHost)
		}
		if nc.Email.SMTPPort <= 0 || nc.Email.SMTPPort > 65535 {
			errors.Add("email.smtp_port", "SMTP port must be between 1 and 65535", nc.Email.SMTPPort)
		}
		if len(nc.Email.To) == 0 {
			errors.Add("email.to", "at least one recipient is required", nil)
		}
	}

	if nc.Webhook != nil {
		if u, err := url.Parse(nc.Webhook.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errors.Add("webhook.url", "a valid absolute URL is required", nc.Webhook.URL)
		}
	}

	if nc.Slack != nil && nc.Slack.WebhookURL == "" {
		errors.Add("slack.webhook_url", "webhook URL is required", nil)
	}

	if nc.File != nil {
		if nc.File.Path == "" {
			errors.Add("file.path", "path is required", nil)
		}
		if nc.File.Format != "json" && nc.File.Format != "text" {
			errors.Add("file.format", "format must be json or text", nc.File.Format)
		}
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}

// SetDefaults sets default values for present channels
func (nc *NotificationConfig) SetDefaults() {
	if nc.Telegram != nil {
		if nc.Telegram.APIURL == "" {
			nc.Telegram.APIURL = DefaultTelegramAPIURL
		}
		if nc.Telegram.Timeout == 0 {
			nc.Telegram.Timeout = 30 * time.Second
		}
	}
	if nc.Email != nil && nc.Email.SMTPPort == 0 {
		nc.Email.SMTPPort = 25
	}
	if nc.Webhook != nil {
		if nc.Webhook.Method == "" {
			nc.Webhook.Method = http.MethodPost
		}
		if nc.Webhook.Timeout == 0 {
			nc.Webhook.Timeout = 30 * time.Second
		}
	}
	if nc.File != nil && nc.File.Format == "" {
		nc.File.Format = "text"
	}
}

// LoadFromEnvironment loads channel secrets from environment variables
func (nc *NotificationConfig) LoadFromEnvironment() {
	token := os.Getenv("BACKUP_TELEGRAM_TOKEN")
	chatID := os.Getenv("BACKUP_TELEGRAM_CHAT_ID")
	if (token != "" || chatID != "") && nc.Telegram == nil {
		nc.Telegram = &TelegramConfig{}
		nc.SetDefaults()
	}
	if token != "" {
		nc.Telegram.Token = token
	}
	if chatID != "" {
		nc.Telegram.ChatID = chatID
	}

	if nc.Email != nil {
		if val := os.Getenv("BACKUP_SMTP_PASSWORD"); val != "" {
			nc.Email.Password = val
		}
	}

	if nc.Slack != nil {
		if val := os.Getenv("BACKUP_SLACK_WEBHOOK_URL"); val != "" {
			nc.Slack.WebhookURL = val
		}
	}
}

// NotificationChannel interface for different notification methods
type NotificationChannel interface {
	Send(ctx context.Context, message NotificationMessage) error
	GetType() string
	IsEnabled() bool
}

// NotificationMessage is the channel independent form of a run report
type NotificationMessage struct {
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	Severity   string    `json:"severity"`
	Timestamp  time.Time `json:"timestamp"`
	RunID      string    `json:"run_id"`
	ErrorCount int       `json:"error_count"`
	Deleted    int       `json:"deleted"`
	Errors     []string  `json:"errors,omitempty"`
}

// NewNotificationManager creates a new notification manager
func NewNotificationManager(logger *logging.Logger, config NotificationConfig) *NotificationManager {
	nm := &NotificationManager{
		logger:   logger,
		config:   config,
		channels: make([]NotificationChannel, 0),
	}

	if config.Telegram != nil {
		nm.channels = append(nm.channels, NewTelegramChannel(logger, *config.Telegram))
	}
	if config.Email != nil {
		nm.channels = append(nm.channels, NewEmailChannel(logger, *config.Email))
	}
	if config.Webhook != nil {
		nm.channels = append(nm.channels, NewWebhookChannel(logger, *config.Webhook))
	}
	if config.Slack != nil {
		nm.channels = append(nm.channels, NewSlackChannel(logger, *config.Slack))
	}
	if config.File != nil {
		nm.channels = append(nm.channels, NewFileChannel(logger, *config.File))
	}

	return nm
}

// AddChannel registers an additional channel
func (nm *NotificationManager) AddChannel(channel NotificationChannel) {
	nm.channels = append(nm.channels, channel)
}

// NotifyRun logs the error summary of a finished run and sends it through
// all enabled channels. Runs without errors are only sent when Always is set.
func (nm *NotificationManager) NotifyRun(ctx context.Context, report *RunReport) error {
	nm.logger.LogRunSummary(report.RunID, len(report.Entities), report.TotalDeleted(), report.ErrorCount(), report.Duration())

	if !report.HasErrors() && !nm.config.Always {
		return nil
	}

	message := formatMessage(report)

	var errors []string
	successCount := 0

	for _, channel := range nm.channels {
		if !channel.IsEnabled() {
			nm.logger.WithField("channel", channel.GetType()).Error("Notification channel is not configured")
			continue
		}

		err := channel.Send(ctx, message)
		if err != nil {
			errors = append(errors, fmt.Sprintf("%s: %v", channel.GetType(), err))
			nm.logger.WithFields(map[string]interface{}{
				"channel": channel.GetType(),
				"run_id":  report.RunID,
				"error":   logging.RedactSecrets(err.Error()),
			}).Error("Failed to send notification")
		} else {
			successCount++
			nm.logger.WithFields(map[string]interface{}{
				"channel": channel.GetType(),
				"run_id":  report.RunID,
			}).Info("Notification sent successfully")
		}
	}

	if len(errors) > 0 && successCount == 0 {
		return NewNotificationError(
			logging.RedactSecrets(fmt.Sprintf("all notification channels failed: %s", strings.Join(errors, "; "))), nil)
	}

	return nil
}

// formatMessage turns a run report into a notification message
func formatMessage(report *RunReport) NotificationMessage {
	message := NotificationMessage{
		Title:      "Backup expiry run",
		Message:    report.Summary(),
		Severity:   "info",
		Timestamp:  report.FinishedAt,
		RunID:      report.RunID,
		ErrorCount: report.ErrorCount(),
		Deleted:    report.TotalDeleted(),
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}

	report.mu.Lock()
	message.Errors = append(message.Errors, report.Errors...)
	report.mu.Unlock()

	if message.ErrorCount > 0 {
		message.Severity = "critical"
		message.Title = fmt.Sprintf("Backup expiry run: %d error(s)", message.ErrorCount)
	}

	return message
}

// TelegramChannel delivers reports through the Telegram Bot API
type TelegramChannel struct {
	logger *logging.Logger
	config TelegramConfig
	client *http.Client
}

// NewTelegramChannel creates a new Telegram notification channel
func NewTelegramChannel(logger *logging.Logger, config TelegramConfig) *TelegramChannel {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if config.APIURL == "" {
		config.APIURL = DefaultTelegramAPIURL
	}

	return &TelegramChannel{
		logger: logger,
		config: config,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type telegramSendMessageRequest struct {
	ChatID              string `json:"chat_id"`
	Text                string `json:"text"`
	DisableNotification bool   `json:"disable_notification,omitempty"`
}

type telegramAPIResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// Send posts the report summary as a plain text message
func (tc *TelegramChannel) Send(ctx context.Context, message NotificationMessage) error {
	if tc.config.Token == "" {
		return fmt.Errorf("Telegram 'token' is not configured")
	}
	if tc.config.ChatID == "" {
		return fmt.Errorf("Telegram 'chat_id' is not configured")
	}

	payload, err := json.Marshal(telegramSendMessageRequest{
		ChatID:              tc.config.ChatID,
		Text:                message.Message,
		DisableNotification: tc.config.DisableNotification,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal Telegram payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimSuffix(tc.config.APIURL, "/"), tc.config.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create Telegram request: %s", logging.RedactSecrets(err.Error()))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tc.client.Do(req)
	if err != nil {
		// The request URL carries the bot token
		return NewNetworkError(logging.RedactSecrets(fmt.Sprintf("failed to send Telegram message: %v", err)), nil)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("failed to read Telegram response: %w", err)
	}

	var apiResp telegramAPIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return fmt.Errorf("Telegram returned status %d with unparsable body", resp.StatusCode)
	}
	if !apiResp.OK {
		return fmt.Errorf("Telegram returned error %d: %s", apiResp.ErrorCode, apiResp.Description)
	}

	return nil
}

// GetType returns the channel type
func (tc *TelegramChannel) GetType() string {
	return "telegram"
}

// IsEnabled checks if the channel is enabled
func (tc *TelegramChannel) IsEnabled() bool {
	return tc.config.Token != "" && tc.config.ChatID != ""
}

// EmailChannel implements email notifications
type EmailChannel struct {
	logger *logging.Logger
	config EmailConfig
}

// NewEmailChannel creates a new email notification channel
func NewEmailChannel(logger *logging.Logger, config EmailConfig) *EmailChannel {
	return &EmailChannel{
		logger: logger,
		config: config,
	}
}

// Send sends an email notification
func (ec *EmailChannel) Send(ctx context.Context, message NotificationMessage) error {
	if ec.config.SMTPHost == "" || len(ec.config.To) == 0 {
		return fmt.Errorf("email configuration incomplete")
	}

	subject := ec.config.Subject
	if subject == "" {
		subject = message.Title
	}

	var body strings.Builder
	fmt.Fprintf(&body, "%s\n\nRun ID: %s\nTime: %s\nDeleted: %d\n",
		message.Message, message.RunID, message.Timestamp.Format(time.RFC3339), message.Deleted)
	if len(message.Errors) > 0 {
		body.WriteString("\nErrors:\n")
		for i, msg := range message.Errors {
			fmt.Fprintf(&body, "%d. %s\n", i+1, msg)
		}
	}

	content := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		ec.config.From, strings.Join(ec.config.To, ","), subject, body.String())

	var auth smtp.Auth
	if ec.config.Username != "" {
		auth = smtp.PlainAuth("", ec.config.Username, ec.config.Password, ec.config.SMTPHost)
	}
	addr := fmt.Sprintf("%s:%d", ec.config.SMTPHost, ec.config.SMTPPort)

	if err := smtp.SendMail(addr, auth, ec.config.From, ec.config.To, []byte(content)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

// GetType returns the channel type
func (ec *EmailChannel) GetType() string {
	return "email"
}

// IsEnabled checks if the channel is enabled
func (ec *EmailChannel) IsEnabled() bool {
	return ec.config.SMTPHost != "" && len(ec.config.To) > 0
}

// WebhookChannel implements generic webhook notifications
type WebhookChannel struct {
	logger *logging.Logger
	config WebhookConfig
	client *http.Client
}

// NewWebhookChannel creates a new webhook notification channel
func NewWebhookChannel(logger *logging.Logger, config WebhookConfig) *WebhookChannel {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &WebhookChannel{
		logger: logger,
		config: config,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send posts the message as JSON
func (wc *WebhookChannel) Send(ctx context.Context, message NotificationMessage) error {
	if wc.config.URL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	method := wc.config.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, wc.config.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range wc.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := wc.client.Do(req)
	if err != nil {
		return NewNetworkError("failed to send webhook", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned error status: %d", resp.StatusCode)
	}

	return nil
}

// GetType returns the channel type
func (wc *WebhookChannel) GetType() string {
	return "webhook"
}

// IsEnabled checks if the channel is enabled
func (wc *WebhookChannel) IsEnabled() bool {
	return wc.config.URL != ""
}

// SlackChannel implements Slack notifications
type SlackChannel struct {
	logger *logging.Logger
	config SlackConfig
	client *http.Client
}

// NewSlackChannel creates a new Slack notification channel
func NewSlackChannel(logger *logging.Logger, config SlackConfig) *SlackChannel {
	return &SlackChannel{
		logger: logger,
		config: config,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Send sends a Slack notification
func (sc *SlackChannel) Send(ctx context.Context, message NotificationMessage) error {
	if sc.config.WebhookURL == "" {
		return fmt.Errorf("Slack webhook URL not configured")
	}

	color := "#36a64f"
	if message.ErrorCount > 0 {
		color = "#ff0000"
	}

	payload := map[string]interface{}{
		"text": message.Title,
		"attachments": []map[string]interface{}{
			{
				"color":     color,
				"text":      message.Message,
				"timestamp": message.Timestamp.Unix(),
				"fields": []map[string]interface{}{
					{"title": "Run ID", "value": message.RunID, "short": true},
					{"title": "Errors", "value": message.ErrorCount, "short": true},
					{"title": "Deleted", "value": message.Deleted, "short": true},
				},
			},
		},
	}

	if sc.config.Channel != "" {
		payload["channel"] = sc.config.Channel
	}
	if sc.config.Username != "" {
		payload["username"] = sc.config.Username
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal Slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sc.config.WebhookURL, bytes.NewReader(jsonPayload))
	if err != nil {
		return fmt.Errorf("failed to create Slack request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(req)
	if err != nil {
		return NewNetworkError("failed to send Slack notification", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("Slack returned error status: %d", resp.StatusCode)
	}

	return nil
}

// GetType returns the channel type
func (sc *SlackChannel) GetType() string {
	return "slack"
}

// IsEnabled checks if the channel is enabled
func (sc *SlackChannel) IsEnabled() bool {
	return sc.config.WebhookURL != ""
}

// FileChannel appends reports to a local file
type FileChannel struct {
	logger *logging.Logger
	config FileConfig
}

// NewFileChannel creates a new file notification channel
func NewFileChannel(logger *logging.Logger, config FileConfig) *FileChannel {
	return &FileChannel{
		logger: logger,
		config: config,
	}
}

// Send writes a notification to a file
func (fc *FileChannel) Send(ctx context.Context, message NotificationMessage) error {
	if fc.config.Path == "" {
		return fmt.Errorf("file path not configured")
	}

	var content string
	switch fc.config.Format {
	case "json":
		jsonData, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("failed to marshal notification to JSON: %w", err)
		}
		content = string(jsonData) + "\n"
	default:
		content = fmt.Sprintf("[%s] %s - %s: %s\n",
			message.Timestamp.Format(time.RFC3339),
			message.Severity,
			message.RunID,
			message.Message)
	}

	file, err := os.OpenFile(fc.config.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open notification file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(content); err != nil {
		return fmt.Errorf("failed to write notification to file: %w", err)
	}

	return nil
}

// GetType returns the channel type
func (fc *FileChannel) GetType() string {
	return "file"
}

// IsEnabled checks if the channel is enabled
func (fc *FileChannel) IsEnabled() bool {
	return fc.config.Path != ""
}
