// Package telegram sends Telegram notices when a power operation finishes.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fgeck/wakehub/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for Telegram notification operations.
type Service interface {
	SendNotification(ctx context.Context, cfg models.TelegramConfig, notice models.OperationNotice) (*models.TelegramResult, error)
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl implements the Telegram Service interface.
type Impl struct {
	httpClient HTTPClient
	logger     zerolog.Logger
	baseURL    string
}

// New creates a new Telegram service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:  logger,
		baseURL: "https://api.telegram.org",
	}
}

// NewWithClient creates a new Telegram service with a custom HTTP client (for testing).
func NewWithClient(logger zerolog.Logger, httpClient HTTPClient, baseURL string) *Impl {
	return &Impl{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
	}
}

// sendMessageRequest is the request body for Telegram sendMessage API.
type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendNotification sends an operation notice via Telegram.
func (s *Impl) SendNotification(ctx context.Context, cfg models.TelegramConfig, notice models.OperationNotice) (*models.TelegramResult, error) {
	result := &models.TelegramResult{}

	s.logger.Debug().
		Str("chat_id", cfg.ChatID).
		Str("operation_id", notice.OperationID).
		Msg("sending Telegram notification")

	reqBody := sendMessageRequest{
		ChatID:    cfg.ChatID,
		Text:      formatMessage(notice),
		ParseMode: "HTML",
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		result.Error = fmt.Errorf("failed to marshal request: %w", err)
		return result, nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, cfg.BotToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		result.Error = fmt.Errorf("failed to create request: %w", err)
		return result, nil
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		// The URL carries the bot token, keep it out of the error.
		result.Error = fmt.Errorf("failed to send request to telegram API")
		return result, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		result.Error = fmt.Errorf("telegram API returned status %d", resp.StatusCode)
		return result, nil
	}

	result.MessageSent = true
	return result, nil
}

func formatMessage(n models.OperationNotice) string {
	var b bytes.Buffer

	verb := "Wake"
	if n.Kind == models.OperationShutdown {
		verb = "Shutdown"
	}

	if n.Error == "" {
		b.WriteString(fmt.Sprintf("✅ <b>%s finished</b>\n\n", verb))
	} else {
		b.WriteString(fmt.Sprintf("❌ <b>%s failed</b>\n\n", verb))
	}

	b.WriteString(fmt.Sprintf("🖥 <b>Host:</b> %s (%s)\n", escapeHTML(n.HostName), escapeHTML(n.HostID)))
	b.WriteString(fmt.Sprintf("📶 <b>Status:</b> %s\n", escapeHTML(string(n.FinalStatus))))
	b.WriteString(fmt.Sprintf("⏰ <b>Started:</b> %s\n", n.StartTime.Format("2006-01-02 15:04:05")))
	b.WriteString(fmt.Sprintf("⏱ <b>Duration:</b> %s\n", n.Duration.Round(time.Second)))
	b.WriteString(fmt.Sprintf("🔖 <b>Operation:</b> <code>%s</code>\n", escapeHTML(n.OperationID)))

	if n.Error != "" {
		b.WriteString(fmt.Sprintf("\n<b>⚠️ Error:</b> <code>%s</code>\n", escapeHTML(n.Error)))
	}

	return b.String()
}

// escapeHTML escapes HTML special characters.
func escapeHTML(s string) string {
	var b bytes.Buffer
	for _, r := range s {
		switch r {
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '&':
			b.WriteString("&amp;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
