package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/vitos/crypto_move_tracker/internal/domain"
	"go.uber.org/zap"
)

const TelegramAPIURL = "https://api.telegram.org"

type TelegramConfig struct {
	BotToken string
	ChatID   string
	BaseURL  string
}

// Telegram posts alerts to a chat through the Bot API. Follow-up alerts are
// sent as replies to the movement message.
type Telegram struct {
	botToken string
	chatID   string
	baseURL  string
	enabled  bool
	client   *http.Client
	logger   *zap.Logger
}

func NewTelegram(cfg TelegramConfig, logger *zap.Logger) *Telegram {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = TelegramAPIURL
	}
	return &Telegram{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		baseURL:  baseURL,
		enabled:  cfg.BotToken != "" && cfg.ChatID != "",
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

func (t *Telegram) Enabled() bool { return t.enabled }

type sendMessageRequest struct {
	ChatID                   string `json:"chat_id"`
	Text                     string `json:"text"`
	ReplyToMessageID         int64  `json:"reply_to_message_id,omitempty"`
	AllowSendingWithoutReply bool   `json:"allow_sending_without_reply,omitempty"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

// Notify renders and sends alert, returning the Telegram message id. When
// the notifier is not configured it logs the text and returns "".
func (t *Telegram) Notify(ctx context.Context, alert domain.Alert) (string, error) {
	text := Render(alert)
	if !t.enabled {
		t.logger.Debug("Telegram disabled, alert not sent", zap.String("text", text))
		return "", nil
	}

	req := sendMessageRequest{ChatID: t.chatID, Text: text}
	if alert.ReplyTo != "" {
		id, err := strconv.ParseInt(alert.ReplyTo, 10, 64)
		if err != nil {
			t.logger.Warn("Ignoring non-numeric reply reference", zap.String("reply_to", alert.ReplyTo))
		} else {
			req.ReplyToMessageID = id
			req.AllowSendingWithoutReply = true
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read telegram response: %w", err)
	}
	var res sendMessageResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK || !res.OK {
		return "", fmt.Errorf("telegram API returned status %d: %s", resp.StatusCode, res.Description)
	}
	return strconv.FormatInt(res.Result.MessageID, 10), nil
}
