package notifications

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const telegramAPI = "https://api.telegram.org"

var levelBadge = map[string]string{
	"info":     "ℹ️",
	"success":  "✅",
	"warning":  "⚠️",
	"error":    "🚨",
	"critical": "🔥",
}

// TelegramNotifier posts guard alerts to a single chat through the Bot API.
// Alerts below warning are delivered silently.
type TelegramNotifier struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		token:   token,
		chatID:  chatID,
		baseURL: telegramAPI,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// WithBaseURL points the notifier at another API host
func (t *TelegramNotifier) WithBaseURL(base string) *TelegramNotifier {
	t.baseURL = strings.TrimRight(base, "/")
	return t
}

func (t *TelegramNotifier) SendAlert(level, message string) error {
	return t.Send(context.Background(), level, message)
}

func formatAlert(level, message string) string {
	badge, ok := levelBadge[strings.ToLower(level)]
	if !ok {
		badge = levelBadge["info"]
	}
	return fmt.Sprintf("%s *Trade Guard* [%s]\n\n%s", badge, strings.ToUpper(level), message)
}

func (t *TelegramNotifier) Send(ctx context.Context, level, message string) error {
	form := url.Values{
		"chat_id":    {t.chatID},
		"text":       {formatAlert(level, message)},
		"parse_mode": {"Markdown"},
	}
	if levelRank(level) == 0 {
		form.Set("disable_notification", "true")
	}

	endpoint := t.baseURL + "/bot" + t.token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}
