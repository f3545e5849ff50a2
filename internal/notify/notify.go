package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/skalibog/sta/internal/config"
	"github.com/skalibog/sta/pkg/logger"
	"github.com/skalibog/sta/pkg/models"
	"go.uber.org/zap"
)

const requestTimeout = 10 * time.Second

// Цвета карточек Discord
const (
	colorLong    = 0x00FF00
	colorShort   = 0xFF0000
	colorNeutral = 0x0077CC
)

// Notifier провайдер уведомлений
type Notifier interface {
	Send(ctx context.Context, message string) error
	Name() string
	IsEnabled() bool
}

// Manager рассылает сообщение всем включенным провайдерам
type Manager struct {
	notifiers []Notifier
}

// NewManager создает менеджер уведомлений
func NewManager() *Manager {
	return &Manager{
		notifiers: make([]Notifier, 0),
	}
}

// NewManagerFromConfig создает менеджер с провайдерами из конфигурации
func NewManagerFromConfig(cfg config.NotifyConfig) *Manager {
	m := NewManager()
	m.AddNotifier(NewTelegramNotifier(cfg.Telegram))
	m.AddNotifier(NewDiscordNotifier(cfg.Discord))
	return m
}

// AddNotifier добавляет провайдера
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Name имя менеджера
func (m *Manager) Name() string {
	return "manager"
}

// IsEnabled true, если включен хотя бы один провайдер
func (m *Manager) IsEnabled() bool {
	for _, n := range m.notifiers {
		if n.IsEnabled() {
			return true
		}
	}
	return false
}

// Send отправляет сообщение всем включенным провайдерам.
// Ошибки всех провайдеров объединяются и оборачиваются в ErrNotificationFailure.
func (m *Manager) Send(ctx context.Context, message string) error {
	var errs []error
	for _, n := range m.notifiers {
		if !n.IsEnabled() {
			continue
		}
		if err := n.Send(ctx, message); err != nil {
			logger.Warn("Ошибка отправки уведомления", zap.String("provider", n.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		logger.Debug("Уведомление отправлено", zap.String("provider", n.Name()))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", models.ErrNotificationFailure, errors.Join(errs...))
	}
	return nil
}

// TelegramNotifier отправляет уведомления через Telegram Bot API
type TelegramNotifier struct {
	apiURL   string
	botToken string
	chatID   string
	enabled  bool
	client   *http.Client
}

// NewTelegramNotifier создает провайдер Telegram
func NewTelegramNotifier(cfg config.TelegramConfig) *TelegramNotifier {
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = "https://api.telegram.org"
	}
	return &TelegramNotifier{
		apiURL:   strings.TrimRight(apiURL, "/"),
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		enabled:  cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != "",
		client:   &http.Client{Timeout: requestTimeout},
	}
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

func (t *TelegramNotifier) Send(ctx context.Context, message string) error {
	if !t.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"chat_id": t.chatID,
		"text":    message,
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.botToken)
	return postJSON(ctx, t.client, endpoint, payload, http.StatusOK)
}

// DiscordNotifier отправляет уведомления через вебхук Discord
type DiscordNotifier struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// NewDiscordNotifier создает провайдер Discord
func NewDiscordNotifier(cfg config.DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: cfg.WebhookURL,
		enabled:    cfg.Enabled && cfg.WebhookURL != "",
		client:     &http.Client{Timeout: requestTimeout},
	}
}

func (d *DiscordNotifier) Name() string {
	return "discord"
}

func (d *DiscordNotifier) IsEnabled() bool {
	return d.enabled
}

func (d *DiscordNotifier) Send(ctx context.Context, message string) error {
	if !d.enabled {
		return nil
	}

	title, body, _ := strings.Cut(message, "\n")
	embed := map[string]interface{}{
		"title":       title,
		"description": strings.TrimSpace(body),
		"color":       embedColor(title),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}
	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{embed},
	}
	return postJSON(ctx, d.client, d.webhookURL, payload, http.StatusOK, http.StatusNoContent)
}

// embedColor цвет карточки по направлению из заголовка
func embedColor(title string) int {
	upper := strings.ToUpper(title)
	switch {
	case strings.Contains(upper, " SHORT"):
		return colorShort
	case strings.Contains(upper, " LONG"):
		return colorLong
	}
	return colorNeutral
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, payload interface{}, okStatuses ...int) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ошибка сериализации: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		// URL содержит токен бота
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("ошибка отправки: %w", err)
	}
	defer resp.Body.Close()

	for _, code := range okStatuses {
		if resp.StatusCode == code {
			return nil
		}
	}
	return fmt.Errorf("API вернул статус %d", resp.StatusCode)
}
