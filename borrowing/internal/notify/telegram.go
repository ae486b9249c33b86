package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type TelegramConfig struct {
	APIToken string        `envconfig:"TELEGRAM_API_TOKEN"`
	ChatID   string        `envconfig:"TELEGRAM_CHAT_ID"`
	BaseURL  string        `envconfig:"TELEGRAM_BASE_URL" default:"https://api.telegram.org"`
	Timeout  time.Duration `envconfig:"TELEGRAM_TIMEOUT" default:"5s"`
}

func (c TelegramConfig) Enabled() bool {
	return c.APIToken != "" && c.ChatID != ""
}

type Telegram struct {
	cfg    TelegramConfig
	client *http.Client
	wg     sync.WaitGroup
	log    *zap.Logger
}

func NewTelegram(cfg TelegramConfig, log *zap.Logger) *Telegram {
	return &Telegram{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.Named("telegram"),
	}
}

func (t *Telegram) Notify(ctx context.Context, text string) {
	ctx = context.WithoutCancel(ctx)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := t.send(ctx, text); err != nil {
			t.log.Warn("send", zap.Error(err))
		}
	}()
}

// Close waits for in-flight messages.
func (t *Telegram) Close() {
	t.wg.Wait()
}

func (t *Telegram) send(ctx context.Context, text string) error {
	type sendMessage struct {
		ChatID string `json:"chat_id"`
		Text   string `json:"text"`
	}
	body, err := json.Marshal(sendMessage{ChatID: t.cfg.ChatID, Text: text})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.cfg.BaseURL, t.cfg.APIToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram: status %d: %s", resp.StatusCode, data)
	}
	return nil
}
