package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TelegramOptions 描述 Telegram Bot API 参数。
type TelegramOptions struct {
	BotToken    string
	APIBase     string
	Timeout     time.Duration
	PollTimeout time.Duration
}

// TelegramClient wraps the handful of Bot API calls the tracker needs:
// sendMessage for alerts, getUpdates/setMyCommands for the command bot.
type TelegramClient struct {
	opts    TelegramOptions
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// Update is one entry from getUpdates.
type Update struct {
	UpdateID int64 `json:"update_id"`
	Message  struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

// BotCommand is one entry of the registered command menu.
type BotCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// NewTelegramClient 构造 Telegram API 客户端。
func NewTelegramClient(opts TelegramOptions, logger zerolog.Logger) *TelegramClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 30 * time.Second
	}
	if opts.APIBase == "" {
		opts.APIBase = "https://api.telegram.org"
	}

	return &TelegramClient{
		opts:    opts,
		baseURL: strings.TrimRight(opts.APIBase, "/"),
		// long-poll requests hold the connection for PollTimeout
		client: &http.Client{Timeout: opts.PollTimeout + opts.Timeout},
		logger: logger.With().Str("component", "telegram").Logger(),
	}
}

// SendMessage 调用 sendMessage API 推送文本。
func (c *TelegramClient) SendMessage(ctx context.Context, chatID, text string) error {
	payload := map[string]string{
		"chat_id": chatID,
		"text":    text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.opts.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

// GetUpdates long-polls for new updates past the given offset.
func (c *TelegramClient) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	query := url.Values{}
	query.Set("timeout", strconv.Itoa(int(c.opts.PollTimeout/time.Second)))
	if offset > 0 {
		query.Set("offset", strconv.FormatInt(offset, 10))
	}

	endpoint := fmt.Sprintf("%s/bot%s/getUpdates?%s", c.baseURL, c.opts.BotToken, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create getUpdates request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram getUpdates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK     bool     `json:"ok"`
		Result []Update `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode getUpdates response: %w", err)
	}
	if !result.OK {
		return nil, fmt.Errorf("telegram 返回 ok=false")
	}
	return result.Result, nil
}

// SetMyCommands registers the bot command menu.
func (c *TelegramClient) SetMyCommands(ctx context.Context, commands []BotCommand) error {
	body, err := json.Marshal(map[string]any{"commands": commands})
	if err != nil {
		return fmt.Errorf("marshal commands payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/bot%s/setMyCommands", c.baseURL, c.opts.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create setMyCommands request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *TelegramClient) do(req *http.Request) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}
	return nil
}
