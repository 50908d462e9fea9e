package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	client := NewTelegramClient(TelegramOptions{BotToken: "token", APIBase: srv.URL, Timeout: time.Second}, testLogger())
	notifier := NewTelegramNotifier(client, "chat", testLogger())

	text := FormatUsageAlert(DirectionHigh, decimal.NewFromFloat(32.5), decimal.NewFromInt(25), time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	if err := notifier.Notify(context.Background(), text); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if received["text"] == "" {
		t.Fatalf("text 应非空")
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	client := NewTelegramClient(TelegramOptions{BotToken: "token", APIBase: srv.URL, Timeout: time.Second}, testLogger())
	notifier := NewTelegramNotifier(client, "chat", testLogger())

	if err := notifier.Notify(context.Background(), "hi"); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestGetUpdatesPassesOffset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "getUpdates") {
			t.Fatalf("路径应包含 getUpdates, 实际 %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("offset"); got != "42" {
			t.Fatalf("offset 不正确: %q", got)
		}
		if r.URL.Query().Get("timeout") == "" {
			t.Fatal("长轮询应携带 timeout 参数")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"result": []map[string]any{
				{"update_id": 42, "message": map[string]any{"text": "/status", "chat": map[string]any{"id": 7}}},
			},
		})
	}))
	defer srv.Close()

	client := NewTelegramClient(TelegramOptions{BotToken: "token", APIBase: srv.URL, Timeout: time.Second, PollTimeout: time.Second}, testLogger())
	updates, err := client.GetUpdates(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetUpdates 不应报错: %v", err)
	}
	if len(updates) != 1 || updates[0].UpdateID != 42 {
		t.Fatalf("更新列表不正确: %#v", updates)
	}
	if updates[0].Message.Text != "/status" || updates[0].Message.Chat.ID != 7 {
		t.Fatalf("消息内容不正确: %#v", updates[0])
	}
}

func TestFormatDemandReportWarns(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if got := FormatDemandReport(2500, at); strings.HasPrefix(got, "⚠️") {
		t.Fatalf("3000W 以下不应带警示标记: %s", got)
	}
	if got := FormatDemandReport(3200, at); !strings.HasPrefix(got, "⚠️") {
		t.Fatalf("3000W 及以上应带警示标记: %s", got)
	}
}
