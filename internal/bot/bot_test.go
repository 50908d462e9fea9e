package bot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"octotrack/internal/alerting"
	"octotrack/internal/config"
	"octotrack/internal/octopus"
	"octotrack/internal/storage"
)

type memState struct {
	st storage.BotState
}

func (m *memState) AlertState(ctx context.Context, channel string) (storage.AlertState, bool, error) {
	return storage.AlertState{}, false, nil
}

func (m *memState) SaveAlertState(ctx context.Context, channel string, state storage.AlertState) error {
	return nil
}

func (m *memState) BotState(ctx context.Context) (storage.BotState, error) {
	return m.st, nil
}

func (m *memState) SaveBotState(ctx context.Context, state storage.BotState) error {
	m.st = state
	return nil
}

type harness struct {
	bot     *Bot
	cfg     *config.Config
	replies *[]string
}

func newHarness(t *testing.T, demand DemandFunc, rate RateFunc) *harness {
	t.Helper()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("alerting:\n  demand_threshold_watts: 1500\n"), 0o644); err != nil {
		t.Fatalf("写入测试配置失败: %v", err)
	}

	cfg, updater, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("加载测试配置失败: %v", err)
	}

	var replies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "sendMessage") {
			var payload map[string]string
			_ = json.NewDecoder(r.Body).Decode(&payload)
			replies = append(replies, payload["text"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	t.Cleanup(srv.Close)

	tg := alerting.NewTelegramClient(alerting.TelegramOptions{BotToken: "token", APIBase: srv.URL, Timeout: time.Second}, zerolog.Nop())
	b := New(cfg, updater, tg, &memState{}, Options{ChatID: "7", Demand: demand, Rate: rate}, zerolog.Nop())
	return &harness{bot: b, cfg: cfg, replies: &replies}
}

func update(chatID int64, text string) alerting.Update {
	var u alerting.Update
	u.UpdateID = 1
	u.Message.Chat.ID = chatID
	u.Message.Text = text
	return u
}

func TestThresholdCommand(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.bot.processUpdate(context.Background(), update(7, "/threshold 2500"))
	if h.cfg.Alerting.DemandThresholdWatts != 2500 {
		t.Fatalf("阈值未更新: %v", h.cfg.Alerting.DemandThresholdWatts)
	}
	if len(*h.replies) != 1 || !strings.Contains((*h.replies)[0], "2500W") {
		t.Fatalf("回复不正确: %#v", *h.replies)
	}
}

func TestThresholdTwoStepFlow(t *testing.T) {
	h := newHarness(t, nil, nil)

	// Bare /threshold asks for a value; the next bare message answers it.
	h.bot.processUpdate(context.Background(), update(7, "/threshold"))
	if h.bot.st.PendingCommand != "threshold" {
		t.Fatalf("应记录待回答命令: %q", h.bot.st.PendingCommand)
	}

	h.bot.processUpdate(context.Background(), update(7, "1800"))
	if h.bot.st.PendingCommand != "" {
		t.Fatalf("待回答命令应清空: %q", h.bot.st.PendingCommand)
	}
	if h.cfg.Alerting.DemandThresholdWatts != 1800 {
		t.Fatalf("阈值未更新: %v", h.cfg.Alerting.DemandThresholdWatts)
	}
}

func TestReportOffCommand(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.bot.processUpdate(context.Background(), update(7, "/report off"))
	if h.cfg.Alerting.ReportDemand {
		t.Fatal("报告模式应被关闭")
	}
	if len(*h.replies) != 1 || !strings.Contains((*h.replies)[0], "disabled") {
		t.Fatalf("回复不正确: %#v", *h.replies)
	}
}

func TestMuteUnmute(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.bot.processUpdate(context.Background(), update(7, "/mute"))
	if !h.bot.st.Muted {
		t.Fatal("应设为静默")
	}
	h.bot.processUpdate(context.Background(), update(7, "/unmute"))
	if h.bot.st.Muted {
		t.Fatal("应恢复通知")
	}
}

func TestUnauthorizedChatIgnored(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.bot.processUpdate(context.Background(), update(999, "/mute"))
	if h.bot.st.Muted {
		t.Fatal("陌生会话的命令不应生效")
	}
	if len(*h.replies) != 0 {
		t.Fatalf("陌生会话不应收到回复: %#v", *h.replies)
	}
}

func TestStatusIncludesLiveDemandAndRate(t *testing.T) {
	demand := func(ctx context.Context) (*octopus.DemandReading, error) {
		return &octopus.DemandReading{Demand: 842, ReadAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}, nil
	}
	rate := func(ctx context.Context) (*octopus.RatePeriod, error) {
		return &octopus.RatePeriod{
			ValidFrom:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			ValueIncVAT: decimal.RequireFromString("21.37"),
		}, nil
	}
	h := newHarness(t, demand, rate)

	h.bot.processUpdate(context.Background(), update(7, "/status"))
	if len(*h.replies) != 1 {
		t.Fatalf("应有一条回复: %#v", *h.replies)
	}
	reply := (*h.replies)[0]
	if !strings.Contains(reply, "842W") {
		t.Fatalf("回复应包含实时功率: %s", reply)
	}
	if !strings.Contains(reply, "1500W") {
		t.Fatalf("回复应包含当前阈值: %s", reply)
	}
	if !strings.Contains(reply, "21.37p/kWh") {
		t.Fatalf("回复应包含当前费率: %s", reply)
	}
}

func TestStatusWithoutRateLookup(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.bot.processUpdate(context.Background(), update(7, "/status"))
	if len(*h.replies) != 1 {
		t.Fatalf("应有一条回复: %#v", *h.replies)
	}
	if strings.Contains((*h.replies)[0], "Unit rate") {
		t.Fatalf("未配置费率查询时不应出现费率行: %s", (*h.replies)[0])
	}
}

func TestCommandWithBotMention(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.bot.processUpdate(context.Background(), update(7, "/mute@octotrack_bot"))
	if !h.bot.st.Muted {
		t.Fatal("带 @botname 的命令应被识别")
	}
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.bot.processUpdate(context.Background(), update(7, "/frobnicate"))
	if len(*h.replies) != 1 || !strings.Contains((*h.replies)[0], "/help") {
		t.Fatalf("未知命令应提示 /help: %#v", *h.replies)
	}
}
