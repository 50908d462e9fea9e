package octopus

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

func testClient(baseURL string) *Client {
	return NewClient(Options{BaseURL: baseURL, APIKey: "sk_test", PageSize: 2}, zerolog.Nop())
}

func TestConsumptionFollowsPagination(t *testing.T) {
	var requests []string
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/electricity-meter-points/mpan1/meters/serial1/consumption/", func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.String())
		user, pass, ok := r.BasicAuth()
		if !ok || user != "sk_test" || pass != "" {
			t.Fatalf("basic auth 不正确: %q/%q", user, pass)
		}

		if r.URL.Query().Get("page") == "2" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"count": 3,
				"next":  nil,
				"results": []map[string]any{
					{"consumption": 0.30, "interval_start": "2024-01-01T01:00:00Z", "interval_end": "2024-01-01T01:30:00Z"},
				},
			})
			return
		}

		next := srv.URL + "/electricity-meter-points/mpan1/meters/serial1/consumption/?page=2"
		_ = json.NewEncoder(w).Encode(map[string]any{
			"count": 3,
			"next":  next,
			"results": []map[string]any{
				{"consumption": 0.10, "interval_start": "2024-01-01T00:00:00Z", "interval_end": "2024-01-01T00:30:00Z"},
				{"consumption": 0.20, "interval_start": "2024-01-01T00:30:00Z", "interval_end": "2024-01-01T01:00:00Z"},
			},
		})
	})

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	readings, err := testClient(srv.URL).Consumption(context.Background(), "mpan1", "serial1", from, to)
	if err != nil {
		t.Fatalf("Consumption 不应报错: %v", err)
	}
	if len(readings) != 3 {
		t.Fatalf("应取回 3 条记录, 实际 %d", len(readings))
	}
	if readings[2].KWh.String() != "0.3" {
		t.Fatalf("最后一条读数不正确: %s", readings[2].KWh)
	}

	if len(requests) != 2 {
		t.Fatalf("应发出 2 次请求, 实际 %d: %v", len(requests), requests)
	}
	// First URL carries the window filters; the continuation URL is the
	// server's own and must not have filters re-applied.
	first, _ := http.NewRequest(http.MethodGet, srv.URL+requests[0], nil)
	if first.URL.Query().Get("period_from") == "" || first.URL.Query().Get("page_size") != "2" {
		t.Fatalf("首个请求应携带窗口参数: %s", requests[0])
	}
	second, _ := http.NewRequest(http.MethodGet, srv.URL+requests[1], nil)
	if second.URL.Query().Get("period_from") != "" {
		t.Fatalf("续页请求不应重复附加参数: %s", requests[1])
	}
	if second.URL.Query().Get("page") != "2" {
		t.Fatalf("续页请求应按 next 原样跟随: %s", requests[1])
	}
}

func TestUnitRatesBuildsProductURL(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]any{"count": 0, "next": nil, "results": []any{}})
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).UnitRates(context.Background(), "E-1R-VAR-22-11-01-C", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("UnitRates 不应报错: %v", err)
	}
	want := "/products/VAR-22-11-01/electricity-tariffs/E-1R-VAR-22-11-01-C/standard-unit-rates/"
	if gotPath != want {
		t.Fatalf("路径不正确: %s", gotPath)
	}
}

func TestAPIErrorClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Invalid API key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Consumption(context.Background(), "m", "s", time.Time{}, time.Time{})
	if err == nil {
		t.Fatal("401 应报错")
	}
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("401 应归类为认证错误: %v", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("应携带状态码: %v", err)
	}
}

func TestServerErrorIsNotAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Consumption(context.Background(), "m", "s", time.Time{}, time.Time{})
	if err == nil {
		t.Fatal("500 应报错")
	}
	if errors.Is(err, ErrAuth) {
		t.Fatalf("500 不应归类为认证错误: %v", err)
	}
}

func TestExtractProductCode(t *testing.T) {
	cases := []struct {
		tariff  string
		product string
		wantErr bool
	}{
		{"E-1R-VAR-22-11-01-C", "VAR-22-11-01", false},
		{"E-2R-AGILE-FLEX-22-11-25-A", "AGILE-FLEX-22-11-25", false},
		{"G-1R-VAR-22-11-01-P", "VAR-22-11-01", false},
		{"garbage", "", true},
		{"E-1R--C", "", true},
	}
	for _, tc := range cases {
		got, err := ExtractProductCode(tc.tariff)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s 应解析失败", tc.tariff)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s 解析失败: %v", tc.tariff, err)
		}
		if got != tc.product {
			t.Fatalf("%s 解析结果 %s, 期望 %s", tc.tariff, got, tc.product)
		}
	}
}

func TestTruncateKeepsRuneBoundary(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abcd" {
		t.Fatalf("ASCII 截断不正确: %q", got)
	}
	if got := truncate("ab", 4); got != "ab" {
		t.Fatalf("短字符串不应截断: %q", got)
	}

	// "错误" is 6 bytes; a 4-byte cut lands mid-rune and must back up.
	got := truncate("错误", 4)
	if got != "错" {
		t.Fatalf("截断不应落在多字节字符中间: %q", got)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("截断结果应是合法 UTF-8: %q", got)
	}
}

func TestRatePeriodCovers(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bounded := RatePeriod{ValidFrom: from, ValidTo: &to}

	if bounded.Covers(from.Add(-time.Second)) {
		t.Fatal("生效前不应覆盖")
	}
	if !bounded.Covers(from) {
		t.Fatal("左闭区间应覆盖起点")
	}
	if bounded.Covers(to) {
		t.Fatal("右开区间不应覆盖终点")
	}

	open := RatePeriod{ValidFrom: from}
	if !open.Covers(to.AddDate(10, 0, 0)) {
		t.Fatal("开放区间应覆盖未来时刻")
	}
}
