package octopus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// Options parameterise the API client.
type Options struct {
	BaseURL    string
	GraphQLURL string
	APIKey     string
	PageSize   int
	Timeout    time.Duration
	UserAgent  string
}

// Client accesses the Octopus Energy REST and GraphQL APIs. REST resources
// use basic auth (API key as username, empty password); the live-telemetry
// query uses a short-lived Kraken token obtained separately.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	gqlURL  string
}

// NewClient constructs an API client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.octopus.energy/v1"
	}

	gqlURL := opts.GraphQLURL
	if gqlURL == "" {
		gqlURL = baseURL + "/graphql/"
	}

	if opts.PageSize <= 0 {
		opts.PageSize = 25000
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "octopus_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		gqlURL:  gqlURL,
	}
}

// Consumption fetches all half-hourly readings for the window [from, to).
func (c *Client) Consumption(ctx context.Context, mpan, serial string, from, to time.Time) ([]ConsumptionReading, error) {
	endpoint := fmt.Sprintf("%s/electricity-meter-points/%s/meters/%s/consumption/", c.baseURL, mpan, serial)
	query := c.windowQuery(from, to)
	query.Set("order_by", "period")
	return fetchAll[ConsumptionReading](ctx, c, endpoint, query)
}

// UnitRates fetches the unit rate periods overlapping [from, to).
func (c *Client) UnitRates(ctx context.Context, tariffCode string, from, to time.Time) ([]RatePeriod, error) {
	return c.tariffRates(ctx, tariffCode, "standard-unit-rates", from, to)
}

// StandingCharges fetches the daily standing charge periods overlapping [from, to).
func (c *Client) StandingCharges(ctx context.Context, tariffCode string, from, to time.Time) ([]RatePeriod, error) {
	return c.tariffRates(ctx, tariffCode, "standing-charges", from, to)
}

func (c *Client) tariffRates(ctx context.Context, tariffCode, resource string, from, to time.Time) ([]RatePeriod, error) {
	product, err := ExtractProductCode(tariffCode)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/products/%s/electricity-tariffs/%s/%s/", c.baseURL, product, tariffCode, resource)
	return fetchAll[RatePeriod](ctx, c, endpoint, c.windowQuery(from, to))
}

// ElectricityDetails discovers the first usable electricity meter point on
// the account: its MPAN, most recent meter serial, and current tariff.
func (c *Client) ElectricityDetails(ctx context.Context, accountNumber string) (MeterDetails, error) {
	var account accountResponse
	endpoint := fmt.Sprintf("%s/accounts/%s/", c.baseURL, accountNumber)
	if err := c.getJSON(ctx, endpoint, &account); err != nil {
		return MeterDetails{}, err
	}

	for _, prop := range account.Properties {
		for _, mp := range prop.ElectricityMeterPoints {
			if mp.MPAN == "" || len(mp.Meters) == 0 || len(mp.Agreements) == 0 {
				continue
			}
			return MeterDetails{
				MPAN:       mp.MPAN,
				Serial:     mp.Meters[len(mp.Meters)-1].SerialNumber,
				TariffCode: currentTariff(mp.Agreements),
			}, nil
		}
	}
	return MeterDetails{}, fmt.Errorf("no electricity meter points found on account %s", accountNumber)
}

func currentTariff(agreements []agreement) string {
	sorted := make([]agreement, len(agreements))
	copy(sorted, agreements)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ValidFrom > sorted[j].ValidFrom
	})

	now := time.Now().UTC().Format(time.RFC3339)
	for _, ag := range sorted {
		if ag.ValidTo == "" || ag.ValidTo > now {
			return ag.TariffCode
		}
	}
	return agreements[len(agreements)-1].TariffCode
}

func (c *Client) windowQuery(from, to time.Time) url.Values {
	query := url.Values{}
	query.Set("page_size", strconv.Itoa(c.opts.PageSize))
	if !from.IsZero() {
		query.Set("period_from", from.UTC().Format(time.RFC3339))
	}
	if !to.IsZero() {
		query.Set("period_to", to.UTC().Format(time.RFC3339))
	}
	return query
}

type page[T any] struct {
	Count   int     `json:"count"`
	Next    *string `json:"next"`
	Results []T     `json:"results"`
}

// fetchAll walks a paginated endpoint to exhaustion. Filter parameters are
// baked into the first URL only; continuation URLs from the server already
// carry their own query and are followed verbatim.
func fetchAll[T any](ctx context.Context, c *Client, endpoint string, query url.Values) ([]T, error) {
	next := endpoint
	if len(query) > 0 {
		next += "?" + query.Encode()
	}

	var results []T
	pages := 0
	for next != "" {
		var p page[T]
		if err := c.getJSON(ctx, next, &p); err != nil {
			return nil, err
		}
		results = append(results, p.Results...)
		pages++
		if p.Next == nil {
			break
		}
		next = *p.Next
	}

	c.logger.Debug().Int("pages", pages).Int("records", len(results)).Str("endpoint", endpoint).Msg("paginated fetch complete")
	return results, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.opts.APIKey, "")
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("octopus request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: truncate(strings.TrimSpace(string(body)), 200)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// truncate shortens s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

type accountResponse struct {
	Properties []struct {
		ElectricityMeterPoints []struct {
			MPAN   string `json:"mpan"`
			Meters []struct {
				SerialNumber string `json:"serial_number"`
			} `json:"meters"`
			Agreements []agreement `json:"agreements"`
		} `json:"electricity_meter_points"`
	} `json:"properties"`
}

type agreement struct {
	TariffCode string `json:"tariff_code"`
	ValidFrom  string `json:"valid_from"`
	ValidTo    string `json:"valid_to"`
}
