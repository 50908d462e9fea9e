package octopus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const obtainTokenMutation = `
mutation obtainKrakenToken($input: ObtainJSONWebTokenInput!) {
    obtainKrakenToken(input: $input) { token }
}`

const telemetryQuery = `
query smartMeterTelemetry($deviceId: String!, $start: DateTime!, $end: DateTime!) {
    smartMeterTelemetry(deviceId: $deviceId, grouping: TEN_SECONDS, start: $start, end: $end) {
        readAt
        demand
        consumptionDelta
    }
}`

// ObtainToken exchanges the REST API key for a short-lived Kraken bearer
// token. Failures here are ErrAuth-kinded so callers can distinguish them
// from data-fetch faults.
func (c *Client) ObtainToken(ctx context.Context) (string, error) {
	var result struct {
		ObtainKrakenToken struct {
			Token string `json:"token"`
		} `json:"obtainKrakenToken"`
	}

	variables := map[string]any{"input": map[string]string{"APIKey": c.opts.APIKey}}
	if err := c.postGraphQL(ctx, obtainTokenMutation, variables, "", true, &result); err != nil {
		return "", err
	}
	if result.ObtainKrakenToken.Token == "" {
		return "", &GraphQLError{Message: "empty token in obtainKrakenToken response", auth: true}
	}

	c.logger.Debug().Int("token_chars", len(result.ObtainKrakenToken.Token)).Msg("obtained kraken token")
	return result.ObtainKrakenToken.Token, nil
}

// LiveDemand queries the last five minutes of smart meter telemetry and
// returns the latest sample, or nil when the device reported nothing.
func (c *Client) LiveDemand(ctx context.Context, token, deviceID string) (*DemandReading, error) {
	now := time.Now().UTC()
	variables := map[string]any{
		"deviceId": deviceID,
		"start":    now.Add(-5 * time.Minute).Format(time.RFC3339),
		"end":      now.Format(time.RFC3339),
	}

	var result struct {
		SmartMeterTelemetry []struct {
			ReadAt time.Time       `json:"readAt"`
			Demand decimal.Decimal `json:"demand"`
		} `json:"smartMeterTelemetry"`
	}
	if err := c.postGraphQL(ctx, telemetryQuery, variables, token, false, &result); err != nil {
		return nil, err
	}

	readings := result.SmartMeterTelemetry
	if len(readings) == 0 {
		c.logger.Debug().Msg("no live telemetry in last 5 minutes")
		return nil, nil
	}

	latest := readings[len(readings)-1]
	return &DemandReading{
		Demand: latest.Demand.InexactFloat64(),
		ReadAt: latest.ReadAt,
	}, nil
}

func (c *Client) postGraphQL(ctx context.Context, query string, variables map[string]any, token string, authErrors bool, out any) error {
	body, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return fmt.Errorf("marshal graphql payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gqlURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("graphql request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode}
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode graphql response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return &GraphQLError{Message: envelope.Errors[0].Message, auth: authErrors}
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode graphql data: %w", err)
	}
	return nil
}
