package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"index_risk_sentinel/config"
)

// DefaultGupshupURL is the Gupshup WhatsApp message endpoint.
const DefaultGupshupURL = "https://api.gupshup.io/sm/api/v1/msg"

// GupshupNotifier sends WhatsApp messages through the Gupshup gateway.
type GupshupNotifier struct {
	APIKey      string
	AppName     string
	Source      string
	Destination string
	BaseURL     string
	Http        *http.Client
}

type gupshupResponse struct {
	Status    string `json:"status"`
	MessageID string `json:"messageId"`
	Message   string `json:"message"`
}

// NewGupshupNotifier builds a notifier from the environment credentials.
func NewGupshupNotifier(env *config.EnvConfig, timeout time.Duration) *GupshupNotifier {
	base := env.GupshupBaseURL
	if base == "" {
		base = DefaultGupshupURL
	}
	return &GupshupNotifier{
		APIKey:      env.GupshupAPIKey,
		AppName:     env.GupshupAppName,
		Source:      env.GupshupSource,
		Destination: env.AdminPhone,
		BaseURL:     base,
		Http:        &http.Client{Timeout: timeout},
	}
}

func (g *GupshupNotifier) Send(ctx context.Context, title, message string) error {
	params := url.Values{}
	params.Set("channel", "whatsapp")
	params.Set("source", g.Source)
	params.Set("destination", g.Destination)
	params.Set("message", formatMessage(title, message))
	params.Set("src.name", g.AppName)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("apikey", g.APIKey)

	resp, err := g.Http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var parsed gupshupResponse
	if resp.StatusCode >= 400 {
		if json.Unmarshal(body, &parsed) == nil && parsed.Message != "" {
			return fmt.Errorf("gupshup error: %s (http %d)", parsed.Message, resp.StatusCode)
		}
		return fmt.Errorf("gupshup error: http %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Status != "" && parsed.Status != "submitted" {
		return fmt.Errorf("gupshup rejected message: status %s", parsed.Status)
	}
	return nil
}

func formatMessage(title, message string) string {
	return fmt.Sprintf("*%s*\n%s", title, message)
}
