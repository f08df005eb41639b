package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// TextGateway delivers notifications through a generic SMS-style HTTP
// gateway: POST {message_id, to, body} with bearer auth, 2xx on success.
// The recipient handle is the destination phone number.
type TextGateway struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

// NewTextGateway creates the gateway for one provider endpoint.
func NewTextGateway(endpoint, apiKey string, timeout time.Duration) *TextGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TextGateway{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		apiKey:     apiKey,
	}
}

// Channel implements Gateway.
func (g *TextGateway) Channel() string { return "sms" }

type textSendRequest struct {
	MessageID string `json:"message_id"`
	To        string `json:"to"`
	Body      string `json:"body"`
}

// Send implements Gateway. The message ID makes retried sends idempotent
// on the provider side. 4xx responses other than timeout/rate-limit are
// permanent (invalid recipient, malformed message); everything else is
// transient.
func (g *TextGateway) Send(ctx context.Context, recipient, message string) error {
	payload, err := json.Marshal(textSendRequest{
		MessageID: uuid.NewString(),
		To:        recipient,
		Body:      message,
	})
	if err != nil {
		return &PermanentError{Reason: fmt.Sprintf("encode message: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return &PermanentError{Reason: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("text gateway send: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("text gateway status %d: %s", resp.StatusCode, body)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &PermanentError{Reason: fmt.Sprintf("status %d: %s", resp.StatusCode, body)}
	default:
		return fmt.Errorf("text gateway status %d: %s", resp.StatusCode, body)
	}
}
