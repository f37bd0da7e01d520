package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPGateway POSTs messages as JSON to a notification service.
type HTTPGateway struct {
	URL    string
	Token  string
	Client *http.Client
}

// NewHTTPGateway returns a gateway with a bounded-timeout client.
func NewHTTPGateway(url, token string) *HTTPGateway {
	return &HTTPGateway{URL: url, Token: token, Client: &http.Client{Timeout: 10 * time.Second}}
}

type httpPayload struct {
	UserID       string            `json:"userId,omitempty"`
	Username     string            `json:"username,omitempty"`
	Mobile       string            `json:"mobile,omitempty"`
	Email        string            `json:"email,omitempty"`
	Channel      Channel           `json:"channel"`
	TemplateCode string            `json:"templateCode"`
	Placeholders map[string]string `json:"placeholders"`
}

// Send implements Gateway.
func (g *HTTPGateway) Send(ctx context.Context, msg Message) error {
	token := strings.TrimSpace(strings.TrimPrefix(g.Token, "Bearer "))
	if token == "" {
		return ErrMissingCredentials
	}

	p := httpPayload{
		Username:     msg.Recipient.Username,
		Mobile:       msg.Recipient.Mobile,
		Email:        msg.Recipient.Email,
		Channel:      msg.Channel,
		TemplateCode: msg.Template,
		Placeholders: msg.Placeholders,
	}
	if msg.Recipient.IdentityID > 0 {
		p.UserID = strconv.FormatInt(msg.Recipient.IdentityID, 10)
	}
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s via %s returned %d", ErrDeliveryFailed, msg.Template, msg.Channel, resp.StatusCode)
	}
	return nil
}
