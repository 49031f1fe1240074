package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Gateway posts codes to an HTTP delivery service.
//
//	POST {base}/auth-code/sms    {"phone": "...", "code": "..."}
//	POST {base}/auth-code/email  {"email": "...", "code": "..."}
//
// 200, 201 and 202 count as delivered.
type Gateway struct {
	client *http.Client
	url    string
	field  string
	apiKey string
}

// NewSMSGateway returns a Gateway for phone numbers.
func NewSMSGateway(client *http.Client, baseURL, apiKey string) *Gateway {
	return newGateway(client, baseURL, "/auth-code/sms", "phone", apiKey)
}

// NewEmailGateway returns a Gateway for email addresses.
func NewEmailGateway(client *http.Client, baseURL, apiKey string) *Gateway {
	return newGateway(client, baseURL, "/auth-code/email", "email", apiKey)
}

func newGateway(client *http.Client, baseURL, path, field, apiKey string) *Gateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &Gateway{
		client: client,
		url:    strings.TrimRight(baseURL, "/") + path,
		field:  field,
		apiKey: apiKey,
	}
}

func (g *Gateway) Send(ctx context.Context, to, code string) bool {
	body, err := json.Marshal(map[string]string{g.field: to, "code": code})
	if err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		slog.Error("building gateway request", "url", g.url, "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		slog.Warn("gateway request failed", "url", g.url, "error", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return true
	default:
		slog.Warn("gateway rejected code", "url", g.url, "status", resp.StatusCode)
		return false
	}
}
