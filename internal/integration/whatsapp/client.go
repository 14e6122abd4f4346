// Package whatsapp sends template messages through the WhatsApp Business
// provider.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spec-kit/cuadrilla-dispatch/internal/config"
)

// Parameter is one positional template variable.
type Parameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Component groups the parameters for one template section.
type Component struct {
	Type       string      `json:"type"`
	Parameters []Parameter `json:"parameters"`
}

// TemplateMessage is the POST /template body.
type TemplateMessage struct {
	Number       string      `json:"number"`
	Template     string      `json:"template"`
	LanguageCode string      `json:"languageCode"`
	Components   []Component `json:"components"`
}

// NewTemplateMessage builds a message with text parameters for the header and
// body sections. Empty sections are left out.
func NewTemplateMessage(number, template, languageCode string, header, body []string) TemplateMessage {
	msg := TemplateMessage{Number: number, Template: template, LanguageCode: languageCode}
	if len(header) > 0 {
		msg.Components = append(msg.Components, Component{Type: "header", Parameters: textParams(header)})
	}
	if len(body) > 0 {
		msg.Components = append(msg.Components, Component{Type: "body", Parameters: textParams(body)})
	}
	return msg
}

func textParams(values []string) []Parameter {
	params := make([]Parameter, 0, len(values))
	for _, v := range values {
		params = append(params, Parameter{Type: "text", Text: v})
	}
	return params
}

// Client posts template messages to the provider.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(cfg config.WhatsAppConfig) *Client {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
	}
}

// SendTemplate posts msg and fails on any non-2xx reply.
func (c *Client) SendTemplate(ctx context.Context, msg TemplateMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/template", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("whatsapp http error: %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
