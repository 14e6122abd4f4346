// Package reclamos talks to the external Reclamos API, which owns complaint
// records. This service only reads complaints and pushes status changes.
package reclamos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spec-kit/cuadrilla-dispatch/internal/auth"
	"github.com/spec-kit/cuadrilla-dispatch/internal/config"
	"github.com/spec-kit/cuadrilla-dispatch/internal/domain"
)

// StatusUpdate is the PATCH body. CuadrillaID is sent only on assignment.
type StatusUpdate struct {
	Estado      domain.ComplaintStatus `json:"estado"`
	CuadrillaID *int64                 `json:"cuadrillaid,omitempty"`
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("reclamos api %s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Client is a small JSON client for the Reclamos API.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  *auth.ServiceTokens
}

// New builds a client. tokens may be nil.
func New(cfg config.ReclamosConfig, tokens *auth.ServiceTokens) *Client {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

// UpdateStatus sends PATCH /reclamos/{id}.
func (c *Client) UpdateStatus(ctx context.Context, complaintID int64, update StatusUpdate) error {
	body, err := json.Marshal(update)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPatch, c.complaintURL(complaintID), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type complaintPayload struct {
	ID        int64  `json:"id"`
	Tipo      string `json:"tipo"`
	Estado    string `json:"estado"`
	Ubicacion string `json:"ubicacion"`
	Barrio    string `json:"barrio"`
	Prioridad string `json:"prioridad"`
	Telefono  string `json:"telefono"`
	Nombre    string `json:"nombre"`
	Fecha     string `json:"fecha"`
}

// complaintEnvelope accepts both a bare record and {"data": record}.
type complaintEnvelope struct {
	Data *complaintPayload `json:"data"`
	complaintPayload
}

// Get fetches GET /reclamos/{id}.
func (c *Client) Get(ctx context.Context, complaintID int64) (*domain.Complaint, error) {
	resp, err := c.do(ctx, http.MethodGet, c.complaintURL(complaintID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env complaintEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode complaint %d: %w", complaintID, err)
	}
	payload := env.complaintPayload
	if env.Data != nil {
		payload = *env.Data
	}
	if payload.ID == 0 {
		payload.ID = complaintID
	}
	return toComplaint(payload), nil
}

func toComplaint(p complaintPayload) *domain.Complaint {
	complaint := &domain.Complaint{
		ID:           p.ID,
		Type:         p.Tipo,
		Status:       domain.ComplaintStatus(p.Estado),
		Location:     p.Ubicacion,
		Neighborhood: p.Barrio,
		Priority:     p.Prioridad,
		Phone:        p.Telefono,
		Name:         p.Nombre,
	}
	if p.Fecha != "" {
		if ts, err := time.Parse(time.RFC3339, p.Fecha); err == nil {
			complaint.CreatedAt = ts
		}
	}
	return complaint
}

func (c *Client) complaintURL(id int64) string {
	return fmt.Sprintf("%s/reclamos/%d", c.baseURL, id)
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Sign()
		if err != nil {
			return nil, fmt.Errorf("sign service token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	return resp, nil
}
