package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/cuadrilla-dispatch/internal/config"
)

func TestNewTemplateMessage(t *testing.T) {
	msg := NewTemplateMessage("5491122334455", "reclamo_asignado", "es_AR", []string{"101"}, []string{"Ana", "2/1/2026"})
	require.Len(t, msg.Components, 2)
	assert.Equal(t, "header", msg.Components[0].Type)
	assert.Equal(t, []Parameter{{Type: "text", Text: "101"}}, msg.Components[0].Parameters)
	assert.Equal(t, "body", msg.Components[1].Type)
	assert.Equal(t, "2/1/2026", msg.Components[1].Parameters[1].Text)

	empty := NewTemplateMessage("54", "t", "es_AR", nil, nil)
	assert.Empty(t, empty.Components)
}

func TestSendTemplate(t *testing.T) {
	var got TemplateMessage
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := New(config.WhatsAppConfig{BaseURL: srv.URL, Token: "tok"})
	msg := NewTemplateMessage("5491122334455", "reclamo_en_proceso", "es_AR", []string{"7"}, []string{"Ana"})
	require.NoError(t, client.SendTemplate(context.Background(), msg))

	assert.Equal(t, "/template", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, msg, got)
}

func TestSendTemplateFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := New(config.WhatsAppConfig{BaseURL: srv.URL}).SendTemplate(context.Background(), TemplateMessage{Number: "54"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
