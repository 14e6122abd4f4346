package reclamos

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/cuadrilla-dispatch/internal/auth"
	"github.com/spec-kit/cuadrilla-dispatch/internal/config"
	"github.com/spec-kit/cuadrilla-dispatch/internal/domain"
)

func TestUpdateStatusSendsPatch(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tokens := auth.NewServiceTokens("secret", "dispatch", time.Minute)
	client := New(config.ReclamosConfig{BaseURL: srv.URL + "/"}, tokens)
	crewID := int64(4)
	err := client.UpdateStatus(context.Background(), 101, StatusUpdate{Estado: domain.ComplaintStatusAssigned, CuadrillaID: &crewID})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/reclamos/101", gotPath)
	assert.True(t, strings.HasPrefix(gotAuth, "Bearer "))
	assert.Equal(t, "ASIGNADO", gotBody["estado"])
	assert.EqualValues(t, 4, gotBody["cuadrillaid"])
}

func TestUpdateStatusOmitsCrewWhenUnset(t *testing.T) {
	var raw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		raw = string(body)
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := New(config.ReclamosConfig{BaseURL: srv.URL}, nil)
	require.NoError(t, client.UpdateStatus(context.Background(), 7, StatusUpdate{Estado: domain.ComplaintStatusInProgress}))
	assert.JSONEq(t, `{"estado":"EN_PROCESO"}`, raw)
}

func TestUpdateStatusNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(config.ReclamosConfig{BaseURL: srv.URL}, nil)
	err := client.UpdateStatus(context.Background(), 7, StatusUpdate{Estado: domain.ComplaintStatusCompleted})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, "boom", statusErr.Body)
}

func TestGetDecodesBareAndWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/reclamos/1" {
			_, _ = w.Write([]byte(`{"id":1,"tipo":"Bache","estado":"PENDIENTE","telefono":"+54 9 11","nombre":"Ana","fecha":"2026-01-02T10:00:00Z"}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"id":2,"nombre":"Luis","telefono":"5491100"}}`))
	}))
	defer srv.Close()

	client := New(config.ReclamosConfig{BaseURL: srv.URL}, nil)

	bare, err := client.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Ana", bare.Name)
	assert.Equal(t, "+54 9 11", bare.Phone)
	assert.Equal(t, domain.ComplaintStatusPending, bare.Status)
	assert.Equal(t, 2026, bare.CreatedAt.Year())

	wrapped, err := client.Get(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), wrapped.ID)
	assert.Equal(t, "Luis", wrapped.Name)
}

func TestGetNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := New(config.ReclamosConfig{BaseURL: srv.URL}, nil).Get(context.Background(), 9)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}
