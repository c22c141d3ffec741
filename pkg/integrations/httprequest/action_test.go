package httprequest_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/dukex/sequences/pkg/integrations"
	"github.com/dukex/sequences/pkg/integrations/httprequest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAction() *httprequest.Action {
	return httprequest.NewAction(http.DefaultClient, slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))
}

func TestAction_Execute_POSTWithJSONBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/contacts", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer t", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ana@example.com", body["email"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"c-1"}`))
	}))
	defer server.Close()

	out, err := newAction().Execute(context.Background(), integrations.Invocation{Arguments: map[string]any{
		"url":     server.URL + "/contacts",
		"method":  "post",
		"headers": map[string]any{"Authorization": "Bearer t"},
		"body":    map[string]any{"email": "ana@example.com"},
	}})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, out["status_code"])
	assert.Equal(t, map[string]any{"id": "c-1"}, out["body"])
	assert.Equal(t, "application/json", out["headers"].(map[string]any)["Content-Type"])
}

func TestAction_Execute_HostAndPath(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "raw text", string(body))
		assert.Equal(t, "/ping", r.URL.Path)
		_, _ = w.Write([]byte("pong"))
	}))
	defer server.Close()

	out, err := newAction().Execute(context.Background(), integrations.Invocation{Arguments: map[string]any{
		"protocol": "http",
		"host":     strings.TrimPrefix(server.URL, "http://"),
		"path":     "ping",
		"method":   "PUT",
		"body":     "raw text",
	}})
	require.NoError(t, err)
	assert.Equal(t, "pong", out["body"])
}

func TestAction_Execute_StatusClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status    int
		permanent bool
	}{
		{http.StatusInternalServerError, false},
		{http.StatusTooManyRequests, false},
		{http.StatusBadRequest, true},
		{http.StatusNotFound, true},
	}

	for _, testCase := range tests {
		t.Run(http.StatusText(testCase.status), func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(testCase.status)
			}))
			defer server.Close()

			_, err := newAction().Execute(context.Background(), integrations.Invocation{Arguments: map[string]any{"url": server.URL}})
			require.Error(t, err)
			assert.Equal(t, testCase.permanent, integrations.IsPermanent(err))
		})
	}
}

func TestAction_Execute_MissingURL(t *testing.T) {
	t.Parallel()

	_, err := newAction().Execute(context.Background(), integrations.Invocation{Arguments: map[string]any{}})
	require.ErrorIs(t, err, httprequest.ErrHTTPRequestURLInvalid)
	assert.True(t, integrations.IsPermanent(err))
}
