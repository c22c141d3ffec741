package web_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSequence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "valid sequence",
			requestBody:    map[string]any{"organization_id": "org-1", "name": "Onboarding"},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "missing name",
			requestBody:    map[string]any{"organization_id": "org-1"},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Name",
		},
		{
			name:           "missing organization",
			requestBody:    map[string]any{"name": "Onboarding"},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "OrganizationID",
		},
		{
			name:           "invalid json",
			requestBody:    `{"name":`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Invalid JSON format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := setupTestApp(t)

			resp, body := s.do(t, http.MethodPost, "/sequences", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode, string(body))

			if tt.expectedError != "" {
				assert.Contains(t, string(body), tt.expectedError)

				return
			}

			result := decode(t, body)
			assert.NotEmpty(t, result["id"])
			assert.Equal(t, true, result["active"])
		})
	}
}

func TestGetSequence(t *testing.T) {
	t.Parallel()

	s := setupTestApp(t)
	trigger := createWebhookSequence(t, s, nil)

	resp, body := s.do(t, http.MethodGet, "/sequences/"+trigger["sequence_id"].(string), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	result := decode(t, body)
	assert.Equal(t, "Welcome", result["sequence"].(map[string]any)["name"])
	assert.Len(t, result["actions"], 1)

	resp, _ = s.do(t, http.MethodGet, "/sequences/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateTrigger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    map[string]any
		expectedStatus int
		validateResult func(t *testing.T, result map[string]any)
	}{
		{
			name:           "webhook trigger gets a token",
			requestBody:    map[string]any{"kind": "webhook", "webhook_secret": "s3cret"},
			expectedStatus: http.StatusCreated,
			validateResult: func(t *testing.T, result map[string]any) {
				t.Helper()

				token, _ := result["webhook_token"].(string)
				require.NotEmpty(t, token)
				assert.Equal(t, "/webhooks/"+token, result["webhook_path"])
				assert.NotContains(t, result, "webhook_secret")
			},
		},
		{
			name:           "webhook trigger without secret gets a generated one",
			requestBody:    map[string]any{"kind": "webhook"},
			expectedStatus: http.StatusCreated,
			validateResult: func(t *testing.T, result map[string]any) {
				t.Helper()

				secret, _ := result["webhook_secret"].(string)
				assert.Len(t, secret, 64)
			},
		},
		{
			name:           "integration trigger",
			requestBody:    map[string]any{"kind": "integration", "integration_id": "int-1", "trigger_key": "contact.created"},
			expectedStatus: http.StatusCreated,
			validateResult: func(t *testing.T, result map[string]any) {
				t.Helper()

				assert.NotContains(t, result, "webhook_token")
				assert.NotContains(t, result, "webhook_path")
			},
		},
		{
			name:           "integration trigger without key",
			requestBody:    map[string]any{"kind": "integration", "integration_id": "int-1"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown kind",
			requestBody:    map[string]any{"kind": "schedule"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "unsupported signature algorithm",
			requestBody: map[string]any{
				"kind":        "webhook",
				"auth_config": map[string]any{"type": "signature", "algorithm": "md5"},
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := setupTestApp(t)

			resp, body := s.do(t, http.MethodPost, "/sequences", map[string]any{"organization_id": "org-1", "name": "Welcome"})
			require.Equal(t, http.StatusCreated, resp.StatusCode)

			sequenceID := decode(t, body)["id"].(string)

			resp, body = s.do(t, http.MethodPost, "/sequences/"+sequenceID+"/triggers", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode, string(body))

			if tt.validateResult != nil {
				tt.validateResult(t, decode(t, body))
			}
		})
	}
}

func TestCreateTrigger_UnknownSequence(t *testing.T) {
	t.Parallel()

	s := setupTestApp(t)

	resp, _ := s.do(t, http.MethodPost, "/sequences/missing/triggers", map[string]any{"kind": "webhook"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateAction_Validation(t *testing.T) {
	t.Parallel()

	s := setupTestApp(t)
	trigger := createWebhookSequence(t, s, nil)

	resp, body := s.do(t, http.MethodPost, "/sequences/"+trigger["sequence_id"].(string)+"/actions", map[string]any{"app": "log"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "ActionKey")
}

func TestListTriggerEvents(t *testing.T) {
	t.Parallel()

	s := setupTestApp(t)
	trigger := createWebhookSequence(t, s, nil)

	for range 3 {
		resp, _ := s.do(t, http.MethodPost, trigger["webhook_path"].(string), `{"email":"ada@example.com"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	tests := []struct {
		name           string
		query          string
		expectedStatus int
		expectedCount  int
	}{
		{name: "default limit", expectedStatus: http.StatusOK, expectedCount: 3},
		{name: "explicit limit", query: "?limit=2", expectedStatus: http.StatusOK, expectedCount: 2},
		{name: "invalid limit", query: "?limit=zero", expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := s.do(t, http.MethodGet, "/triggers/"+trigger["id"].(string)+"/events"+tt.query, nil)
			require.Equal(t, tt.expectedStatus, resp.StatusCode, string(body))

			if tt.expectedStatus != http.StatusOK {
				return
			}

			assert.Len(t, decode(t, body)["trigger_events"], tt.expectedCount)
		})
	}
}

func TestHandleIntegrationEvent(t *testing.T) {
	t.Parallel()

	s := setupTestApp(t)

	resp, body := s.do(t, http.MethodPost, "/sequences", map[string]any{"organization_id": "org-1", "name": "CRM"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	sequenceID := decode(t, body)["id"].(string)

	resp, _ = s.do(t, http.MethodPost, "/sequences/"+sequenceID+"/actions", map[string]any{"app": "log", "action_key": "write"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	for _, plan := range []string{"pro", "free"} {
		resp, _ = s.do(t, http.MethodPost, "/sequences/"+sequenceID+"/triggers", map[string]any{
			"kind":           "integration",
			"integration_id": "int-1",
			"trigger_key":    "contact.created",
			"conditions":     map[string]any{"plan": map[string]any{"operator": "equals", "value": plan}},
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, body = s.do(t, http.MethodPost, "/integrations/int-1/events/contact.created", map[string]any{"plan": "pro"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	outcomes := decode(t, body)["outcomes"].([]any)
	require.Len(t, outcomes, 2)

	statuses := map[string]int{}
	for _, o := range outcomes {
		statuses[o.(map[string]any)["status"].(string)]++
	}

	assert.Equal(t, map[string]int{"dispatched": 1, "ignored": 1}, statuses)
}

func TestGetRun_NotFound(t *testing.T) {
	t.Parallel()

	s := setupTestApp(t)

	resp, _ := s.do(t, http.MethodGet, "/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, "/trigger-events/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	s := setupTestApp(t)
	trigger := createWebhookSequence(t, s, nil)

	resp, body := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", decode(t, body)["status"])

	resp, _ = s.do(t, http.MethodPost, trigger["webhook_path"].(string), `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	text := string(body)
	assert.True(t, strings.Contains(text, "sequences_trigger_events_total"), text)
	assert.Contains(t, text, `outcome="dispatched"`)
}
