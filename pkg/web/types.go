// Package web provides the HTTP surface: the public webhook endpoint and the
// admin API for sequences, triggers and execution history.
package web

import "github.com/dukex/sequences/pkg/models"

// CreateSequenceRequest is the body of POST /sequences.
type CreateSequenceRequest struct {
	OrganizationID string `json:"organization_id" validate:"required"`
	Name           string `json:"name"            validate:"required,min=1"`
	Description    string `json:"description"`
	Active         *bool  `json:"active"`
}

// CreateActionRequest is the body of POST /sequences/:id/actions.
type CreateActionRequest struct {
	Name           string         `json:"name"`
	IntegrationID  string         `json:"integration_id"`
	App            string         `json:"app"             validate:"required"`
	ActionKey      string         `json:"action_key"      validate:"required"`
	Configuration  map[string]any `json:"configuration"`
	SortOrder      int            `json:"sort_order"`
	TimeoutSeconds int            `json:"timeout_seconds" validate:"min=0,max=3600"`
	MaxRetries     int            `json:"max_retries"     validate:"min=0,max=20"`
}

// CreateTriggerRequest is the body of POST /sequences/:id/triggers.
type CreateTriggerRequest struct {
	Name          string                      `json:"name"`
	Kind          models.TriggerKind          `json:"kind"           validate:"required,oneof=integration webhook"`
	IntegrationID string                      `json:"integration_id" validate:"required_if=Kind integration"`
	TriggerKey    string                      `json:"trigger_key"    validate:"required_if=Kind integration"`
	WebhookSecret string                      `json:"webhook_secret"`
	AuthConfig    *AuthConfigRequest          `json:"auth_config"`
	Conditions    map[string]models.Condition `json:"conditions"`
	JSONSchema    map[string]any              `json:"json_schema"`
	Active        *bool                       `json:"active"`
}

// AuthConfigRequest mirrors models.AuthConfig with validation rules.
type AuthConfigRequest struct {
	Type        models.AuthType `json:"type"         validate:"required"`
	Header      string          `json:"header"`
	ExpectedKey string          `json:"expected_key"`
	Algorithm   string          `json:"algorithm"    validate:"omitempty,oneof=sha1 sha256 sha512"`
	Username    string          `json:"username"`
	Password    string          `json:"password"`
}

func (r *AuthConfigRequest) model() *models.AuthConfig {
	if r == nil {
		return nil
	}

	return &models.AuthConfig{
		Type:        r.Type,
		Header:      r.Header,
		ExpectedKey: r.ExpectedKey,
		Algorithm:   r.Algorithm,
		Username:    r.Username,
		Password:    r.Password,
	}
}

// TriggerResponse adds the public webhook path to a trigger. Secret is set
// only when the server generated the webhook secret on creation.
type TriggerResponse struct {
	*models.Trigger

	WebhookPath string `json:"webhook_path,omitempty"`
	Secret      string `json:"webhook_secret,omitempty"`
}

// RunResponse is a workflow run with its steps in execution order.
type RunResponse struct {
	*models.WorkflowRun

	Steps []*models.WorkflowStep `json:"steps"`
}

// IntegrationOutcome reports one trigger's handling of an integration event.
type IntegrationOutcome struct {
	TriggerID      string `json:"trigger_id"`
	TriggerEventID string `json:"trigger_event_id,omitempty"`
	Status         string `json:"status"`
	Message        string `json:"message,omitempty"`
	RunID          string `json:"run_id,omitempty"`
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}

	return *v
}
