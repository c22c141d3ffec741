package models

import "time"

// TriggerKind selects where a trigger's activations come from.
type TriggerKind string

const (
	TriggerKindIntegration TriggerKind = "integration"
	TriggerKindWebhook     TriggerKind = "webhook"
)

// AuthType names a webhook authentication scheme.
type AuthType string

const (
	AuthTypeAPIKey    AuthType = "api_key"
	AuthTypeSignature AuthType = "signature"
	AuthTypeBasic     AuthType = "basic"
)

// AuthConfig is the stored shape of a webhook trigger's authentication settings.
// Which fields are meaningful depends on Type.
type AuthConfig struct {
	Type AuthType `json:"type"`

	// api_key and signature
	Header string `json:"header,omitempty"`

	// api_key
	ExpectedKey string `json:"expected_key,omitempty"`

	// signature; the secret is the trigger's WebhookSecret
	Algorithm string `json:"algorithm,omitempty"`

	// basic
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// Trigger is the activation condition of exactly one sequence.
type Trigger struct {
	ID         string      `json:"id"`
	SequenceID string      `json:"sequence_id" validate:"required"`
	Name       string      `json:"name"`
	Kind       TriggerKind `json:"kind"        validate:"required,oneof=integration webhook"`

	// Integration triggers.
	IntegrationID string `json:"integration_id,omitempty" validate:"required_if=Kind integration"`
	TriggerKey    string `json:"trigger_key,omitempty"    validate:"required_if=Kind integration"`

	// Webhook triggers.
	WebhookToken  string      `json:"webhook_token,omitempty"`
	WebhookSecret string      `json:"-"`
	AuthConfig    *AuthConfig `json:"auth_config,omitempty"`

	Conditions map[string]Condition `json:"conditions,omitempty"`
	JSONSchema map[string]any       `json:"json_schema,omitempty"`

	Active          bool       `json:"active"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	TriggerCount    int64      `json:"trigger_count"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsWebhook reports whether the trigger is activated over HTTP.
func (t *Trigger) IsWebhook() bool {
	return t.Kind == TriggerKindWebhook
}

// WebhookPath returns the public path of a webhook trigger.
func (t *Trigger) WebhookPath() string {
	return "/webhooks/" + t.WebhookToken
}
