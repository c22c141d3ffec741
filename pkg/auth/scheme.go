// Package auth verifies inbound webhook requests against a trigger's authentication settings.
package auth

import (
	"fmt"

	"github.com/dukex/sequences/pkg/models"
)

const (
	DefaultAPIKeyHeader    = "X-API-Key"
	DefaultSignatureHeader = "X-Signature"
	DefaultAlgorithm       = "sha256"
)

// Scheme is one of APIKey, Signature, Basic or Unknown.
type Scheme interface {
	isScheme()
}

// APIKey compares a request header with a configured key.
type APIKey struct {
	Header      string
	ExpectedKey string
}

// Signature checks an HMAC of the raw request body keyed with the trigger's webhook secret.
type Signature struct {
	Header    string
	Algorithm string
}

// Basic checks HTTP basic credentials.
type Basic struct {
	Username string
	Password string
}

// Unknown carries an auth type this build does not implement.
type Unknown struct {
	Type models.AuthType
}

func (APIKey) isScheme()    {}
func (Signature) isScheme() {}
func (Basic) isScheme()     {}
func (Unknown) isScheme()   {}

// SchemeFor decodes a stored auth config, filling defaults. It returns nil for
// a nil config.
func SchemeFor(cfg *models.AuthConfig) Scheme {
	if cfg == nil {
		return nil
	}

	switch cfg.Type {
	case models.AuthTypeAPIKey:
		return APIKey{
			Header:      orDefault(cfg.Header, DefaultAPIKeyHeader),
			ExpectedKey: cfg.ExpectedKey,
		}
	case models.AuthTypeSignature:
		return Signature{
			Header:    orDefault(cfg.Header, DefaultSignatureHeader),
			Algorithm: orDefault(cfg.Algorithm, DefaultAlgorithm),
		}
	case models.AuthTypeBasic:
		return Basic{Username: cfg.Username, Password: cfg.Password}
	default:
		return Unknown{Type: cfg.Type}
	}
}

// UnknownPolicy decides the outcome for auth types the authenticator does not implement.
type UnknownPolicy int

const (
	// DenyUnknown rejects requests for triggers with an unrecognised auth type.
	DenyUnknown UnknownPolicy = iota
	// AllowUnknown accepts them, matching an open webhook.
	AllowUnknown
)

// ParseUnknownPolicy reads "deny" or "allow".
func ParseUnknownPolicy(s string) (UnknownPolicy, error) {
	switch s {
	case "", "deny":
		return DenyUnknown, nil
	case "allow":
		return AllowUnknown, nil
	default:
		return DenyUnknown, fmt.Errorf("unknown auth policy %q (must be deny or allow)", s)
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}
