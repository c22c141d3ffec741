package intake

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
)

// MaxBodySize bounds the webhook payloads accepted by the HTTP layer.
const MaxBodySize = 1024 * 1024

// auditHeaders are the only request headers stored on a trigger event.
var auditHeaders = []string{
	"content-type",
	"content-length",
	"user-agent",
	"x-forwarded-for",
	"x-real-ip",
	"authorization",
	"x-api-key",
	"x-signature",
	"x-hub-signature",
	"x-hub-signature-256",
}

const masked = "***"

// WebhookRequest is the raw HTTP request the intake works from. Body must be
// the bytes as received on the wire, as signatures are computed over them.
// Decoded holds Body with its Content-Encoding undone and is what gets parsed;
// when nil, Body is parsed as is.
type WebhookRequest struct {
	Method     string
	URL        string
	RemoteAddr string
	Header     http.Header
	Body       []byte
	Decoded    []byte
}

// Metadata builds the audit record of the request: the allow-listed headers
// with credentials masked, plus caller address, user agent, method and URL.
func (r WebhookRequest) Metadata() map[string]any {
	headers := make(map[string]any)

	for _, name := range auditHeaders {
		values := r.Header.Values(name)
		if len(values) == 0 {
			continue
		}

		value := strings.Join(values, ", ")

		switch name {
		case "authorization":
			value = maskAuthorization(value)
		case "x-api-key":
			value = masked
		}

		headers[name] = value
	}

	return map[string]any{
		"headers":    headers,
		"ip_address": r.clientIP(),
		"user_agent": r.Header.Get("User-Agent"),
		"method":     r.Method,
		"url":        r.URL,
	}
}

// maskAuthorization keeps the scheme so the audit trail still shows how the
// caller authenticated.
func maskAuthorization(value string) string {
	scheme, _, found := strings.Cut(value, " ")
	if !found {
		return masked
	}

	return scheme + " " + masked
}

func (r WebhookRequest) clientIP() string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")

		return strings.TrimSpace(first)
	}

	if real := r.Header.Get("X-Real-IP"); real != "" {
		return strings.TrimSpace(real)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

func (r WebhookRequest) content() []byte {
	if r.Decoded != nil {
		return r.Decoded
	}

	return r.Body
}

// payload decodes the body as JSON. An empty body is an empty object.
func (r WebhookRequest) payload() (any, error) {
	content := r.content()
	if len(strings.TrimSpace(string(content))) == 0 {
		return map[string]any{}, nil
	}

	var payload any

	err := json.Unmarshal(content, &payload)
	if err != nil {
		return nil, err
	}

	return payload, nil
}
