// Package httprequest provides the http.request integration operation.
package httprequest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukex/sequences/pkg/integrations"
)

const (
	App       = "http"
	ActionKey = "request"

	maxResponseBytes = 1 << 20
)

var (
	// ErrHTTPRequestURLInvalid is returned when neither url nor host is configured.
	ErrHTTPRequestURLInvalid = errors.New("invalid HTTP request url")
	// ErrHTTPServerError is returned when the server answers 5xx or 429.
	ErrHTTPServerError = errors.New("server error during HTTP request")
	// ErrHTTPClientError is returned for other 4xx answers and is not retried.
	ErrHTTPClientError = errors.New("request rejected by server")
)

// Action performs an outbound HTTP request described by its rendered arguments:
//
//	url      full URL, or protocol (default https) + host + path
//	method   default GET
//	headers  map of header values
//	body     string sent as-is, anything else JSON-encoded
type Action struct {
	client *http.Client
	logger *slog.Logger
}

func NewAction(client *http.Client, logger *slog.Logger) *Action {
	if client == nil {
		client = http.DefaultClient
	}

	return &Action{
		client: client,
		logger: logger.With("module", "http_request_action"),
	}
}

// Register adds the operation to registry.
func Register(registry *integrations.Registry, client *http.Client, logger *slog.Logger) {
	registry.Register(App, ActionKey, NewAction(client, logger))
}

func (a *Action) Execute(ctx context.Context, inv integrations.Invocation) (integrations.Output, error) {
	req, err := buildRequest(ctx, inv.Arguments)
	if err != nil {
		return nil, integrations.Permanent(err)
	}

	a.logger.DebugContext(ctx, "sending HTTP request", "method", req.Method, "url", req.URL.Redacted())

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var body any

	err = json.Unmarshal(bodyBytes, &body)
	if err != nil {
		body = string(bodyBytes)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status %d", ErrHTTPServerError, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, integrations.Permanent(fmt.Errorf("%w: status %d", ErrHTTPClientError, resp.StatusCode))
	}

	headers := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	a.logger.InfoContext(ctx, "HTTP request completed", "status", resp.StatusCode, "body_length", len(bodyBytes))

	return integrations.Output{
		"status_code": resp.StatusCode,
		"body":        body,
		"headers":     headers,
	}, nil
}

func buildRequest(ctx context.Context, args map[string]any) (*http.Request, error) {
	url, err := buildURL(args)
	if err != nil {
		return nil, err
	}

	method, _ := args["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader

	switch b := args["body"].(type) {
	case nil:
	case string:
		body = strings.NewReader(b)
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}

		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	if _, isString := args["body"].(string); !isString && args["body"] != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if headers, ok := args["headers"].(map[string]any); ok {
		for key, value := range headers {
			req.Header.Set(key, fmt.Sprint(value))
		}
	}

	return req, nil
}

func buildURL(args map[string]any) (string, error) {
	if url, ok := args["url"].(string); ok && url != "" {
		return url, nil
	}

	host, _ := args["host"].(string)
	if host == "" {
		return "", ErrHTTPRequestURLInvalid
	}

	protocol, _ := args["protocol"].(string)
	if protocol == "" {
		protocol = "https"
	}

	path, _ := args["path"].(string)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return fmt.Sprintf("%s://%s%s", protocol, host, path), nil
}
