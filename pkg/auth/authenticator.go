package auth

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // sha1 signatures are still sent by some webhook providers
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"net/http"
	"strings"

	"github.com/dukex/sequences/pkg/models"
)

var (
	ErrAPIKeyMismatch       = errors.New("api key mismatch")
	ErrMissingSignature     = errors.New("missing signature header")
	ErrSignatureMismatch    = errors.New("signature mismatch")
	ErrMissingSecret        = errors.New("trigger has no webhook secret")
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")
	ErrMalformedBasic       = errors.New("malformed basic authorization header")
	ErrCredentialsMismatch  = errors.New("basic credentials mismatch")
	ErrUnknownScheme        = errors.New("unknown authentication type")
)

var hashes = map[string]func() hash.Hash{
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
}

// Request is the part of an inbound webhook the authenticator reads. Body must
// be the raw, unparsed request body.
type Request struct {
	Header http.Header
	Body   []byte
}

// Authenticator checks webhook requests. It holds no per-request state.
type Authenticator struct {
	unknown UnknownPolicy
}

func NewAuthenticator(unknown UnknownPolicy) *Authenticator {
	return &Authenticator{unknown: unknown}
}

// Authenticate reports whether the request may activate the trigger.
func (a *Authenticator) Authenticate(req Request, trigger *models.Trigger) bool {
	return a.Verify(req, trigger) == nil
}

// Verify returns nil when the request is accepted, or the reason it was not.
func (a *Authenticator) Verify(req Request, trigger *models.Trigger) error {
	switch scheme := SchemeFor(trigger.AuthConfig).(type) {
	case nil:
		return nil
	case APIKey:
		return verifyAPIKey(req, scheme)
	case Signature:
		return verifySignature(req, scheme, trigger.WebhookSecret)
	case Basic:
		return verifyBasic(req, scheme)
	case Unknown:
		if a.unknown == AllowUnknown {
			return nil
		}

		return fmt.Errorf("%w: %q", ErrUnknownScheme, scheme.Type)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownScheme, scheme)
	}
}

func verifyAPIKey(req Request, scheme APIKey) error {
	if scheme.ExpectedKey == "" {
		return nil
	}

	provided := req.Header.Get(scheme.Header)
	if subtle.ConstantTimeCompare([]byte(provided), []byte(scheme.ExpectedKey)) != 1 {
		return ErrAPIKeyMismatch
	}

	return nil
}

func verifySignature(req Request, scheme Signature, secret string) error {
	provided := req.Header.Get(scheme.Header)
	if provided == "" {
		return ErrMissingSignature
	}

	if secret == "" {
		return ErrMissingSecret
	}

	algorithm := strings.ToLower(scheme.Algorithm)

	newHash, ok := hashes[algorithm]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, scheme.Algorithm)
	}

	mac := hmac.New(newHash, []byte(secret))
	mac.Write(req.Body)

	expected := hex.EncodeToString(mac.Sum(nil))

	prefix := algorithm + "="
	if strings.HasPrefix(provided, prefix) {
		expected = prefix + expected
	}

	if subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) != 1 {
		return ErrSignatureMismatch
	}

	return nil
}

func verifyBasic(req Request, scheme Basic) error {
	if scheme.Username == "" && scheme.Password == "" {
		return nil
	}

	encoded, ok := strings.CutPrefix(req.Header.Get("Authorization"), "Basic ")
	if !ok {
		return ErrMalformedBasic
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return ErrMalformedBasic
	}

	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return ErrMalformedBasic
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(scheme.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(scheme.Password)) == 1

	if !userOK || !passOK {
		return ErrCredentialsMismatch
	}

	return nil
}
