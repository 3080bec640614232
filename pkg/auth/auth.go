package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingKey = errors.New("missing API key")
	ErrInvalidKey = errors.New("invalid API key")
)

// Authenticator checks bearer API keys. The expected key is held either in
// plain text or as a bcrypt hash; with neither configured every request is
// allowed.
type Authenticator struct {
	key  string
	hash []byte
}

// NewAuthenticator creates an authenticator. hash, when set, takes
// precedence over key and must be a bcrypt hash.
func NewAuthenticator(key, hash string) (*Authenticator, error) {
	a := &Authenticator{key: key}
	if hash != "" {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("invalid API key hash: %w", err)
		}
		a.hash = []byte(hash)
		a.key = ""
	}
	return a, nil
}

// Enabled reports whether a key is required
func (a *Authenticator) Enabled() bool {
	return a != nil && (a.key != "" || a.hash != nil)
}

// Validate checks an API key
func (a *Authenticator) Validate(apiKey string) error {
	if !a.Enabled() {
		return nil
	}
	if apiKey == "" {
		return ErrMissingKey
	}
	if a.hash != nil {
		if err := bcrypt.CompareHashAndPassword(a.hash, []byte(apiKey)); err != nil {
			return ErrInvalidKey
		}
		return nil
	}
	if !SecureCompare(apiKey, a.key) {
		return ErrInvalidKey
	}
	return nil
}

// Middleware rejects requests without a valid "Authorization: Bearer <key>"
// header. Paths in public skip the check.
func (a *Authenticator) Middleware(public ...string) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(public))
	for _, p := range public {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.Enabled() || skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			switch err := a.Validate(BearerToken(r)); {
			case errors.Is(err, ErrMissingKey):
				http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			case err != nil:
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// BearerToken returns the token of an "Authorization: Bearer" header
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// GenerateAPIKey returns a random URL-safe key
func GenerateAPIKey() (string, error) {
	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", fmt.Errorf("failed to generate API key: %w", err)
	}
	return base64.URLEncoding.EncodeToString(keyBytes), nil
}

// HashAPIKey hashes a key for the api_key_hash setting
func HashAPIKey(apiKey string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}
	return string(hash), nil
}

// SecureCompare performs constant-time comparison
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
