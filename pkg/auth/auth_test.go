package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestAuthenticator_Validate(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword failed: %v", err)
	}

	plain, _ := NewAuthenticator("secret", "")
	hashed, err := NewAuthenticator("ignored", string(hash))
	if err != nil {
		t.Fatalf("NewAuthenticator failed: %v", err)
	}
	open, _ := NewAuthenticator("", "")

	tests := []struct {
		name     string
		auth     *Authenticator
		key      string
		expected error
	}{
		{"plain ok", plain, "secret", nil},
		{"plain wrong", plain, "nope", ErrInvalidKey},
		{"plain missing", plain, "", ErrMissingKey},
		{"hash ok", hashed, "hashed-secret", nil},
		{"hash ignores plain key", hashed, "ignored", ErrInvalidKey},
		{"disabled", open, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.auth.Validate(tt.key); !errors.Is(err, tt.expected) {
				t.Errorf("Validate(%q) = %v, expected %v", tt.key, err, tt.expected)
			}
		})
	}
}

func TestNewAuthenticator_BadHash(t *testing.T) {
	if _, err := NewAuthenticator("", "not-a-hash"); err == nil {
		t.Error("expected an error for an invalid bcrypt hash")
	}
}

func TestMiddleware(t *testing.T) {
	a, _ := NewAuthenticator("secret", "")
	handler := a.Middleware("/health")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		path     string
		header   string
		expected int
	}{
		{"/health", "", http.StatusOK},
		{"/summary", "", http.StatusUnauthorized},
		{"/summary", "Bearer nope", http.StatusUnauthorized},
		{"/summary", "Bearer secret", http.StatusOK},
		{"/summary", "bearer secret", http.StatusOK},
		{"/summary", "Basic secret", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		req := httptest.NewRequest("GET", tt.path, nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != tt.expected {
			t.Errorf("%s with %q: status = %d, expected %d", tt.path, tt.header, rr.Code, tt.expected)
		}
	}
}

func TestGenerateAndHashAPIKey(t *testing.T) {
	key, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}
	other, _ := GenerateAPIKey()
	if key == other {
		t.Error("two generated keys are equal")
	}

	hash, err := HashAPIKey(key)
	if err != nil {
		t.Fatalf("HashAPIKey failed: %v", err)
	}
	a, err := NewAuthenticator("", hash)
	if err != nil {
		t.Fatalf("NewAuthenticator failed: %v", err)
	}
	if err := a.Validate(key); err != nil {
		t.Errorf("Validate with generated key = %v", err)
	}
}

func TestSecureCompare(t *testing.T) {
	if !SecureCompare("abc", "abc") || SecureCompare("abc", "abd") || SecureCompare("abc", "ab") {
		t.Error("SecureCompare returned a wrong result")
	}
}
