package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDisabledAuthRejectsLogin(t *testing.T) {
	a := New(Config{Enabled: false, Username: "ops", Password: "secret"})

	if a.Enabled() {
		t.Fatal("Enabled() should be false")
	}
	if _, _, err := a.Authenticate("ops", "secret"); !errors.Is(err, ErrAuthDisabled) {
		t.Fatalf("err = %v, want ErrAuthDisabled", err)
	}
}

func TestAuthenticateRoundTrip(t *testing.T) {
	a := New(Config{Enabled: true, Username: "ops", Password: "hunter2", Secret: "test-secret"})

	token, expiresAt, err := a.Authenticate("ops", "hunter2")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if token == "" {
		t.Fatal("empty token")
	}
	if got := time.Until(time.Unix(expiresAt, 0)); got < 23*time.Hour {
		t.Errorf("expiry %v from now, want about 24h", got)
	}

	claims, err := a.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Username != "ops" {
		t.Errorf("claims.Username = %q, want ops", claims.Username)
	}
	if claims.Issuer != "sylph" {
		t.Errorf("claims.Issuer = %q, want sylph", claims.Issuer)
	}
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	a := New(Config{Enabled: true, Username: "ops", Password: "hunter2"})

	cases := []struct {
		name     string
		user, pw string
	}{
		{"wrong user", "root", "hunter2"},
		{"wrong password", "ops", "hunter3"},
		{"both wrong", "root", "toor"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := a.Authenticate(tc.user, tc.pw); !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("err = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestPrehashedPasswordAccepted(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if len(hash) != 60 || !strings.HasPrefix(hash, "$") {
		t.Fatalf("unexpected hash shape: %q", hash)
	}

	a := New(Config{Enabled: true, Username: "ops", Password: hash})
	if _, _, err := a.Authenticate("ops", "hunter2"); err != nil {
		t.Fatalf("Authenticate with pre-hashed password: %v", err)
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	a := New(Config{Enabled: true, Username: "ops", Password: "hunter2", Secret: "test-secret"})

	token, _, err := a.Authenticate("ops", "hunter2")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	tampered := token[:len(token)-2] + "xx"
	if _, err := a.ValidateToken(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestForeignSecretRejected(t *testing.T) {
	issuer := NewTokenManager("secret-a", time.Hour)
	verifier := NewTokenManager("secret-b", time.Hour)

	token, _, err := issuer.Generate("ops")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := verifier.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)
	m.expiry = -time.Minute

	token, _, err := m.Generate("ops")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := m.Validate(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("err = %v, want ErrExpiredToken", err)
	}
}

func TestDefaultsApplied(t *testing.T) {
	m := NewTokenManager("", 0)
	if m.Expiry() != 24*time.Hour {
		t.Errorf("Expiry = %v, want 24h", m.Expiry())
	}
	if len(m.secretKey) == 0 {
		t.Error("empty secret should be replaced with a random one")
	}

	a := New(Config{Enabled: true, Password: "pw"})
	if _, _, err := a.Authenticate("admin", "pw"); err != nil {
		t.Fatalf("default username admin rejected: %v", err)
	}
}
