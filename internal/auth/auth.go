package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAuthDisabled       = errors.New("authentication is disabled")
)

// Authenticator validates operator credentials and issues API tokens.
type Authenticator struct {
	enabled      bool
	username     string
	passwordHash []byte
	tokens       *TokenManager
}

// New builds an authenticator from static configuration. Password may be
// either plaintext or a pre-computed bcrypt hash.
func New(cfg Config) *Authenticator {
	username := cfg.Username
	if username == "" {
		username = "admin"
	}

	var passwordHash []byte
	if cfg.Enabled && cfg.Password != "" {
		if looksHashed(cfg.Password) {
			passwordHash = []byte(cfg.Password)
		} else {
			hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
			if err == nil {
				passwordHash = hash
			}
		}
	}

	return &Authenticator{
		enabled:      cfg.Enabled,
		username:     username,
		passwordHash: passwordHash,
		tokens:       NewTokenManager(cfg.Secret, cfg.Expiry),
	}
}

// bcrypt hashes are 60 bytes and start with a $2 version marker.
func looksHashed(password string) bool {
	return len(password) == 60 && password[0] == '$'
}

// Enabled reports whether authentication is turned on.
func (a *Authenticator) Enabled() bool {
	return a.enabled
}

// Authenticate checks credentials and returns a signed token with its
// expiry as a unix timestamp.
func (a *Authenticator) Authenticate(username, password string) (string, int64, error) {
	if !a.enabled {
		return "", 0, ErrAuthDisabled
	}

	if username != a.username {
		return "", 0, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", 0, ErrInvalidCredentials
	}

	token, expiresAt, err := a.tokens.Generate(username)
	if err != nil {
		return "", 0, err
	}

	return token, expiresAt.Unix(), nil
}

// ValidateToken validates a token and returns its claims.
func (a *Authenticator) ValidateToken(token string) (*Claims, error) {
	return a.tokens.Validate(token)
}

// Tokens returns the token manager.
func (a *Authenticator) Tokens() *TokenManager {
	return a.tokens
}

// HashPassword creates a bcrypt hash suitable for the Password config field.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
