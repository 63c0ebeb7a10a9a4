package identity

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSigningKey = errors.New("identity: signing key required")
	ErrMissingIssuer     = errors.New("identity: issuer required")
	ErrMissingToken      = errors.New("identity: token required")
	ErrInvalidToken      = errors.New("identity: invalid token")
	ErrExpiredToken      = errors.New("identity: token expired")
	ErrMissingSubject    = errors.New("identity: subject required")
)

// SessionClaims mirrors the JWT payload issued by the authentication provider.
type SessionClaims struct {
	UserID          string `json:"user_id"`
	UserEmail       string `json:"user_email"`
	UserDisplayName string `json:"user_display_name"`
	jwt.RegisteredClaims
}

// SessionProviderConfig describes how session tokens are validated.
type SessionProviderConfig struct {
	SigningSecret []byte
	Issuer        string
	Clock         func() time.Time
}

// SessionProvider validates HS256 session tokens and holds the resulting
// identity for the lifetime of the session. Before SignIn, or after SignOut,
// it reports no user.
type SessionProvider struct {
	signingSecret []byte
	issuer        string
	clock         func() time.Time

	mu     sync.RWMutex
	userID string
}

// NewSessionProvider constructs a provider with the supplied configuration.
func NewSessionProvider(cfg SessionProviderConfig) (*SessionProvider, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningKey
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, ErrMissingIssuer
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionProvider{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		clock:         clock,
	}, nil
}

// ValidateToken validates the supplied JWT string and returns its claims
// without changing the current session.
func (p *SessionProvider) ValidateToken(tokenString string) (SessionClaims, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return SessionClaims{}, ErrMissingToken
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidToken, t.Method.Alg())
			}
			return p.signingSecret, nil
		},
		jwt.WithTimeFunc(p.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return SessionClaims{}, ErrExpiredToken
		}
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return SessionClaims{}, ErrInvalidToken
	}
	if claims.Issuer != p.issuer {
		return SessionClaims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" && strings.TrimSpace(claims.UserID) == "" {
		return SessionClaims{}, ErrMissingSubject
	}
	return *claims, nil
}

// SignIn validates the token and adopts its identity as the current session.
func (p *SessionProvider) SignIn(tokenString string) (SessionClaims, error) {
	claims, err := p.ValidateToken(tokenString)
	if err != nil {
		return SessionClaims{}, err
	}
	userID := strings.TrimSpace(claims.UserID)
	if userID == "" {
		userID = strings.TrimSpace(claims.Subject)
	}
	p.mu.Lock()
	p.userID = userID
	p.mu.Unlock()
	return claims, nil
}

// SignOut clears the current session.
func (p *SessionProvider) SignOut() {
	p.mu.Lock()
	p.userID = ""
	p.mu.Unlock()
}

// CurrentUserID implements Provider.
func (p *SessionProvider) CurrentUserID() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.userID == "" {
		return "", false
	}
	return p.userID, true
}
