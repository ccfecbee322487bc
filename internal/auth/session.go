package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultSessionIssuer = "galleria-api"
	defaultSessionTTL    = 365 * 24 * time.Hour
)

var (
	ErrMissingSessionSigningKey = errors.New("session manager: signing key required")
	ErrMissingSessionCookieName = errors.New("session manager: cookie name required")
	ErrMissingSessionToken      = errors.New("session manager: token required")
	ErrInvalidSessionToken      = errors.New("session manager: invalid token")
	ErrExpiredSessionToken      = errors.New("session manager: token expired")
)

// SessionClaims is the JWT payload carried by the session cookie. Values holds the
// client-local key/value pairs persisted for one browser.
type SessionClaims struct {
	Values map[string]string `json:"values"`
	jwt.RegisteredClaims
}

// SessionManagerConfig describes how session cookies are signed and scoped.
type SessionManagerConfig struct {
	SigningSecret []byte
	Issuer        string
	CookieName    string
	TTL           time.Duration
	Secure        bool
	Clock         func() time.Time
}

// SessionManager issues and validates HS256 session cookies.
type SessionManager struct {
	signingSecret []byte
	issuer        string
	cookieName    string
	ttl           time.Duration
	secure        bool
	clock         func() time.Time
}

// NewSessionManager constructs a manager with the provided configuration.
func NewSessionManager(cfg SessionManagerConfig) (*SessionManager, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSessionSigningKey
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		return nil, ErrMissingSessionCookieName
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultSessionIssuer
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionManager{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		cookieName:    cookieName,
		ttl:           ttl,
		secure:        cfg.Secure,
		clock:         clock,
	}, nil
}

// CookieName returns the cookie name configured for session lookups.
func (m *SessionManager) CookieName() string {
	return m.cookieName
}

// Issue signs values into a session token and returns it with its expiry.
func (m *SessionManager) Issue(values map[string]string) (string, time.Time, error) {
	now := m.clock().UTC()
	expiresAt := now.Add(m.ttl)
	copied := make(map[string]string, len(values))
	for key, value := range values {
		copied[key] = value
	}
	claims := SessionClaims{
		Values: copied,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.signingSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken validates the supplied JWT string and returns the stored values.
func (m *SessionManager) ValidateToken(tokenString string) (map[string]string, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return nil, ErrMissingSessionToken
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidSessionToken, t.Method.Alg())
			}
			return m.signingSecret, nil
		},
		jwt.WithTimeFunc(m.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredSessionToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return nil, ErrInvalidSessionToken
	}
	if claims.Values == nil {
		claims.Values = map[string]string{}
	}
	return claims.Values, nil
}

// ReadRequest extracts the configured cookie from the request and validates it.
func (m *SessionManager) ReadRequest(r *http.Request) (map[string]string, error) {
	if r == nil {
		return nil, ErrMissingSessionToken
	}
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie == nil {
		return nil, ErrMissingSessionToken
	}
	return m.ValidateToken(cookie.Value)
}

// WriteCookie issues a token for values and sets it on the response.
func (m *SessionManager) WriteCookie(w http.ResponseWriter, values map[string]string) error {
	token, expiresAt, err := m.Issue(values)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
