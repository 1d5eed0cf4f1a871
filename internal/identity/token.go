package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"

	"rentalcore/pkg/domain"
)

// Token errors.
var (
	ErrInvalidToken = errors.New("identity: invalid token")
	ErrExpiredToken = errors.New("identity: token has expired")
)

const defaultIssuer = "rentalcore"

// Claims is the JWT payload carrying a session.
type Claims struct {
	UserID string      `json:"userId"`
	Role   domain.Role `json:"role"`
	jwt.StandardClaims
}

// Tokens issues and validates HS256 session tokens.
type Tokens struct {
	key    []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// TokenOption customises Tokens.
type TokenOption func(*Tokens)

// WithTokenClock overrides the issue time source.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(t *Tokens) {
		if now != nil {
			t.now = now
		}
	}
}

// WithIssuer sets the iss claim written and required on parse.
func WithIssuer(iss string) TokenOption {
	return func(t *Tokens) { t.issuer = iss }
}

// NewTokens builds a token codec for key. A non-positive ttl defaults to 24h.
func NewTokens(key []byte, ttl time.Duration, opts ...TokenOption) (*Tokens, error) {
	if len(key) == 0 {
		return nil, errors.New("identity: signing key is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	t := &Tokens{key: key, ttl: ttl, issuer: defaultIssuer, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Issue signs a token for the session.
func (t *Tokens) Issue(s domain.Session) (string, error) {
	if !s.Valid() {
		return "", fmt.Errorf("%w: session requires a user id and a known role", ErrInvalidToken)
	}
	now := t.now()
	claims := &Claims{
		UserID: s.UserID,
		Role:   s.Role,
		StandardClaims: jwt.StandardClaims{
			Subject:   s.UserID,
			ExpiresAt: now.Add(t.ttl).Unix(),
			IssuedAt:  now.Unix(),
			Issuer:    t.issuer,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("identity: sign token: %w", err)
	}
	return signed, nil
}

// Parse validates a token and returns its session.
func (t *Tokens) Parse(raw string) (domain.Session, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.key, nil
	})
	if err != nil {
		var verr *jwt.ValidationError
		if errors.As(err, &verr) && verr.Errors&jwt.ValidationErrorExpired != 0 {
			return domain.Session{}, ErrExpiredToken
		}
		return domain.Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return domain.Session{}, ErrInvalidToken
	}
	if t.issuer != "" && !claims.VerifyIssuer(t.issuer, true) {
		return domain.Session{}, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, claims.Issuer)
	}
	s := domain.Session{UserID: claims.UserID, Role: claims.Role}
	if !s.Valid() {
		return domain.Session{}, fmt.Errorf("%w: incomplete session claims", ErrInvalidToken)
	}
	return s, nil
}
