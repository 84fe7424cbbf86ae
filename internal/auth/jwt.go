// Package auth issues and validates the bearer tokens that identify API users.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTypeAccess is the only token type the API accepts.
const TokenTypeAccess = "access"

// Issuer is stamped into every token and checked on validation.
const Issuer = "study-tracker"

// Defaults for token lifetime and clock skew.
const (
	DefaultAccessTokenExpiry = 24 * time.Hour
	DefaultLeeway            = 30 * time.Second
)

var (
	// ErrInvalidToken is returned when a token cannot be verified.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
	// ErrEmptyUserID is returned when minting a token without a subject.
	ErrEmptyUserID = errors.New("userID cannot be empty")
	// ErrWrongTokenType is returned when a non-access token is presented.
	ErrWrongTokenType = errors.New("wrong token type")
)

// Claims are the JWT claims carried by access tokens. The subject is the user ID.
type Claims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// Service signs tokens with the current secret and accepts tokens signed with
// either the current or the previous secret, so secrets can rotate without
// logging everybody out.
type Service struct {
	currentSecret  []byte
	previousSecret []byte
	leeway         time.Duration
	expiry         time.Duration
	now            func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLeeway overrides the allowed clock skew.
func WithLeeway(d time.Duration) Option {
	return func(s *Service) { s.leeway = d }
}

// WithExpiry overrides the lifetime of minted access tokens.
func WithExpiry(d time.Duration) Option {
	return func(s *Service) { s.expiry = d }
}

// WithPreviousSecret enables validation with a retired secret during rotation.
// An empty secret is ignored.
func WithPreviousSecret(secret string) Option {
	return func(s *Service) {
		if secret != "" {
			s.previousSecret = []byte(secret)
		}
	}
}

// NewService creates a token service signing with secret.
func NewService(secret string, opts ...Option) *Service {
	s := &Service{
		currentSecret: []byte(secret),
		leeway:        DefaultLeeway,
		expiry:        DefaultAccessTokenExpiry,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateAccessToken mints an access token for userID.
func (s *Service) GenerateAccessToken(userID string) (string, error) {
	if userID == "" {
		return "", ErrEmptyUserID
	}

	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
		Type: TokenTypeAccess,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.currentSecret)
}

// ValidateToken verifies the signature and registered claims and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString, s.currentSecret)
	if err != nil && s.previousSecret != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		claims, err = s.parse(tokenString, s.previousSecret)
	}
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateAccessToken validates an access token and returns its user ID.
func (s *Service) ValidateAccessToken(tokenString string) (string, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}
	if claims.Type != TokenTypeAccess {
		return "", ErrWrongTokenType
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func (s *Service) parse(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
