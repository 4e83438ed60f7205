package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lucasberan/keygate/internal/models"
)

// Default validity periods for issued access tokens.
const (
	DefaultAccessTokenTTL  = 1 * time.Hour
	DefaultRememberMeTTL   = 30 * 24 * time.Hour
	defaultBearerTokenType = "Bearer"
)

// TokenConfig bundles the configuration required to build a TokenService.
type TokenConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
	RememberMeTTL  time.Duration
	Clock          func() time.Time
}

// Claims represents the custom claims embedded in issued JWTs.
type Claims struct {
	UserID   string `json:"uid"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// TokenDetails is the bearer-token handoff returned to a client that passed
// every required authentication factor.
type TokenDetails struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int64        `json:"expires_in"`
	User        *models.User `json:"user,omitempty"`
}

// TokenService issues and validates the JSON Web Tokens handed out after a
// successful login or two-factor challenge.
type TokenService struct {
	secret      []byte
	issuer      string
	ttl         time.Duration
	rememberTTL time.Duration
	now         func() time.Time
}

// NewTokenService constructs a TokenService from the supplied configuration.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token: secret must be provided")
	}

	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}

	rememberTTL := cfg.RememberMeTTL
	if rememberTTL <= 0 {
		rememberTTL = DefaultRememberMeTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &TokenService{
		secret:      []byte(cfg.Secret),
		issuer:      cfg.Issuer,
		ttl:         ttl,
		rememberTTL: rememberTTL,
		now:         now,
	}, nil
}

// Issue signs a token for the user. Remember-me logins get the long TTL.
func (s *TokenService) Issue(user *models.User, remember bool) (*TokenDetails, error) {
	if user == nil || user.ID == "" {
		return nil, errors.New("token: user is required")
	}

	ttl := s.ttl
	if remember {
		ttl = s.rememberTTL
	}

	now := s.now()
	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("token: sign token: %w", err)
	}

	return &TokenDetails{
		AccessToken: signed,
		TokenType:   defaultBearerTokenType,
		ExpiresIn:   int64(ttl.Seconds()),
		User:        user,
	}, nil
}

// Validate parses and validates a signed JWT, returning the application claims.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("token: token string is empty")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("token: parse token: %w", err)
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, errors.New("token: invalid issuer")
	}

	if claims.UserID == "" {
		return nil, errors.New("token: missing user id claim")
	}

	return &claims, nil
}
