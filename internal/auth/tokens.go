package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/spigell/resume-agent/internal/apperr"
)

// Token kinds.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
	KindState   = "oauth_state"
)

const (
	defaultAccessTTL  = 60 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	stateTTL          = 10 * time.Minute
	defaultIssuer     = "resume-agent"
	minSecretLength   = 16
)

// TokenConfig configures the token issuer.
type TokenConfig struct {
	Secret     string        `mapstructure:"secret"`
	AccessTTL  time.Duration `mapstructure:"access-ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh-ttl"`
}

// Claims are the JWT claims used by every token kind.
type Claims struct {
	jwt.RegisteredClaims
	Kind string `json:"kind"`
}

// TokenPair is returned on login, register and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer validates cfg and returns an issuer.
func NewIssuer(cfg TokenConfig) (*Issuer, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d characters", minSecretLength)
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}

	return &Issuer{
		secret:     []byte(secret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}, nil
}

// Issue signs a token of kind for subject.
func (i *Issuer) Issue(subject, kind string) (string, error) {
	var ttl time.Duration
	switch kind {
	case KindAccess:
		ttl = i.accessTTL
	case KindRefresh:
		ttl = i.refreshTTL
	case KindState:
		ttl = stateTTL
	default:
		return "", fmt.Errorf("unknown token kind %q", kind)
	}

	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    defaultIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Kind: kind,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

// IssuePair signs an access and a refresh token for subject.
func (i *Issuer) IssuePair(subject string) (*TokenPair, error) {
	access, err := i.Issue(subject, KindAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := i.Issue(subject, KindRefresh)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(i.accessTTL.Seconds()),
	}, nil
}

// Parse verifies token and checks it is of the expected kind. Every failure
// is reported as unauthorized.
func (i *Issuer) Parse(token, kind string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(defaultIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Unauthorized("token expired")
		}
		return nil, apperr.Unauthorized("invalid token")
	}
	if claims.Kind != kind {
		return nil, apperr.Unauthorized("invalid token")
	}
	if claims.Subject == "" {
		return nil, apperr.Unauthorized("invalid token")
	}
	return claims, nil
}
