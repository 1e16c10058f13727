package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/pkg/config"
)

const clockSkew = 30 * time.Second

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingSecret = errors.New("jwt secret is required")
)

// Verifier checks bearer tokens against one secret and issuer.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(cfg config.JWTConfig) (*Verifier, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &Verifier{secret: []byte(cfg.Secret), parser: jwt.NewParser(opts...)}, nil
}

// Verify parses raw and returns its principal. Every failure wraps
// ErrInvalidToken.
func (v *Verifier) Verify(raw string) (Principal, error) {
	var claims Claims
	if _, err := v.parser.ParseWithClaims(raw, &claims, v.key); err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	actorID, err := uuid.Parse(claims.Subject)
	if err != nil || actorID == uuid.Nil {
		return Principal{}, fmt.Errorf("%w: subject is not an actor id", ErrInvalidToken)
	}
	if !claims.Role.IsValid() {
		return Principal{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	p := Principal{ActorID: actorID, Role: claims.Role, TokenID: claims.ID}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

func (v *Verifier) key(*jwt.Token) (any, error) {
	return v.secret, nil
}

// Mint signs a token for p valid for the configured lifetime from now. An
// empty TokenID is filled with a random one.
func Mint(cfg config.JWTConfig, now time.Time, p Principal) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", ErrMissingSecret
	case cfg.TokenTTL() <= 0:
		return "", errors.New("jwt expiration must be positive")
	case p.ActorID == uuid.Nil:
		return "", errors.New("actor id is required")
	case !p.Role.IsValid():
		return "", fmt.Errorf("invalid actor role %q", p.Role)
	}

	id := p.TokenID
	if id == "" {
		id = uuid.NewString()
	}
	claims := Claims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ActorID.String(),
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TokenTTL())),
			ID:        id,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}
