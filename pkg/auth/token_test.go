package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

func testJWT() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "stockledger", ExpirationMinutes: 30}
}

func mustVerifier(t *testing.T, cfg config.JWTConfig) *Verifier {
	t.Helper()
	v, err := NewVerifier(cfg)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v
}

func TestMintAndVerify(t *testing.T) {
	cfg := testJWT()
	now := time.Now().UTC()
	actorID := uuid.New()

	token, err := Mint(cfg, now, Principal{ActorID: actorID, Role: enums.ActorRoleSupervisor})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	p, err := mustVerifier(t, cfg).Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if p.ActorID != actorID || p.Role != enums.ActorRoleSupervisor {
		t.Fatalf("unexpected principal %+v", p)
	}
	if p.TokenID == "" {
		t.Fatal("expected generated token id")
	}
	if diff := p.ExpiresAt.Sub(now.Add(30 * time.Minute)); diff > time.Second || diff < -time.Second {
		t.Fatalf("unexpected expiry %v", p.ExpiresAt)
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	cfg := testJWT()
	token, err := Mint(cfg, time.Now(), Principal{ActorID: uuid.New(), Role: enums.ActorRoleClerk})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := mustVerifier(t, cfg).Verify(token + "x"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsExpiredBeyondSkew(t *testing.T) {
	cfg := testJWT()
	token, err := Mint(cfg, time.Now().Add(-time.Hour), Principal{ActorID: uuid.New(), Role: enums.ActorRoleClerk})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	_, err = mustVerifier(t, cfg).Verify(token)
	if !errors.Is(err, ErrInvalidToken) || !strings.Contains(err.Error(), "expired") {
		t.Fatalf("expected expiry failure, got %v", err)
	}
}

func TestVerifyRejectsForeignIssuerAndAlgorithm(t *testing.T) {
	cfg := testJWT()
	other := cfg
	other.Issuer = "someone-else"
	token, err := Mint(other, time.Now(), Principal{ActorID: uuid.New(), Role: enums.ActorRoleClerk})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := mustVerifier(t, cfg).Verify(token); err == nil {
		t.Fatal("expected issuer mismatch")
	}

	claims := Claims{Role: enums.ActorRoleSystem, RegisteredClaims: jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		Issuer:    cfg.Issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := mustVerifier(t, cfg).Verify(unsigned); err == nil {
		t.Fatal("expected alg none to be rejected")
	}
}

func TestVerifyRequiresActorSubject(t *testing.T) {
	cfg := testJWT()
	claims := Claims{Role: enums.ActorRoleClerk, RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "not-a-uuid",
		Issuer:    cfg.Issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := mustVerifier(t, cfg).Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected subject failure, got %v", err)
	}
}

func TestMintRejectsInvalidPrincipal(t *testing.T) {
	cfg := testJWT()
	if _, err := Mint(cfg, time.Now(), Principal{ActorID: uuid.New(), Role: "owner"}); err == nil {
		t.Fatal("expected invalid role error")
	}
	if _, err := Mint(cfg, time.Now(), Principal{Role: enums.ActorRoleClerk}); err == nil {
		t.Fatal("expected missing actor error")
	}
	if _, err := NewVerifier(config.JWTConfig{}); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected missing secret, got %v", err)
	}
}
