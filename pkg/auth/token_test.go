package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/planmint/planmint-backend/pkg/config"
	"github.com/planmint/planmint-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "test-secret", Issuer: "planmint-test"}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	userID := uuid.New()
	now := time.Now()

	token, err := MintAccessToken(cfg, now, TokenPayload{
		UserID: userID,
		Email:  "dev@planmint.app",
		Role:   enums.RoleAdmin,
		Tier:   enums.TierPro,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != userID {
		t.Fatalf("expected user id %s, got %s", userID, claims.UserID)
	}
	if claims.Role != enums.RoleAdmin || claims.Tier != enums.TierPro {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("unexpected issuer %q", claims.Issuer)
	}
}

func TestMintAccessTokenRejectsInvalidRole(t *testing.T) {
	_, err := MintAccessToken(testJWTConfig(), time.Now(), TokenPayload{
		UserID: uuid.New(),
		Role:   enums.Role("superuser"),
	})
	if err == nil || !strings.Contains(err.Error(), "invalid role") {
		t.Fatalf("expected invalid role error, got %v", err)
	}
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), TokenPayload{
		UserID: uuid.New(),
		Role:   enums.RoleUser,
		TTL:    time.Hour,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseAccessToken(cfg, token); err == nil {
		t.Fatal("expected expired token to fail validation")
	}
}

func TestParseAccessTokenRejectsWrongIssuer(t *testing.T) {
	token, err := MintAccessToken(testJWTConfig(), time.Now(), TokenPayload{
		UserID: uuid.New(),
		Role:   enums.RoleUser,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	other := config.JWTConfig{Secret: "test-secret", Issuer: "someone-else"}
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Fatal("expected issuer mismatch to fail")
	}
}
