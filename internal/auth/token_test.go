package auth

import (
	"testing"
	"time"

	"github.com/civicgrid/request-service/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret", 60)
	role := domain.RoleSupervisor

	tokenStr, expiresAt, err := tm.GenerateToken("stf-1", domain.SubjectTypeStaff, &role)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if time.Until(expiresAt) < 55*time.Minute {
		t.Errorf("expiry %v too soon for a 60 minute ttl", expiresAt)
	}

	claims, err := tm.ParseToken(tokenStr)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if claims.SubjectID != "stf-1" || claims.Subject != domain.SubjectTypeStaff {
		t.Errorf("claims = %+v", claims)
	}
	if claims.Role == nil || *claims.Role != domain.RoleSupervisor {
		t.Errorf("role = %v, want SUPERVISOR", claims.Role)
	}
}

func TestTokenCitizenHasNoRoleClaim(t *testing.T) {
	tm := NewTokenManager("test-secret", 60)

	tokenStr, _, err := tm.GenerateToken("cit-1", domain.SubjectTypeCitizen, nil)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	claims, err := tm.ParseToken(tokenStr)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if claims.Role != nil {
		t.Errorf("citizen token carries role %v", *claims.Role)
	}
}

func TestTokenWrongSecretRejected(t *testing.T) {
	tokenStr, _, err := NewTokenManager("secret-a", 60).GenerateToken("cit-1", domain.SubjectTypeCitizen, nil)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if _, err := NewTokenManager("secret-b", 60).ParseToken(tokenStr); err == nil {
		t.Fatal("token signed with another secret must not parse")
	}
}

func TestTokenGarbageRejected(t *testing.T) {
	tm := NewTokenManager("test-secret", 60)
	if _, err := tm.ParseToken("not.a.token"); err == nil {
		t.Fatal("garbage input must not parse")
	}
}

func TestPasswordHashing(t *testing.T) {
	hashed, err := HashPassword("hunter2-but-longer", 4)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if err := ComparePassword(hashed, "hunter2-but-longer"); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
	if err := ComparePassword(hashed, "wrong"); err == nil {
		t.Error("wrong password accepted")
	}
}
