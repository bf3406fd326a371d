package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/laptop-next/internal/config"
	"github.com/laptop-next/internal/models"
	"github.com/laptop-next/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupAuthTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return db
}

func newAuthTestService(db *gorm.DB) *AuthService {
	cfg := &config.Config{}
	cfg.UserJWT.SecretKey = "unit-test-secret-key-0123456789abcdef"
	cfg.UserJWT.ExpireHours = 24
	cfg.UserJWT.RememberMeExpireHours = 168
	return NewAuthService(cfg, repository.NewUserRepository(db))
}

func TestRegisterNormalizesEmail(t *testing.T) {
	db := setupAuthTestDB(t, "auth_register")
	svc := newAuthTestService(db)

	user, err := svc.Register("  Alice@Example.COM ", "secret123", " Alice ")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %s", user.Email)
	}
	if user.DisplayName != "Alice" {
		t.Fatalf("expected trimmed display name, got %q", user.DisplayName)
	}
	if user.PasswordHash == "" || user.PasswordHash == "secret123" {
		t.Fatalf("expected hashed password")
	}

	// 同邮箱（大小写不同）重复注册
	if _, err := svc.Register("ALICE@example.com", "secret123", "A"); !errors.Is(err, ErrEmailExists) {
		t.Fatalf("expected email exists, got: %v", err)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	db := setupAuthTestDB(t, "auth_register_invalid")
	svc := newAuthTestService(db)

	if _, err := svc.Register("not-an-email", "secret123", ""); !errors.Is(err, ErrEmailInvalid) {
		t.Fatalf("expected email invalid, got: %v", err)
	}
	if _, err := svc.Register("", "secret123", ""); !errors.Is(err, ErrEmailInvalid) {
		t.Fatalf("expected email invalid for empty, got: %v", err)
	}
	if _, err := svc.Register("bob@example.com", "short", ""); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected password too short, got: %v", err)
	}
}

func TestLoginIssuesToken(t *testing.T) {
	db := setupAuthTestDB(t, "auth_login")
	svc := newAuthTestService(db)

	registered, err := svc.Register("carol@example.com", "secret123", "Carol")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	user, token, expiresAt, err := svc.Login("carol@example.com", "secret123", false)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if user.ID != registered.ID {
		t.Fatalf("unexpected user: %d", user.ID)
	}
	if token == "" || !expiresAt.After(time.Now()) {
		t.Fatalf("expected valid token with future expiry")
	}
	if user.LastLoginAt == nil {
		t.Fatalf("expected last login recorded")
	}

	claims, err := svc.ParseUserJWT(token)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if claims.UserID != registered.ID || claims.Email != "carol@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestLoginRememberMeExtendsExpiry(t *testing.T) {
	db := setupAuthTestDB(t, "auth_remember")
	svc := newAuthTestService(db)

	if _, err := svc.Register("dave@example.com", "secret123", ""); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	_, _, normalExpiry, err := svc.Login("dave@example.com", "secret123", false)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	_, _, longExpiry, err := svc.Login("dave@example.com", "secret123", true)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if !longExpiry.After(normalExpiry.Add(100 * time.Hour)) {
		t.Fatalf("expected remember-me expiry much later: %v vs %v", longExpiry, normalExpiry)
	}
}

func TestLoginRejectsWrongCredentials(t *testing.T) {
	db := setupAuthTestDB(t, "auth_login_fail")
	svc := newAuthTestService(db)

	if _, err := svc.Register("erin@example.com", "secret123", ""); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if _, _, _, err := svc.Login("erin@example.com", "wrong-pass", false); !errors.Is(err, ErrCredentialsInvalid) {
		t.Fatalf("expected credentials invalid, got: %v", err)
	}
	if _, _, _, err := svc.Login("nobody@example.com", "secret123", false); !errors.Is(err, ErrCredentialsInvalid) {
		t.Fatalf("expected credentials invalid for unknown user, got: %v", err)
	}
	if _, _, _, err := svc.Login("bad email", "secret123", false); !errors.Is(err, ErrCredentialsInvalid) {
		t.Fatalf("expected credentials invalid for malformed email, got: %v", err)
	}
}

func TestParseUserJWTRejectsForgedToken(t *testing.T) {
	db := setupAuthTestDB(t, "auth_token_forged")
	svc := newAuthTestService(db)

	other := newAuthTestService(db)
	other.cfg.UserJWT.SecretKey = "another-secret-key-abcdef0123456789"

	token, _, err := other.GenerateUserJWT(&models.User{ID: 42, Email: "x@example.com"}, 1)
	if err != nil {
		t.Fatalf("generate token failed: %v", err)
	}
	if _, err := svc.ParseUserJWT(token); err == nil {
		t.Fatalf("expected token signed with other key to be rejected")
	}
	if _, err := svc.ParseUserJWT("not.a.token"); err == nil {
		t.Fatalf("expected malformed token to be rejected")
	}
}
