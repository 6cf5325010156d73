package database

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestCreateUser_ThenValidate(t *testing.T) {
	dm := setupTestDatabaseManager(t)
	if dm == nil {
		t.Skip("Skipping test that requires real database connection")
	}
	defer dm.Close()

	ctx := context.Background()
	user, err := dm.CreateUser(ctx, "operator", "correct horse")
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	if user.ID == uuid.Nil || user.CreatedAt.IsZero() {
		t.Errorf("Expected id and creation time to be set, got %+v", user)
	}

	var stored string
	if err := dm.GetDB().QueryRowContext(ctx,
		`SELECT password_hash FROM users WHERE id = $1`, user.ID).Scan(&stored); err != nil {
		t.Fatalf("Failed to read hash: %v", err)
	}
	if !strings.HasPrefix(stored, hashPrefix) || strings.Contains(stored, "correct horse") {
		t.Errorf("Expected a %q bcrypt hash, got %q", hashPrefix, stored)
	}

	validated, err := dm.ValidateUser(ctx, "operator", "correct horse")
	if err != nil {
		t.Fatalf("Failed to validate user: %v", err)
	}
	if validated.ID != user.ID {
		t.Errorf("Expected user %s, got %s", user.ID, validated.ID)
	}
}

func TestCreateUser_Rejects(t *testing.T) {
	dm := setupTestDatabaseManager(t)
	if dm == nil {
		t.Skip("Skipping test that requires real database connection")
	}
	defer dm.Close()

	ctx := context.Background()
	if _, err := dm.CreateUser(ctx, "taken", "secret"); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	testCases := []struct {
		name     string
		username string
		password string
	}{
		{name: "empty username", username: "", password: "secret"},
		{name: "whitespace username", username: "   ", password: "secret"},
		{name: "empty password", username: "someone", password: ""},
		{name: "duplicate username", username: "taken", password: "other"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := dm.CreateUser(ctx, tc.username, tc.password); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestValidateUser_InvalidCredentials(t *testing.T) {
	dm := setupTestDatabaseManager(t)
	if dm == nil {
		t.Skip("Skipping test that requires real database connection")
	}
	defer dm.Close()

	ctx := context.Background()
	// longer than bcrypt's 72 byte limit; only the last byte differs below
	long := strings.Repeat("p", 80)
	if _, err := dm.CreateUser(ctx, "operator", long); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	testCases := []struct {
		name     string
		username string
		password string
	}{
		{name: "wrong password", username: "operator", password: "nope"},
		{name: "differs after 72 bytes", username: "operator", password: long[:79] + "q"},
		{name: "empty password", username: "operator", password: ""},
		{name: "unknown user", username: "nobody", password: long},
		{name: "injection attempt", username: "operator' OR '1'='1", password: long},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := dm.ValidateUser(ctx, tc.username, tc.password)
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Errorf("Expected ErrInvalidCredentials, got %v", err)
			}
		})
	}
}

func TestValidateUser_UnknownHashFormat(t *testing.T) {
	dm := setupTestDatabaseManager(t)
	if dm == nil {
		t.Skip("Skipping test that requires real database connection")
	}
	defer dm.Close()

	ctx := context.Background()
	user, err := dm.CreateUser(ctx, "operator", "secret")
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	if _, err := dm.GetDB().ExecContext(ctx,
		`UPDATE users SET password_hash = 'secret' WHERE id = $1`, user.ID); err != nil {
		t.Fatalf("Failed to overwrite hash: %v", err)
	}

	if _, err := dm.ValidateUser(ctx, "operator", "secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
}

func TestGetUser(t *testing.T) {
	dm := setupTestDatabaseManager(t)
	if dm == nil {
		t.Skip("Skipping test that requires real database connection")
	}
	defer dm.Close()

	ctx := context.Background()
	user, err := dm.CreateUser(ctx, "operator", "secret")
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	got, err := dm.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}
	if got.Username != "operator" {
		t.Errorf("Expected username operator, got %s", got.Username)
	}

	if _, err := dm.GetUser(ctx, uuid.New()); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for unknown id, got %v", err)
	}
}
