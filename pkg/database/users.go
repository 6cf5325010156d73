package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/petnica-meteor-group/meteornet-server/pkg/models"
)

// ErrInvalidCredentials is returned for an unknown user or a wrong password
var ErrInvalidCredentials = errors.New("invalid credentials")

const hashPrefix = "v2:"

// hashPassword pre-hashes with SHA-256 so passwords longer than bcrypt's 72
// byte limit still count in full
func hashPassword(password string) string {
	hash := sha256.Sum256([]byte(password))
	return hex.EncodeToString(hash[:])
}

func bcryptHash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(hashPassword(password)), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return hashPrefix + string(hashed), nil
}

// CreateUser creates a new operator with hashed password
func (dm *DatabaseManager) CreateUser(ctx context.Context, username, password string) (*models.User, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, errors.New("username and password must not be empty")
	}

	finalHash, err := bcryptHash(password)
	if err != nil {
		return nil, err
	}

	query := `
        INSERT INTO users (username, password_hash)
        VALUES ($1, $2)
        RETURNING id, username, created_at
    `

	var user models.User
	err = dm.QueryRowWithHealthCheck(ctx, query, username, finalHash).
		Scan(&user.ID, &user.Username, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return &user, nil
}

// GetUser returns an operator by id
func (dm *DatabaseManager) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := dm.QueryRowWithHealthCheck(ctx,
		`SELECT id, username, created_at FROM users WHERE id = $1`, id,
	).Scan(&user.ID, &user.Username, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// ValidateUser checks username and password
func (dm *DatabaseManager) ValidateUser(ctx context.Context, username, password string) (*models.User, error) {
	query := `
        SELECT id, username, password_hash, created_at
        FROM users
        WHERE username = $1
    `

	var user models.User
	var passwordHash string

	err := dm.QueryRowWithHealthCheck(ctx, query, username).
		Scan(&user.ID, &user.Username, &passwordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	actualHash, ok := strings.CutPrefix(passwordHash, hashPrefix)
	if !ok {
		dm.logger.Warn().Str("user_id", user.ID.String()).Msg("Stored password hash has an unknown format")
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(actualHash), []byte(hashPassword(password))); err != nil {
		return nil, ErrInvalidCredentials
	}

	return &user, nil
}
