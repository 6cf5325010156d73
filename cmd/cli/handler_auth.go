package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/petnica-meteor-group/meteornet-server/pkg/database"
	"github.com/petnica-meteor-group/meteornet-server/pkg/models"
)

// LoginRequest is the body of a login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries a token on success
type LoginResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	User      *UserInfo `json:"user,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// UserInfo is the public part of an operator
type UserInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func newUserInfo(user *models.User) *UserInfo {
	return &UserInfo{ID: user.ID.String(), Username: user.Username}
}

func (rm *RouteManager) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, LoginResponse{Message: "Invalid request body"})
		return
	}

	user, err := rm.Users.ValidateUser(r.Context(), req.Username, req.Password)
	if err != nil {
		if !errors.Is(err, database.ErrInvalidCredentials) {
			rm.logger.Error().Err(err).Msg("Failed to validate user")
		}
		writeJSON(w, http.StatusUnauthorized, LoginResponse{Message: "Invalid username or password"})
		return
	}

	rm.issueToken(w, user)
}

func (rm *RouteManager) handleMe(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, newUserInfo(user))
}

func (rm *RouteManager) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	rm.issueToken(w, user)
}

func (rm *RouteManager) issueToken(w http.ResponseWriter, user *models.User) {
	token, expiresAt, err := GenerateJWT(rm.Server.JWTSecret, user)
	if err != nil {
		rm.logger.Error().Err(err).Msg("Failed to generate token")
		writeJSON(w, http.StatusInternalServerError, LoginResponse{Message: "Failed to generate token"})
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Success:   true,
		Token:     token,
		ExpiresAt: expiresAt,
		User:      newUserInfo(user),
	})
}
