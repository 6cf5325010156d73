package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an operator account for the administrative API
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}
