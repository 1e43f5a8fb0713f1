package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserID represents a unique user identifier
type UserID struct {
	ID string `json:"id" bson:"id"`
}

// NewUserID creates a new user ID
func NewUserID() UserID {
	return UserID{ID: uuid.New().String()}
}

// UserIDFromString creates a UserID from a string
func UserIDFromString(id string) UserID {
	return UserID{ID: id}
}

// String returns the string representation
func (u UserID) String() string {
	return u.ID
}

// User represents a wallet user.
// Keys holds the JSON encoded wallet key (see wallet.Key) the user's DID is derived from.
type User struct {
	UUID         UserID  `json:"uuid" bson:"id"`
	Username     string  `json:"username" bson:"username"`
	DisplayName  *string `json:"display_name,omitempty" bson:"display_name,omitempty"`
	DID          string  `json:"did" bson:"did"`
	PasswordHash *string `json:"-" bson:"password_hash,omitempty"`
	Keys         []byte  `json:"-" bson:"keys,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Username    string `json:"username" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"display_name"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Token       string `json:"appToken"`
	UserID      string `json:"user_id"`
	DID         string `json:"did"`
	DisplayName string `json:"display_name,omitempty"`
}
