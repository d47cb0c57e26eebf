package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Durable store keys.
const (
	KeyToken = "authToken"
	KeyUser  = "user"
)

// UserID is a user identifier. Backends emit it either as a JSON number or a
// JSON string; it is always held and re-encoded as a string.
type UserID string

// UnmarshalJSON accepts a JSON string or number.
func (id *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("user id must be a string or number: %w", err)
	}
	*id = UserID(n.String())
	return nil
}

// String returns the id as a string.
func (id UserID) String() string { return string(id) }

// User is the account record returned by the auth endpoints.
type User struct {
	ID       UserID `json:"id" validate:"required"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	IsStaff  bool   `json:"is_staff,omitempty"`
}

// AuthSession is the authenticated identity currently installed.
type AuthSession struct {
	Token string `json:"token" validate:"required"`
	User  User   `json:"user"`
}

// RegisterRequest carries the fields of a new account.
type RegisterRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Phone    string `json:"phone,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type sendCodeRequest struct {
	Phone string `json:"phone" validate:"required"`
}

type verifyCodeRequest struct {
	Phone string `json:"phone" validate:"required"`
	Code  string `json:"code" validate:"required"`
}

// State is the auth state machine position.
type State int

const (
	Unauthenticated State = iota
	Authenticated
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}
