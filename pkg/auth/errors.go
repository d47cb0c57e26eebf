package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Messages used when the backend gives no usable explanation.
const (
	MessageGeneric          = "Authentication failed. Please try again."
	MessageUnreachable      = "Unable to reach the server. Please try again."
	MessageInvalidResponse  = "Unexpected response from the server."
	MessageStorageFailure   = "Unable to save your session. Please try again."
	MessageAlreadySignedIn  = "Already signed in. Log out before requesting a code."
	MessageLogoutIncomplete = "Signed out, but the saved session could not be removed."
)

// AuthError is returned by every failing lifecycle operation. Error returns
// Message verbatim so it can be shown to the user as-is.
type AuthError struct {
	Op         string
	Message    string
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is (or wraps) an *AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// errorMessage extracts a readable message from an error response body,
// preferring "detail" then "error".
func errorMessage(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return MessageGeneric
	}
	for _, key := range []string{"detail", "error"} {
		if s, ok := payload[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return MessageGeneric
}

// validationMessage turns validator field errors into one sentence.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return MessageGeneric
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "email":
			parts = append(parts, field+" must be a valid email address")
		default:
			parts = append(parts, fmt.Sprintf("%s is invalid", field))
		}
	}
	return strings.Join(parts, "; ")
}
