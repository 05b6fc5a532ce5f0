package server

import (
	"errors"
)

const (
	msgMissingAdSetID     = "No ad set ID provided"
	msgNoAccountFound     = "No account ID specified and no accounts found for user"
	msgNoChangesProvided  = "No update parameters provided"
	msgMissingAccessToken = "No access token provided and no cached token available"
)

// ValidationError represents a validation failure
type ValidationError struct {
	Message string
	Code    string
	Field   string
}

func (e ValidationError) Error() string {
	return e.Message
}

var (
	ErrMissingAdSetID     = ValidationError{Message: msgMissingAdSetID, Code: "MISSING_ADSET_ID", Field: "adset_id"}
	ErrNoAccountFound     = ValidationError{Message: msgNoAccountFound, Code: "NO_ACCOUNT_FOUND", Field: "account_id"}
	ErrNoChangesProvided  = ValidationError{Message: msgNoChangesProvided, Code: "NO_CHANGES", Field: "kwargs"}
	ErrMissingAccessToken = ValidationError{Message: msgMissingAccessToken, Code: "MISSING_ACCESS_TOKEN", Field: "access_token"}
)

// payloadError is implemented by remote errors that carry their own
// caller-facing body, such as graph.APIError.
type payloadError interface {
	Payload() map[string]any
}

// ErrorBody renders err in the uniform tool error shape. Remote errors pass
// their platform payload through unchanged.
func ErrorBody(err error) any {
	var valErr ValidationError
	if errors.As(err, &valErr) {
		return map[string]any{"error": valErr.Message}
	}
	var pe payloadError
	if errors.As(err, &pe) {
		return pe.Payload()
	}
	return map[string]any{"error": err.Error()}
}
