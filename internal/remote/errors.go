package remote

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when a lookup matches no remote entity.
var ErrNotFound = errors.New("remote entity not found")

// TransportError wraps a network or HTTP-level failure talking to the
// remote API.
type TransportError struct {
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	return "remote transport error: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ThrottledError indicates the remote API rejected the call due to rate
// limiting. Callers are expected to retry with backoff.
type ThrottledError struct {
	Message string
}

func (e *ThrottledError) Error() string {
	return "remote throttled: " + e.Message
}

// FieldError is a single field-level complaint from the remote API.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError carries the remote system's field-level complaints for a
// rejected create/update. Never retried.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "remote validation error"
	}
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		if fe.Field != "" {
			msgs[i] = fe.Field + ": " + fe.Message
		} else {
			msgs[i] = fe.Message
		}
	}
	return "remote validation error: " + strings.Join(msgs, "; ")
}

// First returns the first field-level message, or an empty string.
func (e *ValidationError) First() string {
	if len(e.Errors) == 0 {
		return ""
	}
	return e.Errors[0].Message
}

// UserError matches the shape mutations report field problems in.
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// UserErrorsToValidation converts a mutation's userErrors payload into a
// *ValidationError, or nil when the list is empty.
func UserErrorsToValidation(userErrors []UserError) error {
	if len(userErrors) == 0 {
		return nil
	}
	ve := &ValidationError{Errors: make([]FieldError, len(userErrors))}
	for i, ue := range userErrors {
		ve.Errors[i] = FieldError{
			Field:   strings.Join(ue.Field, "."),
			Message: ue.Message,
		}
	}
	return ve
}

// IsThrottled reports whether err is a rate-limit class failure, either a
// typed *ThrottledError or an error whose text the remote system uses for
// throttling.
func IsThrottled(err error) bool {
	if err == nil {
		return false
	}
	var te *ThrottledError
	if errors.As(err, &te) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "throttled")
}

// IsConflict reports whether err is a uniqueness collision on a field value.
// These trigger the adapters' recovery protocol instead of a plain failure.
func IsConflict(err error) bool {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	for _, fe := range ve.Errors {
		msg := strings.ToLower(fe.Message)
		if strings.Contains(msg, "already been taken") ||
			strings.Contains(msg, "must be unique") ||
			strings.Contains(msg, "already exists") {
			return true
		}
	}
	return false
}

// IsValidation reports whether err carries field-level complaints.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
