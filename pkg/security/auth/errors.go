package auth

import (
	"errors"
	"fmt"
	"net/http"
)

// Messages returned to callers.
const (
	MsgInvalidToken       = "Invalid token"
	MsgMissingPermission  = "You do not have required permission"
	MsgNotOwner           = "You do not have required permission for this route"
	MsgMissingBearerToken = "missing bearer token"
	MsgMissingKey         = "missing key"
	MsgInvalidKey         = "invalid key"
)

// Failure is an authentication or authorization rejection. Status is the
// HTTP status to answer with and Message is surfaced as {"error": Message}.
type Failure struct {
	Status  int
	Message string

	// Err is the underlying cause, for logs only.
	Err error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%d %s: %v", f.Status, f.Message, f.Err)
	}
	return fmt.Sprintf("%d %s", f.Status, f.Message)
}

// Unwrap returns the underlying cause.
func (f *Failure) Unwrap() error {
	return f.Err
}

func unauthorized(msg string, err error) *Failure {
	return &Failure{Status: http.StatusUnauthorized, Message: msg, Err: err}
}

func forbidden(msg string, err error) *Failure {
	return &Failure{Status: http.StatusForbidden, Message: msg, Err: err}
}

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
