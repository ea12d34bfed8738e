package chat

import (
	"errors"
	"fmt"

	"github.com/shopdesk/supportchat/internal/repository"
)

// Code is a stable machine-readable error code sent to clients.
type Code string

const (
	CodeAuthRequired      Code = "authentication_required"
	CodeInvalidCredential Code = "invalid_credential"
	CodeNotJoined         Code = "not_joined"
	CodeEmptyMessage      Code = "empty_message"
	CodeAccessDenied      Code = "access_denied"
	CodeRoomNotFound      Code = "room_not_found"
	CodeAlreadyClosed     Code = "already_closed"
	CodeStoreUnavailable  Code = "store_unavailable"
	CodeRateLimited       Code = "rate_limited"
	CodeInvalidPayload    Code = "invalid_payload"
	CodeUnknownEvent      Code = "unknown_event"
)

// Error is returned by every chat operation. Two errors match under errors.Is
// when their codes are equal.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrAuthRequired      = &Error{Code: CodeAuthRequired, Message: "authentication required"}
	ErrInvalidCredential = &Error{Code: CodeInvalidCredential, Message: "invalid or expired token"}
	ErrNotJoined         = &Error{Code: CodeNotJoined, Message: "join a room first"}
	ErrEmptyMessage      = &Error{Code: CodeEmptyMessage, Message: "message is empty"}
	ErrAccessDenied      = &Error{Code: CodeAccessDenied, Message: "access denied"}
	ErrRoomNotFound      = &Error{Code: CodeRoomNotFound, Message: "room not found"}
	ErrAlreadyClosed     = &Error{Code: CodeAlreadyClosed, Message: "room is closed"}
	ErrStoreUnavailable  = &Error{Code: CodeStoreUnavailable, Message: "message store unavailable"}
	ErrRateLimited       = &Error{Code: CodeRateLimited, Message: "too many messages, slow down"}
	ErrInvalidPayload    = &Error{Code: CodeInvalidPayload, Message: "invalid payload"}
	ErrUnknownEvent      = &Error{Code: CodeUnknownEvent, Message: "unknown event"}
)

// Errorf builds an error with a sentinel's code and a custom message.
func Errorf(sentinel *Error, format string, args ...any) *Error {
	return &Error{Code: sentinel.Code, Message: fmt.Sprintf(format, args...)}
}

// WrapStoreError maps repository errors onto chat codes. Anything unexpected is
// store_unavailable with the cause kept for logging.
func WrapStoreError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrRoomNotFound
	case errors.Is(err, repository.ErrAlreadyClosed):
		return ErrAlreadyClosed
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return &Error{Code: CodeStoreUnavailable, Message: ErrStoreUnavailable.Message, cause: fmt.Errorf("%s: %w", op, err)}
}

// AsError converts any error into a *Error suitable for a client.
// Unclassified errors become store_unavailable.
func AsError(err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return &Error{Code: CodeStoreUnavailable, Message: ErrStoreUnavailable.Message, cause: err}
}
