package files

import (
	"errors"
	"fmt"
)

// ErrorType classifies a failed transfer.
type ErrorType string

const (
	TypeValidation ErrorType = "validation-error"
	TypeURLRequest ErrorType = "url-request-error"
	TypeTransport  ErrorType = "transport-error"
	TypeHTTP       ErrorType = "http-error"
	TypeConfirm    ErrorType = "confirm-error"
)

// ErrValidation is wrapped by every error raised before any network call.
var ErrValidation = errors.New("invalid file input")

// maxErrorBody bounds how much of a failed object store response is kept.
const maxErrorBody = 4096

type UploadError struct {
	Type       ErrorType
	StatusCode int
	Body       string
	Err        error
}

func (e *UploadError) Error() string {
	return formatError("upload", e.Type, e.StatusCode, e.Body, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

type DownloadError struct {
	Type       ErrorType
	StatusCode int
	Body       string
	Err        error
}

func (e *DownloadError) Error() string {
	return formatError("download", e.Type, e.StatusCode, e.Body, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

func formatError(op string, typ ErrorType, status int, body string, err error) string {
	msg := fmt.Sprintf("%s failed (%s", op, typ)
	if status != 0 {
		msg += fmt.Sprintf(", status %d", status)
	}
	msg += ")"
	if err != nil {
		msg += ": " + err.Error()
	}
	if body != "" {
		msg += ": " + body
	}
	return msg
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
