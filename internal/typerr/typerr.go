// Package typerr defines the service error taxonomy. Services return these;
// HTTP handlers translate codes to status codes and consumers decide
// ack/nack from them.
package typerr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeUnknownError           Code = "UNKNOWN_ERROR"
	CodeInvalidToken           Code = "INVALID_TOKEN"
	CodeRefreshTokenMissmatch  Code = "REFRESH_TOKEN_MISSMATCH"
	CodeKeyNotFound            Code = "KEY_NOT_FOUND"
	CodeGameNotFound           Code = "GAME_NOT_FOUND"
	CodeNotAParticipant        Code = "NOT_A_PARTICIPANT"
	CodeWordsNotFound          Code = "WORDS_NOT_FOUND"
	CodeValidationError        Code = "VALIDATION_ERROR"
	CodePublishNotAcknowledged Code = "PUBLISH_NOT_ACKNOWLEDGED"
	CodeAMQPNotReady           Code = "AMQP_NOT_READY"
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: err.Error(), Err: err}
}

// CodeOf extracts the taxonomy code; unrecognized errors are UNKNOWN_ERROR.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return CodeUnknownError
}

func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
