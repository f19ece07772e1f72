package apperr

import (
	"errors"
	"fmt"
)

// Kinds. Match them with errors.Is against any error returned by the services.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrProvider   = errors.New("provider error")
	ErrEmbedding  = fmt.Errorf("embedding error: %w", ErrProvider)
	ErrQuizFormat = errors.New("quiz format error")
)

// Error carries a kind, a human-readable reason and an optional cause.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func NotFound(msg string) error {
	return &Error{Kind: ErrNotFound, Msg: msg}
}

func Validation(msg string) error {
	return &Error{Kind: ErrValidation, Msg: msg}
}

func Provider(msg string, err error) error {
	return &Error{Kind: ErrProvider, Msg: msg, Err: err}
}

func Embedding(msg string, err error) error {
	return &Error{Kind: ErrEmbedding, Msg: msg, Err: err}
}

func QuizFormat(msg string) error {
	return &Error{Kind: ErrQuizFormat, Msg: msg}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsProvider(err error) bool {
	return errors.Is(err, ErrProvider)
}

func IsQuizFormat(err error) bool {
	return errors.Is(err, ErrQuizFormat)
}

// Message returns the client-facing reason of err. Errors outside the
// taxonomy fall back to err.Error().
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return err.Error()
}
