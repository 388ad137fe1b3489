package vault

import "errors"

var (
	ErrRequestFailed   = errors.New("request failed")
	ErrLoginTimeout    = errors.New("login approval timed out")
	ErrValidation      = errors.New("validation failed")
	ErrWrongCredential = errors.New("wrong credential")
	ErrLocked          = errors.New("vault is locked")
	ErrNotFound        = errors.New("record not found")
	ErrNotLoggedIn     = errors.New("not logged in")
)

type DomainError struct {
	Err     error
	Message string
	Code    string
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// RequestFailed оборачивает ошибку транспорта в ErrRequestFailed
func RequestFailed(op string, err error) error {
	return &DomainError{
		Err:     errors.Join(ErrRequestFailed, err),
		Message: op + ": " + err.Error(),
		Code:    "request_failed",
	}
}
