package backend

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/kiberone/kiberbot/internal/httpclient"
)

// ErrUnauthorized means the backend rejected the bot's token.
var ErrUnauthorized = errors.New("ошибка авторизации на backend")

// TimeoutError means the backend did not answer in time.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string { return "Таймаут при подключении к серверу" }
func (e *TimeoutError) Unwrap() error { return e.Err }

// ServerError carries a non-success status returned by the backend.
type ServerError struct {
	StatusCode int
	Err        error
}

func (e *ServerError) Error() string { return fmt.Sprintf("Ошибка сервера: %d", e.StatusCode) }
func (e *ServerError) Unwrap() error { return e.Err }

// ConnectionError wraps any other transport failure.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("Ошибка соединения: %v", e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// IsNotFound reports whether the backend answered 404.
func IsNotFound(err error) bool {
	var se *ServerError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// IsTimeout reports whether err is a *TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	switch httpclient.KindOf(err) {
	case httpclient.KindAuth:
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case httpclient.KindTimeout:
		return &TimeoutError{Err: err}
	case httpclient.KindNotFound, httpclient.KindStatus:
		return &ServerError{StatusCode: httpclient.StatusCode(err), Err: err}
	default:
		return &ConnectionError{Err: err}
	}
}
