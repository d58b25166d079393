package embedding

import (
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// StatusError is a non-2xx response from an OpenAI endpoint.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("OpenAI error (%d): Unknown response.", e.StatusCode)
	}
	return fmt.Sprintf("OpenAI error (%d): %s.", e.StatusCode, e.Message)
}

// TranslateError maps go-openai errors onto StatusError; anything else is wrapped as a
// failure of op.
func TranslateError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &StatusError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := ""
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		if msg == "" && len(reqErr.Body) > 0 {
			msg = string(reqErr.Body)
		}
		return &StatusError{StatusCode: reqErr.HTTPStatusCode, Message: msg}
	}
	return fmt.Errorf("%s failed: %w", op, err)
}

// IsStatus reports whether err carries an HTTP status from an OpenAI endpoint and returns it.
func IsStatus(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode, true
	}
	return 0, false
}
