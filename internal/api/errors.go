package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ApiError is returned for every non-2xx response.
type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func (e *ApiError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

func (e *ApiError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// newResponseError builds an ApiError from an error response body. Bodies
// carry either {"detail": ...} or {"message": ...}; detail may also be a
// list of validation errors.
func newResponseError(status int, body []byte) *ApiError {
	e := &ApiError{
		StatusCode: status,
		Message:    lower(http.StatusText(status)),
	}

	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return e
	}

	if len(payload.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(payload.Detail, &detail); err == nil {
			e.Message = detail
			return e
		}

		var items []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(payload.Detail, &items); err == nil && len(items) > 0 {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				msgs = append(msgs, it.Msg)
			}
			e.Message = strings.Join(msgs, "; ")
			return e
		}
	}

	if payload.Message != "" {
		e.Message = payload.Message
	}

	return e
}

func NewBadRequestError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    lower(http.StatusText(http.StatusBadRequest)),
		Err:        err,
	}
}

func NewUnauthorizedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnauthorized,
		Message:    lower(http.StatusText(http.StatusUnauthorized)),
	}
}
