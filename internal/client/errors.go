package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/boothbuddy/boothbuddy/internal/booth"
)

// APIError is a non-2xx answer from the booth API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("booth api: HTTP %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("booth api: HTTP %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true for server errors (5xx).
// Client errors (4xx) are considered permanent.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500
}

func (e *APIError) ErrorCode() booth.Code {
	return booth.CodeRemote
}

// RemoteCode is the code the server put in its error envelope.
func (e *APIError) RemoteCode() booth.Code {
	return booth.Code(e.Code)
}

// parseAPIError accepts both {"error":{"code","message"}} and the flat
// {"error":"message"} form.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var nested struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &nested); err == nil && nested.Error.Message != "" {
		apiErr.Code = nested.Error.Code
		apiErr.Message = nested.Error.Message
		return apiErr
	}

	var flat struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &flat); err == nil && (flat.Error != "" || flat.Message != "") {
		apiErr.Message = flat.Error
		if apiErr.Message == "" {
			apiErr.Message = flat.Message
		}
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
