package services

import (
	"errors"
	"fmt"
	"net/http"
)

// maxBodyLen caps how much of an error body is kept for logs
const maxBodyLen = 512

// APIError is returned when an upstream API answers with a non-2xx status
type APIError struct {
	Service    string
	StatusCode int
	Body       string
}

// NewAPIError builds an APIError, truncating the body
func NewAPIError(service string, statusCode int, body []byte) *APIError {
	if len(body) > maxBodyLen {
		body = body[:maxBodyLen]
	}
	return &APIError{Service: service, StatusCode: statusCode, Body: string(body)}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API request failed with status %d: %s", e.Service, e.StatusCode, e.Body)
}

// IsStatus reports whether err is an APIError with the given status code
func IsStatus(err error, statusCode int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == statusCode
}

// IsClientError reports whether err is a 4xx APIError other than 429
func IsClientError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests
}
