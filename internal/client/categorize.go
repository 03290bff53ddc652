package client

import (
	"errors"
	"net/http"
)

// ErrorCategory is a stable label for error classification in logs and metrics.
type ErrorCategory string

const (
	ErrorCategoryNoNetwork  ErrorCategory = "no_network"
	ErrorCategoryBadRequest ErrorCategory = "bad_request"
	ErrorCategoryNotFound   ErrorCategory = "not_found"
	ErrorCategoryHTTP4xx    ErrorCategory = "http_4xx"
	ErrorCategoryHTTP5xx    ErrorCategory = "http_5xx"
	ErrorCategoryTransport  ErrorCategory = "transport"
	ErrorCategoryNoData     ErrorCategory = "no_data"
	ErrorCategoryUnknown    ErrorCategory = "unknown"
)

// CategorizeError maps a Fetch error to a stable ErrorCategory.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, ErrNoNetwork) {
		return ErrorCategoryNoNetwork
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.Code == http.StatusBadRequest:
			return ErrorCategoryBadRequest
		case httpErr.Code == http.StatusNotFound:
			return ErrorCategoryNotFound
		case httpErr.Code >= 500:
			return ErrorCategoryHTTP5xx
		default:
			return ErrorCategoryHTTP4xx
		}
	}

	if errors.Is(err, ErrTransport) {
		return ErrorCategoryTransport
	}

	if errors.Is(err, ErrNoData) {
		return ErrorCategoryNoData
	}

	return ErrorCategoryUnknown
}

// Describe returns the short human label logged for an upstream failure.
func Describe(category ErrorCategory) string {
	switch category {
	case ErrorCategoryBadRequest:
		return "bad connection"
	case ErrorCategoryNotFound:
		return "not found"
	case ErrorCategoryNoNetwork:
		return "no internet connection"
	case ErrorCategoryTransport:
		return "request failed"
	case ErrorCategoryNoData:
		return "no weather list"
	default:
		return "generic error"
	}
}
