package types

// ErrorResponse is the JSON envelope for all gateway-originated errors.
// Upstream-originated errors are never wrapped in it; they pass through
// with the provider's own status and body.
type ErrorResponse struct {
	// Error contains the error details.
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains detailed error information.
type ErrorDetail struct {
	// Message is a human-readable error message.
	Message string `json:"message"`

	// Type categorizes the error. Possible values: "invalid_request",
	// "unauthorized", "budget_exceeded", "not_found", "upstream_error",
	// "internal_error".
	Type string `json:"type"`

	// Param is the name of the parameter that caused the error (if applicable).
	Param string `json:"param,omitempty"`

	// Code is a machine-readable error code.
	Code string `json:"code,omitempty"`

	// Details carries the budget arithmetic on budget_exceeded errors.
	Details *BudgetDetails `json:"details,omitempty"`
}

// BudgetDetails explains a budget_exceeded rejection in numbers. All values
// are rounded to 6 decimal places.
type BudgetDetails struct {
	CurrentSpendUSD    float64 `json:"currentSpendUsd"`
	LimitUSD           float64 `json:"limitUsd"`
	EstimatedCostUSD   float64 `json:"estimatedCostUsd"`
	RemainingBudgetUSD float64 `json:"remainingBudgetUsd"`
}

// Error type constants. These are the gateway's wire contract; clients
// branch on them.
const (
	// ErrorTypeInvalidRequest indicates a client-side error (400).
	ErrorTypeInvalidRequest = "invalid_request"

	// ErrorTypeUnauthorized indicates missing upstream credentials (401).
	ErrorTypeUnauthorized = "unauthorized"

	// ErrorTypeBudgetExceeded indicates admission was rejected (402).
	ErrorTypeBudgetExceeded = "budget_exceeded"

	// ErrorTypeNotFound indicates a resource was not found (404).
	ErrorTypeNotFound = "not_found"

	// ErrorTypeUpstreamError indicates the upstream was unreachable or
	// returned garbage (502).
	ErrorTypeUpstreamError = "upstream_error"

	// ErrorTypeInternalError indicates an internal gateway error (500).
	ErrorTypeInternalError = "internal_error"
)

// Error code constants for common error scenarios.
const (
	// CodeMissingField indicates a required field is missing.
	CodeMissingField = "missing_field"

	// CodeInvalidValue indicates a field has an invalid value.
	CodeInvalidValue = "invalid_value"

	// CodeInvalidJSON indicates the request body is not valid JSON.
	CodeInvalidJSON = "invalid_json"

	// CodeMissingCredentials indicates no API key was available for the upstream.
	CodeMissingCredentials = "missing_credentials"

	// CodeBudgetExceeded indicates the estimate did not fit remaining budget.
	CodeBudgetExceeded = "budget_exceeded"

	// CodeBudgetNotFound indicates no budget exists for the project.
	CodeBudgetNotFound = "budget_not_found"

	// CodeUpstreamUnreachable indicates a network-level upstream failure.
	CodeUpstreamUnreachable = "upstream_unreachable"

	// CodeInternalError indicates an internal gateway error.
	CodeInternalError = "internal_error"
)

// NewErrorResponse creates a new error response with the given details.
func NewErrorResponse(message, errorType, param, code string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorDetail{
			Message: message,
			Type:    errorType,
			Param:   param,
			Code:    code,
		},
	}
}

// NewInvalidRequestError creates an error response for invalid requests (400).
func NewInvalidRequestError(message, param, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeInvalidRequest, param, code)
}

// NewUnauthorizedError creates an error response for missing credentials (401).
func NewUnauthorizedError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeUnauthorized, "", CodeMissingCredentials)
}

// NewBudgetExceededError creates an error response for rejected admissions (402).
func NewBudgetExceededError(message string, details *BudgetDetails) *ErrorResponse {
	resp := NewErrorResponse(message, ErrorTypeBudgetExceeded, "", CodeBudgetExceeded)
	resp.Error.Details = details
	return resp
}

// NewNotFoundError creates an error response for missing resources (404).
func NewNotFoundError(message, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeNotFound, "", code)
}

// NewUpstreamError creates an error response for upstream failures (502).
func NewUpstreamError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeUpstreamError, "", CodeUpstreamUnreachable)
}

// NewInternalError creates an error response for internal errors (500).
func NewInternalError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeInternalError, "", CodeInternalError)
}

// HTTPStatusCode returns the appropriate HTTP status code for the error type.
func (e *ErrorDetail) HTTPStatusCode() int {
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return 400
	case ErrorTypeUnauthorized:
		return 401
	case ErrorTypeBudgetExceeded:
		return 402
	case ErrorTypeNotFound:
		return 404
	case ErrorTypeUpstreamError:
		return 502
	case ErrorTypeInternalError:
		return 500
	default:
		return 500
	}
}
