// Package apierror provides standardized error response structures for the API.
// All errors returned to clients go through this package to ensure consistency
// and to prevent leaking internal details (stack traces, DB errors, etc.).
package apierror

// APIError is the canonical error envelope for all 4xx/5xx HTTP responses.
// Code is a stable machine-readable identifier; Detail is for humans.
type APIError struct {
	Code   string      `json:"code"`
	Detail string      `json:"detail"`
	Meta   interface{} `json:"meta,omitempty"`
}

func New(code, msg string) *APIError {
	return &APIError{Code: code, Detail: msg}
}

// WithMeta attaches structured context (allowed transitions, stock figures).
func (e *APIError) WithMeta(meta interface{}) *APIError {
	e.Meta = meta
	return e
}

// Validation wraps multiple field errors.
type ValidationError struct {
	Code   string            `json:"code"`
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields"`
}

func NewValidation(fields map[string]string) *ValidationError {
	return &ValidationError{Code: "validation_error", Detail: "request validation failed", Fields: fields}
}

// Common codes used outside the business error taxonomy.
const (
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeBadRequest   = "bad_request"
	CodeNotFound     = "not_found"
	CodeRateLimited  = "rate_limited"
	CodeInternal     = "internal_error"
	CodeUnavailable  = "service_unavailable"
)
