package response

import "fmt"

// Response is the envelope every API endpoint returns
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// ErrorInfo describes a failed request
type ErrorInfo struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Meta describes one page of a list response
type Meta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// PaginationParams are the page inputs of a list endpoint
type PaginationParams struct {
	Page    int
	PerPage int
}

// DefaultPagination returns page 1 of 20
func DefaultPagination() PaginationParams {
	return PaginationParams{Page: 1, PerPage: 20}
}

// NewPagination clamps page to >= 1 and perPage to 1..maxPerPage, using
// defaultPerPage when perPage is not positive.
func NewPagination(page, perPage, defaultPerPage, maxPerPage int) PaginationParams {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if maxPerPage > 0 && perPage > maxPerPage {
		perPage = maxPerPage
	}
	return PaginationParams{Page: page, PerPage: perPage}
}

// Offset is the number of items before the page
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Error codes
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"

	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeStepIncomplete   = "STEP_INCOMPLETE"
	ErrCodePaymentFailed    = "PAYMENT_FAILED"
	ErrCodeDuplicateEntry   = "DUPLICATE_ENTRY"
	ErrCodeInviteInvalid    = "INVITE_INVALID"
	ErrCodeUpstreamFailed   = "UPSTREAM_FAILED"
	ErrCodeInvalidSignature = "INVALID_SIGNATURE"
)

// Success wraps data in a success envelope
func Success(data interface{}) *Response {
	return &Response{Success: true, Data: data}
}

// SuccessWithMeta wraps data and list metadata in a success envelope
func SuccessWithMeta(data interface{}, meta *Meta) *Response {
	return &Response{Success: true, Data: data, Meta: meta}
}

// Paginated wraps one page of a list
func Paginated(data interface{}, page, perPage int, total int64) *Response {
	totalPages := 0
	if perPage > 0 {
		totalPages = int(total) / perPage
		if int(total)%perPage > 0 {
			totalPages++
		}
	}

	return SuccessWithMeta(data, &Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	})
}

// PaginatedFromParams wraps one page of a list described by params
func PaginatedFromParams(data interface{}, params PaginationParams, total int64) *Response {
	return Paginated(data, params.Page, params.PerPage, total)
}

// Error creates an error envelope
func Error(code, message string) *Response {
	return &Response{Error: &ErrorInfo{Code: code, Message: message}}
}

// ErrorWithDetails creates an error envelope with per-field details
func ErrorWithDetails(code, message string, details map[string]string) *Response {
	resp := Error(code, message)
	resp.Error.Details = details
	return resp
}

func orDefault(message, fallback string) string {
	if message == "" {
		return fallback
	}
	return message
}

func BadRequest(message string) *Response {
	return Error(ErrCodeBadRequest, orDefault(message, "Invalid request"))
}

func Unauthorized(message string) *Response {
	return Error(ErrCodeUnauthorized, orDefault(message, "Authentication required"))
}

func Forbidden(message string) *Response {
	return Error(ErrCodeForbidden, orDefault(message, "Access denied"))
}

func NotFound(message string) *Response {
	return Error(ErrCodeNotFound, orDefault(message, "Resource not found"))
}

func InternalError(message string) *Response {
	return Error(ErrCodeInternalError, orDefault(message, "An internal error occurred"))
}

func ServiceUnavailable(message string) *Response {
	return Error(ErrCodeServiceUnavailable, orDefault(message, "Service temporarily unavailable"))
}

// UpstreamFailed reports a failed call to the membership platform
func UpstreamFailed(message string) *Response {
	return Error(ErrCodeUpstreamFailed, orDefault(message, "The membership platform did not respond"))
}

// StepIncomplete lists the fields missing from an onboarding step
func StepIncomplete(step int, missing map[string]string) *Response {
	return ErrorWithDetails(ErrCodeStepIncomplete, fmt.Sprintf("Step %d is incomplete", step), missing)
}
