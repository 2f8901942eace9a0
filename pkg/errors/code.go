package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Authentication errors
// 13000-13999: Submission & Judge module errors
// 14000-14999: Transport errors seen by submission clients

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200

	// Validation errors (10300-10399)
	ValidationFailed ErrorCode = 10300

	// ========== Authentication Errors (11000-11999) ==========

	TokenExpired          ErrorCode = 11003
	TokenInvalid          ErrorCode = 11004
	TokenGenerationFailed ErrorCode = 11005

	// ========== Submission & Judge Module Errors (13000-13999) ==========

	// Submission (13000-13099)
	SubmissionNotFound   ErrorCode = 13000
	CodeTooLarge         ErrorCode = 13002
	LanguageNotSupported ErrorCode = 13003

	// ========== Transport Errors (14000-14999) ==========

	TransportFailed    ErrorCode = 14000
	UnexpectedStatus   ErrorCode = 14001
	MalformedResponse  ErrorCode = 14002
	EventPublishFailed ErrorCode = 14100
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	CacheError: "Cache operation failed",

	// Validation
	ValidationFailed: "Validation failed",

	// Authentication
	TokenExpired:          "Token has expired",
	TokenInvalid:          "Invalid token",
	TokenGenerationFailed: "Failed to generate token",

	// Submission
	SubmissionNotFound:   "Submission not found",
	CodeTooLarge:         "Code is too large",
	LanguageNotSupported: "Programming language not supported",

	// Transport
	TransportFailed:    "Judge service is unreachable",
	UnexpectedStatus:   "Judge service returned an unexpected status",
	MalformedResponse:  "Judge service returned a malformed response",
	EventPublishFailed: "Failed to publish submission event",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized, c == TokenExpired, c == TokenInvalid:
		return 401
	case c == Forbidden:
		return 403
	case c == NotFound, c == SubmissionNotFound:
		return 404
	case c == TooManyRequests:
		return 429
	case c == ServiceUnavailable:
		return 503
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == LanguageNotSupported, c == CodeTooLarge:
		return 400
	case c >= 14000 && c < 15000:
		return 502
	default:
		return 500
	}
}

// FromHTTPStatus picks the closest error code for a response status that
// carried no usable envelope.
func FromHTTPStatus(status int) ErrorCode {
	switch {
	case status >= 200 && status < 300:
		return Success
	case status == 401:
		return Unauthorized
	case status == 403:
		return Forbidden
	case status == 404:
		return NotFound
	case status == 400, status == 422:
		return ValidationFailed
	case status == 429:
		return TooManyRequests
	case status == 503:
		return ServiceUnavailable
	case status == 504:
		return Timeout
	default:
		return UnexpectedStatus
	}
}
