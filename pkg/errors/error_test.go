package errors_test

import (
	"errors"
	"fmt"
	"testing"

	. "ojwatch/pkg/errors"
)

func TestErrorCode_Message(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{Success, "Success"},
		{SubmissionNotFound, "Submission not found"},
		{InvalidParams, "Invalid parameters"},
		{TransportFailed, "Judge service is unreachable"},
		{ErrorCode(99999), "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.Message(); got != tt.want {
				t.Errorf("Message() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		wantStatus int
	}{
		{Success, 200},
		{InvalidParams, 400},
		{ValidationFailed, 400},
		{LanguageNotSupported, 400},
		{Unauthorized, 401},
		{Forbidden, 403},
		{SubmissionNotFound, 404},
		{TooManyRequests, 429},
		{InternalServerError, 500},
		{MalformedResponse, 502},
		{ServiceUnavailable, 503},
	}

	for _, tt := range tests {
		t.Run(tt.code.Message(), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.wantStatus)
			}
		})
	}
}

func TestFromHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorCode
	}{
		{204, Success},
		{400, ValidationFailed},
		{422, ValidationFailed},
		{401, Unauthorized},
		{404, NotFound},
		{502, UnexpectedStatus},
		{504, Timeout},
	}
	for _, tt := range tests {
		if got := FromHTTPStatus(tt.status); got != tt.want {
			t.Errorf("FromHTTPStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestNewf(t *testing.T) {
	err := Newf(SubmissionNotFound, "submission %d not found", int64(123))

	want := "submission 123 not found"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
	if err.Stack == "" {
		t.Error("Stack should be captured")
	}
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("connection refused")
	wrappedErr := Wrap(originalErr, TransportFailed)

	if wrappedErr.Code != TransportFailed {
		t.Errorf("Code = %v, want %v", wrappedErr.Code, TransportFailed)
	}
	if wrappedErr.Unwrap() != originalErr {
		t.Error("Unwrap() should return original error")
	}
	if Wrap(nil, TransportFailed) != nil {
		t.Error("Wrap(nil) should be nil")
	}

	custom := New(NotFound)
	if Wrap(custom, SubmissionNotFound) != custom || custom.Code != SubmissionNotFound {
		t.Error("Wrap should recode an existing *Error in place")
	}
}

func TestWrapfKeepsChain(t *testing.T) {
	inner := New(NotFound)
	outer := Wrapf(inner, ValidationFailed, "problem %d: %v", 9, inner)
	if outer == inner || inner.Code != NotFound {
		t.Fatal("Wrapf should allocate a new error")
	}
	if !errors.Is(outer, inner) {
		t.Error("errors.Is should see the wrapped error")
	}
	if GetCode(fmt.Errorf("ctx: %w", outer)) != ValidationFailed {
		t.Error("GetCode should find the outermost *Error")
	}
}

func TestError_WithDetail(t *testing.T) {
	err := New(ValidationFailed).
		WithDetail("field", "code").
		WithDetail("reason", "required")

	if err.Details["field"] != "code" {
		t.Error("Field detail not set correctly")
	}
	if err.Details["reason"] != "required" {
		t.Error("Reason detail not set correctly")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{name: "nil error", err: nil, want: Success},
		{name: "custom error", err: New(SubmissionNotFound), want: SubmissionNotFound},
		{name: "standard error", err: errors.New("standard error"), want: InternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTaxonomy(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		transport    bool
		unauthorized bool
		notFound     bool
		validation   bool
	}{
		{name: "nil", err: nil},
		{name: "transport", err: TransportError(errors.New("dial tcp"), "request failed"), transport: true},
		{name: "malformed", err: New(MalformedResponse), transport: true},
		{name: "unauthorized", err: UnauthorizedError(""), transport: true, unauthorized: true},
		{name: "forbidden", err: ForbiddenError("not yours"), transport: true, unauthorized: true},
		{name: "unavailable", err: New(ServiceUnavailable), transport: true},
		{name: "not found", err: New(SubmissionNotFound), notFound: true},
		{name: "generic not found", err: NotFoundError("problem"), notFound: true},
		{name: "validation", err: ValidationError("code", "required"), validation: true},
		{name: "language", err: New(LanguageNotSupported), validation: true},
		{name: "bad request", err: BadRequest("bad"), validation: true},
		{name: "publish", err: New(EventPublishFailed)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransport(tt.err); got != tt.transport {
				t.Errorf("IsTransport() = %v", got)
			}
			if got := IsUnauthorized(tt.err); got != tt.unauthorized {
				t.Errorf("IsUnauthorized() = %v", got)
			}
			if got := IsNotFound(tt.err); got != tt.notFound {
				t.Errorf("IsNotFound() = %v", got)
			}
			if got := IsValidation(tt.err); got != tt.validation {
				t.Errorf("IsValidation() = %v", got)
			}
		})
	}
}

func TestCommonErrorConstructors(t *testing.T) {
	if err := NotFoundError("problem"); err.Error() != "problem not found" {
		t.Errorf("NotFoundError message = %q", err.Error())
	}
	if err := InternalError(nil); err.Code != InternalServerError {
		t.Error("InternalError should use InternalServerError code")
	}
	if err := TransportError(nil, "no route"); err.Error() != "no route" || err.Code != TransportFailed {
		t.Errorf("TransportError(nil) = %v", err)
	}
	if err := UnauthorizedError(""); err.Error() != Unauthorized.Message() {
		t.Errorf("UnauthorizedError default message = %q", err.Error())
	}
}
