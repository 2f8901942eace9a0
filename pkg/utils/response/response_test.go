package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	appErr "ojwatch/pkg/errors"

	"github.com/gin-gonic/gin"
)

func perform(t *testing.T, handler gin.HandlerFunc) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/", func(c *gin.Context) {
		c.Set("trace_id", "trace-7")
		handler(c)
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var body Response
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body failed: %v", err)
	}
	return rec, body
}

func TestSuccessEnvelope(t *testing.T) {
	rec, body := perform(t, func(c *gin.Context) {
		Created(c, map[string]int64{"id": 3})
	})
	if rec.Code != http.StatusCreated || body.Code != appErr.Success || body.TraceID != "trace-7" {
		t.Fatalf("unexpected response: %d %+v", rec.Code, body)
	}
}

func TestErrorEnvelope(t *testing.T) {
	rec, body := perform(t, func(c *gin.Context) {
		Error(c, appErr.ValidationError("code", "required"))
	})
	if rec.Code != http.StatusBadRequest || body.Code != appErr.ValidationFailed || body.Message != "code: required" {
		t.Fatalf("unexpected response: %d %+v", rec.Code, body)
	}
}

func TestPlainErrorBecomesInternal(t *testing.T) {
	rec, body := perform(t, func(c *gin.Context) {
		Error(c, errors.New("boom"))
	})
	if rec.Code != http.StatusInternalServerError || body.Code != appErr.InternalServerError {
		t.Fatalf("unexpected response: %d %+v", rec.Code, body)
	}
}

func TestAbortWithErrorCodeUsesDefaultMessage(t *testing.T) {
	rec, body := perform(t, func(c *gin.Context) {
		AbortWithErrorCode(c, appErr.Forbidden, "")
	})
	if rec.Code != http.StatusForbidden || body.Message != appErr.Forbidden.Message() {
		t.Fatalf("unexpected response: %d %+v", rec.Code, body)
	}
}
