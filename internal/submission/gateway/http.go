package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"ojwatch/internal/submission/model"
	appErr "ojwatch/pkg/errors"
	"ojwatch/pkg/utils/contextkey"
	"ojwatch/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	submissionsPath = "/api/v1/submissions"
	devTokenPath    = "/api/v1/dev/token"

	traceIDHeader   = "X-Trace-Id"
	requestIDHeader = "X-Request-Id"

	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 4 << 20
)

// Config holds HTTP gateway settings.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	TokenProvider func() string
	// Client overrides the underlying HTTP client, mostly for tests.
	Client *http.Client
}

// HTTPGateway talks to the judge over its JSON API.
type HTTPGateway struct {
	mu            sync.RWMutex
	baseURL       string
	timeout       time.Duration
	tokenProvider func() string
	client        *http.Client
}

// envelope mirrors the judge's {code, message, data} response body.
type envelope struct {
	Code    appErr.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Data    json.RawMessage  `json:"data"`
	TraceID string           `json:"trace_id,omitempty"`
}

// New creates an HTTP gateway.
func New(cfg Config) *HTTPGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPGateway{
		baseURL:       cfg.BaseURL,
		timeout:       cfg.Timeout,
		tokenProvider: cfg.TokenProvider,
		client:        client,
	}
}

func (g *HTTPGateway) SetBaseURL(baseURL string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.baseURL = baseURL
}

func (g *HTTPGateway) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.timeout = timeout
}

func (g *HTTPGateway) BaseURL() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.baseURL
}

// CreateSubmission posts a new submission and returns the judge-assigned id.
func (g *HTTPGateway) CreateSubmission(ctx context.Context, code string, language model.Language, problemID int64) (int64, error) {
	if err := ValidateCreate(code, language, problemID); err != nil {
		return 0, err
	}
	lang, _ := model.ParseLanguage(string(language))
	payload := model.CreateRequest{Code: code, Language: lang, ProblemID: problemID}
	var resp model.CreateResponse
	if err := g.do(ctx, http.MethodPost, submissionsPath, payload, &resp); err != nil {
		if appErr.IsValidation(err) || appErr.IsTransport(err) {
			return 0, err
		}
		// 404 on create means the problem is unknown: a payload problem.
		if appErr.IsNotFound(err) {
			return 0, appErr.Wrapf(err, appErr.ValidationFailed, "problem %d: %v", problemID, err).WithDetail("field", "problem_id")
		}
		return 0, appErr.Wrap(err, appErr.TransportFailed)
	}
	if resp.ID <= 0 {
		return 0, appErr.New(appErr.MalformedResponse).WithMessage("create submission response carries no id")
	}
	return resp.ID, nil
}

// GetSubmissionStatus fetches a full snapshot of a submission.
func (g *HTTPGateway) GetSubmissionStatus(ctx context.Context, id int64) (model.Submission, error) {
	if id <= 0 {
		return model.Submission{}, appErr.New(appErr.SubmissionNotFound).WithDetail("submission_id", id)
	}
	var sub model.Submission
	path := submissionsPath + "/" + strconv.FormatInt(id, 10)
	if err := g.do(ctx, http.MethodGet, path, nil, &sub); err != nil {
		if appErr.IsNotFound(err) {
			return model.Submission{}, appErr.Wrapf(err, appErr.SubmissionNotFound, "submission %d not found", id).WithDetail("submission_id", id)
		}
		if appErr.IsTransport(err) {
			return model.Submission{}, err
		}
		return model.Submission{}, appErr.Wrap(err, appErr.TransportFailed)
	}
	return sub, nil
}

// ListSubmissions returns the caller's submissions, newest first.
func (g *HTTPGateway) ListSubmissions(ctx context.Context, filter ListFilter) ([]model.Submission, error) {
	query := url.Values{}
	if filter.ProblemID > 0 {
		query.Set("problem_id", strconv.FormatInt(filter.ProblemID, 10))
	}
	if filter.Skip > 0 {
		query.Set("skip", strconv.Itoa(filter.Skip))
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}
	path := submissionsPath
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var items []model.Submission
	if err := g.do(ctx, http.MethodGet, path, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// DevToken is an access token issued by a development judge.
type DevToken struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

// IssueDevToken asks a development judge to sign a token for userID.
// Production judges do not expose this endpoint and answer 404.
func (g *HTTPGateway) IssueDevToken(ctx context.Context, userID int64, role string) (DevToken, error) {
	if userID <= 0 {
		return DevToken{}, appErr.ValidationError("user_id", "must be positive")
	}
	payload := map[string]interface{}{"user_id": userID, "role": role}
	var token DevToken
	if err := g.do(ctx, http.MethodPost, devTokenPath, payload, &token); err != nil {
		return DevToken{}, err
	}
	if token.AccessToken == "" {
		return DevToken{}, appErr.New(appErr.MalformedResponse).WithMessage("token response carries no access token")
	}
	return token, nil
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	g.mu.RLock()
	baseURL, timeout := g.baseURL, g.timeout
	g.mu.RUnlock()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return appErr.Wrapf(err, appErr.InvalidParams, "encode request failed")
		}
		reader = bytes.NewReader(data)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, fmt.Sprintf("%s%s", baseURL, path), reader)
	if err != nil {
		return appErr.TransportError(err, "build request failed")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)
	if traceID, ok := ctx.Value(contextkey.TraceID).(string); ok && traceID != "" {
		req.Header.Set(traceIDHeader, traceID)
	}
	if g.tokenProvider != nil {
		if token := g.tokenProvider(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		logger.Debug(ctx, "judge request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return appErr.TransportError(err, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return appErr.TransportError(err, "read response body failed")
	}
	logger.Debug(ctx, "judge request done",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", duration),
	)

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp.StatusCode, env, decodeErr == nil)
	}
	if decodeErr != nil {
		return appErr.Wrapf(decodeErr, appErr.MalformedResponse, "decode response failed")
	}
	if env.Code != 0 && env.Code != appErr.Success {
		return responseError(env.Code.HTTPStatus(), env, true)
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return appErr.Wrapf(err, appErr.MalformedResponse, "decode response data failed")
	}
	return nil
}

// responseError maps a failed response onto the error taxonomy. The HTTP
// status decides the category; the envelope only refines code and message.
func responseError(status int, env envelope, hasEnvelope bool) error {
	code := appErr.FromHTTPStatus(status)
	if hasEnvelope && env.Code != 0 && env.Code.HTTPStatus() == status {
		code = env.Code
	}
	msg := code.Message()
	if hasEnvelope && env.Message != "" {
		msg = env.Message
	}
	return appErr.New(code).
		WithMessage(msg).
		WithDetail("http_status", status).
		WithDetail("trace_id", env.TraceID)
}
