package repl

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"ojwatch/internal/cli/state"
	"ojwatch/internal/submission/gateway"
	"ojwatch/internal/submission/model"
	"ojwatch/internal/submission/poller"
	appErr "ojwatch/pkg/errors"

	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu       sync.Mutex
	baseURL  string
	timeout  time.Duration
	nextID   int64
	created  []model.CreateRequest
	steps    map[int64][]model.Submission
	failures map[int64]error
	calls    map[int64]int
	items    []model.Submission
	filters  []gateway.ListFilter
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		baseURL:  "http://judge.local",
		nextID:   7,
		steps:    make(map[int64][]model.Submission),
		failures: make(map[int64]error),
		calls:    make(map[int64]int),
	}
}

func (f *fakeClient) script(id int64, statuses ...model.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, status := range statuses {
		sub := model.Submission{ID: id, Status: status, TotalTestCases: 10}
		if status == model.StatusAccepted {
			sub.Score = 100
			sub.TestCasesPassed = 10
		}
		f.steps[id] = append(f.steps[id], sub)
	}
}

func (f *fakeClient) CreateSubmission(ctx context.Context, code string, language model.Language, problemID int64) (int64, error) {
	if err := gateway.ValidateCreate(code, language, problemID); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, model.CreateRequest{Code: code, Language: language, ProblemID: problemID})
	return f.nextID, nil
}

func (f *fakeClient) GetSubmissionStatus(ctx context.Context, id int64) (model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failures[id]; ok {
		return model.Submission{}, err
	}
	steps := f.steps[id]
	if len(steps) == 0 {
		return model.Submission{}, appErr.New(appErr.SubmissionNotFound)
	}
	idx := f.calls[id]
	if idx >= len(steps) {
		idx = len(steps) - 1
	}
	f.calls[id]++
	return steps[idx], nil
}

func (f *fakeClient) ListSubmissions(ctx context.Context, filter gateway.ListFilter) ([]model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	return f.items, nil
}

func (f *fakeClient) IssueDevToken(ctx context.Context, userID int64, role string) (gateway.DevToken, error) {
	return gateway.DevToken{AccessToken: "header.payload.signature", ExpiresAt: 1893456000}, nil
}

func (f *fakeClient) SetBaseURL(baseURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.baseURL = baseURL
}

func (f *fakeClient) SetTimeout(timeout time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeout = timeout
}

func (f *fakeClient) BaseURL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.baseURL
}

type harness struct {
	session   *Session
	client    *fakeClient
	scheduler *poller.Scheduler
	out       *bytes.Buffer
	statePath string
}

func newHarness(t *testing.T, token string) *harness {
	t.Helper()
	client := newFakeClient()
	defaults := poller.Options{Cadence: 10 * time.Millisecond, MaxAttempts: 50}
	scheduler, err := poller.NewScheduler(poller.Config{Source: client, Defaults: defaults})
	require.NoError(t, err)

	out := &bytes.Buffer{}
	statePath := filepath.Join(t.TempDir(), "state.json")
	session := New(Config{
		Client:     client,
		Scheduler:  scheduler,
		Token:      &state.TokenState{AccessToken: token},
		StatePath:  statePath,
		PrettyJSON: false,
		Defaults:   defaults,
		Out:        out,
	})
	t.Cleanup(func() {
		session.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = scheduler.Shutdown(ctx)
	})
	return &harness{session: session, client: client, scheduler: scheduler, out: out, statePath: statePath}
}

// output is safe to call once no watch is writing.
func (h *harness) output() string {
	h.session.out.mu.Lock()
	defer h.session.out.mu.Unlock()
	return h.out.String()
}

func TestExecuteBuiltins(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	require.NoError(t, h.session.Execute(ctx, "help"))
	require.Contains(t, h.output(), "watch")
	require.Contains(t, h.output(), "cancel id=42 | all=true")

	require.ErrorIs(t, h.session.Execute(ctx, "quit"), ErrExit)
	require.ErrorContains(t, h.session.Execute(ctx, "frobnicate"), "unknown command")
	require.ErrorContains(t, h.session.Execute(ctx, `submit code="oops`), "parse command failed")
}

func TestAuthenticatedCommandsNeedToken(t *testing.T) {
	h := newHarness(t, "")
	err := h.session.Execute(context.Background(), "submit problem_id=1 language=python code=x")
	require.ErrorContains(t, err, "not logged in")
	require.Empty(t, h.client.created)
}

func TestLoginPersistsTokenAndLogoutClears(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	require.NoError(t, h.session.Execute(ctx, "login uid=3"))
	require.Equal(t, "header.payload.signature", h.session.AccessToken())

	saved, err := state.Load(h.statePath)
	require.NoError(t, err)
	require.Equal(t, "header.payload.signature", saved.AccessToken)
	require.Equal(t, int64(3), saved.UserID)
	require.Equal(t, time.Unix(1893456000, 0).UTC(), saved.AccessExpiresAt)

	require.NoError(t, h.session.Execute(ctx, "show token"))
	require.Contains(t, h.output(), "token: header...ture")

	require.NoError(t, h.session.Execute(ctx, "logout"))
	require.Empty(t, h.session.AccessToken())
	saved, err = state.Load(h.statePath)
	require.NoError(t, err)
	require.Empty(t, saved.AccessToken)
}

func TestSubmitAndWatchInBackground(t *testing.T) {
	h := newHarness(t, "tok")
	h.client.script(7, model.StatusPending, model.StatusRunning, model.StatusAccepted)

	require.NoError(t, h.session.Execute(context.Background(), `submit problem_id=42 lang=py code="print(1)" watch=true`))
	h.session.Wait()

	require.Len(t, h.client.created, 1)
	require.Equal(t, model.LanguagePython, h.client.created[0].Language)
	out := h.output()
	require.Contains(t, out, "submission created: id=7")
	require.Contains(t, out, "[7] pending")
	require.Contains(t, out, "[7] running")
	require.Contains(t, out, "[7] resolved: All test cases passed! Score: 100")
}

func TestSubmitSurfacesValidationErrors(t *testing.T) {
	h := newHarness(t, "tok")
	err := h.session.Execute(context.Background(), "submit problem_id=42 language=cobol code=x")
	require.True(t, appErr.IsValidation(err), "got %v", err)
	require.Empty(t, h.client.created)
}

func TestWatchManyAndWait(t *testing.T) {
	h := newHarness(t, "tok")
	h.client.script(1, model.StatusRunning, model.StatusAccepted)
	h.client.script(2, model.StatusWrongAnswer)

	require.NoError(t, h.session.Execute(context.Background(), "watch ids=1,2 wait=true"))
	out := h.output()
	require.Contains(t, out, "[1] resolved: All test cases passed! Score: 100")
	require.Contains(t, out, "[2] rejected: Submission finished with wrong answer")
	require.Eventually(t, func() bool { return len(h.scheduler.Active()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestWatchWaitReturnsGatewayFailure(t *testing.T) {
	h := newHarness(t, "tok")
	h.client.failures[3] = appErr.New(appErr.ServiceUnavailable)

	err := h.session.Execute(context.Background(), "watch id=3 wait=true")
	require.Error(t, err)
	require.True(t, appErr.IsTransport(err))
	require.Contains(t, h.output(), "[3] failed: Error checking submission status")
}

func TestWatchTimesOutAfterAttempts(t *testing.T) {
	h := newHarness(t, "tok")
	h.client.script(4, model.StatusPending)

	require.NoError(t, h.session.Execute(context.Background(), "watch id=4 attempts=3 cadence=5ms wait=true"))
	require.Contains(t, h.output(), "[4] timed_out: Submission is still processing, check back later")
	require.Equal(t, 3, h.client.calls[4])
}

func TestCancelBackgroundWatch(t *testing.T) {
	h := newHarness(t, "tok")
	h.client.script(5, model.StatusPending)
	ctx := context.Background()

	require.NoError(t, h.session.Execute(ctx, "watch id=5 cadence=1h"))
	require.Eventually(t, func() bool {
		session, ok := h.scheduler.Session(5)
		if !ok {
			return false
		}
		_, seen := session.Last()
		return seen
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.session.Execute(ctx, "show watches"))
	require.NoError(t, h.session.Execute(ctx, "cancel id=5"))
	h.session.Wait()

	out := h.output()
	require.Contains(t, out, "[5] polling attempts=1 last=pending")
	require.Contains(t, out, "cancelled watch for 5")
	require.Contains(t, out, "[5] cancelled after 1 attempt(s)")

	require.NoError(t, h.session.Execute(ctx, "cancel id=5"))
	require.Contains(t, h.output(), "no active watch for 5")
}

func TestStatusPromptsForMissingID(t *testing.T) {
	h := newHarness(t, "tok")
	h.client.script(9, model.StatusRuntimeError)
	var asked []string
	h.session.prompt = func(label string) (string, error) {
		asked = append(asked, label)
		return "9", nil
	}

	require.NoError(t, h.session.Execute(context.Background(), "status"))
	require.Equal(t, []string{"submission_id"}, asked)
	out := h.output()
	require.Contains(t, out, "[9] runtime error (terminal-failure): runtime_error")
	require.Contains(t, out, `"status":"runtime_error"`)
}

func TestStatusWithoutPromptReportsMissingField(t *testing.T) {
	h := newHarness(t, "tok")
	err := h.session.Execute(context.Background(), "status")
	require.ErrorContains(t, err, "id is required")
}

func TestListRendersTable(t *testing.T) {
	h := newHarness(t, "tok")
	ctx := context.Background()

	require.NoError(t, h.session.Execute(ctx, "ls"))
	require.Contains(t, h.output(), "no submissions")

	h.client.items = []model.Submission{
		{ID: 2, ProblemID: 7, Language: model.LanguageCPP, Status: model.StatusAccepted, Score: 100},
	}
	require.NoError(t, h.session.Execute(ctx, "list problem_id=7 limit=5"))
	require.Equal(t, gateway.ListFilter{ProblemID: 7, Limit: 5}, h.client.filters[1])
	lines := strings.Split(strings.TrimSpace(h.output()), "\n")
	require.True(t, strings.HasPrefix(lines[len(lines)-1], "2 "), "got %q", lines[len(lines)-1])
	require.Contains(t, lines[len(lines)-1], "accepted")
}

func TestSetAndShowConfig(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	require.NoError(t, h.session.Execute(ctx, "set base http://127.0.0.1:9000/"))
	require.NoError(t, h.session.Execute(ctx, "set timeout 3s"))
	require.NoError(t, h.session.Execute(ctx, "set token abc"))
	require.Error(t, h.session.Execute(ctx, "set timeout soon"))
	require.Error(t, h.session.Execute(ctx, "set"))

	require.Equal(t, "http://127.0.0.1:9000", h.client.BaseURL())
	require.Equal(t, 3*time.Second, h.client.timeout)
	require.Equal(t, "abc", h.session.AccessToken())

	require.NoError(t, h.session.Execute(ctx, "show config"))
	out := h.output()
	require.Contains(t, out, "base: http://127.0.0.1:9000")
	require.Contains(t, out, "maxAttempts: 50")
}
