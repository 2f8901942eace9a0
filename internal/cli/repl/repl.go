// Package repl is the interactive ojwatch shell. Commands submit code,
// watch submissions through the polling scheduler, and inspect results.
package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"ojwatch/internal/cli/command"
	"ojwatch/internal/cli/state"
	"ojwatch/internal/submission/classifier"
	"ojwatch/internal/submission/gateway"
	"ojwatch/internal/submission/model"
	"ojwatch/internal/submission/poller"
	"ojwatch/pkg/utils/logger"

	"github.com/chzyer/readline"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPrompt = "ojwatch> "

	// maxConcurrentWatches bounds the observations one watch command runs at once.
	maxConcurrentWatches = 8
)

// ErrExit is returned by Execute when the user asks to leave.
var ErrExit = errors.New("exit requested")

// Client is the judge API the shell needs.
type Client interface {
	gateway.Gateway
	ListSubmissions(ctx context.Context, filter gateway.ListFilter) ([]model.Submission, error)
	IssueDevToken(ctx context.Context, userID int64, role string) (gateway.DevToken, error)
	SetBaseURL(baseURL string)
	SetTimeout(timeout time.Duration)
	BaseURL() string
}

// Config holds REPL dependencies.
type Config struct {
	Client    Client
	Scheduler *poller.Scheduler
	// Token is shared with the client's token provider.
	Token       *state.TokenState
	StatePath   string
	HistoryFile string
	PrettyJSON  bool
	Defaults    poller.Options
	Out         io.Writer
	// Prompt reads a missing required field; nil disables prompting.
	Prompt func(label string) (string, error)
}

// Session holds REPL state.
type Session struct {
	client      Client
	scheduler   *poller.Scheduler
	commands    map[string]command.Command
	statePath   string
	historyFile string
	prettyJSON  bool
	defaults    poller.Options
	prompt      func(label string) (string, error)
	out         *syncWriter

	tokenMu sync.RWMutex
	token   *state.TokenState

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

func New(cfg Config) *Session {
	if cfg.Token == nil {
		cfg.Token = &state.TokenState{}
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	bgCtx, bgCancel := context.WithCancel(context.Background())
	return &Session{
		client:      cfg.Client,
		scheduler:   cfg.Scheduler,
		commands:    command.Registry(),
		statePath:   cfg.StatePath,
		historyFile: cfg.HistoryFile,
		prettyJSON:  cfg.PrettyJSON,
		defaults:    cfg.Defaults,
		prompt:      cfg.Prompt,
		out:         &syncWriter{w: cfg.Out},
		token:       cfg.Token,
		bgCtx:       bgCtx,
		bgCancel:    bgCancel,
	}
}

// AccessToken returns the current token; it is the client's token provider.
func (s *Session) AccessToken() string {
	s.tokenMu.RLock()
	defer s.tokenMu.RUnlock()
	return s.token.AccessToken
}

// Run reads commands until exit, EOF or ctx is done.
func (s *Session) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            defaultPrompt,
		HistoryFile:       s.historyFile,
		AutoComplete:      s.completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("init readline failed: %w", err)
	}
	defer func() { _ = rl.Close() }()

	previous := s.out.swap(rl.Stdout())
	defer s.out.swap(previous)
	if s.prompt == nil {
		s.prompt = func(label string) (string, error) {
			rl.SetPrompt(label + ": ")
			defer rl.SetPrompt(defaultPrompt)
			line, err := rl.Readline()
			if err != nil {
				return "", fmt.Errorf("read input failed: %w", err)
			}
			return strings.TrimSpace(line), nil
		}
	}

	go func() {
		<-ctx.Done()
		_ = rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read input failed: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := s.Execute(ctx, line); err != nil {
			if errors.Is(err, ErrExit) {
				s.printLine("bye")
				return nil
			}
			s.printLine("error: %v", err)
		}
	}
}

// Close stops background watches and waits for them to report.
func (s *Session) Close() {
	s.bgCancel()
	s.bg.Wait()
}

// Wait blocks until background watches finish on their own.
func (s *Session) Wait() {
	s.bg.Wait()
}

// Execute runs one command line.
func (s *Session) Execute(ctx context.Context, input string) error {
	line, err := command.ParseLine(input)
	if err != nil {
		return err
	}
	cmd, ok := s.commands[line.Name]
	if !ok {
		return fmt.Errorf("unknown command: %s (try help)", line.Name)
	}
	line.Params.Canonicalize(cmd.Fields)
	if err := s.promptMissing(cmd, line.Params); err != nil {
		return err
	}
	if cmd.RequiresAuth && s.AccessToken() == "" {
		return fmt.Errorf("not logged in: run login user_id=<id> or set token <jwt>")
	}

	switch cmd.Name {
	case "submit":
		return s.handleSubmit(ctx, line.Params)
	case "watch":
		return s.handleWatch(ctx, line.Params)
	case "cancel":
		return s.handleCancel(line.Params)
	case "status":
		return s.handleStatus(ctx, line.Params)
	case "list":
		return s.handleList(ctx, line.Params)
	case "login":
		return s.handleLogin(ctx, line.Params)
	case "logout":
		return s.handleLogout()
	case "set":
		return s.handleSet(line.Args)
	case "show":
		return s.handleShow(line.Args)
	case "help":
		s.printHelp()
		return nil
	case "exit":
		return ErrExit
	}
	return fmt.Errorf("command %s is not implemented", cmd.Name)
}

func (s *Session) promptMissing(cmd command.Command, params command.Params) error {
	for _, field := range params.Missing(cmd.Fields) {
		if s.prompt == nil {
			return fmt.Errorf("%s is required (usage: %s)", field.Name, cmd.Usage)
		}
		value, err := s.prompt(field.Prompt)
		if err != nil {
			return err
		}
		if value == "" {
			return fmt.Errorf("%s is required", field.Name)
		}
		params.Set(field.Name, value)
	}
	return nil
}

func (s *Session) handleSubmit(ctx context.Context, params command.Params) error {
	in, err := command.BuildSubmit(params)
	if err != nil {
		return err
	}
	id, err := s.client.CreateSubmission(ctx, in.Code, in.Language, in.ProblemID)
	if err != nil {
		return err
	}
	s.printLine("submission created: id=%d", id)
	if in.Watch {
		s.watchInBackground([]int64{id}, s.options(in.Cadence, in.MaxAttempts))
	}
	return nil
}

func (s *Session) handleWatch(ctx context.Context, params command.Params) error {
	in, err := command.BuildWatch(params)
	if err != nil {
		return err
	}
	opts := s.options(in.Cadence, in.MaxAttempts)
	if in.Wait {
		return s.observeAll(ctx, in.IDs, opts)
	}
	s.watchInBackground(in.IDs, opts)
	return nil
}

func (s *Session) watchInBackground(ids []int64, opts poller.Options) {
	s.printLine("watching %s in background", formatIDs(ids))
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		if err := s.observeAll(s.bgCtx, ids, opts); err != nil {
			logger.Debug(s.bgCtx, "background watch finished with error", zap.Error(err))
		}
	}()
}

// observeAll watches every id concurrently and reports each outcome as it
// lands. The first failed observation is returned after all have finished.
func (s *Session) observeAll(ctx context.Context, ids []int64, opts poller.Options) error {
	var g errgroup.Group
	g.SetLimit(maxConcurrentWatches)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			watchOpts := opts
			watchOpts.OnSnapshot = s.progressPrinter(id)
			outcome := s.scheduler.Observe(ctx, id, watchOpts)
			s.printOutcome(outcome)
			if outcome.Kind == poller.KindFailed {
				return outcome.Err
			}
			return nil
		})
	}
	return g.Wait()
}

// progressPrinter prints a line whenever the observed status changes.
func (s *Session) progressPrinter(id int64) func(model.Submission) {
	var last model.Status
	return func(sub model.Submission) {
		if sub.Status == last {
			return
		}
		last = sub.Status
		s.printLine("[%d] %s", id, sub.Status.Label())
	}
}

func (s *Session) printOutcome(outcome poller.Outcome) {
	msg := outcome.Message()
	if msg == "" {
		s.printLine("[%d] %s after %d attempt(s)", outcome.SubmissionID, outcome.Kind, outcome.Attempts)
		return
	}
	s.printLine("[%d] %s: %s", outcome.SubmissionID, outcome.Kind, msg)
}

func (s *Session) handleCancel(params command.Params) error {
	all := false
	if params.Has("all") {
		var err error
		if all, err = command.ParseBool(params.Get("all")); err != nil {
			return fmt.Errorf("invalid all: %w", err)
		}
	}
	if all {
		ids := s.scheduler.Active()
		for _, id := range ids {
			s.scheduler.Cancel(id)
		}
		s.printLine("cancelled %d watch(es)", len(ids))
		return nil
	}
	if params.Get("id") == "" {
		return fmt.Errorf("id is required (usage: cancel id=42 | all=true)")
	}
	id, err := command.ParseInt64(params.Get("id"))
	if err != nil {
		return fmt.Errorf("invalid id: %w", err)
	}
	if !s.scheduler.Cancel(id) {
		s.printLine("no active watch for %d", id)
		return nil
	}
	s.printLine("cancelled watch for %d", id)
	return nil
}

func (s *Session) handleStatus(ctx context.Context, params command.Params) error {
	id, err := command.ParseInt64(params.Get("id"))
	if err != nil {
		return fmt.Errorf("invalid id: %w", err)
	}
	sub, err := s.client.GetSubmissionStatus(ctx, id)
	if err != nil {
		return err
	}
	class := classifier.Classify(sub.Status)
	s.printLine("[%d] %s (%s): %s", sub.ID, sub.Status.Label(), class, classifier.Reason(sub))
	return s.printJSON(sub)
}

func (s *Session) handleList(ctx context.Context, params command.Params) error {
	in, err := command.BuildList(params)
	if err != nil {
		return err
	}
	items, err := s.client.ListSubmissions(ctx, gateway.ListFilter{
		ProblemID: in.ProblemID,
		Skip:      in.Skip,
		Limit:     in.Limit,
	})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		s.printLine("no submissions")
		return nil
	}
	s.printLine("%-8s %-8s %-12s %-22s %s", "ID", "PROBLEM", "LANGUAGE", "STATUS", "SCORE")
	for _, item := range items {
		s.printLine("%-8d %-8d %-12s %-22s %d", item.ID, item.ProblemID, item.Language, item.Status.Label(), item.Score)
	}
	return nil
}

func (s *Session) handleLogin(ctx context.Context, params command.Params) error {
	userID, err := command.ParseInt64(params.Get("user_id"))
	if err != nil {
		return fmt.Errorf("invalid user_id: %w", err)
	}
	token, err := s.client.IssueDevToken(ctx, userID, params.Get("role"))
	if err != nil {
		return err
	}
	s.tokenMu.Lock()
	s.token.AccessToken = token.AccessToken
	s.token.UserID = userID
	s.token.AccessExpiresAt = time.Time{}
	if token.ExpiresAt > 0 {
		s.token.AccessExpiresAt = time.Unix(token.ExpiresAt, 0).UTC()
	}
	snapshot := *s.token
	s.tokenMu.Unlock()

	if err := s.saveToken(snapshot); err != nil {
		return err
	}
	s.printLine("logged in as user %d", userID)
	return nil
}

func (s *Session) handleLogout() error {
	s.tokenMu.Lock()
	*s.token = state.TokenState{}
	s.tokenMu.Unlock()
	if s.statePath != "" {
		if err := state.Clear(s.statePath); err != nil {
			return err
		}
	}
	s.printLine("logged out")
	return nil
}

func (s *Session) handleSet(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: set base <url> | timeout <dur> | token <jwt>")
	}
	switch args[0] {
	case "base":
		s.client.SetBaseURL(strings.TrimRight(args[1], "/"))
		s.printLine("base set to %s", s.client.BaseURL())
	case "timeout":
		dur, err := command.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	case "token":
		s.tokenMu.Lock()
		s.token.AccessToken = args[1]
		s.token.AccessExpiresAt = time.Time{}
		snapshot := *s.token
		s.tokenMu.Unlock()
		if err := s.saveToken(snapshot); err != nil {
			return err
		}
		s.printLine("token updated")
	default:
		return fmt.Errorf("unknown set command: %s", args[0])
	}
	return nil
}

func (s *Session) handleShow(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: show token|config|watches")
	}
	switch args[0] {
	case "token":
		s.tokenMu.RLock()
		snapshot := *s.token
		s.tokenMu.RUnlock()
		if snapshot.AccessToken == "" {
			s.printLine("token: <empty>")
			return nil
		}
		s.printLine("token: %s", maskToken(snapshot.AccessToken))
		if !snapshot.AccessExpiresAt.IsZero() {
			suffix := ""
			if snapshot.Expired(time.Now()) {
				suffix = " (expired)"
			}
			s.printLine("expires: %s%s", snapshot.AccessExpiresAt.Format(time.RFC3339), suffix)
		}
	case "config":
		s.printLine("base: %s", s.client.BaseURL())
		s.printLine("tokenStatePath: %s", s.statePath)
		s.printLine("cadence: %s", s.defaults.Cadence)
		s.printLine("maxAttempts: %d", s.defaults.MaxAttempts)
	case "watches":
		ids := s.scheduler.Active()
		if len(ids) == 0 {
			s.printLine("no active watches")
			return nil
		}
		for _, id := range ids {
			session, ok := s.scheduler.Session(id)
			if !ok {
				continue
			}
			last := "-"
			if sub, ok := session.Last(); ok {
				last = sub.Status.Label()
			}
			s.printLine("[%d] %s attempts=%d last=%s", id, session.State(), session.Attempts(), last)
		}
	default:
		return fmt.Errorf("usage: show token|config|watches")
	}
	return nil
}

func (s *Session) options(cadence time.Duration, attempts int) poller.Options {
	opts := s.defaults
	if cadence > 0 {
		opts.Cadence = cadence
	}
	if attempts > 0 {
		opts.MaxAttempts = attempts
	}
	return opts
}

func (s *Session) saveToken(st state.TokenState) error {
	if s.statePath == "" {
		return nil
	}
	if err := state.Save(s.statePath, st); err != nil {
		return fmt.Errorf("save token failed: %w", err)
	}
	return nil
}

func (s *Session) printJSON(v interface{}) error {
	var data []byte
	var err error
	if s.prettyJSON {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("render json failed: %w", err)
	}
	s.printLine("%s", string(data))
	return nil
}

func (s *Session) printHelp() {
	seen := make(map[string]struct{})
	cmds := make([]command.Command, 0, len(s.commands))
	for _, cmd := range s.commands {
		if _, ok := seen[cmd.Name]; ok {
			continue
		}
		seen[cmd.Name] = struct{}{}
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	s.printLine("commands:")
	for _, cmd := range cmds {
		s.printLine("  %-8s %s", cmd.Name, cmd.Summary)
		s.printLine("           %s", cmd.Usage)
	}
}

func (s *Session) completer() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(s.commands))
	for _, name := range command.Names(s.commands) {
		switch name {
		case "set":
			items = append(items, readline.PcItem(name,
				readline.PcItem("base"), readline.PcItem("timeout"), readline.PcItem("token")))
		case "show":
			items = append(items, readline.PcItem(name,
				readline.PcItem("token"), readline.PcItem("config"), readline.PcItem("watches")))
		default:
			items = append(items, readline.PcItem(name))
		}
	}
	return readline.NewPrefixCompleter(items...)
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}

func maskToken(token string) string {
	if len(token) <= 12 {
		return token
	}
	return token[:6] + "..." + token[len(token)-4:]
}

func formatIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%d", id))
	}
	return strings.Join(parts, ",")
}

// syncWriter serializes output from the prompt loop and watch goroutines.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}

func (w *syncWriter) swap(next io.Writer) io.Writer {
	w.mu.Lock()
	defer w.mu.Unlock()
	previous := w.w
	w.w = next
	return previous
}
