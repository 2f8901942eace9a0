package command

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ojwatch/internal/submission/model"

	"github.com/google/shlex"
)

// Registry returns all REPL commands keyed by name and alias.
func Registry() map[string]Command {
	commands := []Command{
		{
			Name:         "submit",
			Usage:        "submit problem_id=7 language=python code=... | source_file=./main.py [watch=true]",
			Summary:      "create a submission, optionally watching it",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "problem_id", Aliases: []string{"problem", "pid"}, Prompt: "problem_id", Type: FieldInt64, Required: true},
				{Name: "language", Aliases: []string{"lang"}, Prompt: "language", Type: FieldString},
				{Name: "code", Aliases: []string{"source_code"}, Prompt: "code", Type: FieldString},
				{Name: "source_file", Aliases: []string{"file"}, Prompt: "source_file", Type: FieldFile},
				{Name: "watch", Type: FieldBool},
				{Name: "cadence", Aliases: []string{"interval"}, Type: FieldDuration},
				{Name: "attempts", Aliases: []string{"max_attempts"}, Type: FieldInt},
			},
		},
		{
			Name:         "watch",
			Aliases:      []string{"poll"},
			Usage:        "watch id=42 | ids=1,2,3 [cadence=2s] [attempts=30] [wait=true]",
			Summary:      "observe submissions until they settle",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "id", Aliases: []string{"submission_id"}, Type: FieldInt64},
				{Name: "ids", Aliases: []string{"submission_ids"}, Type: FieldInt64List},
				{Name: "cadence", Aliases: []string{"interval"}, Type: FieldDuration},
				{Name: "attempts", Aliases: []string{"max_attempts"}, Type: FieldInt},
				{Name: "wait", Type: FieldBool},
			},
		},
		{
			Name:    "cancel",
			Usage:   "cancel id=42 | all=true",
			Summary: "stop watching a submission",
			Fields: []Field{
				{Name: "id", Aliases: []string{"submission_id"}, Type: FieldInt64},
				{Name: "all", Type: FieldBool},
			},
		},
		{
			Name:         "status",
			Aliases:      []string{"get"},
			Usage:        "status id=42",
			Summary:      "fetch one snapshot",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "id", Aliases: []string{"submission_id"}, Prompt: "submission_id", Type: FieldInt64, Required: true},
			},
		},
		{
			Name:         "list",
			Aliases:      []string{"ls"},
			Usage:        "list [problem_id=7] [skip=0] [limit=20]",
			Summary:      "list your submissions, newest first",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "problem_id", Aliases: []string{"problem", "pid"}, Type: FieldInt64},
				{Name: "skip", Type: FieldInt},
				{Name: "limit", Type: FieldInt},
			},
		},
		{
			Name:    "login",
			Usage:   "login user_id=1 [role=user]",
			Summary: "obtain a development token from the judge",
			Fields: []Field{
				{Name: "user_id", Aliases: []string{"user", "uid"}, Prompt: "user_id", Type: FieldInt64, Required: true},
				{Name: "role", Type: FieldString},
			},
		},
		{Name: "logout", Usage: "logout", Summary: "forget the stored token"},
		{Name: "set", Usage: "set base <url> | timeout <dur> | token <jwt>", Summary: "change session settings"},
		{Name: "show", Usage: "show token|config|watches", Summary: "print session settings"},
		{Name: "help", Aliases: []string{"?"}, Usage: "help", Summary: "print this help"},
		{Name: "exit", Aliases: []string{"quit"}, Usage: "exit", Summary: "leave the shell"},
	}

	registry := make(map[string]Command, len(commands)*2)
	for _, cmd := range commands {
		registry[cmd.Name] = cmd
		for _, alias := range cmd.Aliases {
			registry[alias] = cmd
		}
	}
	return registry
}

// Names returns the primary command names, sorted.
func Names(registry map[string]Command) []string {
	seen := make(map[string]struct{}, len(registry))
	names := make([]string, 0, len(registry))
	for _, cmd := range registry {
		if _, ok := seen[cmd.Name]; ok {
			continue
		}
		seen[cmd.Name] = struct{}{}
		names = append(names, cmd.Name)
	}
	sort.Strings(names)
	return names
}

// Line is one tokenized REPL input.
type Line struct {
	Name   string
	Args   []string
	Params Params
}

// ParseLine splits input with shell quoting rules. key=value tokens become
// params; anything else is a positional argument.
func ParseLine(input string) (Line, error) {
	tokens, err := shlex.Split(input)
	if err != nil {
		return Line{}, fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) == 0 {
		return Line{}, fmt.Errorf("empty command")
	}
	line := Line{Name: strings.ToLower(tokens[0]), Params: Params{}}
	for _, token := range tokens[1:] {
		parts := strings.SplitN(token, "=", 2)
		if len(parts) == 2 && parts[0] != "" {
			line.Params.Set(parts[0], parts[1])
			continue
		}
		line.Args = append(line.Args, token)
	}
	return line, nil
}

// SubmitInput is a validated submit command.
type SubmitInput struct {
	ProblemID   int64
	Language    model.Language
	Code        string
	Watch       bool
	Cadence     time.Duration
	MaxAttempts int
}

// WatchInput is a validated watch command.
type WatchInput struct {
	IDs         []int64
	Cadence     time.Duration
	MaxAttempts int
	Wait        bool
}

// ListInput is a validated list command.
type ListInput struct {
	ProblemID int64
	Skip      int
	Limit     int
}

// BuildSubmit reads code inline or from source_file and infers the language
// from the file extension when it is not given.
func BuildSubmit(params Params) (SubmitInput, error) {
	var in SubmitInput
	problemID, err := ParseInt64(params.Get("problem_id"))
	if err != nil {
		return in, fmt.Errorf("invalid problem_id: %w", err)
	}
	in.ProblemID = problemID

	in.Code = params.Get("code")
	if in.Code == "" && params.Get("source_file") != "" {
		in.Code, err = ReadFile(params.Get("source_file"))
		if err != nil {
			return in, err
		}
	}
	if strings.TrimSpace(in.Code) == "" {
		return in, fmt.Errorf("code or source_file is required")
	}

	language := params.Get("language")
	if language == "" && params.Get("source_file") != "" {
		language = languageForFile(params.Get("source_file"))
	}
	if language == "" {
		return in, fmt.Errorf("language is required")
	}
	in.Language = model.Language(language)
	if parsed, ok := model.ParseLanguage(language); ok {
		in.Language = parsed
	}

	if params.Has("watch") {
		if in.Watch, err = ParseBool(params.Get("watch")); err != nil {
			return in, fmt.Errorf("invalid watch: %w", err)
		}
	}
	if in.Cadence, in.MaxAttempts, err = parseSchedule(params); err != nil {
		return in, err
	}
	return in, nil
}

// BuildWatch accepts id= or ids=; duplicate ids collapse.
func BuildWatch(params Params) (WatchInput, error) {
	var in WatchInput
	var ids []int64
	if params.Get("id") != "" {
		id, err := ParseInt64(params.Get("id"))
		if err != nil {
			return in, fmt.Errorf("invalid id: %w", err)
		}
		ids = append(ids, id)
	}
	if params.Get("ids") != "" {
		more, err := ParseInt64List(params.Get("ids"))
		if err != nil {
			return in, err
		}
		ids = append(ids, more...)
	}
	if len(ids) == 0 {
		return in, fmt.Errorf("id or ids is required")
	}
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return in, fmt.Errorf("submission id must be positive: %d", id)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		in.IDs = append(in.IDs, id)
	}

	var err error
	if params.Has("wait") {
		if in.Wait, err = ParseBool(params.Get("wait")); err != nil {
			return in, fmt.Errorf("invalid wait: %w", err)
		}
	}
	if in.Cadence, in.MaxAttempts, err = parseSchedule(params); err != nil {
		return in, err
	}
	return in, nil
}

func BuildList(params Params) (ListInput, error) {
	var in ListInput
	var err error
	if params.Get("problem_id") != "" {
		if in.ProblemID, err = ParseInt64(params.Get("problem_id")); err != nil {
			return in, fmt.Errorf("invalid problem_id: %w", err)
		}
	}
	if params.Get("skip") != "" {
		if in.Skip, err = ParseInt(params.Get("skip")); err != nil || in.Skip < 0 {
			return in, fmt.Errorf("invalid skip: %q", params.Get("skip"))
		}
	}
	if params.Get("limit") != "" {
		if in.Limit, err = ParseInt(params.Get("limit")); err != nil || in.Limit < 0 {
			return in, fmt.Errorf("invalid limit: %q", params.Get("limit"))
		}
	}
	return in, nil
}

func parseSchedule(params Params) (time.Duration, int, error) {
	var cadence time.Duration
	var attempts int
	var err error
	if params.Get("cadence") != "" {
		if cadence, err = ParseDuration(params.Get("cadence")); err != nil {
			return 0, 0, fmt.Errorf("invalid cadence: %w", err)
		}
	}
	if params.Get("attempts") != "" {
		if attempts, err = ParseInt(params.Get("attempts")); err != nil || attempts <= 0 {
			return 0, 0, fmt.Errorf("invalid attempts: %q", params.Get("attempts"))
		}
	}
	return cadence, attempts, nil
}

func languageForFile(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		return string(model.LanguagePython)
	case ".js", ".mjs":
		return string(model.LanguageJavaScript)
	case ".java":
		return string(model.LanguageJava)
	case ".cpp", ".cc", ".cxx", ".hpp":
		return string(model.LanguageCPP)
	}
	return ""
}
