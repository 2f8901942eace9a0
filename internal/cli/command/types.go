package command

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// FieldType describes input type.
type FieldType int

const (
	FieldString FieldType = iota
	FieldInt
	FieldInt64
	FieldInt64List
	FieldDuration
	FieldBool
	FieldFile
)

// Field defines a CLI input field.
type Field struct {
	Name     string
	Aliases  []string
	Prompt   string
	Type     FieldType
	Required bool
}

// Command defines a REPL command.
type Command struct {
	Name    string
	Aliases []string
	Usage   string
	Summary string
	Fields  []Field
	// RequiresAuth commands need an access token.
	RequiresAuth bool
}

// Params holds parsed input params.
type Params map[string]string

func (p Params) Get(key string) string {
	return p[strings.ToLower(key)]
}

func (p Params) Set(key, value string) {
	p[strings.ToLower(key)] = value
}

func (p Params) Has(key string) bool {
	_, ok := p[strings.ToLower(key)]
	return ok
}

func (p Params) Canonicalize(fields []Field) {
	for _, field := range fields {
		for _, alias := range field.Aliases {
			aliasKey := strings.ToLower(alias)
			if value, ok := p[aliasKey]; ok {
				p[strings.ToLower(field.Name)] = value
				delete(p, aliasKey)
			}
		}
	}
}

// Missing returns required fields without a value.
func (p Params) Missing(fields []Field) []Field {
	var missing []Field
	for _, field := range fields {
		if field.Required && strings.TrimSpace(p.Get(field.Name)) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

func ParseInt64(value string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}

func ParseInt(value string) (int, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 32)
	return int(n), err
}

func ParseStringList(value string) []string {
	raw := strings.Split(value, ",")
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}

func ParseInt64List(value string) ([]int64, error) {
	items := ParseStringList(value)
	result := make([]int64, 0, len(items))
	for _, item := range items {
		n, err := ParseInt64(item)
		if err != nil {
			return nil, fmt.Errorf("invalid id list value: %w", err)
		}
		result = append(result, n)
	}
	return result, nil
}

// ParseBool accepts true/false, yes/no, 1/0 and on/off.
func ParseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(value))
}

func ParseDuration(value string) (time.Duration, error) {
	dur, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if dur <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return dur, nil
}

func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file failed: %w", err)
	}
	return string(data), nil
}
