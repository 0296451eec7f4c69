package command

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

const apiPrefix = "/api/v1/contest"

func codeFields() []Field {
	return []Field{
		{Name: "problem_id", Aliases: []string{"problem", "p"}, Prompt: "problem_id", Type: FieldInt, Required: true},
		{Name: "language_id", Aliases: []string{"language", "lang"}, Prompt: "language_id", Type: FieldInt, Required: true},
		{Name: "source_code", Aliases: []string{"source", "code"}, Prompt: "source_code", Type: FieldString},
		{Name: "source_file", Aliases: []string{"file", "f"}, Prompt: "source_file", Type: FieldFile},
	}
}

// Registry returns all CLI commands keyed by name.
func Registry() map[string]Command {
	commands := []Command{
		{
			Name:   "submit",
			Usage:  "submit problem=3 lang=71 file=./main.py",
			Method: "POST",
			Path:   apiPrefix + "/submissions",
			Fields: codeFields(),
		},
		{
			Name:   "run",
			Usage:  "run problem=3 lang=71 file=./main.py",
			Method: "POST",
			Path:   apiPrefix + "/run",
			Fields: codeFields(),
		},
		{
			Name:   "list",
			Usage:  "list [problem=3]",
			Method: "GET",
			Path:   apiPrefix + "/submissions",
			Fields: []Field{
				{Name: "problem_id", Aliases: []string{"problem", "p"}, Prompt: "problem_id", Type: FieldInt, Query: true},
			},
		},
		{
			Name:   "score",
			Usage:  "score",
			Method: "GET",
			Path:   apiPrefix + "/score",
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		result[cmd.Name] = cmd
	}
	return result
}

// Names returns the registered command names in sorted order.
func Names(commands map[string]Command) []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildRequest creates HTTP request spec based on command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)

	query := url.Values{}
	body := map[string]interface{}{}
	for _, field := range cmd.Fields {
		raw := strings.TrimSpace(params.Get(field.Name))
		if raw == "" {
			if field.Required {
				return RequestSpec{}, fmt.Errorf("%s is required", field.Name)
			}
			continue
		}
		var value interface{}
		switch field.Type {
		case FieldInt:
			n, err := ParseInt(raw)
			if err != nil {
				return RequestSpec{}, fmt.Errorf("invalid %s: %w", field.Name, err)
			}
			value = n
		case FieldFile:
			// Files are resolved into source_code below.
			continue
		default:
			value = params.Get(field.Name)
		}
		if field.Query {
			query.Set(field.Name, raw)
			continue
		}
		body[field.Name] = value
	}

	if hasField(cmd.Fields, "source_code") {
		if err := resolveSource(params, body); err != nil {
			return RequestSpec{}, err
		}
	}

	path := cmd.Path
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var data []byte
	if cmd.Method != "GET" && cmd.Method != "DELETE" {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
		}
	}
	return RequestSpec{Method: cmd.Method, Path: path, Body: data}, nil
}

// resolveSource prefers an explicit source_code and otherwise reads source_file.
func resolveSource(params Params, body map[string]interface{}) error {
	if code, ok := body["source_code"].(string); ok && code != "" {
		return nil
	}
	file := strings.TrimSpace(params.Get("source_file"))
	if file == "" {
		return fmt.Errorf("source_code or source_file is required")
	}
	code, err := ReadFile(file)
	if err != nil {
		return err
	}
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("source file %s is empty", file)
	}
	body["source_code"] = code
	return nil
}

func hasField(fields []Field, name string) bool {
	for _, f := range fields {
		if f.Name == name {
			return true
		}
	}
	return false
}
