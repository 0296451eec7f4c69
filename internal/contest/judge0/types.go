package judge0

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"recruitoj/internal/contest/model"
)

const resultFields = "token,stdout,stderr,compile_output,message,status,time,memory"

type submissionRequest struct {
	SourceCode     string `json:"source_code"`
	LanguageID     int    `json:"language_id"`
	Stdin          string `json:"stdin"`
	ExpectedOutput string `json:"expected_output,omitempty"`
}

type batchRequest struct {
	Submissions []submissionRequest `json:"submissions"`
}

// tokenResponse is one element of a submit reply. The engine reports per-item
// validation failures inline instead of a token.
type tokenResponse struct {
	Token string                     `json:"token"`
	Error map[string]json.RawMessage `json:"-"`
}

func (t *tokenResponse) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if token, ok := raw["token"]; ok {
		if err := json.Unmarshal(token, &t.Token); err != nil {
			return err
		}
		delete(raw, "token")
	}
	if len(raw) > 0 {
		t.Error = raw
	}
	return nil
}

func (t tokenResponse) problem() string {
	keys := make([]string, 0, len(t.Error))
	for k, v := range t.Error {
		keys = append(keys, k+": "+string(v))
	}
	return strings.Join(keys, "; ")
}

type statusPayload struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// resultPayload mirrors the engine's submission view. Most fields are null
// until the case finishes.
type resultPayload struct {
	Token         string        `json:"token"`
	Stdout        *string       `json:"stdout"`
	Stderr        *string       `json:"stderr"`
	CompileOutput *string       `json:"compile_output"`
	Message       *string       `json:"message"`
	Status        statusPayload `json:"status"`
	Time          *string       `json:"time"`
	Memory        *int64        `json:"memory"`
}

type batchResultResponse struct {
	Submissions []resultPayload `json:"submissions"`
}

// decodeBatchResults accepts both the wrapped object and a bare array.
func decodeBatchResults(body []byte) ([]resultPayload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []resultPayload
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	var resp batchResultResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, err
	}
	return resp.Submissions, nil
}

func (p resultPayload) toModel() model.ExecutionResult {
	result := model.ExecutionResult{
		Token:             p.Token,
		StatusID:          p.Status.ID,
		StatusDescription: p.Status.Description,
		Stdout:            deref(p.Stdout),
		Stderr:            deref(p.Stderr),
		CompileOutput:     deref(p.CompileOutput),
		Message:           deref(p.Message),
	}
	if p.Time != nil {
		if seconds, err := strconv.ParseFloat(*p.Time, 64); err == nil {
			result.TimeMs = seconds * 1000
		}
	}
	if p.Memory != nil {
		result.MemoryKB = *p.Memory
	}
	return result
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
