// Package testutil holds small assertion helpers shared by package tests.
package testutil

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	appErr "recruitoj/pkg/errors"
)

// AssertEqual checks if two values are equal
func AssertEqual(t *testing.T, got, want interface{}) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// AssertTrue checks if a condition is true
func AssertTrue(t *testing.T, condition bool, message string) {
	t.Helper()
	if !condition {
		t.Errorf("assertion failed: %s", message)
	}
}

// AssertCode fails unless err carries code somewhere in its chain.
func AssertCode(t *testing.T, err error, code appErr.ErrorCode) {
	t.Helper()
	if !appErr.Is(err, code) {
		t.Fatalf("err = %v, want code %d", err, code)
	}
}

// MustUnmarshalJSON unmarshals JSON data or fails the test
func MustUnmarshalJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}

// Envelope mirrors the HTTP response envelope with a raw data field.
type Envelope struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Data    json.RawMessage        `json:"data"`
	Details map[string]interface{} `json:"details"`
	TraceID string                 `json:"trace_id"`
}

// DecodeEnvelope decodes a recorded response and checks its HTTP status.
func DecodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, wantStatus int) Envelope {
	t.Helper()
	if w.Code != wantStatus {
		t.Fatalf("status = %d, want %d, body=%s", w.Code, wantStatus, w.Body.String())
	}
	var env Envelope
	MustUnmarshalJSON(t, w.Body.Bytes(), &env)
	return env
}
