package repl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"recruitoj/internal/cli/command"
	httpclient "recruitoj/internal/cli/http"
	"recruitoj/internal/cli/state"
	"recruitoj/internal/testutil"
)

type recordedRequest struct {
	method string
	path   string
	auth   string
	trace  string
	body   map[string]interface{}
}

func newServer(t *testing.T, status int, response string, seen *[]recordedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			method: r.Method,
			path:   r.URL.RequestURI(),
			auth:   r.Header.Get("Authorization"),
			trace:  r.Header.Get("X-Trace-Id"),
		}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &rec.body)
		}
		*seen = append(*seen, rec)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newSession(t *testing.T, baseURL string, st *state.State) (*Session, *bytes.Buffer, string) {
	t.Helper()
	statePath := filepath.Join(t.TempDir(), "state.json")
	client := httpclient.New(baseURL, 5*time.Second, func() string { return st.AccessToken })
	var out bytes.Buffer
	return New(client, command.Registry(), st, statePath, false, &out), &out, statePath
}

func answers(values ...string) Prompter {
	return func(label string) (string, error) {
		if len(values) == 0 {
			return "", io.EOF
		}
		v := values[0]
		values = values[1:]
		return v, nil
	}
}

const submitOK = `{"code":10000,"message":"Success","data":{
	"submission_id":"sub-1","status":"ACCEPTED","verdict":"ALL_PASS","all_tests_passed":true,
	"passed_test_count":2,"total_tests":2,"scored":true,
	"test_results":[{"index":0,"status":"Accepted","passed":true,"time_ms":12},{"index":1,"status":"Accepted","passed":true,"time_ms":9}]
},"trace_id":"t-1"}`

func TestSubmitUsesDefaultLanguage(t *testing.T) {
	var seen []recordedRequest
	srv := newServer(t, http.StatusOK, submitOK, &seen)
	st := &state.State{AccessToken: "tok-123", LanguageID: 71}
	session, out, _ := newSession(t, srv.URL, st)

	source := filepath.Join(t.TempDir(), "main.py")
	if err := os.WriteFile(source, []byte("print(input())"), 0o600); err != nil {
		t.Fatalf("write source: %v", err)
	}

	done, err := session.Execute(context.Background(), `submit problem=3 file="`+source+`"`, nil)
	if err != nil || done {
		t.Fatalf("Execute: done=%v err=%v", done, err)
	}
	testutil.AssertEqual(t, len(seen), 1)
	req := seen[0]
	testutil.AssertEqual(t, req.method, http.MethodPost)
	testutil.AssertEqual(t, req.path, "/api/v1/contest/submissions")
	testutil.AssertEqual(t, req.auth, "Bearer tok-123")
	testutil.AssertTrue(t, req.trace != "", "trace id header missing")
	testutil.AssertEqual(t, req.body["language_id"], float64(71))
	testutil.AssertEqual(t, req.body["source_code"], "print(input())")

	text := out.String()
	testutil.AssertTrue(t, strings.Contains(text, "ALL_PASS ACCEPTED  2/2 passed"), text)
	testutil.AssertTrue(t, strings.Contains(text, "point awarded"), text)
}

func TestRunPromptsForMissingFields(t *testing.T) {
	var seen []recordedRequest
	srv := newServer(t, http.StatusOK, `{"code":10000,"message":"Success","data":{
		"output":"5\n","status":"Accepted","passed":false,"expected":"6","input":"2 3"}}`, &seen)
	session, out, _ := newSession(t, srv.URL, &state.State{AccessToken: "tok"})

	_, err := session.Execute(context.Background(), "run", answers("2", "71", "", ""))
	if err == nil || !strings.Contains(err.Error(), "source_code or source_file") {
		t.Fatalf("err = %v, want missing source", err)
	}
	testutil.AssertEqual(t, len(seen), 0)

	_, err = session.Execute(context.Background(), "run code='print(5)'", answers("2", "71"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	testutil.AssertEqual(t, seen[0].path, "/api/v1/contest/run")
	testutil.AssertEqual(t, seen[0].body["problem_id"], float64(2))
	testutil.AssertEqual(t, seen[0].body["source_code"], "print(5)")
	testutil.AssertTrue(t, strings.Contains(out.String(), "wrong answer"), out.String())
	testutil.AssertTrue(t, strings.Contains(out.String(), "expected:\n6"), out.String())
}

func TestErrorEnvelope(t *testing.T) {
	var seen []recordedRequest
	srv := newServer(t, http.StatusForbidden,
		`{"code":12001,"message":"Problem is not available for your year","details":{"problem_id":7}}`, &seen)
	session, out, _ := newSession(t, srv.URL, &state.State{AccessToken: "tok"})

	if _, err := session.Execute(context.Background(), "submit p=7 lang=71 code=x", nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	text := out.String()
	testutil.AssertTrue(t, strings.Contains(text, "HTTP 403: Problem is not available for your year (code 12001"), text)
	testutil.AssertTrue(t, strings.Contains(text, "problem_id: 7"), text)
}

func TestListAndScore(t *testing.T) {
	var seen []recordedRequest
	srv := newServer(t, http.StatusOK, `{"code":10000,"message":"Success","data":{"items":[
		{"submission_id":"s-2","problem_id":4,"language_id":71,"status":"REJECTED","passed_test_count":1,"total_tests":3,"created_at":"2026-05-01T10:00:00Z"}]}}`, &seen)
	session, out, _ := newSession(t, srv.URL, &state.State{AccessToken: "tok"})

	if _, err := session.Execute(context.Background(), "list problem=4", nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	testutil.AssertEqual(t, seen[0].method, http.MethodGet)
	testutil.AssertEqual(t, seen[0].path, "/api/v1/contest/submissions?problem_id=4")
	testutil.AssertTrue(t, strings.Contains(out.String(), "REJECTED"), out.String())
	testutil.AssertTrue(t, strings.Contains(out.String(), "1/3"), out.String())

	var scoreSeen []recordedRequest
	scoreSrv := newServer(t, http.StatusOK, `{"code":10000,"message":"Success","data":{"user_id":"u","score":2,"solved_problems":[1,3]}}`, &scoreSeen)
	session.client.SetBaseURL(scoreSrv.URL)
	out.Reset()
	if _, err := session.Execute(context.Background(), "score", nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	testutil.AssertTrue(t, strings.Contains(out.String(), "score: 2\nsolved: 1, 3"), out.String())
}

func TestSystemCommands(t *testing.T) {
	st := &state.State{}
	session, out, statePath := newSession(t, "http://127.0.0.1:1", st)
	ctx := context.Background()

	if _, err := session.Execute(ctx, "set token abcdefghijklmnop", nil); err != nil {
		t.Fatalf("set token: %v", err)
	}
	if _, err := session.Execute(ctx, "set lang 54", nil); err != nil {
		t.Fatalf("set lang: %v", err)
	}
	saved, err := state.Load(statePath)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	testutil.AssertEqual(t, saved.AccessToken, "abcdefghijklmnop")
	testutil.AssertEqual(t, saved.LanguageID, 54)

	out.Reset()
	if _, err := session.Execute(ctx, "show token", nil); err != nil {
		t.Fatalf("show token: %v", err)
	}
	testutil.AssertEqual(t, out.String(), "token: abcdef...mnop\n")

	if _, err := session.Execute(ctx, "set lang zero", nil); err == nil {
		t.Error("expected invalid language error")
	}
	if _, err := session.Execute(ctx, "frobnicate", nil); err == nil {
		t.Error("expected unknown command error")
	}
	if _, err := session.Execute(ctx, `submit code="unterminated`, nil); err == nil {
		t.Error("expected parse error")
	}
	if _, err := session.Execute(ctx, "clear", nil); err != nil {
		t.Fatalf("clear: %v", err)
	}
	testutil.AssertEqual(t, st.AccessToken, "")
	if _, err := os.Stat(statePath); !os.IsNotExist(err) {
		t.Errorf("state file still present: %v", err)
	}

	done, err := session.Execute(ctx, "exit", nil)
	testutil.AssertTrue(t, done && err == nil, "exit should end the session")
}
