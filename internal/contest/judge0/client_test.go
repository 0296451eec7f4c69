package judge0

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"recruitoj/internal/contest/model"
	appErr "recruitoj/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg.BaseURL = server.URL + "/"
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestNewClientValidatesBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("expected error for empty base url")
	}
	if _, err := NewClient(Config{BaseURL: "not a url"}); err == nil {
		t.Error("expected error for base url without host")
	}
}

func TestSubmitBatch(t *testing.T) {
	var got batchRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/submissions/batch" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("base64_encoded") != "false" {
			t.Errorf("base64_encoded = %q", r.URL.Query().Get("base64_encoded"))
		}
		if r.Header.Get("X-Auth-Token") != "secret" {
			t.Errorf("X-Auth-Token = %q", r.Header.Get("X-Auth-Token"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`[{"token":"t0"},{"token":"t1"}]`))
	}, Config{APIKey: "secret"})

	cases := []model.TestCase{{Index: 0, Input: "a", ExpectedOutput: "A"}, {Index: 1, Input: "b", ExpectedOutput: "B"}}
	tokens, err := client.SubmitBatch(context.Background(), "print(input())", 71, cases)
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	if strings.Join(tokens, ",") != "t0,t1" {
		t.Errorf("tokens = %v", tokens)
	}
	if len(got.Submissions) != 2 || got.Submissions[1].Stdin != "b" || got.Submissions[0].LanguageID != 71 {
		t.Errorf("request body = %+v", got)
	}
}

func TestRapidAPIHeaders(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-RapidAPI-Key") != "key" || r.Header.Get("X-RapidAPI-Host") != "judge0-ce.p.rapidapi.com" {
			t.Errorf("missing rapidapi headers: %v", r.Header)
		}
		if r.Header.Get("X-Auth-Token") != "" {
			t.Error("X-Auth-Token should not be sent with rapidapi host")
		}
		if r.URL.Query().Get("wait") != "false" {
			t.Errorf("wait = %q", r.URL.Query().Get("wait"))
		}
		_, _ = w.Write([]byte(`{"token":"single"}`))
	}, Config{APIKey: "key", APIHost: "judge0-ce.p.rapidapi.com"})

	token, err := client.SubmitSingle(context.Background(), "code", 71, model.TestCase{Input: "x"})
	if err != nil || token != "single" {
		t.Fatalf("SubmitSingle = %q, %v", token, err)
	}
}

func TestSubmitBatchDispatchErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr appErr.ErrorCode
	}{
		{"server error", http.StatusInternalServerError, `oops`, appErr.JudgeDispatchFailed},
		{"unauthorized", http.StatusUnauthorized, `{"error":"bad key"}`, appErr.JudgeDispatchFailed},
		{"inline rejection", http.StatusCreated, `[{"token":"t0"},{"language_id":["unknown"]}]`, appErr.JudgeDispatchFailed},
		{"token count mismatch", http.StatusCreated, `[{"token":"t0"}]`, appErr.JudgeDispatchFailed},
		{"garbage", http.StatusCreated, `not json`, appErr.JudgeDispatchFailed},
	}
	cases := []model.TestCase{{Index: 0}, {Index: 1}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, Config{})
			_, err := client.SubmitBatch(context.Background(), "code", 71, cases)
			if !appErr.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want code %d", err, tt.wantErr)
			}
		})
	}
}

func TestSubmitBatchUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	base := server.URL
	server.Close()

	client, err := NewClient(Config{BaseURL: base, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.SubmitBatch(context.Background(), "code", 71, []model.TestCase{{Index: 0}})
	if !appErr.Is(err, appErr.JudgeDispatchFailed) {
		t.Fatalf("err = %v", err)
	}
}

func TestPollBatch(t *testing.T) {
	bodies := map[string]string{
		"wrapped": `{"submissions":[
			{"token":"t0","stdout":"1\n","stderr":null,"status":{"id":3,"description":"Accepted"},"time":"0.5","memory":1024},
			{"token":"t1","stdout":null,"status":{"id":2,"description":"Processing"},"time":null,"memory":null}
		]}`,
		"bare array": `[
			{"token":"t0","stdout":"1\n","status":{"id":3,"description":"Accepted"},"time":"0.5","memory":1024},
			{"token":"t1","status":{"id":2,"description":"Processing"}}
		]`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				if r.URL.Path != "/submissions/batch" || q.Get("tokens") != "t0,t1" || q.Get("fields") != resultFields {
					t.Errorf("unexpected request %s", r.URL.String())
				}
				_, _ = w.Write([]byte(body))
			}, Config{})

			results, err := client.PollBatch(context.Background(), []string{"t0", "t1"})
			if err != nil {
				t.Fatalf("PollBatch: %v", err)
			}
			if len(results) != 2 {
				t.Fatalf("got %d results", len(results))
			}
			first := results[0]
			if first.Token != "t0" || first.StatusID != 3 || first.Stdout != "1\n" || first.TimeMs != 500 || first.MemoryKB != 1024 {
				t.Errorf("first = %+v", first)
			}
			if !first.IsFinal() || results[1].IsFinal() {
				t.Error("finality mismatch")
			}
			if AllFinal(results) {
				t.Error("AllFinal should be false while one job is processing")
			}
		})
	}
}

func TestPollSingle(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/submissions/abc-123" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"stdout":"","compile_output":"main.c:1: error","status":{"id":6,"description":"Compilation Error"}}`))
	}, Config{})

	result, err := client.PollSingle(context.Background(), "abc-123")
	if err != nil {
		t.Fatalf("PollSingle: %v", err)
	}
	if result.Token != "abc-123" || result.StatusID != model.JudgeStatusCompile || result.ErrorOutput() != "main.c:1: error" {
		t.Errorf("result = %+v", result)
	}
}

func TestPollFinishesWhenDone(t *testing.T) {
	var calls int32
	got, err := Poll(context.Background(), PollPolicy{Interval: time.Millisecond, MaxAttempts: 20},
		func(context.Context) (int, error) {
			return int(atomic.AddInt32(&calls, 1)), nil
		},
		func(n int) bool { return n == 3 })
	if err != nil || got != 3 {
		t.Fatalf("Poll = %d, %v", got, err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestPollExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Poll(context.Background(), PollPolicy{Interval: time.Millisecond, MaxAttempts: 20},
		func(context.Context) ([]model.ExecutionResult, error) {
			calls++
			return []model.ExecutionResult{{StatusID: model.JudgeStatusInQueue}}, nil
		},
		AllFinal)
	if !appErr.Is(err, appErr.JudgeTimeout) {
		t.Fatalf("err = %v, want JudgeTimeout", err)
	}
	if calls != 20 {
		t.Errorf("calls = %d, want 20", calls)
	}
}

func TestPollStopsOnFetchError(t *testing.T) {
	calls := 0
	boom := appErr.New(appErr.JudgeDispatchFailed)
	_, err := Poll(context.Background(), PollPolicy{Interval: time.Millisecond, MaxAttempts: 5},
		func(context.Context) (int, error) {
			calls++
			return 0, boom
		},
		func(int) bool { return false })
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}
}

func TestPollHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Poll(ctx, PollPolicy{Interval: time.Hour, MaxAttempts: 5},
		func(context.Context) (int, error) {
			t.Fatal("fetch should not run after cancellation")
			return 0, nil
		},
		func(int) bool { return true })
	if !appErr.Is(err, appErr.JudgeTimeout) || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestPollStateTransitions(t *testing.T) {
	s := pollState{maxAttempts: 2}
	s.tick(false)
	if s.phase != phaseWaiting || s.attempt != 1 {
		t.Fatalf("after first tick: %+v", s)
	}
	s.tick(false)
	if s.phase != phaseExhausted {
		t.Fatalf("after second tick: %+v", s)
	}

	s = pollState{maxAttempts: 1}
	s.tick(true)
	if s.phase != phaseFinished {
		t.Fatalf("final on last attempt should finish: %+v", s)
	}
}

func TestCorrelate(t *testing.T) {
	tokens := []string{"a", "b", "c"}
	shuffled := []model.ExecutionResult{{Token: "c", Stdout: "3"}, {Token: "a", Stdout: "1"}, {Token: "b", Stdout: "2"}}
	ordered, err := Correlate(tokens, shuffled)
	if err != nil {
		t.Fatalf("Correlate: %v", err)
	}
	for i, want := range []string{"1", "2", "3"} {
		if ordered[i].Stdout != want {
			t.Errorf("ordered[%d] = %+v", i, ordered[i])
		}
	}

	positional := []model.ExecutionResult{{Stdout: "x"}, {Stdout: "y"}, {Stdout: "z"}}
	ordered, err = Correlate(tokens, positional)
	if err != nil || ordered[2].Stdout != "z" {
		t.Fatalf("positional fallback = %+v, %v", ordered, err)
	}

	if _, err := Correlate(tokens, shuffled[:2]); !appErr.Is(err, appErr.JudgeResultInvalid) {
		t.Errorf("count mismatch err = %v", err)
	}
	stray := []model.ExecutionResult{{Token: "a"}, {Token: "b"}, {Token: "zz"}}
	if _, err := Correlate(tokens, stray); !appErr.Is(err, appErr.JudgeResultInvalid) {
		t.Errorf("unknown token err = %v", err)
	}
}
