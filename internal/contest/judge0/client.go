// Package judge0 talks to a Judge0-compatible execution engine over HTTP.
package judge0

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"recruitoj/internal/contest/model"
	appErr "recruitoj/pkg/errors"
	"recruitoj/pkg/utils/logger"

	"github.com/zeromicro/go-zero/core/breaker"
	"go.uber.org/zap"
)

// DefaultTimeout bounds each engine call when Config.Timeout is unset.
const DefaultTimeout = 10 * time.Second

const (
	maxResponseBytes = 8 << 20
	maxErrorSnippet  = 256
)

// Config holds engine connection settings.
type Config struct {
	BaseURL string        `yaml:"baseURL"`
	APIKey  string        `yaml:"apiKey"`
	APIHost string        `yaml:"apiHost"`
	Timeout time.Duration `yaml:"timeout"`
}

// Client is a Judge0 HTTP client guarded by a circuit breaker.
type Client struct {
	baseURL    string
	apiKey     string
	apiHost    string
	httpClient *http.Client
	brk        breaker.Breaker
}

// NewClient creates a client for cfg.BaseURL.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("judge0 base url is required")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid judge0 base url %q", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		apiHost:    cfg.APIHost,
		httpClient: &http.Client{Timeout: timeout},
		brk:        breaker.NewBreaker(breaker.WithName("judge0:" + parsed.Host)),
	}, nil
}

// SubmitBatch dispatches one job per case and returns tokens in case order.
func (c *Client) SubmitBatch(ctx context.Context, source string, languageID int, cases []model.TestCase) ([]string, error) {
	if len(cases) == 0 {
		return nil, appErr.New(appErr.JudgeDispatchFailed).WithMessage("no test cases to dispatch")
	}
	req := batchRequest{Submissions: make([]submissionRequest, 0, len(cases))}
	for _, tc := range cases {
		req.Submissions = append(req.Submissions, submissionRequest{
			SourceCode:     source,
			LanguageID:     languageID,
			Stdin:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
		})
	}

	query := url.Values{"base64_encoded": {"false"}}
	body, err := c.do(ctx, http.MethodPost, "/submissions/batch", query, req)
	if err != nil {
		return nil, err
	}
	var replies []tokenResponse
	if err := json.Unmarshal(body, &replies); err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeDispatchFailed, "decode batch submit response failed")
	}
	if len(replies) != len(cases) {
		return nil, appErr.Newf(appErr.JudgeDispatchFailed, "engine returned %d tokens for %d cases", len(replies), len(cases))
	}
	tokens := make([]string, len(replies))
	for i, reply := range replies {
		if reply.Token == "" {
			return nil, appErr.Newf(appErr.JudgeDispatchFailed, "engine rejected case %d", cases[i].Index).
				WithDetail("reason", reply.problem())
		}
		tokens[i] = reply.Token
	}
	return tokens, nil
}

// PollBatch fetches the current state of every token.
func (c *Client) PollBatch(ctx context.Context, tokens []string) ([]model.ExecutionResult, error) {
	query := url.Values{
		"tokens":         {strings.Join(tokens, ",")},
		"base64_encoded": {"false"},
		"fields":         {resultFields},
	}
	body, err := c.do(ctx, http.MethodGet, "/submissions/batch", query, nil)
	if err != nil {
		return nil, err
	}
	payloads, err := decodeBatchResults(body)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeResultInvalid, "decode batch result failed")
	}
	results := make([]model.ExecutionResult, 0, len(payloads))
	for _, p := range payloads {
		results = append(results, p.toModel())
	}
	return results, nil
}

// SubmitSingle dispatches one case without waiting for it.
func (c *Client) SubmitSingle(ctx context.Context, source string, languageID int, tc model.TestCase) (string, error) {
	req := submissionRequest{
		SourceCode:     source,
		LanguageID:     languageID,
		Stdin:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
	}
	query := url.Values{"base64_encoded": {"false"}, "wait": {"false"}}
	body, err := c.do(ctx, http.MethodPost, "/submissions", query, req)
	if err != nil {
		return "", err
	}
	var reply tokenResponse
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", appErr.Wrapf(err, appErr.JudgeDispatchFailed, "decode submit response failed")
	}
	if reply.Token == "" {
		return "", appErr.New(appErr.JudgeDispatchFailed).WithMessage("engine rejected submission").
			WithDetail("reason", reply.problem())
	}
	return reply.Token, nil
}

// PollSingle fetches the current state of one token.
func (c *Client) PollSingle(ctx context.Context, token string) (model.ExecutionResult, error) {
	query := url.Values{"base64_encoded": {"false"}, "fields": {resultFields}}
	body, err := c.do(ctx, http.MethodGet, "/submissions/"+url.PathEscape(token), query, nil)
	if err != nil {
		return model.ExecutionResult{}, err
	}
	var payload resultPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return model.ExecutionResult{}, appErr.Wrapf(err, appErr.JudgeResultInvalid, "decode result failed")
	}
	if payload.Token == "" {
		payload.Token = token
	}
	return payload.toModel(), nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("judge0 responded %d: %s", e.code, e.body)
}

// acceptable keeps client-side rejections from tripping the breaker.
func acceptable(err error) bool {
	if err == nil {
		return true
	}
	var se *statusError
	return errors.As(err, &se) && se.code < http.StatusInternalServerError
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload interface{}) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.JudgeDispatchFailed, "encode request failed")
		}
		reader = bytes.NewReader(raw)
	}
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeDispatchFailed, "build request failed")
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	var body []byte
	err = c.brk.DoWithAcceptable(func() error {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet := string(body)
			if len(snippet) > maxErrorSnippet {
				snippet = snippet[:maxErrorSnippet]
			}
			return &statusError{code: resp.StatusCode, body: snippet}
		}
		return nil
	}, acceptable)
	if err != nil {
		logger.Warn(ctx, "judge0 request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		if errors.Is(err, breaker.ErrServiceUnavailable) {
			return nil, appErr.Wrapf(err, appErr.JudgeDispatchFailed, "judge engine circuit open")
		}
		var se *statusError
		if errors.As(err, &se) {
			return nil, appErr.Wrapf(err, appErr.JudgeDispatchFailed, "judge engine rejected request").
				WithDetail("status", se.code)
		}
		return nil, appErr.Wrapf(err, appErr.JudgeDispatchFailed, "judge engine unreachable")
	}
	return body, nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.apiKey == "" {
		return
	}
	if c.apiHost != "" {
		req.Header.Set("X-RapidAPI-Key", c.apiKey)
		req.Header.Set("X-RapidAPI-Host", c.apiHost)
		return
	}
	req.Header.Set("X-Auth-Token", c.apiKey)
}
