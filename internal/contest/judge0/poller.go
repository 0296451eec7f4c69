package judge0

import (
	"context"
	"time"

	"recruitoj/internal/contest/model"
	appErr "recruitoj/pkg/errors"
	"recruitoj/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultPollInterval    = time.Second
	defaultPollMaxAttempts = 20
)

// PollPolicy bounds one polling loop.
type PollPolicy struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"maxAttempts"`
}

func (p PollPolicy) normalized() PollPolicy {
	if p.Interval <= 0 {
		p.Interval = defaultPollInterval
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultPollMaxAttempts
	}
	return p
}

type pollPhase int

const (
	phaseWaiting pollPhase = iota
	phaseFinished
	phaseExhausted
)

// pollState is the loop's state machine. Each tick records one poll and moves
// to finished or exhausted, or stays waiting.
type pollState struct {
	attempt     int
	maxAttempts int
	phase       pollPhase
}

func (s *pollState) tick(final bool) {
	s.attempt++
	switch {
	case final:
		s.phase = phaseFinished
	case s.attempt >= s.maxAttempts:
		s.phase = phaseExhausted
	}
}

// Poll sleeps for the policy interval, then calls fetch, until done reports
// true or the attempts run out. Fetch errors end the loop immediately.
func Poll[T any](ctx context.Context, policy PollPolicy, fetch func(context.Context) (T, error), done func(T) bool) (T, error) {
	policy = policy.normalized()
	state := pollState{maxAttempts: policy.MaxAttempts}
	timer := time.NewTimer(policy.Interval)
	defer timer.Stop()

	var last T
	for state.phase == phaseWaiting {
		select {
		case <-ctx.Done():
			return last, appErr.Wrapf(ctx.Err(), appErr.JudgeTimeout, "polling stopped after %d attempts", state.attempt)
		case <-timer.C:
		}

		value, err := fetch(ctx)
		if err != nil {
			return last, err
		}
		last = value
		state.tick(done(value))
		if state.phase == phaseWaiting {
			logger.Debug(ctx, "judge results pending", zap.Int("attempt", state.attempt), zap.Int("max_attempts", state.maxAttempts))
			timer.Reset(policy.Interval)
		}
	}
	if state.phase == phaseExhausted {
		return last, appErr.Newf(appErr.JudgeTimeout, "judge did not finish after %d attempts", state.attempt)
	}
	return last, nil
}

// AllFinal reports whether every result has left the queue.
func AllFinal(results []model.ExecutionResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if !r.IsFinal() {
			return false
		}
	}
	return true
}

// Correlate orders results to match tokens. When the engine omits tokens the
// position is trusted instead.
func Correlate(tokens []string, results []model.ExecutionResult) ([]model.ExecutionResult, error) {
	if len(results) != len(tokens) {
		return nil, appErr.Newf(appErr.JudgeResultInvalid, "engine returned %d results for %d jobs", len(results), len(tokens))
	}
	byToken := make(map[string]model.ExecutionResult, len(results))
	for _, r := range results {
		if r.Token == "" {
			return results, nil
		}
		byToken[r.Token] = r
	}
	ordered := make([]model.ExecutionResult, len(tokens))
	for i, token := range tokens {
		r, ok := byToken[token]
		if !ok {
			return nil, appErr.Newf(appErr.JudgeResultInvalid, "no result for job %d", i).WithDetail("token", token)
		}
		ordered[i] = r
	}
	return ordered, nil
}
