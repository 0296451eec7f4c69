package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"recruitoj/internal/common/cache"
	"recruitoj/internal/common/storage"
	"recruitoj/internal/contest/event"
	"recruitoj/internal/contest/judge0"
	"recruitoj/internal/contest/model"
	"recruitoj/internal/contest/repository"
	"recruitoj/internal/contest/testcase"
	appErr "recruitoj/pkg/errors"
	"recruitoj/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	rateSubmitKeyPrefix = "contest:rate:submit:"
	rateRunKeyPrefix    = "contest:rate:run:"
	defaultSourcePrefix = "contest-submissions"
	defaultMaxCodeBytes = 64 * 1024
	maxErrorMessageLen  = 1024

	defaultSubmitPollInterval = 2 * time.Second
	defaultRunPollInterval    = time.Second
	defaultPollAttempts       = 20
)

// JudgeClient is the execution engine surface the service needs.
type JudgeClient interface {
	SubmitBatch(ctx context.Context, source string, languageID int, cases []model.TestCase) ([]string, error)
	PollBatch(ctx context.Context, tokens []string) ([]model.ExecutionResult, error)
	SubmitSingle(ctx context.Context, source string, languageID int, tc model.TestCase) (string, error)
	PollSingle(ctx context.Context, token string) (model.ExecutionResult, error)
}

// EventPublisher receives one event per terminal submission.
type EventPublisher interface {
	PublishJudged(ctx context.Context, evt event.SubmissionJudged) error
}

// ProblemRange is an inclusive range of problem ids.
type ProblemRange struct {
	First int `yaml:"first"`
	Last  int `yaml:"last"`
}

// Contains reports whether problemID falls inside the range.
func (r ProblemRange) Contains(problemID int) bool {
	return problemID >= r.First && problemID <= r.Last
}

// DefaultCohorts assigns problems 1-5 to first years and 6-10 to second years.
func DefaultCohorts() map[int]ProblemRange {
	return map[int]ProblemRange{
		1: {First: 1, Last: 5},
		2: {First: 6, Last: 10},
	}
}

// RateLimitConfig holds per-user throttling. Zero values disable it.
type RateLimitConfig struct {
	SubmitMax int           `yaml:"submitMax"`
	RunMax    int           `yaml:"runMax"`
	Window    time.Duration `yaml:"window"`
}

// TimeoutConfig holds timeout settings for external calls.
type TimeoutConfig struct {
	DB      time.Duration `yaml:"db"`
	Cache   time.Duration `yaml:"cache"`
	MQ      time.Duration `yaml:"mq"`
	Storage time.Duration `yaml:"storage"`
}

// PollConfig holds the polling policies for graded submissions and single runs.
type PollConfig struct {
	Submit judge0.PollPolicy `yaml:"submit"`
	Run    judge0.PollPolicy `yaml:"run"`
}

// Config holds contest service dependencies and settings. Cache, Storage and
// Events are optional; the features they back are skipped when nil.
type Config struct {
	SubmissionRepo repository.SubmissionRepository
	TestCases      testcase.Provider
	Judge          JudgeClient
	Cache          cache.Cache
	Storage        storage.ObjectStorage
	Events         EventPublisher

	Cohorts         map[int]ProblemRange
	Languages       []int
	SourceBucket    string
	SourceKeyPrefix string
	MaxCodeBytes    int
	RateLimit       RateLimitConfig
	Poll            PollConfig
	Timeouts        TimeoutConfig
}

// ContestService orchestrates grading: validation, dispatch, polling,
// reconciliation and persistence.
type ContestService struct {
	submissionRepo repository.SubmissionRepository
	testCases      testcase.Provider
	judge          JudgeClient
	cache          cache.Cache
	storage        storage.ObjectStorage
	events         EventPublisher

	cohorts         map[int]ProblemRange
	languages       map[int]struct{}
	sourceBucket    string
	sourceKeyPrefix string
	maxCodeBytes    int
	rateLimit       RateLimitConfig
	poll            PollConfig
	timeouts        TimeoutConfig
}

// NewContestService creates a new contest service.
func NewContestService(cfg Config) (*ContestService, error) {
	if cfg.SubmissionRepo == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.TestCases == nil {
		return nil, fmt.Errorf("test case provider is required")
	}
	if cfg.Judge == nil {
		return nil, fmt.Errorf("judge client is required")
	}
	if cfg.Storage != nil && cfg.SourceBucket == "" {
		return nil, fmt.Errorf("source bucket is required when storage is set")
	}
	if len(cfg.Cohorts) == 0 {
		cfg.Cohorts = DefaultCohorts()
	}
	for year, r := range cfg.Cohorts {
		if r.First <= 0 || r.Last < r.First {
			return nil, fmt.Errorf("invalid problem range %d-%d for year %d", r.First, r.Last, year)
		}
	}
	if cfg.SourceKeyPrefix == "" {
		cfg.SourceKeyPrefix = defaultSourcePrefix
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	if cfg.Poll.Submit.Interval <= 0 {
		cfg.Poll.Submit.Interval = defaultSubmitPollInterval
	}
	if cfg.Poll.Submit.MaxAttempts <= 0 {
		cfg.Poll.Submit.MaxAttempts = defaultPollAttempts
	}
	if cfg.Poll.Run.Interval <= 0 {
		cfg.Poll.Run.Interval = defaultRunPollInterval
	}
	if cfg.Poll.Run.MaxAttempts <= 0 {
		cfg.Poll.Run.MaxAttempts = defaultPollAttempts
	}

	var languages map[int]struct{}
	if len(cfg.Languages) > 0 {
		languages = make(map[int]struct{}, len(cfg.Languages))
		for _, id := range cfg.Languages {
			languages[id] = struct{}{}
		}
	}
	return &ContestService{
		submissionRepo:  cfg.SubmissionRepo,
		testCases:       cfg.TestCases,
		judge:           cfg.Judge,
		cache:           cfg.Cache,
		storage:         cfg.Storage,
		events:          cfg.Events,
		cohorts:         cfg.Cohorts,
		languages:       languages,
		sourceBucket:    cfg.SourceBucket,
		sourceKeyPrefix: strings.Trim(cfg.SourceKeyPrefix, "/"),
		maxCodeBytes:    cfg.MaxCodeBytes,
		rateLimit:       cfg.RateLimit,
		poll:            cfg.Poll,
		timeouts:        cfg.Timeouts,
	}, nil
}

// ValidateProblemForYear reports whether a user in year may attempt problemID.
func (s *ContestService) ValidateProblemForYear(year, problemID int) bool {
	r, ok := s.cohorts[year]
	return ok && r.Contains(problemID)
}

func (s *ContestService) checkProblemAccess(year, problemID int) error {
	if problemID <= 0 {
		return appErr.ValidationError("problem_id", "required")
	}
	if _, ok := s.cohorts[year]; !ok {
		return appErr.ValidationError("year", "unknown_cohort")
	}
	if !s.ValidateProblemForYear(year, problemID) {
		return appErr.Newf(appErr.ProblemAccessDenied, "problem %d is not available for year %d", problemID, year)
	}
	return nil
}

func (s *ContestService) validateCode(source string, languageID int) error {
	if strings.TrimSpace(source) == "" {
		return appErr.ValidationError("source_code", "required")
	}
	if len(source) > s.maxCodeBytes {
		return appErr.New(appErr.CodeTooLarge).WithMessagef("source code exceeds %d bytes", s.maxCodeBytes)
	}
	if languageID <= 0 {
		return appErr.ValidationError("language_id", "required")
	}
	if s.languages != nil {
		if _, ok := s.languages[languageID]; !ok {
			return appErr.New(appErr.LanguageNotSupported).WithDetail("language_id", languageID)
		}
	}
	return nil
}

func (s *ContestService) loadTestCases(ctx context.Context, problemID int) ([]model.TestCase, error) {
	cases, err := s.testCases.Load(ctx, problemID)
	if err != nil {
		return nil, err
	}
	if len(cases) == 0 {
		return nil, appErr.Newf(appErr.TestCaseNotFound, "no test cases for problem %d", problemID)
	}
	return cases, nil
}

func (s *ContestService) checkRateLimit(ctx context.Context, key string, max int) error {
	if s.cache == nil || s.rateLimit.Window <= 0 || max <= 0 {
		return nil
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()

	count, err := s.cache.Incr(ctxCache.ctx, key)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
	}
	if count == 1 {
		if err := s.cache.Expire(ctxCache.ctx, key, s.rateLimit.Window); err != nil {
			logger.Warn(ctx, "set rate limit window failed", zap.String("key", key), zap.Error(err))
		}
	} else if ttl, ttlErr := s.cache.TTL(ctxCache.ctx, key); ttlErr == nil && ttl <= 0 {
		_ = s.cache.Expire(ctxCache.ctx, key, s.rateLimit.Window)
	}
	if int(count) > max {
		return appErr.New(appErr.SubmitTooFrequently).WithMessage("submit too frequently")
	}
	return nil
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}
