package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"recruitoj/internal/common/cache"
	"recruitoj/internal/common/db"
	commonmw "recruitoj/internal/common/http/middleware"
	"recruitoj/internal/common/mq"
	"recruitoj/internal/common/storage"
	"recruitoj/internal/contest/judge0"
	"recruitoj/internal/contest/service"
	"recruitoj/pkg/utils/logger"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8090"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 90 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	testCaseSourceDir    = "dir"
	testCaseSourceObject = "object"
	testCaseSourcePack   = "pack"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`

	CORS        commonmw.CORSConfig        `yaml:"cors"`
	IPRateLimit commonmw.IPRateLimitConfig `yaml:"ipRateLimit"`
}

// EventsConfig routes verdict events. An empty topic disables publishing.
type EventsConfig struct {
	Topic string `yaml:"topic"`
}

// TestCaseConfig selects where test case files are read from: a local
// directory, loose objects in a bucket, or one zstd tar pack per problem.
type TestCaseConfig struct {
	Source   string        `yaml:"source"`
	Dir      string        `yaml:"dir"`
	Bucket   string        `yaml:"bucket"`
	Prefix   string        `yaml:"prefix"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// ContestConfig holds grading settings.
type ContestConfig struct {
	Cohorts            map[int]service.ProblemRange `yaml:"cohorts"`
	Languages          []int                        `yaml:"languages"`
	MaxCodeBytes       int                          `yaml:"maxCodeBytes"`
	SourceBucket       string                       `yaml:"sourceBucket"`
	SourceKeyPrefix    string                       `yaml:"sourceKeyPrefix"`
	SubmissionCacheTTL time.Duration                `yaml:"submissionCacheTTL"`
	SubmissionEmptyTTL time.Duration                `yaml:"submissionEmptyTTL"`
	RateLimit          service.RateLimitConfig      `yaml:"rateLimit"`
	Poll               service.PollConfig           `yaml:"poll"`
	Timeouts           service.TimeoutConfig        `yaml:"timeouts"`
}

// AppConfig holds contest-service configuration.
type AppConfig struct {
	Server    ServerConfig        `yaml:"server"`
	Logger    logger.Config       `yaml:"logger"`
	Database  db.Config           `yaml:"database"`
	Redis     cache.RedisConfig   `yaml:"redis"`
	MinIO     storage.MinIOConfig `yaml:"minio"`
	Kafka     mq.KafkaConfig      `yaml:"kafka"`
	Events    EventsConfig        `yaml:"events"`
	Judge0    judge0.Config       `yaml:"judge0"`
	TestCases TestCaseConfig      `yaml:"testcases"`
	Contest   ContestConfig       `yaml:"contest"`
	Auth      commonmw.AuthConfig `yaml:"auth"`
}

// loadYAML reads path and expands ${VAR} references before decoding.
func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

// loadEnvFile loads .env into the process environment. A missing file is not an error.
func loadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path, envPath string) (*AppConfig, error) {
	if err := loadEnvFile(envPath); err != nil {
		return nil, err
	}
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *AppConfig) applyDefaults() error {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	// Unset ${VAR} references leave empty entries behind.
	brokers := cfg.Kafka.Brokers[:0]
	for _, b := range cfg.Kafka.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	cfg.Kafka.Brokers = brokers

	if cfg.Judge0.BaseURL == "" {
		return fmt.Errorf("judge0.baseURL is required")
	}
	if cfg.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required")
	}

	cfg.TestCases.Source = strings.ToLower(strings.TrimSpace(cfg.TestCases.Source))
	switch cfg.TestCases.Source {
	case "", testCaseSourceDir:
		cfg.TestCases.Source = testCaseSourceDir
		if cfg.TestCases.Dir == "" {
			cfg.TestCases.Dir = "testcases"
		}
	case testCaseSourceObject, testCaseSourcePack:
		if cfg.TestCases.Bucket == "" {
			cfg.TestCases.Bucket = cfg.MinIO.Bucket
		}
		if cfg.TestCases.Bucket == "" {
			return fmt.Errorf("testcases.bucket is required for %s source", cfg.TestCases.Source)
		}
		if cfg.MinIO.Endpoint == "" {
			return fmt.Errorf("minio.endpoint is required for %s source", cfg.TestCases.Source)
		}
	default:
		return fmt.Errorf("unsupported testcases.source %q", cfg.TestCases.Source)
	}
	if cfg.TestCases.CacheTTL == 0 {
		cfg.TestCases.CacheTTL = 10 * time.Minute
	}

	if len(cfg.Contest.Cohorts) == 0 {
		cfg.Contest.Cohorts = service.DefaultCohorts()
	}
	if cfg.Contest.MaxCodeBytes == 0 {
		cfg.Contest.MaxCodeBytes = 64 * 1024
	}
	if cfg.Contest.SourceBucket == "" {
		cfg.Contest.SourceBucket = cfg.MinIO.Bucket
	}
	if cfg.Contest.SubmissionCacheTTL == 0 {
		cfg.Contest.SubmissionCacheTTL = 2 * time.Minute
	}
	if cfg.Contest.SubmissionEmptyTTL == 0 {
		cfg.Contest.SubmissionEmptyTTL = 30 * time.Second
	}
	if cfg.Contest.RateLimit.Window == 0 {
		cfg.Contest.RateLimit.Window = time.Minute
	}
	if cfg.Contest.RateLimit.SubmitMax == 0 {
		cfg.Contest.RateLimit.SubmitMax = 10
	}
	if cfg.Contest.RateLimit.RunMax == 0 {
		cfg.Contest.RateLimit.RunMax = 30
	}
	if cfg.Contest.Timeouts.DB == 0 {
		cfg.Contest.Timeouts.DB = 3 * time.Second
	}
	if cfg.Contest.Timeouts.Cache == 0 {
		cfg.Contest.Timeouts.Cache = 1 * time.Second
	}
	if cfg.Contest.Timeouts.MQ == 0 {
		cfg.Contest.Timeouts.MQ = 3 * time.Second
	}
	if cfg.Contest.Timeouts.Storage == 0 {
		cfg.Contest.Timeouts.Storage = 5 * time.Second
	}

	// The response must outlive dispatch plus every poll, each call taking up to the judge timeout.
	if budget := pollBudget(cfg.Contest.Poll.Submit, cfg.Judge0.Timeout) + 10*time.Second; cfg.Server.WriteTimeout < budget {
		cfg.Server.WriteTimeout = budget
	}
	return nil
}

func pollBudget(p judge0.PollPolicy, callTimeout time.Duration) time.Duration {
	interval, attempts := p.Interval, p.MaxAttempts
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if attempts <= 0 {
		attempts = 20
	}
	if callTimeout <= 0 {
		callTimeout = judge0.DefaultTimeout
	}
	return time.Duration(attempts)*(interval+callTimeout) + callTimeout
}
