package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadAppConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CONTEST_JUDGE0_URL", "http://judge0.local:2358")
	t.Setenv("CONTEST_KAFKA_BROKER", "")
	path := writeFile(t, dir, "contest.yaml", `
judge0:
  baseURL: ${CONTEST_JUDGE0_URL}
kafka:
  brokers: ["${CONTEST_KAFKA_BROKER}"]
auth:
  secret: s3cret
`)

	cfg, err := loadAppConfig(path, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("loadAppConfig: %v", err)
	}
	if cfg.Judge0.BaseURL != "http://judge0.local:2358" {
		t.Errorf("baseURL = %q", cfg.Judge0.BaseURL)
	}
	if cfg.Server.Addr != defaultHTTPAddr {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.TestCases.Source != testCaseSourceDir || cfg.TestCases.Dir != "testcases" {
		t.Errorf("testcases = %+v", cfg.TestCases)
	}
	if len(cfg.Contest.Cohorts) != 2 || cfg.Contest.Cohorts[2].First != 6 {
		t.Errorf("cohorts = %+v", cfg.Contest.Cohorts)
	}
	if len(cfg.Kafka.Brokers) != 0 {
		t.Errorf("brokers = %v, want none", cfg.Kafka.Brokers)
	}
	// 20 polls of 2s, each call up to 10s, one 10s dispatch, 10s slack.
	if cfg.Server.WriteTimeout != 260*time.Second {
		t.Errorf("write timeout = %v, want 260s", cfg.Server.WriteTimeout)
	}
}

func TestLoadAppConfigEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := writeFile(t, dir, ".env", "CONTEST_TEST_SECRET=from-env-file\n")
	path := writeFile(t, dir, "contest.yaml", `
judge0:
  baseURL: http://judge0.local
  timeout: 2s
auth:
  secret: ${CONTEST_TEST_SECRET}
contest:
  poll:
    submit: { interval: 5s, maxAttempts: 30 }
`)
	t.Cleanup(func() { _ = os.Unsetenv("CONTEST_TEST_SECRET") })

	cfg, err := loadAppConfig(path, envPath)
	if err != nil {
		t.Fatalf("loadAppConfig: %v", err)
	}
	if cfg.Auth.Secret != "from-env-file" {
		t.Errorf("secret = %q", cfg.Auth.Secret)
	}
	// 30 polls of 5s plus a 2s judge call each, one 2s dispatch, 10s slack.
	if cfg.Server.WriteTimeout != 222*time.Second {
		t.Errorf("write timeout = %v, want 222s", cfg.Server.WriteTimeout)
	}
}

func TestLoadAppConfigRejects(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"missing judge0", "auth:\n  secret: s\n", "judge0.baseURL"},
		{"missing secret", "judge0:\n  baseURL: http://j\n", "auth.secret"},
		{"unknown source", "judge0:\n  baseURL: http://j\nauth:\n  secret: s\ntestcases:\n  source: ftp\n", "unsupported testcases.source"},
		{"object without bucket", "judge0:\n  baseURL: http://j\nauth:\n  secret: s\ntestcases:\n  source: object\n", "testcases.bucket"},
		{"pack without minio", "judge0:\n  baseURL: http://j\nauth:\n  secret: s\ntestcases:\n  source: pack\n  bucket: b\n", "minio.endpoint"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeFile(t, dir, "contest.yaml", tc.yaml)
			_, err := loadAppConfig(path, filepath.Join(dir, "none.env"))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
		})
	}
}
