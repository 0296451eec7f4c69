package main

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readYAML(t *testing.T, path string) map[string]interface{} {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var out map[string]interface{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return out
}

func TestRunRendersServiceAndCLI(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "contest_service.yaml"), `
server:
  addr: "0.0.0.0:8090"
  readTimeout: 5s
contest:
  maxCodeBytes: 65536
  rateLimit:
    submitMax: 10
    runMax: 30
auth:
  secret: placeholder
`)
	writeFile(t, filepath.Join(dir, "cli.yaml"), `
baseURL: "http://127.0.0.1:8090"
timeout: 90s
`)
	writeFile(t, filepath.Join(dir, "staging.yaml"), `
outputDir: out
shared:
  httpAddr: "0.0.0.0:9100"
  authSecret: staging-secret
  authIssuer: recruit
targets:
  contest-service:
    base: contest_service.yaml
    overrides:
      contest:
        rateLimit:
          submitMax: 3
  cli:
    base: cli.yaml
`)

	if err := run(filepath.Join(dir, "staging.yaml"), ""); err != nil {
		t.Fatalf("run: %v", err)
	}

	svc := readYAML(t, filepath.Join(dir, "out", "contest_service.yaml"))
	server := svc["server"].(map[string]interface{})
	if server["addr"] != "0.0.0.0:9100" || server["readTimeout"] != "5s" {
		t.Errorf("server = %v", server)
	}
	limit := svc["contest"].(map[string]interface{})["rateLimit"].(map[string]interface{})
	if limit["submitMax"] != 3 || limit["runMax"] != 30 {
		t.Errorf("rateLimit = %v", limit)
	}
	auth := svc["auth"].(map[string]interface{})
	if auth["secret"] != "staging-secret" || auth["issuer"] != "recruit" {
		t.Errorf("auth = %v", auth)
	}

	cli := readYAML(t, filepath.Join(dir, "out", "cli.yaml"))
	if cli["baseURL"] != "http://127.0.0.1:9100" || cli["timeout"] != "90s" {
		t.Errorf("cli = %v", cli)
	}
}

func TestCLIBaseURL(t *testing.T) {
	cases := []struct {
		shared SharedSettings
		want   string
	}{
		{SharedSettings{PublicURL: "https://contest.example"}, "https://contest.example"},
		{SharedSettings{HTTPAddr: ":8090"}, "http://127.0.0.1:8090"},
		{SharedSettings{HTTPAddr: "10.1.2.3:8090"}, "http://10.1.2.3:8090"},
		{SharedSettings{HTTPAddr: "bad"}, ""},
		{SharedSettings{}, ""},
	}
	for _, tc := range cases {
		if got := cliBaseURL(tc.shared); got != tc.want {
			t.Errorf("cliBaseURL(%+v) = %q, want %q", tc.shared, got, tc.want)
		}
	}
}

func TestRunRejectsMissingBase(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "p.yaml"), "outputDir: out\ntargets:\n  cli: {}\n")
	if err := run(filepath.Join(dir, "p.yaml"), ""); err == nil {
		t.Fatal("expected error for target without base")
	}
}
