// Command configgen renders per-environment configs for the contest service
// and the CLI from a single profile, so both agree on the listen address and
// the token settings.
package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

const (
	targetService = "contest-service"
	targetCLI     = "cli"
)

// Profile describes one environment.
type Profile struct {
	OutputDir string                   `yaml:"outputDir"`
	Shared    SharedSettings           `yaml:"shared"`
	Targets   map[string]TargetProfile `yaml:"targets"`
}

// SharedSettings are copied into every target that understands them.
type SharedSettings struct {
	HTTPAddr   string `yaml:"httpAddr"`
	PublicURL  string `yaml:"publicURL"`
	AuthSecret string `yaml:"authSecret"`
	AuthIssuer string `yaml:"authIssuer"`
}

// TargetProfile points at a base config and the overrides applied on top.
type TargetProfile struct {
	Base      string                 `yaml:"base"`
	Output    string                 `yaml:"output"`
	Overrides map[string]interface{} `yaml:"overrides"`
}

func main() {
	profilePath := flag.String("profile", "configs/dev-profile.yaml", "Path to environment profile")
	outputDir := flag.String("output-dir", "", "Override output directory")
	flag.Parse()

	if err := run(*profilePath, *outputDir); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(profilePath, outputDir string) error {
	profilePathAbs, err := filepath.Abs(profilePath)
	if err != nil {
		return fmt.Errorf("resolve profile path failed: %w", err)
	}
	profile, err := loadProfile(profilePathAbs)
	if err != nil {
		return fmt.Errorf("load profile failed: %w", err)
	}
	if outputDir != "" {
		profile.OutputDir = outputDir
	}
	if profile.OutputDir == "" {
		return errors.New("output directory is required")
	}
	profileDir := filepath.Dir(profilePathAbs)
	if !filepath.IsAbs(profile.OutputDir) {
		profile.OutputDir = filepath.Join(profileDir, profile.OutputDir)
	}

	names := make([]string, 0, len(profile.Targets))
	for name := range profile.Targets {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		target := profile.Targets[name]
		if target.Base == "" {
			return fmt.Errorf("target %q missing base config", name)
		}
		if !filepath.IsAbs(target.Base) {
			target.Base = filepath.Join(profileDir, target.Base)
		}
		cfg, err := render(name, target, profile.Shared)
		if err != nil {
			return fmt.Errorf("render %q failed: %w", name, err)
		}
		outputPath := target.Output
		if outputPath == "" {
			outputPath = filepath.Base(target.Base)
		}
		if !filepath.IsAbs(outputPath) {
			outputPath = filepath.Join(profile.OutputDir, outputPath)
		}
		if err := writeYAML(outputPath, cfg); err != nil {
			return fmt.Errorf("write %q failed: %w", name, err)
		}
	}
	return nil
}

func render(name string, target TargetProfile, shared SharedSettings) (map[string]interface{}, error) {
	raw, err := loadYAML(target.Base)
	if err != nil {
		return nil, err
	}
	cfg, ok := normalizeValue(raw).(map[string]interface{})
	if !ok {
		return nil, errors.New("base config is not a map")
	}
	if len(target.Overrides) > 0 {
		override, _ := normalizeValue(target.Overrides).(map[string]interface{})
		cfg = mergeMap(cfg, override)
	}
	applyShared(name, cfg, shared)
	return cfg, nil
}

// applyShared writes shared settings into the sections each target reads.
func applyShared(name string, cfg map[string]interface{}, shared SharedSettings) {
	switch name {
	case targetService:
		if shared.HTTPAddr != "" {
			child(cfg, "server")["addr"] = shared.HTTPAddr
		}
		auth := child(cfg, "auth")
		if shared.AuthSecret != "" {
			auth["secret"] = shared.AuthSecret
		}
		if shared.AuthIssuer != "" {
			auth["issuer"] = shared.AuthIssuer
		}
	case targetCLI:
		if url := cliBaseURL(shared); url != "" {
			cfg["baseURL"] = url
		}
	}
}

func cliBaseURL(shared SharedSettings) string {
	if shared.PublicURL != "" {
		return shared.PublicURL
	}
	if shared.HTTPAddr == "" {
		return ""
	}
	host, port, err := net.SplitHostPort(shared.HTTPAddr)
	if err != nil {
		return ""
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func child(cfg map[string]interface{}, key string) map[string]interface{} {
	if m, ok := cfg[key].(map[string]interface{}); ok {
		return m
	}
	m := map[string]interface{}{}
	cfg[key] = m
	return m
}

func loadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile failed: %w", err)
	}
	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile failed: %w", err)
	}
	if len(profile.Targets) == 0 {
		return nil, errors.New("profile has no targets")
	}
	return &profile, nil
}

func loadYAML(path string) (interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read yaml failed: %w", err)
	}
	var value interface{}
	if err := yaml.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("parse yaml failed: %w", err)
	}
	return value, nil
}

func writeYAML(path string, value interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir failed: %w", err)
	}
	data, err := yaml.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal yaml failed: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func normalizeValue(value interface{}) interface{} {
	switch typed := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(typed))
		for k, v := range typed {
			out[k] = normalizeValue(v)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(typed))
		for k, v := range typed {
			out[fmt.Sprint(k)] = normalizeValue(v)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, item := range typed {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return value
	}
}

// mergeMap overlays override onto base. Nested maps merge; anything else replaces.
func mergeMap(base, override map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base))
	for k, v := range base {
		merged[k] = v
	}
	for key, value := range override {
		baseChild, baseIsMap := merged[key].(map[string]interface{})
		overrideChild, overrideIsMap := value.(map[string]interface{})
		if baseIsMap && overrideIsMap {
			merged[key] = mergeMap(baseChild, overrideChild)
			continue
		}
		merged[key] = value
	}
	return merged
}
