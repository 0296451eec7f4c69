package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"recruitoj/internal/cli/command"
	"recruitoj/internal/cli/config"
	httpclient "recruitoj/internal/cli/http"
	"recruitoj/internal/cli/repl"
	"recruitoj/internal/cli/state"
)

const defaultConfigPath = "configs/cli.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 90s)")
	token := flag.String("token", "", "Override access token")
	statePath := flag.String("state", "", "Override state path")
	pretty := flag.Bool("pretty", false, "Print raw JSON data instead of summaries")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *statePath != "" {
		cfg.StatePath = *statePath
	}
	if *pretty {
		trueValue := true
		cfg.PrettyJSON = &trueValue
	}

	st, err := state.Load(cfg.StatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load state failed: %v\n", err)
		os.Exit(1)
	}
	if *token != "" {
		st.AccessToken = *token
	}

	client := httpclient.New(cfg.BaseURL, cfg.Timeout, func() string {
		return st.AccessToken
	})

	session := repl.New(client, command.Registry(), &st, cfg.StatePath, *cfg.PrettyJSON, os.Stdout)
	if err := session.Run(context.Background(), cfg.HistoryFile); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
