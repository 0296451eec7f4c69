package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"recruitoj/internal/cli/command"
	httpclient "recruitoj/internal/cli/http"
	"recruitoj/internal/cli/state"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

const prompt = "contest> "

// Prompter asks the user for one missing value.
type Prompter func(label string) (string, error)

// Session holds REPL state.
type Session struct {
	client     *httpclient.Client
	commands   map[string]command.Command
	state      *state.State
	statePath  string
	prettyJSON bool
	out        io.Writer
}

func New(client *httpclient.Client, commands map[string]command.Command, st *state.State, statePath string, prettyJSON bool, out io.Writer) *Session {
	return &Session{
		client:     client,
		commands:   commands,
		state:      st,
		statePath:  statePath,
		prettyJSON: prettyJSON,
		out:        out,
	}
}

// Run reads commands until exit, EOF or an interrupt on an empty line.
func (s *Session) Run(ctx context.Context, historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       historyFile,
		AutoComplete:      s.completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("init readline failed: %w", err)
	}
	defer rl.Close()
	s.out = rl.Stdout()

	ask := func(label string) (string, error) {
		rl.SetPrompt(label + ": ")
		defer rl.SetPrompt(prompt)
		line, err := rl.Readline()
		if err != nil {
			return "", fmt.Errorf("read %s failed: %w", label, err)
		}
		return strings.TrimSpace(line), nil
	}

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if strings.TrimSpace(line) == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		done, err := s.Execute(ctx, line, ask)
		if err != nil {
			s.printLine("error: %v", err)
		}
		if done {
			return nil
		}
	}
}

// Execute runs one input line. done is true when the session should end.
func (s *Session) Execute(ctx context.Context, line string, ask Prompter) (done bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	tokens, err := shlex.Split(line)
	if err != nil {
		return false, fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) == 0 {
		return false, nil
	}

	switch tokens[0] {
	case "exit", "quit":
		s.printLine("bye")
		return true, nil
	case "help":
		s.printHelp()
		return false, nil
	case "set":
		return false, s.handleSet(tokens[1:])
	case "show":
		return false, s.handleShow(tokens[1:])
	case "clear":
		*s.state = state.State{}
		if err := state.Clear(s.statePath); err != nil {
			return false, err
		}
		s.printLine("saved token and language cleared")
		return false, nil
	}
	return false, s.handleCommand(ctx, tokens, ask)
}

func (s *Session) handleSet(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: set base|timeout|token|lang <value>")
	}
	value := args[1]
	switch args[0] {
	case "base":
		s.client.SetBaseURL(value)
		s.printLine("base set to %s", value)
		return nil
	case "timeout":
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
		return nil
	case "token":
		s.state.AccessToken = value
		s.printLine("token updated")
	case "lang":
		id, err := command.ParseInt(value)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid language id %q", value)
		}
		s.state.LanguageID = id
		s.printLine("default language set to %d", id)
	default:
		return fmt.Errorf("unknown set command %q", args[0])
	}
	return state.Save(s.statePath, *s.state)
}

func (s *Session) handleShow(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: show token|config")
	}
	switch args[0] {
	case "token":
		token := s.state.AccessToken
		if token == "" {
			s.printLine("token: <empty>")
			return nil
		}
		if len(token) > 12 {
			token = token[:6] + "..." + token[len(token)-4:]
		}
		s.printLine("token: %s", token)
	case "config":
		s.printLine("base: %s", s.client.BaseURL())
		s.printLine("state: %s", s.statePath)
		if s.state.LanguageID > 0 {
			s.printLine("language: %d", s.state.LanguageID)
		}
	default:
		return fmt.Errorf("usage: show token|config")
	}
	return nil
}

func (s *Session) handleCommand(ctx context.Context, tokens []string, ask Prompter) error {
	cmd, ok := s.commands[tokens[0]]
	if !ok {
		return fmt.Errorf("unknown command: %s (try help)", tokens[0])
	}
	params, err := command.ParseArgs(tokens[1:])
	if err != nil {
		return err
	}
	params.Canonicalize(cmd.Fields)
	if s.state.LanguageID > 0 && params.Get("language_id") == "" {
		for _, f := range cmd.Fields {
			if f.Name == "language_id" {
				params.Set("language_id", fmt.Sprint(s.state.LanguageID))
			}
		}
	}
	if err := promptMissing(cmd, params, ask); err != nil {
		return err
	}

	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	if cmd.Name == "submit" {
		s.printLine("grading, this can take a while...")
	}
	resp, err := s.client.Do(ctx, req.Method, req.Path, req.Body)
	if err != nil {
		return err
	}
	return s.render(cmd.Name, resp)
}

func promptMissing(cmd command.Command, params command.Params, ask Prompter) error {
	for _, field := range cmd.Fields {
		if !field.Required || params.Get(field.Name) != "" {
			continue
		}
		if ask == nil {
			return fmt.Errorf("%s is required", field.Name)
		}
		value, err := ask(field.Prompt)
		if err != nil {
			return err
		}
		params.Set(field.Name, value)
	}
	if hasSourceField(cmd) && params.Get("source_code") == "" && params.Get("source_file") == "" && ask != nil {
		value, err := ask("source_file")
		if err != nil {
			return err
		}
		params.Set("source_file", value)
	}
	return nil
}

func hasSourceField(cmd command.Command) bool {
	for _, f := range cmd.Fields {
		if f.Type == command.FieldFile {
			return true
		}
	}
	return false
}

func (s *Session) completer() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(s.commands)+4)
	for _, name := range command.Names(s.commands) {
		items = append(items, readline.PcItem(name))
	}
	items = append(items,
		readline.PcItem("set",
			readline.PcItem("base"),
			readline.PcItem("timeout"),
			readline.PcItem("token"),
			readline.PcItem("lang"),
		),
		readline.PcItem("show",
			readline.PcItem("token"),
			readline.PcItem("config"),
		),
		readline.PcItem("clear"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
	return readline.NewPrefixCompleter(items...)
}

func (s *Session) printHelp() {
	s.printLine("usage: <command> key=value ...")
	for _, name := range command.Names(s.commands) {
		s.printLine("  %s", s.commands[name].Usage)
	}
	s.printLine("system: help | exit | clear | set base|timeout|token|lang <value> | show token|config")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}
