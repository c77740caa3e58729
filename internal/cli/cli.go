// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command parsing and dispatch for mindstack.
package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdLogin
	CmdSignup
	CmdLogout
	CmdWhoami
	CmdMFA
	CmdProjects
	CmdCaptures
	CmdAsk
	CmdChat
	CmdConfig
	CmdDevServer
	CmdVersion
	CmdHelp
	CmdUnknown
)

var commandNames = map[Command]string{
	CmdTUI:       "tui",
	CmdLogin:     "login",
	CmdSignup:    "signup",
	CmdLogout:    "logout",
	CmdWhoami:    "whoami",
	CmdMFA:       "mfa",
	CmdProjects:  "projects",
	CmdCaptures:  "captures",
	CmdAsk:       "ask",
	CmdChat:      "chat",
	CmdConfig:    "config",
	CmdDevServer: "dev-server",
	CmdVersion:   "version",
	CmdHelp:      "help",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown"
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet   bool
	Verbose bool
	JSON    bool
	Offline bool

	// Name is the command word as typed, kept for error messages.
	Name string

	// Command-specific
	Subcommand string
	Project    string
	Query      string
	ConfigKey  string
	ConfigVal  string

	// Flags holds the parsed command arguments.
	Flags *ArgParser
}

const usageText = `mindstack - terminal client for your MindStack knowledge base

Usage:
  mindstack                          Start the TUI (default)
  mindstack login [EMAIL]            Sign in
  mindstack signup [EMAIL]           Create an account
  mindstack logout                   Sign out and clear the offline cache
  mindstack whoami                   Show the signed-in account
  mindstack mfa enroll [NAME]        Enroll an authenticator app
  mindstack mfa verify [FACTOR] CODE Verify a TOTP code
  mindstack projects [list]          List projects
  mindstack projects create NAME     Create a project
    --description TEXT               Optional description
  mindstack captures PROJECT [list]  List a project's captures
  mindstack captures PROJECT delete ID
                                     Delete a capture
  mindstack ask PROJECT "question"   Ask one question and print the answer
    --raw                            Stream plain text instead of rendered markdown
  mindstack chat PROJECT             Interactive chat (/clear, /sources, /quit)
  mindstack config [show|path|keys]  Show the configuration, its path or its keys
  mindstack config set KEY VALUE     Change a setting, e.g. ui.theme dark
  mindstack dev-server [--addr A]    Run a local fake backend for development
  mindstack version                  Show version information
  mindstack help                     Show this help

PROJECT is a project ID or a unique, case-insensitive name prefix.

Global flags:
  --offline                          Read from the offline cache only
  --json                             JSON output for list commands
  -q, --quiet                        Less output
  --verbose                          Debug logging

Environment:
  MINDSTACK_API_URL, MINDSTACK_AUTH_URL, MINDSTACK_ANON_KEY,
  MINDSTACK_LOG_LEVEL, MINDSTACK_OFFLINE, NO_COLOR
`

// PrintUsage writes the help text.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, usageText)
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "mindstack %s\n", Version)
	fmt.Fprintf(w, "  Commit:  %s\n", GitCommit)
	fmt.Fprintf(w, "  Built:   %s\n", BuildDate)
	fmt.Fprintf(w, "  Go:      %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// =============================================================================
// PARSING
// =============================================================================

// Parse parses os.Args.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses a command line without the program name.
func ParseArgs(argv []string) (Command, Args) {
	remaining, args := parseGlobalFlags(argv)
	if len(remaining) == 0 {
		args.Flags = NewArgParser(nil)
		return CmdTUI, args
	}

	word := remaining[0]
	args.Name = word
	args.Flags = NewArgParser(remaining[1:])
	p := args.Flags

	switch strings.ToLower(word) {
	case "tui":
		return CmdTUI, args
	case "login", "signin":
		args.Query = p.Positional(0)
		return CmdLogin, args
	case "signup", "register":
		args.Query = p.Positional(0)
		return CmdSignup, args
	case "logout", "signout":
		return CmdLogout, args
	case "whoami":
		return CmdWhoami, args
	case "mfa":
		args.Subcommand = p.Subcommand()
		return CmdMFA, args
	case "projects", "project", "p":
		args.Subcommand = p.Subcommand()
		if args.Subcommand == "" {
			args.Subcommand = "list"
		}
		if args.Subcommand == "create" {
			args.Query = JoinPositionalArgs(p, 1)
		}
		return CmdProjects, args
	case "captures", "capture", "c":
		args.Project = p.Positional(0)
		args.Subcommand = p.Positional(1)
		if args.Subcommand == "" {
			args.Subcommand = "list"
		}
		args.Query = p.Positional(2)
		return CmdCaptures, args
	case "ask", "a":
		args.Project = p.Positional(0)
		args.Query = JoinPositionalArgs(p, 1)
		return CmdAsk, args
	case "chat":
		args.Project = p.Positional(0)
		return CmdChat, args
	case "config":
		args.Subcommand = p.Subcommand()
		if args.Subcommand == "" {
			args.Subcommand = "show"
		}
		args.ConfigKey = p.Positional(1)
		args.ConfigVal = JoinPositionalArgs(p, 2)
		return CmdConfig, args
	case "dev-server", "devserver":
		return CmdDevServer, args
	case "version", "-v", "--version":
		return CmdVersion, args
	case "help", "-h", "--help":
		return CmdHelp, args
	default:
		return CmdUnknown, args
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
// Flags are only recognized before the command word.
func parseGlobalFlags(argv []string) ([]string, Args) {
	var args Args
	for i, arg := range argv {
		switch arg {
		case "-q", "--quiet":
			args.Quiet = true
		case "--verbose":
			args.Verbose = true
		case "--json":
			args.JSON = true
		case "--offline":
			args.Offline = true
		default:
			return argv[i:], args
		}
	}
	return nil, args
}

// =============================================================================
// DISPATCH
// =============================================================================

// Run executes a parsed command and returns the process exit code.
func Run(cmd Command, args Args) int {
	switch cmd {
	case CmdVersion:
		PrintVersion(os.Stdout)
		return ExitSuccess
	case CmdHelp:
		PrintUsage(os.Stdout)
		return ExitSuccess
	case CmdUnknown:
		err := NewUsageError(fmt.Sprintf("unknown command %q", args.Name), "mindstack help")
		DisplayError(os.Stderr, err)
		return GetExitCode(err)
	case CmdDevServer:
		return exitWith(HandleDevServer(args))
	case CmdConfig:
		// Runs without an env so a broken config file can still be fixed.
		return exitWith(HandleConfig(os.Stdout, args))
	}

	e, err := newEnv(args)
	if err != nil {
		return exitWith(err)
	}
	defer e.Close()

	e.logger.Debug("command", "name", cmd.String(), "sub", args.Subcommand)
	return exitWith(dispatch(e, cmd, args))
}

func dispatch(e *env, cmd Command, args Args) error {
	switch cmd {
	case CmdTUI:
		return HandleTUI(e)
	case CmdLogin:
		return HandleLogin(e, args, false)
	case CmdSignup:
		return HandleLogin(e, args, true)
	case CmdLogout:
		return HandleLogout(e)
	case CmdWhoami:
		return HandleWhoami(e, args)
	case CmdMFA:
		return HandleMFA(e, args)
	case CmdProjects:
		return HandleProjects(e, args)
	case CmdCaptures:
		return HandleCaptures(e, args)
	case CmdAsk:
		return HandleAsk(e, args)
	case CmdChat:
		return HandleChat(e, args)
	}
	return NewUsageError("unknown command", "mindstack help")
}

func exitWith(err error) int {
	if err == nil {
		return ExitSuccess
	}
	DisplayError(os.Stderr, err)
	return GetExitCode(err)
}
