// Sentinel - Fraud decisions with a model-health check.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

// Command sentinelctl runs the offline Sentinel jobs: feature engineering,
// dataset splitting, threshold optimization, drift monitoring and replay
// against a running server.
//
// Usage:
//
//	sentinelctl COMMAND [ARGS]
//	sentinelctl help COMMAND
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	arg "github.com/alexflint/go-arg"

	"github.com/opensource-finance/sentinel/internal/config"
)

// command is an offline job selectable from the command line.
type command struct {
	Name     string
	Synopsis string
	Args     handler
}

type handler interface {
	Handle() error
}

// validator is implemented by arguments that need checks beyond parsing.
type validator interface {
	Validate() error
}

func main() {
	level := slog.LevelInfo
	if cfg, err := config.Load(); err == nil {
		level = config.LogLevel(cfg.Logging.Level)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	dispatch(os.Args[1:],
		command{"transform", "derive hour, is_night and amount_log for a raw CSV", newTransformArgs()},
		command{"split", "dedupe and split a raw CSV in time order", newSplitArgs()},
		command{"optimize", "find the cost-minimizing threshold on a labeled CSV", newOptimizeArgs()},
		command{"drift", "compare feature distributions of two CSVs", newDriftArgs()},
		command{"replay", "send a labeled CSV to a running server and report cost", newReplayArgs()},
	)
}

func prog() string {
	if len(os.Args) > 0 {
		return filepath.Base(os.Args[0])
	}
	return "sentinelctl"
}

func writeUsage(w io.Writer, cmds ...command) {
	fmt.Fprintf(w, "Usage: %s COMMAND [ARGS]\n", prog())
	fmt.Fprintf(w, "Command can be one of:\n")
	for _, cmd := range cmds {
		fmt.Fprintf(w, "  %-20s %s\n", cmd.Name, cmd.Synopsis)
	}
	fmt.Fprintf(w, "  %-20s %s\n", "help", "display this help and exit")
	fmt.Fprintf(w, "  %-20s %s\n", "help COMMAND", "display help for command and exit")
}

// dispatch parses args for the selected command and runs it.
func dispatch(args []string, cmds ...command) {
	if len(args) < 1 {
		writeUsage(os.Stdout, cmds...)
		fmt.Println("\nError: no command provided")
		os.Exit(1)
	}

	var help bool
	action := args[0]
	if action == "help" {
		if len(args) < 2 {
			writeUsage(os.Stdout, cmds...)
			os.Exit(0)
		}
		help = true
		action = args[1]
	}

	var cmd *command
	for i := range cmds {
		if cmds[i].Name == action {
			cmd = &cmds[i]
			break
		}
	}
	if cmd == nil {
		writeUsage(os.Stdout, cmds...)
		fmt.Println("\nError: unknown command", action)
		os.Exit(1)
	}

	parser, err := arg.NewParser(arg.Config{Program: prog() + " " + action}, cmd.Args)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if help {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}

	if err := parser.Parse(args[1:]); err != nil {
		if err == arg.ErrHelp {
			parser.WriteHelp(os.Stdout)
			os.Exit(0)
		}
		parser.Fail(err.Error())
	}

	if v, ok := cmd.Args.(validator); ok {
		if err := v.Validate(); err != nil {
			parser.Fail(err.Error())
		}
	}

	if err := cmd.Args.Handle(); err != nil {
		slog.Error("command failed", "command", action, "error", err)
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
