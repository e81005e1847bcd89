package main

import (
	"log/slog"
	"os"

	"github.com/moffa90/go-dfuse/cmd/dfuse-tool/commands"
)

func main() {
	// Text logs on stderr keep stdout for command output; the root command
	// replaces this logger once --log-level is known
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	commands.Execute()
}
