package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/Prajjawalk/ipc/internal/config"
	"github.com/Prajjawalk/ipc/internal/container"
	"github.com/spf13/cobra"
)

// CommandContext provides common command dependencies.
type CommandContext struct {
	Container *container.Container
	Logger    *slog.Logger
	Context   context.Context
}

// CommandHandler is a function that executes with initialized dependencies.
type CommandHandler func(*CommandContext, *cobra.Command, []string) error

// withContainer loads the config, applies mutators, builds the host and
// closes it once the handler returns. A --wasm flag, when the command has
// one, replaces the native customsyscall actor.
func withContainer(handler CommandHandler, mutators ...func(*config.Config)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		for _, mutate := range mutators {
			mutate(cfg)
		}
		logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)

		var wasm []byte
		if f := cmd.Flags().Lookup("wasm"); f != nil && f.Value.String() != "" {
			wasm, err = os.ReadFile(f.Value.String())
			if err != nil {
				return fmt.Errorf("failed to read actor: %w", err)
			}
		}

		ctx := cmd.Context()
		c, err := container.New(ctx, container.Options{Config: cfg, Logger: logger, ActorWasm: wasm})
		if err != nil {
			return fmt.Errorf("failed to initialize host: %w", err)
		}
		defer func() {
			if cerr := c.Close(ctx); cerr != nil {
				logger.Warn("failed to close host", "error", cerr)
			}
		}()

		return handler(&CommandContext{Container: c, Logger: logger, Context: ctx}, cmd, args)
	}
}
