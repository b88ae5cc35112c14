package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ashureev/multitool-assistant/internal/agent"
	"github.com/ashureev/multitool-assistant/internal/session"
)

// errQueryFailed makes the process exit non-zero without printing twice.
var errQueryFailed = errors.New("query failed")

func newAskCmd() *cobra.Command {
	var showSteps bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question from the command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			logger := slog.Default()
			c := buildCore(cfg, logger)
			sessions := session.NewManager(c.runnerFactory(cfg, logger, nil), session.Options{Logger: logger})

			sess, err := sessions.Create(ctx, "cli", uuid.NewString())
			if err != nil {
				return err
			}
			defer sessions.DestroyAll(context.Background())

			var observers []agent.StepObserver
			if showSteps {
				observers = append(observers, func(step agent.Step) {
					fmt.Fprintf(cmd.ErrOrStderr(), "-> %s(%q)\n   %s\n", step.Action.Tool, step.Action.Input, step.Observation)
				})
			}

			reply, result, err := sess.Submit(ctx, strings.Join(args, " "), observers...)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), reply.Content)
			if result.Status == agent.StatusError {
				cmd.SilenceErrors = true
				return errQueryFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&showSteps, "steps", "s", false, "print each tool call to stderr")
	return cmd
}
