package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/zulandar/bankline/internal/bridge"
)

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the language worker outside the server",
	}

	cmd.AddCommand(newWorkerCallCmd())
	return cmd
}

func newWorkerCallCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "call <function> [args...]",
		Short: "Start the worker, call one function and print the result",
		Long: "Starts the configured worker, sends a single call and prints the JSON result. " +
			"Arguments that parse as JSON are sent as-is; anything else is sent as a string.",
		Example: `  bankline worker call get_supported_languages
  bankline worker call simple_gemini_chat "what is my balance" s-1 en`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkerCall(cmd, args[0], args[1:], timeout)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall time limit including worker startup")
	return cmd
}

func runWorkerCall(cmd *cobra.Command, fn string, rawArgs []string, timeout time.Duration) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	dispatcher := bridge.NewDispatcher(bridge.DispatcherOpts{CallTimeout: cfg.Worker.CallTimeout, Logger: log})
	sup, err := bridge.NewSupervisor(bridge.SupervisorOpts{
		Spawner: &bridge.ExecSpawner{
			Command: cfg.Worker.Command,
			Args:    cfg.Worker.Args,
			Dir:     cfg.Worker.Dir,
			Env:     cfg.Worker.Env,
		},
		Dispatcher:  dispatcher,
		Logger:      log.Level(zerolog.WarnLevel),
		StopTimeout: cfg.Worker.StopTimeout,
	})
	if err != nil {
		return err
	}
	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer sup.Stop(context.Background())

	raw, err := bridge.NewClient(dispatcher).Raw(ctx, fn, parseCallArgs(rawArgs)...)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(raw)
	}
	fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
	return nil
}

// parseCallArgs decodes each argument as JSON, falling back to the literal
// string.
func parseCallArgs(args []string) []any {
	out := make([]any, 0, len(args))
	for _, a := range args {
		var v any
		if err := json.Unmarshal([]byte(a), &v); err == nil {
			out = append(out, v)
			continue
		}
		out = append(out, a)
	}
	return out
}
