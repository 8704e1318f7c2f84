package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vietddude/harvester/internal/control"
	"github.com/vietddude/harvester/internal/core/domain"
)

var runFlags struct {
	backend    string
	jobID      string
	taskID     string
	queue      string
	args       []string
	argsJSON   string
	cache      bool
	fromCache  bool
	maxRetries int
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one job and push its items to the output queue",
	RunE:  runJob,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.backend, "backend", "b", "", "backend to run")
	f.StringVar(&runFlags.jobID, "job-id", "", "job id (generated when empty)")
	f.StringVar(&runFlags.taskID, "task-id", "", "task the job belongs to; also keys the cache")
	f.StringVarP(&runFlags.queue, "queue", "q", "", "output queue (default from config)")
	f.StringArrayVarP(&runFlags.args, "arg", "a", nil, "backend argument as key=value, repeatable")
	f.StringVar(&runFlags.argsJSON, "args", "", "backend arguments as a JSON object")
	f.BoolVar(&runFlags.cache, "cache", false, "store fetched data in the job cache")
	f.BoolVar(&runFlags.fromCache, "from-cache", false, "replay items from the job cache")
	f.IntVar(&runFlags.maxRetries, "max-retries", 0, "maximum runs (default from config)")
	_ = runCmd.MarkFlagRequired("backend")

	rootCmd.AddCommand(runCmd)
}

func runJob(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		return err
	}

	args, err := parseArgs(runFlags.argsJSON, runFlags.args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := control.NewApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), control.StopTimeout)
		defer cancel()
		if err := app.Stop(shutdownCtx); err != nil {
			slog.Error("Error during shutdown", "error", err)
		}
	}()

	if err := app.Start(ctx); err != nil {
		return err
	}

	result, err := app.Runner.Run(ctx, control.Request{
		JobID:          runFlags.jobID,
		TaskID:         runFlags.taskID,
		Backend:        runFlags.backend,
		Args:           args,
		Queue:          runFlags.queue,
		Cache:          runFlags.cache,
		FetchFromCache: runFlags.fromCache,
		MaxRetries:     runFlags.maxRetries,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// parseArgs merges a JSON object with key=value pairs; pairs win. Pair values
// that parse as JSON scalars keep their type, anything else is a string.
func parseArgs(raw string, pairs []string) (domain.Args, error) {
	args := domain.Args{}
	if raw != "" {
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&args); err != nil {
			return nil, fmt.Errorf("invalid --args: %w", err)
		}
	}

	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --arg %q: expected key=value", p)
		}
		args[key] = scalar(value)
	}
	return args, nil
}

func scalar(s string) any {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return s
	}
	switch v.(type) {
	case json.Number, bool:
		return v
	default:
		return s
	}
}
