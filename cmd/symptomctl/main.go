package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Skufu/symptomcheck/internal/classifier"
	"github.com/Skufu/symptomcheck/internal/logging"
)

type options struct {
	modelDir  string
	store     string
	logLevel  string
	logFormat string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "symptomctl",
		Short: "Train and query the symptom classifier",
		Long: `symptomctl trains the random forest disease classifier, persists it to the
model store and runs predictions against it without starting the API server.`,
		SilenceUsage: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logging.Init(logging.Config{Level: opts.logLevel, Format: opts.logFormat})
		},
	}

	cmd.PersistentFlags().StringVar(&opts.modelDir, "model-dir", envOr("MODEL_DIR", "models"), "directory holding the persisted model")
	cmd.PersistentFlags().StringVar(&opts.store, "store", envOr("MODEL_STORE", classifier.StoreFile), "model store (file, badger)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "console", "log format (console, json)")

	cmd.AddCommand(trainCmd(opts))
	cmd.AddCommand(predictCmd(opts))
	cmd.AddCommand(infoCmd(opts))
	cmd.AddCommand(statsCmd(opts))
	cmd.AddCommand(symptomsCmd(opts))

	return cmd
}

// withPipeline opens the configured store, hands a pipeline to fn and closes
// the store afterwards. When load is set the persisted model is restored
// first, training one if none exists.
func withPipeline(ctx context.Context, opts *options, load bool, fn func(*classifier.Pipeline) error, popts ...classifier.Option) (err error) {
	store, err := classifier.OpenStore(opts.store, opts.modelDir)
	if err != nil {
		return fmt.Errorf("open model store: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	p := classifier.New(store, popts...)
	if load {
		if err := p.Load(ctx); err != nil {
			return fmt.Errorf("load model: %w", err)
		}
	}
	return fn(p)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
