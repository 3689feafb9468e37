package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"salesdw/internal/config"
	"salesdw/internal/dw"
	"salesdw/internal/metrics"
	"salesdw/internal/metrics/datadog"
	"salesdw/internal/metrics/prompush"
	"salesdw/internal/report"
)

const defaultConfigPath = "configs/pipelines/sales.yaml"

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "salesdw",
		Short:         "Incrementally load the sales star schema",
		Long:          "salesdw reads sales, products, customers, stores and employees from a transactional store and appends what is new to a star-schema warehouse.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "pipeline config path (yaml or json)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logs")

	root.AddCommand(newRunCmd(opts), newValidateCmd(opts))
	return root
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the pipeline config and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := loadPipeline(opts.configPath, cmd.ErrOrStderr()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: %s\n", opts.configPath)
			return nil
		},
	}
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one incremental load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadPipeline(opts.configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if format != "" {
				p.Report.Format = format
			}
			f, err := report.ParseFormat(p.Report.Format)
			if err != nil {
				return usageErr("%w", err)
			}
			rc, err := p.ToRunConfig()
			if err != nil {
				return usageErr("%w", err)
			}

			runID := uuid.NewString()
			log := newLogger(cmd.ErrOrStderr(), opts.verbose).With("job", p.Job)

			m, closeMetrics, err := openMetrics(cmd.Context(), p)
			if err != nil {
				return usageErr("%w", err)
			}
			defer func() {
				if err := closeMetrics(); err != nil {
					log.Warn("metrics flush failed", "backend", p.Metrics.Backend, "err", err)
				}
			}()

			runner := dw.NewDefaultRunner(log, m)
			runner.RunID = runID

			log.Debug("pipeline",
				"source", rc.Source.Kind, "warehouse", rc.Warehouse.Kind,
				"policy", rc.Policy, "enforce_references", rc.EnforceReferences)

			start := time.Now()
			rep, runErr := runner.Run(cmd.Context(), rc)
			if rep == nil {
				return failedErr(runErr)
			}
			if err := report.Render(cmd.OutOrStdout(), rep, f); err != nil {
				return failedErr(fmt.Errorf("render report: %w", err))
			}
			log.Debug("completed", "elapsed", time.Since(start).Truncate(time.Millisecond))
			if runErr != nil {
				return failedErr(runErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "report format: table, json or yaml (overrides report.format)")
	return cmd
}

// loadPipeline reads and validates the config. Issues go to w; any error
// severity yields a usage error.
func loadPipeline(path string, w io.Writer) (config.Pipeline, error) {
	p, err := config.Load(path)
	if err != nil {
		return config.Pipeline{}, usageErr("%w", err)
	}
	issues := config.Validate(p)
	for _, iss := range issues {
		fmt.Fprintln(w, iss)
	}
	if config.HasErrors(issues) {
		return config.Pipeline{}, usageErr("configuration is invalid: %s", path)
	}
	return p, nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    color.NoColor,
	}))
}

// openMetrics builds the configured backend. The returned func flushes it
// and must be called once the run is over. The backend outlives ctx
// cancellation so an interrupted run still pushes its final metrics.
func openMetrics(ctx context.Context, p config.Pipeline) (metrics.Backend, func() error, error) {
	ctx = context.WithoutCancel(ctx)
	switch strings.ToLower(p.Metrics.Backend) {
	case config.MetricsDatadog:
		b := datadog.NewBackend(ctx, datadog.Options{
			JobName:    p.Job,
			Tags:       p.Metrics.Tags,
			FlushEvery: p.Metrics.FlushInterval,
		})
		return b, b.Close, nil

	case config.MetricsPushgateway:
		b, err := prompush.New(ctx, prompush.Options{
			URL:      p.Metrics.PushgatewayURL,
			Job:      p.Job,
			Grouping: groupingFromTags(p.Metrics.Tags),
		})
		if err != nil {
			return nil, nil, err
		}
		return b, b.Flush, nil

	case "", config.MetricsNone:
		return metrics.Nop{}, func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("metrics: unknown backend %q", p.Metrics.Backend)
}

// groupingFromTags turns "key:value" tags into Pushgateway grouping labels.
// Tags without a value are ignored.
func groupingFromTags(tags []string) map[string]string {
	out := map[string]string{}
	for _, tag := range tags {
		k, v, ok := strings.Cut(tag, ":")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}
