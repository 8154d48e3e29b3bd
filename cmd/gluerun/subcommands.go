package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	core "github.com/3cpo-dev/gluerun/internal/core"
	"github.com/3cpo-dev/gluerun/internal/glue"
	"github.com/3cpo-dev/gluerun/internal/telemetry"
	"github.com/3cpo-dev/gluerun/pkg/api"
)

// clientBuilder is swapped in tests.
var clientBuilder glue.Builder = glue.NewSDKClient

// app bundles what one command invocation needs.
type app struct {
	cfg      glue.Config
	registry *glue.Registry
	store    *core.Store
	metrics  *telemetry.Metrics
	monitor  *telemetry.MonitoringServer
}

// Resolve configuration, connections, history store and monitoring
func resolveApp(cmd *cobra.Command, withStore bool) (*app, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := core.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	if !cmd.Flags().Changed("log") && cfg.LogLevel != "" {
		setLogLevel(cfg.LogLevel)
	}
	a := &app{
		cfg:      cfg,
		registry: glue.NewRegistryFromConfig(cfg, clientBuilder),
		metrics:  telemetry.NewMetrics(),
	}

	if withStore {
		storePath := cfg.Store.Path
		if v, _ := cmd.Flags().GetString("store"); v != "" {
			storePath = v
		}
		if storePath != "" && storePath != "none" {
			a.store, err = core.NewStore(storePath)
			if err != nil {
				return nil, fmt.Errorf("open history store: %w", err)
			}
		}
	}

	addr := cfg.Monitoring.Addr
	if v, _ := cmd.Flags().GetString("monitoring-addr"); v != "" {
		addr = v
	}
	if addr != "" {
		a.startMonitoring(addr)
	}
	return a, nil
}

func (a *app) startMonitoring(addr string) {
	a.monitor = telemetry.NewMonitoringServer(addr, a.metrics.Registry())
	if a.store != nil {
		store := a.store
		a.monitor.RegisterHealthCheck("store", func() telemetry.HealthCheck {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				return telemetry.HealthCheck{Status: telemetry.HealthStatusUnhealthy, Message: err.Error()}
			}
			return telemetry.HealthCheck{Status: telemetry.HealthStatusHealthy}
		})
	}
	go func() {
		if err := a.monitor.Start(); err != nil {
			log.Error().Err(err).Str("addr", addr).Msg("Monitoring server failed")
		}
	}()
}

func (a *app) close() {
	if a.monitor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.monitor.Shutdown(ctx)
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

func (a *app) runnerOptions() []core.Option {
	opts := []core.Option{core.WithMetrics(a.metrics)}
	if a.store != nil {
		opts = append(opts, core.WithRecorder(a.store))
	}
	return opts
}

func (a *app) pollInterval(cmd *cobra.Command) time.Duration {
	seconds := a.cfg.PollIntervalSeconds
	if cmd.Flags().Changed("poll-interval") {
		seconds, _ = cmd.Flags().GetInt("poll-interval")
	}
	return time.Duration(seconds) * time.Second
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "name of the Glue resource")
	cmd.Flags().String("connection", "", "connection id from the config (defaults to default_connection)")
	cmd.Flags().String("region", "", "AWS region, overrides the connection's region")
	cmd.Flags().Int("poll-interval", 60, "seconds between status polls")
	_ = cmd.MarkFlagRequired("name")
}

// parseArguments turns repeated key=value flags into a Glue argument map.
func parseArguments(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --arg %q: want key=value", p)
		}
		out[k] = v
	}
	return out, nil
}

// Run a Glue job
func newJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Start a Glue job run and wait until it stops or succeeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			connection, _ := cmd.Flags().GetString("connection")
			region, _ := cmd.Flags().GetString("region")
			rawArgs, _ := cmd.Flags().GetStringArray("arg")
			failOn, _ := cmd.Flags().GetStringSlice("fail-on")
			jobArgs, err := parseArguments(rawArgs)
			if err != nil {
				return err
			}
			a, err := resolveApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.close()

			opts := a.runnerOptions()
			if len(failOn) > 0 {
				opts = append(opts, core.WithJobFailureStates(upper(failOn)...))
			}
			runner := core.NewJobRunner(a.registry.Factory(connection, region), opts...)
			err = runner.Run(cmd.Context(), api.JobSpec{JobName: name, Arguments: jobArgs, PollInterval: a.pollInterval(cmd)})
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s succeeded\n", name)
			return nil
		},
	}
	addRunFlags(cmd)
	cmd.Flags().StringArray("arg", nil, "job argument as key=value (repeatable), e.g. --arg --day=2024-01-01")
	cmd.Flags().StringSlice("fail-on", nil, "extra job run states to treat as failure, e.g. FAILED,TIMEOUT")
	return cmd
}

// Run a Glue crawler
func newCrawlerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawler",
		Short: "Start a Glue crawler and wait until it is ready again",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			connection, _ := cmd.Flags().GetString("connection")
			region, _ := cmd.Flags().GetString("region")
			a, err := resolveApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.close()

			runner := core.NewCrawlerRunner(a.registry.Factory(connection, region), a.runnerOptions()...)
			if err := runner.Run(cmd.Context(), api.CrawlerSpec{CrawlerName: name, PollInterval: a.pollInterval(cmd)}); err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "crawler %s succeeded\n", name)
			return nil
		},
	}
	addRunFlags(cmd)
	return cmd
}

// describe adds operator-facing context to runner errors.
func describe(err error) error {
	var remote *core.RemoteJobError
	var sub *core.SubmissionError
	switch {
	case errors.As(err, &remote):
		return fmt.Errorf("remote failure: %w", err)
	case errors.As(err, &sub):
		return fmt.Errorf("submission failed: %w", err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("interrupted, the remote run keeps going: %w", err)
	}
	return err
}

func upper(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	return out
}

// List recorded runs
func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded job and crawler runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, _ := cmd.Flags().GetString("kind")
			name, _ := cmd.Flags().GetString("name")
			limit, _ := cmd.Flags().GetInt("limit")
			if kind != "" && kind != string(api.KindJob) && kind != string(api.KindCrawler) {
				return fmt.Errorf("invalid --kind %q: want job or crawler", kind)
			}
			a, err := resolveApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.close()
			if a.store == nil {
				return fmt.Errorf("run history is disabled")
			}
			runs, err := a.store.ListRuns(cmd.Context(), core.RunFilter{Kind: api.Kind(kind), Name: name, Limit: limit})
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tKIND\tNAME\tRUN ID\tSTATE\tPOLLS\tOUTCOME\tDURATION\tMESSAGE")
			for _, r := range runs {
				outcome, took := string(r.Outcome), "-"
				if r.FinishedAt == nil {
					outcome = "in progress"
				} else {
					took = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
					humanize.Time(r.StartedAt), r.Kind, r.Name, dash(r.RemoteRunID), dash(r.State), r.Polls, outcome, took, r.Message)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("kind", "", "filter by kind: job or crawler")
	cmd.Flags().String("name", "", "filter by job or crawler name")
	cmd.Flags().Int("limit", 20, "maximum number of runs to show (0 for all)")
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Inspect configured connections
func newConnectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connections",
		Short: "List configured Glue connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := core.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "default: %s\n", dash(cfg.DefaultConnection))
			for _, name := range cfg.ConnectionNames() {
				conn := cfg.Connections[name]
				region := conn.Region
				if region == "" {
					region = cfg.Region
				}
				fmt.Fprintf(out, "%s\tregion=%s\tprofile=%s\tstatic_credentials=%t\n",
					name, dash(region), dash(conn.Profile), conn.AccessKeyID != "")
			}
			return nil
		},
	}
}
