// Command train runs a training job described by an HCL file. Re-running
// the same job resumes from the last checkpoint in its storage directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mitchellh/go-wordwrap"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tsawler/go-train/checkpoints"
	"github.com/tsawler/go-train/config"
	"github.com/tsawler/go-train/storage"
	"github.com/tsawler/go-train/train"
	"github.com/tsawler/go-train/training"
)

// ExitError carries the process exit code for argument errors
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(os.Stdout, os.Args[1:]); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

const description = `Trains a classifier on a generated dataset as described by an HCL job ` +
	`file. Checkpoints, a metrics log and training curves are written to the ` +
	`storage directory named in the file. Running the same job again resumes ` +
	`after the last stored epoch, so raising "epochs" continues a finished run. ` +
	`Use -dry-run to train in memory without touching the storage directory.`

type options struct {
	configPath  string
	logLevel    string
	logFormat   string
	dryRun      bool
	metricsAddr string
}

func parseArgs(args []string, out io.Writer) (*options, bool, error) {
	flagSet := flag.NewFlagSet("train", flag.ContinueOnError)
	flagSet.SetOutput(out)
	flagSet.Usage = func() {
		fmt.Fprintf(out, "\nUsage:\n  train [options] -config JOB.hcl\n\n%s\n\nOptions:\n", wordwrap.WrapString(description, 76))
		flagSet.PrintDefaults()
	}

	opts := &options{}
	flagSet.StringVar(&opts.configPath, "config", "", "Path to the HCL job file.")
	flagSet.StringVar(&opts.logLevel, "log-level", "info", "Logging level. Options: 'debug', 'info', 'warn', 'error'.")
	flagSet.StringVar(&opts.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	flagSet.BoolVar(&opts.dryRun, "dry-run", false, "Keep checkpoints in memory instead of the storage directory.")
	flagSet.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while training, e.g. ':9090'.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if opts.configPath == "" && flagSet.NArg() > 0 {
		opts.configPath = flagSet.Arg(0)
	}
	if opts.configPath == "" {
		flagSet.Usage()
		return nil, true, nil
	}

	opts.logFormat = strings.ToLower(opts.logFormat)
	if opts.logFormat != "text" && opts.logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	opts.logLevel = strings.ToLower(opts.logLevel)
	switch opts.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	return opts, false, nil
}

func newLogger(levelStr, formatStr string, w io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if formatStr == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func run(out io.Writer, args []string) error {
	opts, shouldExit, err := parseArgs(args, out)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}
	return runJob(out, os.Stderr, opts)
}

func runJob(out, logOut io.Writer, opts *options) error {
	logger := newLogger(opts.logLevel, opts.logFormat, logOut)

	job, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.dryRun {
		job.UseMemoryStorage()
		logger.Info("Dry run, checkpoints are kept in memory")
	}

	model, err := job.BuildModel()
	if err != nil {
		return err
	}
	source, err := job.BuildSource()
	if err != nil {
		return err
	}
	optimizerFn, err := job.OptimizerFactory()
	if err != nil {
		return err
	}
	schedulerFn, err := job.SchedulerFactory()
	if err != nil {
		return err
	}
	var extra []training.Callback
	if opts.metricsAddr != "" {
		ln, err := net.Listen("tcp", opts.metricsAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on metrics address %q: %w", opts.metricsAddr, err)
		}
		exporter, stop, err := serveMetrics(ln, model.Name(), logger)
		if err != nil {
			ln.Close()
			return err
		}
		defer stop()
		extra = append(extra, exporter)
	}
	store, err := job.BuildStorage(logger, extra...)
	if err != nil {
		return err
	}

	cmdOpts := []train.Option{
		train.WithCheckpoint(job.CheckpointConfig()),
		train.WithCallbacks(training.NewProgressCallback(out, job.Epochs)),
		train.WithOutput(out),
		train.WithLogger(logger),
	}
	if schedulerFn != nil {
		cmdOpts = append(cmdOpts, train.WithScheduler(schedulerFn))
	}
	cmd, err := train.New(job.ModelConfig(), model, source, optimizerFn, store, cmdOpts...)
	if err != nil {
		return err
	}

	history, err := cmd.Run()
	if err != nil {
		return err
	}
	printHistory(out, history, job.CheckpointConfig())
	return nil
}

// serveMetrics exposes a fresh registry on ln and returns the exporter
// feeding it along with a func that stops the server
func serveMetrics(ln net.Listener, model string, logger *slog.Logger) (*storage.PrometheusExporter, func(), error) {
	reg := prometheus.NewRegistry()
	exporter, err := storage.NewPrometheusExporter(reg, model)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Metrics server stopped", "error", err)
		}
	}()
	logger.Info("Serving metrics", "addr", ln.Addr().String())

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("Metrics server shutdown failed", "error", err)
		}
	}
	return exporter, stop, nil
}

// printHistory writes one row per epoch with every recorded metric, and
// marks the row that is best by the checkpoint metric
func printHistory(out io.Writer, history *training.History, ckpt checkpoints.Config) {
	if history.Len() == 0 {
		fmt.Fprintln(out, "No epochs were run.")
		return
	}
	last, _ := history.Last()
	names := last.Names()

	var best *training.EpochResult
	if mode, err := training.ParseMode(ckpt.MetricMode); err == nil {
		best, _ = history.Best(ckpt.Metric, mode)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := append([]string{"epoch", "lr"}, names...)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, r := range history.Results() {
		row := []string{fmt.Sprintf("%d", r.Epoch), fmt.Sprintf("%.6f", r.LearningRate)}
		for _, name := range names {
			if v, ok := r.Get(name); ok {
				row = append(row, fmt.Sprintf("%.4f", v))
			} else {
				row = append(row, "-")
			}
		}
		line := strings.Join(row, "\t")
		if r == best {
			line += "\t*"
		}
		fmt.Fprintln(tw, line)
	}
	tw.Flush()
}
