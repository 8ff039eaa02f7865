package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	gosync "sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/driftsync/drift/internal/chunk"
	"github.com/driftsync/drift/internal/config"
	"github.com/driftsync/drift/internal/event"
	"github.com/driftsync/drift/internal/fetch"
	"github.com/driftsync/drift/internal/filter"
	"github.com/driftsync/drift/internal/journal"
	"github.com/driftsync/drift/internal/metrics"
	"github.com/driftsync/drift/internal/remote/s3fs"
	"github.com/driftsync/drift/internal/stats"
	"github.com/driftsync/drift/internal/sync"
	"github.com/driftsync/drift/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// filterFlag is a custom pflag.Value that preserves CLI ordering of
// --exclude and --include rules by appending to a shared filter.Chain.
type filterFlag struct {
	chain   *filter.Chain
	include bool
}

func (*filterFlag) String() string { return "" }
func (*filterFlag) Type() string   { return "string" }

func (f *filterFlag) Set(val string) error {
	if f.include {
		return f.chain.AddInclude(val)
	}
	return f.chain.AddExclude(val)
}

//nolint:gocyclo,revive // cyclomatic,cognitive-complexity: main CLI entry point orchestrates all flag parsing and mode selection
func run() int {
	var (
		workers      int
		retries      int
		chunkSizeStr string
		verbose      bool
		quiet        bool
		dryRun       bool
		noProgress   bool
		showVersion  bool
		noJournal    bool
		minSizeStr   string
		maxSizeStr   string
		logFile      string
		metricsAddr  string
		region       string
		endpoint     string
		pathStyle    bool
	)

	chain := filter.NewChain()

	rootCmd := &cobra.Command{
		Use:   "drift [flags] s3://<bucket>/<path> <local-dir>",
		Short: "Differential, resumable sync from an object store to a local directory",
		Args: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				return nil
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Fprintf(os.Stdout, "drift %s\n", version)
				return nil
			}

			rawRemote := args[0]
			localDir := args[1]

			bucket, remotePath, err := splitRemote(rawRemote)
			if err != nil {
				return err
			}

			// Load optional config file.
			cfg, err := config.Load()
			if err != nil {
				slog.Warn("failed to load config", "error", err)
			}
			applyConfigDefaults(cmd, cfg,
				&workers, &retries, &chunkSizeStr, &quiet, &logFile, &metricsAddr,
				&region, &endpoint, &pathStyle)

			chunkSize, err := filter.ParseSize(chunkSizeStr)
			if err != nil || chunkSize <= 0 {
				return fmt.Errorf("invalid --chunk-size %q", chunkSizeStr)
			}

			// Configure logging.
			logLevel := slog.LevelWarn
			if verbose {
				logLevel = slog.LevelDebug
			} else if !quiet {
				logLevel = slog.LevelInfo
			}
			textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: logLevel,
			})
			var logHandler slog.Handler = textHandler
			if logFile != "" {
				lf, lfErr := os.Create(logFile)
				if lfErr != nil {
					return fmt.Errorf("open log file: %w", lfErr)
				}
				defer lf.Close()
				jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
					Level: slog.LevelDebug,
				})
				logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
			}
			slog.SetDefault(slog.New(logHandler))

			if dryRun {
				slog.Info("dry run mode")
			}

			// Parse size filters.
			if minSizeStr != "" {
				n, err := filter.ParseSize(minSizeStr)
				if err != nil {
					return fmt.Errorf("invalid --min-size: %w", err)
				}
				chain.SetMinSize(n)
			}
			if maxSizeStr != "" {
				n, err := filter.ParseSize(maxSizeStr)
				if err != nil {
					return fmt.Errorf("invalid --max-size: %w", err)
				}
				chain.SetMaxSize(n)
			}

			metrics.Serve(metricsAddr)

			// Set up context with signal handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := s3fs.New(ctx, s3fs.Options{
				Bucket:    bucket,
				Region:    region,
				Endpoint:  endpoint,
				PathStyle: pathStyle,
			})
			if err != nil {
				return fmt.Errorf("connect to %s: %w", rawRemote, err)
			}

			root, err := store.Resolve(ctx, remotePath)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", rawRemote, err)
			}

			collector := stats.NewCollector()
			events := make(chan event.Event, 256)

			// When --log-file is set, tee events through a logging goroutine
			// that writes structured records before forwarding to the presenter.
			presenterEvents := (<-chan event.Event)(events)
			if logFile != "" {
				teed := make(chan event.Event, 256)
				go func() {
					for ev := range events {
						attrs := []slog.Attr{
							slog.String("event", ev.Type.LogName()),
							slog.String("path", ev.Path),
							slog.Int64("bytes", ev.Bytes),
						}
						if ev.Error != nil {
							attrs = append(attrs, slog.String("error", ev.Error.Error()))
						}
						slog.LogAttrs(context.Background(), slog.LevelInfo, "drift.event", attrs...)
						teed <- ev
					}
					close(teed)
				}()
				presenterEvents = teed
			}

			isTTY := ui.IsTTY(os.Stderr.Fd())
			presenter := ui.NewPresenter(ui.Config{
				Writer:     os.Stdout,
				ErrWriter:  os.Stderr,
				Stats:      collector,
				Quiet:      quiet,
				Verbose:    verbose,
				NoProgress: noProgress || !isTTY,
			})

			if workers <= 0 {
				workers = sync.DefaultWorkers
			}

			walker := sync.NewWalker(sync.WalkerConfig{
				Workers: workers,
				Indexer: chunk.NewIndexer(chunkSize),
				Fetcher: fetch.New(fetch.Config{MaxRetries: retries}),
				Stats:   collector,
				Events:  events,
				Filter:  filterOrNil(chain),
				DryRun:  dryRun,
			})

			slog.Debug("starting sync",
				"remote", rawRemote,
				"local", localDir,
				"workers", workers,
				"chunk_size", chunkSize,
			)

			var presenterErr error
			var presenterWg gosync.WaitGroup
			presenterWg.Add(1)
			go func() {
				defer presenterWg.Done()
				presenterErr = presenter.Run(presenterEvents)
			}()

			report, runErr := walker.Sync(ctx, root, localDir)
			stop()
			close(events)
			presenterWg.Wait()
			if presenterErr != nil {
				fmt.Fprintf(os.Stderr, "presenter: %v\n", presenterErr)
			}

			if !quiet {
				if summary := presenter.Summary(); summary != "" {
					fmt.Fprintln(os.Stderr, summary)
				}
			}

			// Interrupted sessions have already aborted; remove any staging
			// files whose sessions never got that far.
			if ctx.Err() != nil {
				sync.CleanupStagingFiles()
			}

			if runErr != nil {
				slog.Error("sync failed", "error", runErr)
				return &exitError{code: 2}
			}

			if !dryRun && !noJournal {
				recordRun(rawRemote, localDir, report)
			}

			if report.Summary.Failed > 0 {
				if report.Summary.Successful > 0 {
					return &exitError{code: 1} // partial failure
				}
				return &exitError{code: 2} // total failure
			}
			return nil
		},
	}

	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")

	rootCmd.Flags().
		IntVarP(&workers, "workers", "n", 0, "number of transfer workers (default 4)")
	rootCmd.Flags().
		IntVar(&retries, "retries", fetch.DefaultMaxRetries, "retry budget per byte range")
	rootCmd.Flags().
		StringVar(&chunkSizeStr, "chunk-size", "1M", "comparison window size (e.g. 1M, 512K)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would change without writing")
	rootCmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable periodic progress lines")
	rootCmd.Flags().BoolVar(&noJournal, "no-journal", false, "skip recording this run in the journal")

	// Filter flags use a custom pflag.Value to preserve CLI ordering.
	rootCmd.Flags().
		VarP(&filterFlag{chain: chain, include: false}, "exclude", "", "exclude files matching PATTERN (repeatable)")
	rootCmd.Flags().
		VarP(&filterFlag{chain: chain, include: true}, "include", "", "include files matching PATTERN (repeatable)")
	rootCmd.Flags().
		StringVar(&minSizeStr, "min-size", "", "skip files smaller than SIZE (e.g. 1M, 100K)")
	rootCmd.Flags().
		StringVar(&maxSizeStr, "max-size", "", "skip files larger than SIZE (e.g. 1G, 500M)")

	rootCmd.Flags().StringVar(&logFile, "log-file", "", "write structured JSON log to FILE")
	rootCmd.Flags().
		StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on ADDR (e.g. :9090)")

	rootCmd.Flags().StringVar(&region, "region", "", "bucket region")
	rootCmd.Flags().StringVar(&endpoint, "endpoint", "", "custom S3 endpoint URL")
	rootCmd.Flags().
		BoolVar(&pathStyle, "path-style", false, "use path-style addressing (non-AWS endpoints)")

	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the drift version",
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(os.Stdout, "drift %s\n", version)
		},
	})
	rootCmd.AddCommand(docsCmd)

	rootCmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "exclude" || f.Name == "include" {
			f.NoOptDefVal = ""
		}
	})

	if err := rootCmd.Execute(); err != nil {
		if exitErr, ok := err.(*exitError); ok {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	return 0
}

// splitRemote splits "s3://bucket/some/path" into bucket and path.
func splitRemote(raw string) (bucket, path string, err error) {
	const scheme = "s3://"
	if len(raw) <= len(scheme) || raw[:len(scheme)] != scheme {
		return "", "", fmt.Errorf("remote must be an s3:// URL, got %q", raw)
	}
	rest := raw[len(scheme):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return rest[:i], rest[i+1:], nil
		}
	}
	return rest, "", nil
}

func filterOrNil(chain *filter.Chain) *filter.Chain {
	if chain.Empty() {
		return nil
	}
	return chain
}

// recordRun persists the report in the run journal. Journal failures
// are logged, never fatal.
func recordRun(remotePath, localDir string, report sync.Report) {
	j, err := journal.Open()
	if err != nil {
		slog.Warn("journal unavailable", "error", err)
		return
	}
	defer j.Close()
	if err := j.RecordRun(remotePath, localDir, report); err != nil {
		slog.Warn("journal write failed", "error", err)
	}
}

// applyConfigDefaults applies config file defaults for flags not explicitly set on the CLI.
func applyConfigDefaults(
	cmd *cobra.Command,
	cfg config.Config,
	workers *int,
	retries *int,
	chunkSize *string,
	quiet *bool,
	logFile *string,
	metricsAddr *string,
	region *string,
	endpoint *string,
	pathStyle *bool,
) {
	d := cfg.Defaults
	if !cmd.Flags().Changed("workers") && d.Workers != nil {
		*workers = *d.Workers
	}
	if !cmd.Flags().Changed("retries") && d.Retries != nil {
		*retries = *d.Retries
	}
	if !cmd.Flags().Changed("chunk-size") && d.ChunkSize != nil {
		*chunkSize = *d.ChunkSize
	}
	if !cmd.Flags().Changed("quiet") && d.Quiet != nil {
		*quiet = *d.Quiet
	}
	if !cmd.Flags().Changed("log-file") && d.LogFile != nil {
		*logFile = *d.LogFile
	}
	if !cmd.Flags().Changed("metrics-addr") && d.MetricsAddr != nil {
		*metricsAddr = *d.MetricsAddr
	}
	r := cfg.Remote
	if !cmd.Flags().Changed("region") && r.Region != nil {
		*region = *r.Region
	}
	if !cmd.Flags().Changed("endpoint") && r.Endpoint != nil {
		*endpoint = *r.Endpoint
	}
	if !cmd.Flags().Changed("path-style") && r.PathStyle != nil {
		*pathStyle = *r.PathStyle
	}
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
