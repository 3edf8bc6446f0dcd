// SPDX-License-Identifier: ice License 1.0

package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ice-blockchain/filemeta/analysis"
	_ "github.com/ice-blockchain/filemeta/analyzer/vips" // Adds analyze_vips to image handlers.
	"github.com/ice-blockchain/filemeta/logger"
)

var (
	log    = logger.Get("Filemeta")
	opts   = &options{}
	settle time.Duration

	filemeta = &cobra.Command{
		Use:           "filemeta",
		Short:         "Extract metadata from media files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	analyzeCmd = &cobra.Command{
		Use:   "analyze <file>...",
		Short: "Analyse files and print their metadata as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				return a.analyzeAll(ctx, args, opts.parallel, progressWriter(opts.quiet))
			})
		},
	}
	watchCmd = &cobra.Command{
		Use:   "watch <dir>...",
		Short: "Analyse files as they appear in directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				return a.watch(ctx, args, settle)
			})
		},
	}
	provisionCmd = &cobra.Command{
		Use:   "provision",
		Short: "Download the external tools missing from PATH into the resource cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.provision = true

			return run(cmd, func(ctx context.Context, a *app) error {
				return a.provision(ctx, cmd.OutOrStdout())
			})
		},
	}
	initFlags = func() {
		pf := filemeta.PersistentFlags()
		pf.StringVar(&opts.configPath, "config", "", "yaml configuration file")
		pf.StringVar(&opts.logLevel, "log-level", "info", "minimum log level: verbose, debug, info, warning, error")
		pf.BoolVar(&opts.provision, "provision", false, "download tools missing from PATH into the resource cache")
		for _, cmd := range []*cobra.Command{analyzeCmd, watchCmd} {
			cmd.Flags().StringVar(&opts.prefix, "prefix", analysis.DefaultPrefix, "only run routines whose name starts with it")
			cmd.Flags().StringVar(&opts.suffix, "suffix", analysis.DefaultSuffix, "only run routines whose name ends with it")
			cmd.Flags().StringSliceVar(&opts.routines, "routines", nil, "run exactly these routines")
			cmd.Flags().BoolVar(&opts.useStore, "store", false, "reuse and persist results keyed by content digest")
			cmd.Flags().StringVar(&opts.storePath, "store-path", "", "leveldb directory of the result store")
			cmd.Flags().BoolVar(&opts.pretty, "pretty", false, "indent the JSON output")
		}
		analyzeCmd.Flags().IntVar(&opts.parallel, "parallel", runtime.NumCPU(), "files analysed concurrently")
		analyzeCmd.Flags().BoolVar(&opts.quiet, "quiet", false, "no progress bar")
		watchCmd.Flags().DurationVar(&settle, "settle", time.Second, "how long a file must stay unchanged before it is analysed")
		filemeta.AddCommand(analyzeCmd, watchCmd, provisionCmd)
	}
)

func init() {
	initFlags()
}

func run(cmd *cobra.Command, fn func(context.Context, *app) error) (err error) {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	c, err := loadConfigs(opts)
	if err != nil {
		return err
	}
	a, err := newApp(opts, c, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() {
		if cErr := a.Close(); cErr != nil {
			log.Emit(logger.ERROR, "%v", cErr)
		}
	}()

	return fn(ctx, a)
}

func main() {
	if err := filemeta.ExecuteContext(context.Background()); err != nil {
		log.Emit(logger.ERROR, "%v", err)
		os.Exit(1)
	}
}
