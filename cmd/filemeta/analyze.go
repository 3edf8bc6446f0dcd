// SPDX-License-Identifier: ice License 1.0

package main

import (
	"context"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// analyzeAll analyses paths concurrently and prints their reports in input order.
func (a *app) analyzeAll(ctx context.Context, paths []string, parallel int, progress io.Writer) error {
	reports := make([]*report, len(paths))
	var bar *progressbar.ProgressBar
	if progress != nil && len(paths) > 1 {
		bar = progressbar.NewOptions(len(paths),
			progressbar.OptionSetWriter(progress),
			progressbar.OptionSetDescription("analyzing"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	eg, egCtx := errgroup.WithContext(ctx)
	if parallel > 0 {
		eg.SetLimit(parallel)
	}
	for ix, path := range paths {
		eg.Go(func() error {
			if egCtx.Err() != nil {
				return errors.Wrap(egCtx.Err(), "analysis interrupted")
			}
			reports[ix] = a.analyze(egCtx, path)
			if bar != nil {
				_ = bar.Add(1) //nolint:errcheck // Progress only.
			}

			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err //nolint:wrapcheck // .
	}
	if bar != nil {
		_ = bar.Finish() //nolint:errcheck // Progress only.
	}
	failed := 0
	for _, r := range reports {
		if r.Error != "" {
			failed++
		}
		if err := a.emit(r); err != nil {
			return err
		}
	}
	if failed > 0 {
		return errors.Errorf("%v of %v file(s) could not be analysed", failed, len(paths))
	}

	return nil
}

func progressWriter(quiet bool) io.Writer {
	if quiet {
		return nil
	}

	return os.Stderr
}
