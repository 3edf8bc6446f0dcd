// SPDX-License-Identifier: ice License 1.0

package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
)

// provision resolves every external tool, downloading the ones that are missing from PATH.
func (a *app) provision(ctx context.Context, out io.Writer) error {
	var mErr *multierror.Error
	line := func(tool, location string, err error) {
		if err != nil {
			mErr = multierror.Append(mErr, errors.Wrapf(err, "%v unavailable", tool))
			location = "unavailable: " + err.Error()
		}
		fmt.Fprintf(out, "%-9v %v\n", tool, location) //nolint:errcheck // Terminal output.
	}
	argv, err := a.tools.ExifTool(ctx)
	line("exiftool", strings.Join(argv, " "), err)
	probe, _, err := a.tools.FFProbe(ctx)
	line("ffprobe", probe, err)
	zbar, err := a.tools.Zbar()
	line("zbarimg", zbar, err)
	fmt.Fprintf(out, "%-9v %v\n", "cache", a.cache.Root()) //nolint:errcheck // Terminal output.

	return mErr.ErrorOrNil() //nolint:wrapcheck // .
}
