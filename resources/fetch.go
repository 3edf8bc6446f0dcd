// SPDX-License-Identifier: ice License 1.0

package resources

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
)

type (
	// HTTPFetcher downloads a URL into the cache. Data lands on a temporary name first and is renamed
	// into place, so a concurrent reader never sees a partial archive.
	HTTPFetcher struct {
		Client   *http.Client
		Progress io.Writer
		URL      string
		Timeout  time.Duration
	}
)

func NewHTTPFetcher(url string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{URL: url, Timeout: timeout, Progress: os.Stderr}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, dest string) error {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, http.NoBody)
	if err != nil {
		return errors.Wrapf(err, "invalid url %v", f.URL)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to GET %v", f.URL)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("unexpected status %v for %v", resp.Status, f.URL)
	}

	tmp := dest + "." + uuid.NewString() + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "failed to create %v", tmp)
	}
	progress := f.Progress
	if progress == nil {
		progress = io.Discard
	}
	bar := progressbar.NewOptions64(resp.ContentLength,
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetDescription(filepath.Base(dest)),
		progressbar.OptionShowBytes(true),
		progressbar.OptionClearOnFinish(),
	)
	_, err = io.Copy(io.MultiWriter(out, bar), resp.Body)
	if cErr := out.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		_ = os.Remove(tmp)

		return errors.Wrapf(err, "failed to download %v", f.URL)
	}
	if err = os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)

		return errors.Wrapf(err, "failed to move %v into place", dest)
	}

	return nil
}
