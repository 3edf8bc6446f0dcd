// SPDX-License-Identifier: ice License 1.0

package main

import (
	"context"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"

	"github.com/ice-blockchain/filemeta/logger"
)

// Files are checked twice per settle period, the check interval must stay positive.
const minSettle = 2 * time.Millisecond

// watch analyses every regular file created or rewritten in dirs once it stopped changing for settle.
func (a *app) watch(ctx context.Context, dirs []string, settle time.Duration) error {
	if settle < minSettle {
		return errors.Errorf("--settle must be at least %v, got %v", minSettle, settle)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create fsnotify watcher")
	}
	defer watcher.Close()
	for _, dir := range dirs {
		if err = watcher.Add(dir); err != nil {
			return errors.Wrapf(err, "failed to watch %v", dir)
		}
		log.Emit(logger.INFO, "Watching %v", dir)
	}
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(settle / 2) //nolint:mnd // Twice per settle period.
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			switch {
			case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
				pending[event.Name] = time.Now()
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				delete(pending, event.Name)
			}
		case wErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			return errors.Wrap(wErr, "got error from fsnotify")
		case now := <-ticker.C:
			for path, changed := range pending {
				if now.Sub(changed) < settle {
					continue
				}
				delete(pending, path)
				if info, sErr := os.Stat(path); sErr != nil || !info.Mode().IsRegular() {
					continue
				}
				if err = a.emit(a.analyze(ctx, path)); err != nil {
					return err
				}
			}
		}
	}
}
