// SPDX-License-Identifier: ice License 1.0

package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"

	"github.com/ice-blockchain/filemeta/analysis"
	"github.com/ice-blockchain/filemeta/analyzer"
	"github.com/ice-blockchain/filemeta/cfg"
	"github.com/ice-blockchain/filemeta/file"
	"github.com/ice-blockchain/filemeta/logger"
	"github.com/ice-blockchain/filemeta/model"
	"github.com/ice-blockchain/filemeta/resources"
	"github.com/ice-blockchain/filemeta/statistics"
	"github.com/ice-blockchain/filemeta/store"
)

type (
	options struct {
		configPath string
		logLevel   string
		prefix     string
		suffix     string
		storePath  string
		routines   []string
		parallel   int
		useStore   bool
		provision  bool
		pretty     bool
		quiet      bool
	}
	app struct {
		out    io.Writer
		cache  *resources.Cache
		tools  *analyzer.Tools
		stats  statistics.Statistics
		store  *store.Store
		env    *file.Env
		scope  string
		opts   []analysis.Option
		outMx  sync.Mutex
		pretty bool
	}
	report struct {
		Metadata model.Metadata `json:"metadata,omitempty"`
		Path     string         `json:"path"`
		Category string         `json:"category,omitempty"`
		Digest   string         `json:"digest,omitempty"`
		Error    string         `json:"error,omitempty"`
		Cached   bool           `json:"cached,omitempty"`
	}
	configs struct {
		resources  *resources.Config
		analyzer   *analyzer.Config
		statistics *statistics.Config
		store      *store.Config
	}
)

func (o *options) configPaths() []string {
	if o.configPath != "" {
		return []string{o.configPath}
	}

	return []string{"application.yaml", "/etc/filemeta/filemeta.yaml"}
}

func loadConfigs(o *options) (*configs, error) {
	cfg.MustInit(o.configPaths()...)
	var (
		c    configs
		err  error
		mErr *multierror.Error
	)
	if c.resources, err = cfg.Get[resources.Config](); err != nil {
		mErr = multierror.Append(mErr, err)
	}
	if c.analyzer, err = cfg.Get[analyzer.Config](); err != nil {
		mErr = multierror.Append(mErr, err)
	}
	if c.statistics, err = cfg.Get[statistics.Config](); err != nil {
		mErr = multierror.Append(mErr, err)
	}
	if c.store, err = cfg.Get[store.Config](); err != nil {
		mErr = multierror.Append(mErr, err)
	}
	if err = mErr.ErrorOrNil(); err != nil {
		return nil, err //nolint:wrapcheck // Already descriptive.
	}
	if o.provision {
		c.analyzer.Provision = true
	}
	if o.storePath != "" {
		c.store.Path = o.storePath
	}

	return &c, nil
}

func newApp(o *options, c *configs, out io.Writer) (a *app, err error) {
	if o.logLevel != "" {
		status, sErr := logger.ParseStatus(o.logLevel)
		if sErr != nil {
			return nil, errors.Wrap(sErr, "invalid --log-level")
		}
		logger.SetMinStatus(status)
	}
	a = &app{out: out, pretty: o.pretty}
	defer func() {
		if err != nil {
			err = errors.CombineErrors(err, a.Close())
		}
	}()
	if a.cache, err = resources.New(c.resources); err != nil {
		return nil, errors.Wrap(err, "failed to open resource cache")
	}
	a.tools = analyzer.NewTools(a.cache, c.analyzer)
	if a.stats, err = statistics.New(c.statistics); err != nil {
		return nil, errors.Wrap(err, "failed to start statistics")
	}
	if o.useStore {
		if a.store, err = store.Open(c.store); err != nil {
			return nil, errors.Wrap(err, "failed to open result store")
		}
	}
	a.env = &file.Env{Cache: a.cache, Tools: a.tools, Observer: a.stats}
	prefix, suffix := o.prefix, o.suffix
	a.opts = append(a.opts, analysis.WithPrefix(prefix), analysis.WithSuffix(suffix))
	if len(o.routines) > 0 {
		a.opts = append(a.opts, analysis.WithRoutines(o.routines...))
	}
	a.scope = store.Scope(prefix, suffix, o.routines)

	return a, nil
}

func (a *app) Close() error {
	var mErr *multierror.Error
	if a.stats != nil {
		if err := a.stats.Close(); err != nil {
			mErr = multierror.Append(mErr, errors.Wrap(err, "failed to close statistics"))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			mErr = multierror.Append(mErr, errors.Wrap(err, "failed to close result store"))
		}
	}
	if err := file.Shutdown(); err != nil {
		mErr = multierror.Append(mErr, err)
	}

	return mErr.ErrorOrNil() //nolint:wrapcheck // .
}

// analyze never fails: what went wrong is part of the report.
func (a *app) analyze(ctx context.Context, path string) *report {
	r := &report{Path: path}
	if err := a.fill(ctx, r); err != nil {
		r.Error = err.Error()
		log.Emit(logger.ERROR, "%v: %v", path, err)
	}

	return r
}

func (a *app) fill(ctx context.Context, r *report) error {
	h, err := file.NewHandle(r.Path)
	if err != nil {
		return err
	}
	r.Path = h.Path()
	var info os.FileInfo
	if a.store != nil {
		if r.Digest, err = file.Digest(r.Path); err != nil {
			return err
		}
		if info, err = os.Stat(r.Path); err != nil {
			return model.Categorize(errors.Wrapf(err, "failed to stat %v", r.Path), model.ErrEnvironment)
		}
		entry, gErr := a.store.Get(r.Digest, r.Path, a.scope)
		if gErr != nil {
			return gErr
		}
		if entry != nil && entry.ModTime.Equal(info.ModTime()) && entry.Mode == uint32(info.Mode()) {
			r.Metadata, r.Category, r.Cached = entry.Metadata, entry.Category, true
			log.Emit(logger.DEBUG, "%v: reusing metadata stored at %v", r.Path, entry.Stored)

			return nil
		}
	}
	handler, err := file.Create(ctx, r.Path, a.env)
	if err != nil {
		return err
	}
	r.Category = handler.Category().String()
	if r.Metadata, err = handler.Metadata(ctx, a.opts...); err != nil {
		return err
	}
	if a.store != nil {
		return a.store.Put(&store.Entry{
			Metadata: r.Metadata,
			Digest:   r.Digest,
			Path:     r.Path,
			Scope:    a.scope,
			Category: r.Category,
			ModTime:  info.ModTime(),
			Mode:     uint32(info.Mode()),
		})
	}

	return nil
}

func (a *app) emit(r *report) error {
	a.outMx.Lock()
	defer a.outMx.Unlock()
	enc := json.NewEncoder(a.out)
	if a.pretty {
		enc.SetIndent("", "  ")
	}

	return errors.Wrapf(enc.Encode(r), "failed to print report of %v", r.Path)
}
