// SPDX-License-Identifier: ice License 1.0

// Package resources provisions external artifacts (tool archives, binaries, models) into an application
// scoped on-disk cache. Each resource is fetched and extracted at most once per process; on disk it
// persists across runs until removed externally.
package resources

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"

	"github.com/ice-blockchain/filemeta/logger"
	"github.com/ice-blockchain/filemeta/retry"
)

const (
	applicationDir = "filemeta"
	defaultRetries = 3
)

type (
	Config struct {
		RootDir         string        `yaml:"rootDir" mapstructure:"rootDir"`
		Retries         int           `yaml:"retries" mapstructure:"retries" validate:"gte=0,lte=100"`
		DownloadTimeout time.Duration `yaml:"downloadTimeout" mapstructure:"downloadTimeout"`
	}
	// FetchFunc materialises the raw resource at dest.
	FetchFunc func(ctx context.Context, dest string) error
	// ExtractFunc unpacks archive into dir.
	ExtractFunc func(ctx context.Context, archive, dir string) error
	Resource    struct {
		Fetch   FetchFunc
		Extract ExtractFunc
		// Name is the archive or binary file name inside the cache root.
		Name string
		// Extracted is the path, relative to the cache root, that exists once Extract ran.
		// It may be a glob; the lexically greatest match is used.
		Extracted string
		// Overwrite forces a new fetch even when the resource is already present.
		Overwrite bool
	}
	Cache struct {
		ensured  *xsync.MapOf[string, string]
		inflight singleflight.Group
		root     string
		retries  int
		timeout  time.Duration
	}
)

var log = logger.Get("Resources")

// New resolves the cache root (cfg.RootDir, or the user cache dir) and creates it.
func New(cfg *Config) (*Cache, error) {
	if cfg == nil {
		cfg = new(Config)
	}
	root := cfg.RootDir
	if root == "" {
		userCache, err := os.UserCacheDir()
		if err != nil {
			return nil, errors.Wrap(err, "failed to derive user cache dir")
		}
		root = filepath.Join(userCache, applicationDir)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create cache root %v", root)
	}
	retries := cfg.Retries
	if retries == 0 {
		retries = defaultRetries
	}

	return &Cache{
		ensured: xsync.NewMapOf[string, string](),
		root:    root,
		retries: retries,
		timeout: cfg.DownloadTimeout,
	}, nil
}

// DownloadTimeout bounds a single fetch attempt. Zero means no limit.
func (c *Cache) DownloadTimeout() time.Duration {
	return c.timeout
}

func (c *Cache) Root() string {
	return c.root
}

func (c *Cache) Path(elem ...string) string {
	return filepath.Join(append([]string{c.root}, elem...)...)
}

// Ensure returns the usable local path of res, fetching and extracting it first when it is not present yet.
func (c *Cache) Ensure(ctx context.Context, res Resource) (string, error) {
	if err := res.validate(); err != nil {
		return "", err
	}
	if !res.Overwrite {
		if path, found := c.ensured.Load(res.Name); found {
			return path, nil
		}
		if path, ready := c.ready(&res); ready {
			c.ensured.Store(res.Name, path)

			return path, nil
		}
	}
	val, err, _ := c.inflight.Do(res.Name, func() (any, error) {
		if !res.Overwrite {
			if path, ready := c.ready(&res); ready {
				return path, nil
			}
		}

		return c.materialize(ctx, &res)
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to provision %v", res.Name)
	}
	path, _ := val.(string)
	c.ensured.Store(res.Name, path)

	return path, nil
}

func (c *Cache) materialize(ctx context.Context, res *Resource) (string, error) {
	archive := c.Path(res.Name)
	if err := os.MkdirAll(filepath.Dir(archive), 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create directory for %v", archive)
	}
	if _, statErr := os.Stat(archive); res.Overwrite || statErr != nil {
		log.Emit(logger.INFO, "Fetching %v, the first run may take longer than normal", res.Name)
		if _, err := retry.Do(ctx, c.retries, func() (struct{}, error) {
			return struct{}{}, res.Fetch(ctx, archive)
		}); err != nil {
			return "", errors.Wrapf(err, "failed to fetch %v after %v attempt(s)", res.Name, c.retries)
		}
	}
	if res.Extract == nil {
		return archive, nil
	}
	if err := res.Extract(ctx, archive, c.root); err != nil {
		return "", errors.Wrapf(err, "failed to extract %v", archive)
	}
	path, ready := c.ready(res)
	if !ready {
		return "", errors.Errorf("%v not found in %v after extracting %v", res.Extracted, c.root, res.Name)
	}
	log.Emit(logger.SUCCESS, "Provisioned %v at %v", res.Name, path)

	return path, nil
}

func (c *Cache) ready(res *Resource) (string, bool) {
	if res.Extract == nil {
		path := c.Path(res.Name)
		_, err := os.Stat(path)

		return path, err == nil
	}
	matches, err := filepath.Glob(c.Path(res.Extracted))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)

	return matches[len(matches)-1], true
}

func (r *Resource) validate() error {
	switch {
	case r.Name == "" || filepath.IsAbs(r.Name):
		return errors.Errorf("invalid resource name %q", r.Name)
	case r.Fetch == nil:
		return errors.Errorf("resource %v has no fetch func", r.Name)
	case r.Extract != nil && r.Extracted == "":
		return errors.Errorf("resource %v is extracted but declares no extracted path", r.Name)
	default:
		return nil
	}
}
