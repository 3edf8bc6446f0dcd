// SPDX-License-Identifier: ice License 1.0

// Package analyzer implements the capabilities file handlers are composed of. Every capability exposes
// its analysis routines; external tools are located on PATH or provisioned through the resource cache.
package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ice-blockchain/filemeta/logger"
	"github.com/ice-blockchain/filemeta/model"
	"github.com/ice-blockchain/filemeta/resources"
)

const (
	defaultExifToolVersion = "12.76"
	defaultExifToolURL     = "https://exiftool.org/"
	defaultFFmpegURL       = "https://johnvansickle.com/ffmpeg/releases/"
	defaultToolTimeout     = 2 * time.Minute
)

type (
	Config struct {
		ExifTool    ExifToolConfig `yaml:"exiftool" mapstructure:"exiftool"`
		FFmpeg      FFmpegConfig   `yaml:"ffmpeg" mapstructure:"ffmpeg"`
		Zbar        ZbarConfig     `yaml:"zbar" mapstructure:"zbar"`
		ToolTimeout time.Duration  `yaml:"toolTimeout" mapstructure:"toolTimeout"`
		// Provision allows downloading tools missing from PATH into the resource cache.
		Provision bool `yaml:"provision" mapstructure:"provision"`
	}
	ExifToolConfig struct {
		Path    string `yaml:"path" mapstructure:"path"`
		Version string `yaml:"version" mapstructure:"version"`
		BaseURL string `yaml:"baseURL" mapstructure:"baseURL" validate:"omitempty,url"`
	}
	FFmpegConfig struct {
		ProbePath string `yaml:"probePath" mapstructure:"probePath"`
		BaseURL   string `yaml:"baseURL" mapstructure:"baseURL" validate:"omitempty,url"`
	}
	ZbarConfig struct {
		Path string `yaml:"path" mapstructure:"path"`
	}
	// Tools locates, and when allowed provisions, the external executables used by the capabilities.
	Tools struct {
		cache    *resources.Cache
		cfg      Config
		lookPath func(string) (string, error)
	}
)

var (
	ErrToolMissing = errors.New("tool missing")

	log = logger.Get("Analyzer")
)

func NewTools(cache *resources.Cache, cfg *Config) *Tools {
	t := &Tools{cache: cache, lookPath: exec.LookPath}
	if cfg != nil {
		t.cfg = *cfg
	}
	if t.cfg.ExifTool.Version == "" {
		t.cfg.ExifTool.Version = defaultExifToolVersion
	}
	if t.cfg.ExifTool.BaseURL == "" {
		t.cfg.ExifTool.BaseURL = defaultExifToolURL
	}
	if t.cfg.FFmpeg.BaseURL == "" {
		t.cfg.FFmpeg.BaseURL = defaultFFmpegURL
	}
	if t.cfg.ToolTimeout == 0 {
		t.cfg.ToolTimeout = defaultToolTimeout
	}

	return t
}

// ExifTool returns the argv prefix running exiftool.
func (t *Tools) ExifTool(ctx context.Context) ([]string, error) {
	if t.cfg.ExifTool.Path != "" {
		return []string{t.cfg.ExifTool.Path}, nil
	}
	if path, err := t.lookPath("exiftool"); err == nil {
		return []string{path}, nil
	}
	perl, err := t.lookPath("perl")
	if err != nil {
		return nil, model.Categorize(errors.New("exiftool is not on PATH and perl is not available to run it"), ErrToolMissing)
	}
	folder := "Image-ExifTool-" + t.cfg.ExifTool.Version
	bin, err := t.provision(ctx, &resources.Resource{
		Name:      folder + ".tar.gz",
		Extract:   resources.TarGz,
		Extracted: filepath.Join(folder, "exiftool"),
	}, t.cfg.ExifTool.BaseURL+folder+".tar.gz")
	if err != nil {
		return nil, err
	}

	return []string{perl, bin}, nil
}

// FFProbe returns the ffprobe executable and whether it is the one found on PATH under its own name.
func (t *Tools) FFProbe(ctx context.Context) (path string, onPath bool, err error) {
	if t.cfg.FFmpeg.ProbePath != "" {
		return t.cfg.FFmpeg.ProbePath, false, nil
	}
	if path, err = t.lookPath("ffprobe"); err == nil {
		return path, true, nil
	}
	if path, err = t.lookPath("avprobe"); err == nil {
		return path, false, nil
	}
	arch, supported := staticFFmpegArch()
	if !supported {
		return "", false, model.Categorize(errors.Errorf("no ffprobe on PATH and no static build for %v/%v", runtime.GOOS, runtime.GOARCH), ErrToolMissing)
	}
	archive := fmt.Sprintf("ffmpeg-release-%v-static.tar.xz", arch)
	path, err = t.provision(ctx, &resources.Resource{
		Name:      archive,
		Extract:   resources.TarXz,
		Extracted: filepath.Join(fmt.Sprintf("ffmpeg-*-%v-static", arch), "ffprobe"),
	}, t.cfg.FFmpeg.BaseURL+archive)

	return path, false, err
}

func (t *Tools) Zbar() (string, error) {
	if t.cfg.Zbar.Path != "" {
		return t.cfg.Zbar.Path, nil
	}
	path, err := t.lookPath("zbarimg")
	if err != nil {
		return "", model.Categorize(errors.Wrap(err, "zbarimg"), ErrToolMissing)
	}

	return path, nil
}

func (t *Tools) provision(ctx context.Context, res *resources.Resource, url string) (string, error) {
	if !t.cfg.Provision || t.cache == nil {
		return "", model.Categorize(errors.Errorf("%v is not provisioned and provisioning is disabled", res.Name), ErrToolMissing)
	}
	res.Fetch = resources.NewHTTPFetcher(url, t.cache.DownloadTimeout()).Fetch
	path, err := t.cache.Ensure(ctx, *res)
	if err != nil {
		log.Emit(logger.ERROR, "Provisioning %v failed: %v", res.Name, err)

		return "", model.Categorize(err, ErrToolMissing)
	}

	return path, nil
}

// run executes argv, returning stdout. A non-zero exit is returned as *exec.ExitError together with
// whatever the process printed.
func (t *Tools) run(ctx context.Context, argv ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.ToolTimeout)
	defer cancel()
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // Executables come from config, PATH or the cache.
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.Bytes(), errors.Wrapf(err, "%v exited with %v: %s", filepath.Base(argv[0]), exitErr.ExitCode(), bytes.TrimSpace(stderr.Bytes()))
		}

		return nil, model.Categorize(errors.Wrapf(err, "failed to run %v", argv[0]), ErrToolMissing)
	}

	return stdout.Bytes(), nil
}

func staticFFmpegArch() (string, bool) {
	if runtime.GOOS != "linux" {
		return "", false
	}
	arch, supported := map[string]string{
		"amd64": "amd64",
		"386":   "i686",
		"arm64": "arm64",
		"arm":   "armhf",
	}[runtime.GOARCH]

	return arch, supported
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return -1
}
