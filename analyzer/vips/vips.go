// SPDX-License-Identifier: ice License 1.0

// Package vips reads image headers with libvips. Importing it adds analyze_vips to every image handler.
package vips

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/davidbyttow/govips/v2/vips"

	"github.com/ice-blockchain/filemeta/analysis"
	"github.com/ice-blockchain/filemeta/file"
	"github.com/ice-blockchain/filemeta/logger"
	"github.com/ice-blockchain/filemeta/memo"
	"github.com/ice-blockchain/filemeta/model"
)

type (
	Capability struct {
		header memo.Value[*Header]
		path   string
	}
	Header struct {
		Format string
		Width  int
		Height int
		Bands  int
		Pages  int
	}
)

//nolint:gochecknoglobals // libvips is process wide.
var (
	log = logger.Get("Vips")

	lifecycle = struct {
		start   sync.Once
		mx      sync.Mutex
		started bool
		stopped bool
	}{}
)

func init() { //nolint:gochecknoinits // Registration on import.
	file.RegisterImageCapability("vips", func(path string, _ *file.Env) analysis.Capability { return New(path) }, Shutdown)
}

func New(path string) *Capability {
	return &Capability{path: path}
}

func startup() error {
	lifecycle.start.Do(func() {
		lifecycle.mx.Lock()
		defer lifecycle.mx.Unlock()
		if lifecycle.stopped {
			return
		}
		vips.LoggingSettings(func(domain string, level vips.LogLevel, msg string) {
			status := logger.DEBUG
			if level <= vips.LogLevelWarning {
				status = logger.WARNING
			}
			log.Emit(status, "%v: %v", domain, msg)
		}, vips.LogLevelWarning)
		vips.Startup(nil)
		lifecycle.started = true
	})
	lifecycle.mx.Lock()
	defer lifecycle.mx.Unlock()
	if !lifecycle.started || lifecycle.stopped {
		return errors.New("libvips is shut down")
	}

	return nil
}

// Shutdown stops libvips. It cannot be started again in the same process.
func Shutdown() error {
	lifecycle.mx.Lock()
	defer lifecycle.mx.Unlock()
	if lifecycle.started && !lifecycle.stopped {
		vips.Shutdown()
	}
	lifecycle.stopped = true

	return nil
}

// Header loads the image once per instance.
func (c *Capability) Header() (*Header, error) {
	return c.header.Get(func() (*Header, error) {
		if err := startup(); err != nil {
			return nil, err
		}
		im, err := vips.LoadImageFromFile(c.path, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load image %v", c.path)
		}
		defer im.Close()
		format, known := vips.ImageTypes[im.Format()]
		if !known {
			format = "unknown"
		}

		return &Header{
			Format: format,
			Width:  im.Width(),
			Height: im.Height(),
			Bands:  im.Bands(),
			Pages:  im.Pages(),
		}, nil
	})
}

func (c *Capability) Routines() []analysis.Routine {
	return []analysis.Routine{{Name: "analyze_vips", Run: c.analyze}}
}

func (c *Capability) analyze(context.Context) analysis.Outcome {
	h, err := c.Header()
	if err != nil {
		return analysis.NotApplicable("vips: %v", err)
	}

	return analysis.Success(h.Metadata())
}

func (h *Header) Metadata() model.Metadata {
	return model.Metadata{
		"Vips:Width":  h.Width,
		"Vips:Height": h.Height,
		"Vips:Bands":  h.Bands,
		"Vips:Pages":  h.Pages,
		"Vips:Format": h.Format,
	}
}
