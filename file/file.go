// SPDX-License-Identifier: ice License 1.0

// Package file classifies files into handler categories and composes each handler from analyzer capabilities.
package file

import (
	"context"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/ice-blockchain/filemeta/analysis"
	"github.com/ice-blockchain/filemeta/analyzer"
	"github.com/ice-blockchain/filemeta/logger"
	"github.com/ice-blockchain/filemeta/model"
	"github.com/ice-blockchain/filemeta/resources"
)

type (
	// Handler is what Create returns: an analysis.Handler that can compute its own metadata.
	Handler interface {
		analysis.Handler
		Metadata(ctx context.Context, opts ...analysis.Option) (model.Metadata, error)
	}
	// Env carries the process wide collaborators handlers are built with. Zero fields get defaults.
	Env struct {
		Cache    *resources.Cache
		Tools    *analyzer.Tools
		Sniffer  analyzer.Sniffer
		Observer analysis.Observer
	}
	// Handle is the immutable, absolute path of the analysed file.
	Handle struct {
		path string
	}
	base struct {
		env          *Env
		capabilities []analysis.Capability
		Handle
		category model.Category
	}
	Generic struct {
		Stat     *analyzer.Stat
		MimeType *analyzer.MimeType
		ExifTool *analyzer.ExifTool
		base
	}
	Image struct {
		*Generic
		Color       *analyzer.Color
		Zbar        *analyzer.Zbar
		Zxing       *analyzer.Zxing
		Geolocation *analyzer.Geolocation
	}
	Audio struct {
		*Generic
		FFProbe *analyzer.FFProbe
	}
	Video struct {
		*Generic
		FFProbe *analyzer.FFProbe
	}
)

var log = logger.Get("File")

func NewHandle(path string) (Handle, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Handle{}, errors.Wrapf(err, "failed to resolve %v", path)
	}

	return Handle{path: abs}, nil
}

func (h Handle) Path() string {
	return h.path
}

func (e *Env) withDefaults() *Env {
	env := Env{}
	if e != nil {
		env = *e
	}
	if env.Tools == nil {
		env.Tools = analyzer.NewTools(env.Cache, nil)
	}
	if env.Sniffer == nil {
		env.Sniffer = analyzer.ContentSniffer{}
	}

	return &env
}

func (b *base) Category() model.Category {
	return b.category
}

func (b *base) Routines() []analysis.Routine {
	return analysis.Collect(b.capabilities...)
}

// Metadata runs the handler's routines and merges their results. Every call recomputes the mapping,
// reusing whatever the capabilities memoized.
func (b *base) Metadata(ctx context.Context, opts ...analysis.Option) (model.Metadata, error) {
	if b.env.Observer != nil {
		opts = append([]analysis.Option{analysis.WithObserver(b.env.Observer)}, opts...)
	}

	return analysis.Analyze(ctx, b, opts...)
}

func (b *base) add(capabilities ...analysis.Capability) {
	b.capabilities = append(b.capabilities, capabilities...)
}

func NewGeneric(path string, env *Env) (*Generic, error) {
	h, err := NewHandle(path)
	if err != nil {
		return nil, err
	}

	return newGeneric(h, "", env.withDefaults(), model.CategoryGeneric), nil
}

func newGeneric(h Handle, mime string, env *Env, category model.Category) *Generic {
	g := &Generic{
		base:     base{Handle: h, env: env, category: category},
		Stat:     analyzer.NewStat(h.path),
		MimeType: analyzer.NewMimeType(h.path, mime, env.Sniffer),
		ExifTool: analyzer.NewExifTool(h.path, env.Tools),
	}
	g.add(g.Stat, g.MimeType, g.ExifTool)

	return g
}

func NewImage(path string, env *Env) (*Image, error) {
	h, err := NewHandle(path)
	if err != nil {
		return nil, err
	}

	return newImage(h, "", env.withDefaults()), nil
}

func newImage(h Handle, mime string, env *Env) *Image {
	g := newGeneric(h, mime, env, model.CategoryImage)
	img := &Image{
		Generic:     g,
		Color:       analyzer.NewColor(h.path),
		Zbar:        analyzer.NewZbar(h.path, env.Tools),
		Geolocation: analyzer.NewGeolocation(g.ExifTool),
	}
	img.Zxing = analyzer.NewZxing(img.Color)
	g.add(img.Color, img.Zbar, img.Zxing, img.Geolocation)
	g.add(registeredImageCapabilities(h.path, env)...)

	return img
}

func NewAudio(path string, env *Env) (*Audio, error) {
	h, err := NewHandle(path)
	if err != nil {
		return nil, err
	}

	return newAudio(h, "", env.withDefaults()), nil
}

func newAudio(h Handle, mime string, env *Env) *Audio {
	g := newGeneric(h, mime, env, model.CategoryAudio)
	a := &Audio{Generic: g, FFProbe: analyzer.NewFFProbe(h.path, env.Tools)}
	g.add(a.FFProbe)

	return a
}

func NewVideo(path string, env *Env) (*Video, error) {
	h, err := NewHandle(path)
	if err != nil {
		return nil, err
	}

	return newVideo(h, "", env.withDefaults()), nil
}

func newVideo(h Handle, mime string, env *Env) *Video {
	g := newGeneric(h, mime, env, model.CategoryVideo)
	v := &Video{Generic: g, FFProbe: analyzer.NewFFProbe(h.path, env.Tools)}
	g.add(v.FFProbe)

	return v
}
