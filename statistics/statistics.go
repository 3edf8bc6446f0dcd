// SPDX-License-Identifier: ice License 1.0

// Package statistics aggregates what the dispatcher observes into a go-metrics registry dumped as stats.json.
package statistics

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rcrowley/go-metrics"

	"github.com/ice-blockchain/filemeta/analysis"
	"github.com/ice-blockchain/filemeta/logger"
	"github.com/ice-blockchain/filemeta/model"
)

type (
	Statistics interface {
		io.Closer
		analysis.Observer
	}
	Config struct {
		Dir      string        `yaml:"dir" mapstructure:"dir"`
		Interval time.Duration `yaml:"interval" mapstructure:"interval"`
		Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	}
	statistics struct {
		metrics metrics.Registry
		done    chan struct{}
		dir     string
		wg      sync.WaitGroup
		closed  sync.Once
	}
	noopStats struct{}
)

const (
	defaultInterval = 60 * time.Second
	sampleSize      = 10000
	sampleAlpha     = 0.15
	statsFile       = "stats.json"

	imageWidth  = "imageWidth"
	imageHeight = "imageHeight"
	fileSize    = "fileSize"
	duration    = "duration"
	videoWidth  = "videoWidth"
	videoHeight = "videoHeight"
)

var log = logger.Get("Statistics")

func (*noopStats) Close() error {
	return nil
}

func (*noopStats) RoutineDone(analysis.Handler, string, *analysis.Outcome, time.Duration) {}

func (*noopStats) AnalysisDone(analysis.Handler, model.Metadata) {}

// New returns a no-op Statistics unless cfg enables collection.
func New(cfg *Config) (Statistics, error) {
	if cfg == nil || !cfg.Enabled {
		return &noopStats{}, nil
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create statistics dir %v", cfg.Dir)
	}
	s := &statistics{
		metrics: metrics.NewRegistry(),
		dir:     cfg.Dir,
		done:    make(chan struct{}),
	}
	for _, name := range []string{imageWidth, imageHeight, fileSize, duration, videoWidth, videoHeight} {
		if err := s.metrics.Register(name, newHistogram()); err != nil {
			return nil, errors.Wrapf(err, "failed to register metric %v", name)
		}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	s.wg.Add(1)
	go s.flushEvery(interval)

	return s, nil
}

func newHistogram() metrics.Histogram {
	return metrics.NewHistogram(metrics.NewExpDecaySample(sampleSize, sampleAlpha))
}

func (s *statistics) flushEvery(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.writeJSON(); err != nil {
				log.Emit(logger.ERROR, "%v", err)
			}
		}
	}
}

func (s *statistics) writeJSON() error {
	target := filepath.Join(s.dir, statsFile)
	tmp := fmt.Sprintf("%v.%v.tmp", target, uuid.NewString())
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644) //nolint:gosec // Our own dir.
	if err != nil {
		return errors.Wrap(err, "failed to open file for stats collection")
	}
	metrics.WriteJSONOnce(s.metrics, f)
	if err = errors.CombineErrors(f.Sync(), f.Close()); err != nil {
		_ = os.Remove(tmp)

		return errors.Wrapf(err, "failed to flush %v", tmp)
	}

	return errors.Wrapf(os.Rename(tmp, target), "failed to replace %v", target)
}

func (s *statistics) Close() error {
	var err error
	s.closed.Do(func() {
		close(s.done)
		s.wg.Wait()
		err = s.writeJSON()
	})

	return err
}

func (s *statistics) RoutineDone(_ analysis.Handler, routine string, outcome *analysis.Outcome, elapsed time.Duration) {
	s.counter(fmt.Sprintf("routine/%v/%v", routine, outcome.Kind)).Inc(1)
	s.histogram(fmt.Sprintf("routine/%v/elapsedMicros", routine)).Update(elapsed.Microseconds())
}

func (s *statistics) AnalysisDone(h analysis.Handler, md model.Metadata) {
	s.counter("category/" + h.Category().String()).Inc(1)
	if ext := strings.ToLower(filepath.Ext(h.Path())); ext != "" {
		s.counter("ext/" + ext).Inc(1)
	}
	if mime, ok := md["File:MIMEType"].(string); ok {
		s.counter("mime/" + mime).Inc(1)
	}
	if size, ok := md["File:FileSize"].(string); ok {
		if n, err := strconv.ParseInt(strings.TrimSuffix(size, " bytes"), 10, 64); err == nil {
			s.histogram(fileSize).Update(n)
		}
	}
	if width, ok := md["Vips:Width"].(int); ok {
		s.histogram(imageWidth).Update(int64(width))
	}
	if height, ok := md["Vips:Height"].(int); ok {
		s.histogram(imageHeight).Update(int64(height))
	}
	if d, ok := md["FFProbe:Duration"].(float64); ok {
		s.histogram(duration).Update(int64(d))
	}
	streams, _ := md["FFProbe:Streams"].([]model.Metadata) //nolint:errcheck // Absent for non media files.
	for _, stream := range streams {
		s.registerStream(stream)
	}
}

func (s *statistics) registerStream(stream model.Metadata) {
	format, _ := stream["Format"].(string) //nolint:errcheck // .
	codecType, _, _ := strings.Cut(format, "/")
	switch codecType {
	case "video":
		if w, ok := stream["Width"].(int); ok {
			s.histogram(videoWidth).Update(int64(w))
		}
		if h, ok := stream["Height"].(int); ok {
			s.histogram(videoHeight).Update(int64(h))
		}
		s.counter("videoCodec/" + format).Inc(1)
	case "audio":
		s.counter("audioCodec/" + format).Inc(1)
	}
}

func (s *statistics) counter(name string) metrics.Counter {
	c, _ := s.metrics.GetOrRegister(name, metrics.NewCounter).(metrics.Counter) //nolint:errcheck // Names are never reused across kinds.

	return c
}

func (s *statistics) histogram(name string) metrics.Histogram {
	h, _ := s.metrics.GetOrRegister(name, newHistogram).(metrics.Histogram) //nolint:errcheck // Names are never reused across kinds.

	return h
}
