// SPDX-License-Identifier: ice License 1.0

// Package analysis dispatches the analysis routines of a handler and merges their results.
package analysis

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ice-blockchain/filemeta/logger"
	"github.com/ice-blockchain/filemeta/model"
)

const (
	DefaultPrefix = "analyze_"
	DefaultSuffix = ""
)

type (
	RoutineFunc func(ctx context.Context) Outcome
	Routine     struct {
		Run  RoutineFunc
		Name string
	}
	// Capability is a composable unit of analysis attached to a handler.
	Capability interface {
		Routines() []Routine
	}
	// Handler wraps one file bound to a single media category.
	Handler interface {
		Path() string
		Category() model.Category
		Routines() []Routine
	}
	// Observer is notified about every routine run and every completed batch.
	Observer interface {
		RoutineDone(h Handler, routine string, outcome *Outcome, elapsed time.Duration)
		AnalysisDone(h Handler, md model.Metadata)
	}
	Option  func(*options)
	options struct {
		observer Observer
		prefix   string
		suffix   string
		subset   []string
	}
)

var log = logger.Get("Analysis")

func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

func WithSuffix(suffix string) Option {
	return func(o *options) { o.suffix = suffix }
}

// WithRoutines restricts the batch to the given routine names, which are used verbatim.
func WithRoutines(names ...string) Option {
	return func(o *options) { o.subset = append([]string{}, names...) }
}

func WithObserver(observer Observer) Option {
	return func(o *options) { o.observer = observer }
}

// Analyze runs the applicable routines of h in lexicographic name order and merges their mappings.
// A key produced by several routines keeps the value of the lexicographically last routine.
// A Failed outcome aborts the batch; no partial mapping is returned in that case.
func Analyze(ctx context.Context, h Handler, opts ...Option) (model.Metadata, error) {
	o := &options{prefix: DefaultPrefix, suffix: DefaultSuffix}
	for _, opt := range opts {
		opt(o)
	}
	candidates, err := o.candidates(h.Routines())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to select routines for %v", h.Path())
	}
	md := make(model.Metadata)
	for _, routine := range candidates {
		start := time.Now()
		outcome := routine.Run(ctx)
		if o.observer != nil {
			o.observer.RoutineDone(h, routine.Name, &outcome, time.Since(start))
		}
		switch outcome.Kind {
		case KindSuccess:
			md.Merge(outcome.Contribution())
		case KindNotApplicable:
			log.Emit(logger.DEBUG, "%v skipped for %v: %v", routine.Name, h.Path(), outcome.Reason)
		case KindToolMissing:
			log.Emit(logger.WARNING, "%v skipped for %v: %v is not available", routine.Name, h.Path(), outcome.Reason)
		default:
			cause := outcome.Err
			if cause == nil {
				cause = errors.Errorf("unexpected outcome %v", outcome.Kind)
			}

			return nil, &RoutineError{Routine: routine.Name, Cause: cause}
		}
	}
	if o.observer != nil {
		o.observer.AnalysisDone(h, md)
	}

	return md, nil
}

// Names lists the routine names of h matching the default prefix, sorted.
func Names(h Handler) []string {
	o := &options{prefix: DefaultPrefix, suffix: DefaultSuffix}
	routines, _ := o.candidates(h.Routines()) //nolint:errcheck // Cannot fail without a subset.
	names := make([]string, 0, len(routines))
	for _, r := range routines {
		names = append(names, r.Name)
	}

	return names
}

func (o *options) candidates(all []Routine) ([]Routine, error) {
	byName := make(map[string]Routine, len(all))
	for _, r := range all {
		if _, dup := byName[r.Name]; dup {
			return nil, errors.Errorf("routine %v is declared twice", r.Name)
		}
		byName[r.Name] = r
	}
	var selected []Routine
	if o.subset != nil {
		selected = make([]Routine, 0, len(o.subset))
		seen := make(map[string]struct{}, len(o.subset))
		for _, name := range o.subset {
			r, found := byName[name]
			if !found {
				return nil, errors.Wrapf(model.ErrNotFound, "routine %v", name)
			}
			if _, dup := seen[name]; !dup {
				seen[name] = struct{}{}
				selected = append(selected, r)
			}
		}
	} else {
		selected = make([]Routine, 0, len(all))
		for _, r := range all {
			if strings.HasPrefix(r.Name, o.prefix) && strings.HasSuffix(r.Name, o.suffix) {
				selected = append(selected, r)
			}
		}
	}
	sort.Slice(selected, func(i, j int) bool { return selected[i].Name < selected[j].Name })

	return selected, nil
}

// Collect concatenates the routines of the given capabilities.
func Collect(capabilities ...Capability) []Routine {
	var routines []Routine
	for _, c := range capabilities {
		routines = append(routines, c.Routines()...)
	}

	return routines
}
