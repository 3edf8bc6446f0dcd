// SPDX-License-Identifier: ice License 1.0

package analysis

import (
	"fmt"

	"github.com/ice-blockchain/filemeta/model"
)

type (
	OutcomeKind int
	// Outcome is the tagged result of one routine. Only Failed aborts a batch.
	Outcome struct {
		Err      error
		Metadata model.Metadata
		Reason   string
		Kind     OutcomeKind
	}
	// RoutineError names the routine whose failure aborted a batch.
	RoutineError struct {
		Cause   error
		Routine string
	}
)

const (
	KindSuccess OutcomeKind = iota
	KindNotApplicable
	KindToolMissing
	KindFailed
)

func Success(md model.Metadata) Outcome {
	if md == nil {
		md = model.Metadata{}
	}

	return Outcome{Kind: KindSuccess, Metadata: md}
}

// NotApplicable is an expected absence: unsupported input, nothing detected, tool refused the file.
func NotApplicable(reason string, args ...any) Outcome {
	return Outcome{Kind: KindNotApplicable, Reason: fmt.Sprintf(reason, args...)}
}

func ToolMissing(tool string) Outcome {
	return Outcome{Kind: KindToolMissing, Reason: tool}
}

func Failed(err error) Outcome {
	return Outcome{Kind: KindFailed, Err: err}
}

func (k OutcomeKind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindNotApplicable:
		return "not_applicable"
	case KindToolMissing:
		return "tool_missing"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Contribution is what the outcome adds to the merged mapping.
func (o *Outcome) Contribution() model.Metadata {
	if o.Kind != KindSuccess {
		return nil
	}

	return o.Metadata
}

func (e *RoutineError) Error() string {
	return fmt.Sprintf("routine %v failed: %v", e.Routine, e.Cause)
}

func (e *RoutineError) Unwrap() error {
	return e.Cause
}
