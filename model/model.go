// SPDX-License-Identifier: ice License 1.0

package model

import (
	"github.com/cockroachdb/errors"
)

type (
	Category int
)

const (
	CategoryGeneric Category = iota
	CategoryImage
	CategoryAudio
	CategoryVideo
)

var (
	// ErrEnvironment marks failures caused by an unprovisioned environment (missing sniffing backend,
	// unreadable file). They are never retried.
	ErrEnvironment = errors.New("environment not provisioned")
	ErrNotFound    = errors.New("not found")
)

func (c Category) String() string {
	switch c {
	case CategoryImage:
		return "image"
	case CategoryAudio:
		return "audio"
	case CategoryVideo:
		return "video"
	default:
		return "generic"
	}
}

func ParseCategory(s string) (Category, error) {
	for _, c := range []Category{CategoryGeneric, CategoryImage, CategoryAudio, CategoryVideo} {
		if c.String() == s {
			return c, nil
		}
	}

	return CategoryGeneric, errors.Errorf("unknown category %q", s)
}

// Categorize places category in err's wrap chain, so errors.Is from both the standard library and
// cockroachdb/errors matches it. err itself is kept as the secondary error.
func Categorize(err, category error) error {
	if err == nil {
		return nil
	}

	return errors.WithSecondaryError(errors.Wrap(category, err.Error()), err)
}
