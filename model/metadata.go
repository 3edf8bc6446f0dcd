// SPDX-License-Identifier: ice License 1.0

package model

import (
	"reflect"
	"sort"

	"github.com/cockroachdb/errors"
)

// Metadata maps namespaced keys ("File:MIMEType", "Color:AverageRGB") to values.
// No key ever maps to nil: assigning nil through Set removes the key.
type Metadata map[string]any

func FromMap(m map[string]any) Metadata {
	md := make(Metadata, len(m))
	for k, v := range m {
		md.Set(k, v)
	}

	return md
}

// FromPairs builds a mapping from alternating key/value arguments, dropping nil values.
func FromPairs(pairs ...any) (Metadata, error) {
	if len(pairs)%2 != 0 {
		return nil, errors.Errorf("odd number of arguments %v", len(pairs))
	}
	md := make(Metadata, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, errors.Errorf("key at position %v is %T, not string", i, pairs[i])
		}
		md.Set(key, pairs[i+1])
	}

	return md, nil
}

func MustFromPairs(pairs ...any) Metadata {
	md, err := FromPairs(pairs...)
	if err != nil {
		panic(err)
	}

	return md
}

func (md Metadata) Set(key string, value any) {
	if IsNil(value) {
		delete(md, key)

		return
	}
	md[key] = value
}

// Merge writes every key of other into md in order, so keys of other win.
func (md Metadata) Merge(other Metadata) Metadata {
	for k, v := range other {
		md.Set(k, v)
	}

	return md
}

func (md Metadata) Clone() Metadata {
	return make(Metadata, len(md)).Merge(md)
}

func (md Metadata) Keys() []string {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

func (md Metadata) Without(keys ...string) Metadata {
	res := md.Clone()
	for _, k := range keys {
		delete(res, k)
	}

	return res
}

// IsNil reports whether v is nil or a nil pointer, map, slice, func, chan or interface.
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
