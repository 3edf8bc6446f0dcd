// SPDX-License-Identifier: ice License 1.0

// Package memo caches expensive derived computations for the lifetime of the value that owns them.
package memo

// Value holds the result of a single computation. The zero value is ready to use.
// Owners embed one Value per computation, which makes the cache key (owner instance, computation).
// Value is not synchronised; concurrent first calls may both compute.
type Value[T any] struct {
	val  T
	err  error
	done bool
}

// Get returns the stored result, running compute only on the first call.
// Errors are memoized as well, so a failed computation is not re-attempted.
func (v *Value[T]) Get(compute func() (T, error)) (T, error) {
	if !v.done {
		v.val, v.err = compute()
		v.done = true
	}

	return v.val, v.err
}

func (v *Value[T]) Computed() bool {
	return v.done
}

func (v *Value[T]) Reset() {
	var zero T
	v.val, v.err, v.done = zero, nil, false
}
