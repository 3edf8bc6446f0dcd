// SPDX-License-Identifier: ice License 1.0

package retry

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func flaky(succeedOn int, calls *int) func() (bool, error) {
	return func() (bool, error) {
		*calls++
		if *calls >= succeedOn {
			return true, nil
		}

		return false, errFlaky
	}
}

func TestDo(t *testing.T) {
	t.Parallel()
	const k = 6
	t.Run("succeeds on the last allowed attempt", func(t *testing.T) {
		t.Parallel()
		calls := 0
		ok, err := Wrap(k, flaky(k, &calls))(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, k, calls)
	})
	t.Run("gives up after tries", func(t *testing.T) {
		t.Parallel()
		calls := 0
		_, err := Wrap(k-1, flaky(k, &calls))(context.Background())
		require.ErrorIs(t, err, errFlaky)
		require.Equal(t, k-1, calls)
	})
	t.Run("single try", func(t *testing.T) {
		t.Parallel()
		calls := 0
		_, err := Do(context.Background(), 1, flaky(2, &calls))
		require.ErrorIs(t, err, errFlaky)
		require.Equal(t, 1, calls)
	})
	t.Run("invalid tries", func(t *testing.T) {
		t.Parallel()
		_, err := Do(context.Background(), 0, func() (int, error) { return 1, nil })
		require.Error(t, err)
	})
}

func TestPermanentStopsEarly(t *testing.T) {
	t.Parallel()
	calls := 0
	_, err := Do(context.Background(), 5, func() (int, error) {
		calls++

		return 0, Permanent(errFlaky)
	})
	require.ErrorIs(t, err, errFlaky)
	require.Equal(t, 1, calls)
}

func TestDoWithDelay(t *testing.T) {
	t.Parallel()
	calls := 0
	start := time.Now()
	ok, err := DoWithDelay(context.Background(), 3, 10*time.Millisecond, flaky(3, &calls))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 3, calls)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
