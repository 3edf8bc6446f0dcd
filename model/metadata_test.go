// SPDX-License-Identifier: ice License 1.0

package model

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rand"
)

func TestFromMapDropsNil(t *testing.T) {
	t.Parallel()
	var nilPtr *int
	var nilSlice []string
	md := FromMap(map[string]any{"a": 1, "b": nil, "c": 3, "d": nilPtr, "e": nilSlice})
	require.Equal(t, Metadata{"a": 1, "c": 3}, md)
}

func TestSet(t *testing.T) {
	t.Parallel()
	t.Run("nil is never inserted", func(t *testing.T) {
		md := Metadata{}
		md.Set("a", 1)
		md.Set("b", nil)
		require.Equal(t, Metadata{"a": 1}, md)
	})
	t.Run("nil removes existing key", func(t *testing.T) {
		md := Metadata{}
		md.Set("a", 1)
		require.Equal(t, Metadata{"a": 1}, md)
		md.Set("a", nil)
		require.Empty(t, md)
	})
	t.Run("zero values are kept", func(t *testing.T) {
		md := Metadata{}
		md.Set("zero", 0)
		md.Set("empty", "")
		md.Set("false", false)
		require.Len(t, md, 3)
	})
}

func TestFromPairs(t *testing.T) {
	t.Parallel()
	md, err := FromPairs("a", 1, "b", nil, "c", "x")
	require.NoError(t, err)
	require.Equal(t, Metadata{"a": 1, "c": "x"}, md)

	_, err = FromPairs("a", 1, "b")
	require.Error(t, err)
	_, err = FromPairs(1, 1)
	require.Error(t, err)
	require.Panics(t, func() { MustFromPairs("odd") })
}

func TestMergeLaterWins(t *testing.T) {
	t.Parallel()
	md := Metadata{"X": 1, "Y": "y"}
	md.Merge(Metadata{"X": 2, "Z": true})
	require.Equal(t, Metadata{"X": 2, "Y": "y", "Z": true}, md)
	require.Equal(t, []string{"X", "Y", "Z"}, md.Keys())
	require.Equal(t, Metadata{"Y": "y", "Z": true}, md.Without("X"))
	require.Contains(t, md, "X")
}

func TestNeverStoresNilRandomized(t *testing.T) {
	t.Parallel()
	md := Metadata{}
	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("k%v", rand.Intn(20))
		if rand.Intn(3) == 0 {
			md.Set(key, nil)
			assert.NotContains(t, md, key)
		} else {
			md.Set(key, i)
		}
		for k, v := range md {
			require.False(t, IsNil(v), "key %v holds nil", k)
		}
	}
}

func TestCategory(t *testing.T) {
	t.Parallel()
	for _, c := range []Category{CategoryGeneric, CategoryImage, CategoryAudio, CategoryVideo} {
		parsed, err := ParseCategory(c.String())
		require.NoError(t, err)
		require.Equal(t, c, parsed)
	}
	_, err := ParseCategory("hologram")
	require.Error(t, err)
}
