// SPDX-License-Identifier: ice License 1.0

package cfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMustGet(t *testing.T) {
	t.Parallel()
	type testCfg struct{ A string }
	require.Equal(t, "b", MustGet[testCfg]().A)
	assert.Equal(t, "cfg", Key[testCfg]())
}

func TestValidation(t *testing.T) {
	t.Parallel()
	type testCfg struct {
		A     string `validate:"oneof=b c"`
		Tries int    `validate:"gte=0"`
	}
	_, err := Get[testCfg]()
	require.NoError(t, err)

	require.Error(t, Validate(&testCfg{A: "b", Tries: -1}))
	require.NoError(t, Validate(&testCfg{A: "c"}))
}
