// SPDX-License-Identifier: ice License 1.0

package file

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ice-blockchain/filemeta/analysis"
	"github.com/ice-blockchain/filemeta/model"
)

type stubCapability struct {
	path string
}

func (s *stubCapability) Routines() []analysis.Routine {
	return []analysis.Routine{{Name: "analyze_stub", Run: func(context.Context) analysis.Outcome {
		return analysis.Success(model.Metadata{"Stub:Path": s.path})
	}}}
}

//nolint:paralleltest // Mutates the global registry.
func TestRegisterImageCapability(t *testing.T) {
	registry.mx.Lock()
	saved := registry.image
	registry.image = nil
	registry.mx.Unlock()
	t.Cleanup(func() {
		registry.mx.Lock()
		registry.image = saved
		registry.mx.Unlock()
	})

	shutdowns := 0
	factory := func(path string, _ *Env) analysis.Capability { return &stubCapability{path: path} }
	RegisterImageCapability("stub", factory, func() error {
		shutdowns++

		return errors.New("still busy")
	})
	RegisterImageCapability("stub", factory, nil)
	assert.Equal(t, []string{"stub"}, RegisteredImageCapabilities())

	path := helperFile(t, "a.png", []byte("x"))
	img, err := NewImage(path, helperEnv())
	require.NoError(t, err)
	md, err := img.Metadata(context.Background(), analysis.WithRoutines("analyze_stub"))
	require.NoError(t, err)
	assert.Equal(t, model.Metadata{"Stub:Path": img.Path()}, md)

	g, err := NewGeneric(path, helperEnv())
	require.NoError(t, err)
	assert.NotContains(t, analysis.Names(g), "analyze_stub")

	err = Shutdown()
	require.ErrorContains(t, err, "still busy")
	require.NoError(t, Shutdown())
	assert.Equal(t, 1, shutdowns)
}
