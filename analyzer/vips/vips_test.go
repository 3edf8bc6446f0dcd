// SPDX-License-Identifier: ice License 1.0

package vips

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ice-blockchain/filemeta/analysis"
	"github.com/ice-blockchain/filemeta/file"
	"github.com/ice-blockchain/filemeta/model"
)

func TestMain(m *testing.M) {
	code := m.Run()
	_ = file.Shutdown() //nolint:errcheck // Nothing to report after the run.
	os.Exit(code)
}

func helperFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	return path
}

func TestRegisteredOnImport(t *testing.T) {
	t.Parallel()
	assert.Contains(t, file.RegisteredImageCapabilities(), "vips")
}

func TestHeader(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 3, 2))))

	outcome := New(helperFile(t, "a.png", buf.Bytes())).Routines()[0].Run(context.Background())
	require.Equal(t, analysis.KindSuccess, outcome.Kind)
	assert.Equal(t, model.Metadata{
		"Vips:Width":  3,
		"Vips:Height": 2,
		"Vips:Bands":  4,
		"Vips:Pages":  1,
		"Vips:Format": "png",
	}, outcome.Metadata)
}

func TestHeaderNotAnImage(t *testing.T) {
	t.Parallel()
	outcome := New(helperFile(t, "a.png", []byte("nope"))).Routines()[0].Run(context.Background())
	assert.Equal(t, analysis.KindNotApplicable, outcome.Kind)
}
