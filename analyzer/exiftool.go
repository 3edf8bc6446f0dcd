// SPDX-License-Identifier: ice License 1.0

package analyzer

import (
	"context"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"

	"github.com/ice-blockchain/filemeta/analysis"
	"github.com/ice-blockchain/filemeta/memo"
	"github.com/ice-blockchain/filemeta/model"
)

type (
	ExifTool struct {
		tools *Tools
		data  memo.Value[model.Metadata]
		path  string
	}
)

var (
	errUnparsable = errors.New("unparsable tool output")

	//nolint:gochecknoglobals // Keys describing exiftool itself or duplicating other routines.
	exifToolIgnoredKeys = []string{
		"SourceFile",
		"ExifTool:ExifToolVersion",
		"ExifTool:Error",
		"ExifTool:Warning",
		"File:FileName",
		"File:Directory",
		"File:MIMEType",
	}
)

func NewExifTool(path string, tools *Tools) *ExifTool {
	return &ExifTool{path: path, tools: tools}
}

// Data is the complete, grouped (-G) exiftool output for the file. It runs exiftool once per instance.
func (e *ExifTool) Data(ctx context.Context) (model.Metadata, error) {
	return e.data.Get(func() (model.Metadata, error) {
		argv, err := e.tools.ExifTool(ctx)
		if err != nil {
			return nil, err
		}
		abs, err := filepath.Abs(e.path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to resolve %v", e.path)
		}
		out, runErr := e.tools.run(ctx, append(argv, "-G", "-j", abs)...)
		if runErr != nil && (errors.Is(runErr, ErrToolMissing) || len(out) == 0) {
			return nil, runErr
		}

		return parseExifToolOutput(out)
	})
}

func (e *ExifTool) Routines() []analysis.Routine {
	return []analysis.Routine{{Name: "analyze_exiftool", Run: e.analyze}}
}

func (e *ExifTool) analyze(ctx context.Context) analysis.Outcome {
	data, err := e.Data(ctx)
	switch {
	case errors.Is(err, ErrToolMissing):
		return analysis.ToolMissing("exiftool")
	case err != nil:
		return analysis.NotApplicable("exiftool: %v", err)
	}

	return analysis.Success(data.Without(exifToolIgnoredKeys...))
}

func parseExifToolOutput(out []byte) (model.Metadata, error) {
	if !gjson.ValidBytes(out) {
		return nil, errors.Wrapf(errUnparsable, "exiftool printed %q", truncate(out))
	}
	entries := gjson.ParseBytes(out).Array()
	if len(entries) != 1 || !entries[0].IsObject() {
		return nil, errors.Wrapf(errUnparsable, "expected exactly one object, got %v entries", len(entries))
	}
	values, _ := entries[0].Value().(map[string]any)

	return model.FromMap(values), nil
}

func truncate(b []byte) string {
	const maxLen = 200
	if len(b) > maxLen {
		return string(b[:maxLen]) + "..."
	}

	return string(b)
}
