// SPDX-License-Identifier: ice License 1.0

package analyzer

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/ice-blockchain/filemeta/analysis"
	"github.com/ice-blockchain/filemeta/model"
)

type (
	// Geolocation reports the GPS position exiftool computed for the file as signed decimal degrees.
	Geolocation struct {
		exif *ExifTool
	}
)

//nolint:gochecknoglobals // Compiled once.
var dmsCoordinate = regexp.MustCompile(`^(\d+(?:\.\d+)?) deg (\d+(?:\.\d+)?)' (\d+(?:\.\d+)?)"(?: ([NSEW]))?$`)

func NewGeolocation(exif *ExifTool) *Geolocation {
	return &Geolocation{exif: exif}
}

func (g *Geolocation) Routines() []analysis.Routine {
	return []analysis.Routine{{Name: "analyze_geolocation", Run: g.analyze}}
}

func (g *Geolocation) analyze(ctx context.Context) analysis.Outcome {
	data, err := g.exif.Data(ctx)
	switch {
	case errors.Is(err, ErrToolMissing):
		return analysis.ToolMissing("exiftool")
	case err != nil:
		return analysis.NotApplicable("exiftool: %v", err)
	}
	lat, latOK := ParseCoordinate(data["Composite:GPSLatitude"])
	lon, lonOK := ParseCoordinate(data["Composite:GPSLongitude"])
	if !latOK || !lonOK {
		return analysis.NotApplicable("no GPS position")
	}

	return analysis.Success(model.Metadata{"Composite:GPSLatitude": lat, "Composite:GPSLongitude": lon})
}

// ParseCoordinate accepts exiftool's numeric (-n) form as well as its default `34 deg 44' 53.74" N` form.
// Southern and western hemispheres are negative.
func ParseCoordinate(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		val = strings.TrimSpace(val)
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f, true
		}
		m := dmsCoordinate.FindStringSubmatch(val)
		if m == nil {
			return 0, false
		}
		deg, _ := strconv.ParseFloat(m[1], 64)  //nolint:errcheck // Matched \d+(\.\d+)?.
		mins, _ := strconv.ParseFloat(m[2], 64) //nolint:errcheck // Matched \d+(\.\d+)?.
		secs, _ := strconv.ParseFloat(m[3], 64) //nolint:errcheck // Matched \d+(\.\d+)?.
		const minutesPerDegree, secondsPerDegree = 60, 3600
		coord := deg + mins/minutesPerDegree + secs/secondsPerDegree
		if m[4] == "S" || m[4] == "W" {
			coord = -coord
		}

		return coord, true
	default:
		return 0, false
	}
}
