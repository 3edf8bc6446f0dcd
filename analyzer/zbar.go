// SPDX-License-Identifier: ice License 1.0

package analyzer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/ice-blockchain/filemeta/analysis"
	"github.com/ice-blockchain/filemeta/model"
)

// zbarimg exits with 4 when the image was read but holds no symbols.
const zbarNoSymbols = 4

type (
	Zbar struct {
		tools *Tools
		path  string
	}
	zbarReport struct {
		Symbols []zbarSymbol `xml:"source>index>symbol"`
	}
	zbarSymbol struct {
		Type    string `xml:"type,attr"`
		Polygon struct {
			Points string `xml:"points,attr"`
		} `xml:"polygon"`
		Data struct {
			Format string `xml:"format,attr"`
			Text   string `xml:",chardata"`
		} `xml:"data"`
	}
)

//nolint:gochecknoglobals // Symbology names zbarimg prints that do not reduce to the usual upper case form.
var zbarSymbologies = map[string]string{
	"DataBar-Exp": "DATABAR_EXP",
}

func NewZbar(path string, tools *Tools) *Zbar {
	return &Zbar{path: path, tools: tools}
}

func (z *Zbar) Routines() []analysis.Routine {
	return []analysis.Routine{{Name: "analyze_barcode_zbar", Run: z.analyze}}
}

func (z *Zbar) analyze(ctx context.Context) analysis.Outcome {
	bin, err := z.tools.Zbar()
	if err != nil {
		return analysis.ToolMissing("zbarimg")
	}
	out, err := z.tools.run(ctx, bin, "--xml", "-q", z.path)
	switch {
	case errors.Is(err, ErrToolMissing):
		return analysis.ToolMissing("zbarimg")
	case exitCode(err) == zbarNoSymbols:
		return analysis.NotApplicable("no barcodes found")
	case err != nil:
		return analysis.NotApplicable("zbarimg: %v", err)
	}
	barcodes, err := ParseZbarOutput(out)
	if err != nil {
		return analysis.NotApplicable("zbarimg: %v", err)
	}
	if len(barcodes) == 0 {
		return analysis.NotApplicable("no barcodes found")
	}

	return analysis.Success(model.Metadata{"zbar:Barcodes": barcodes})
}

// ParseZbarOutput reads the --xml report of zbarimg. Each barcode carries its format, data and, when
// zbarimg reports the symbol polygon, its bounding box.
func ParseZbarOutput(out []byte) ([]model.Metadata, error) {
	var report zbarReport
	if err := xml.NewDecoder(bytes.NewReader(out)).Decode(&report); err != nil {
		return nil, errors.Wrapf(errUnparsable, "zbarimg printed %q: %v", truncate(out), err)
	}
	barcodes := make([]model.Metadata, 0, len(report.Symbols))
	for i := range report.Symbols {
		sym := &report.Symbols[i]
		data := sym.Data.Text
		if sym.Data.Format == "base64" {
			raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
			if err != nil {
				return nil, errors.Wrapf(errUnparsable, "invalid base64 data for %v symbol: %v", sym.Type, err)
			}
			data = string(raw)
		}
		barcode := model.Metadata{"format": ZbarSymbology(sym.Type), "data": data}
		barcode.Set("bounding box", polygonBoundingBox(sym.Polygon.Points))
		barcodes = append(barcodes, barcode)
	}

	return barcodes, nil
}

// ZbarSymbology maps zbarimg's symbology names ("QR-Code", "I2/5", "EAN-13") to the zbar library constants
// ("QRCODE", "I25", "EAN13").
func ZbarSymbology(name string) string {
	if mapped, ok := zbarSymbologies[name]; ok {
		return mapped
	}

	return strings.ToUpper(strings.NewReplacer("-", "", "/", "").Replace(name))
}

// polygonBoundingBox turns "+7,9 +7,359 +357,359 +357,9" into the enclosing rectangle.
func polygonBoundingBox(points string) model.Metadata {
	fields := strings.Fields(points)
	if len(fields) == 0 {
		return nil
	}
	var minX, minY, maxX, maxY int
	for i, field := range fields {
		xs, ys, found := strings.Cut(field, ",")
		if !found {
			return nil
		}
		x, xErr := strconv.Atoi(xs)
		y, yErr := strconv.Atoi(ys)
		if xErr != nil || yErr != nil {
			return nil
		}
		if i == 0 {
			minX, maxX, minY, maxY = x, x, y, y

			continue
		}
		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)
	}

	return model.Metadata{"left": minX, "top": minY, "width": maxX - minX, "height": maxY - minY}
}
