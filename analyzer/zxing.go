// SPDX-License-Identifier: ice License 1.0

package analyzer

import (
	"context"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/multi"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/ice-blockchain/filemeta/analysis"
	"github.com/ice-blockchain/filemeta/model"
)

type (
	// Zxing decodes barcodes in the first frame of the image decoded by the colour capability.
	Zxing struct {
		frames *Color
	}
)

func NewZxing(frames *Color) *Zxing {
	return &Zxing{frames: frames}
}

func (z *Zxing) Routines() []analysis.Routine {
	return []analysis.Routine{{Name: "analyze_barcode_zxing", Run: z.analyze}}
}

func (z *Zxing) analyze(context.Context) analysis.Outcome {
	frames, err := z.frames.Frames()
	if err != nil {
		if errors.Is(err, model.ErrEnvironment) {
			return analysis.Failed(err)
		}

		return analysis.NotApplicable("not decodable as an image: %v", err)
	}
	if len(frames) == 0 {
		return analysis.NotApplicable("image has no frames")
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(frames[0])
	if err != nil {
		return analysis.NotApplicable("zxing: %v", err)
	}
	barcodes := DecodeBarcodes(bmp)
	if len(barcodes) == 0 {
		return analysis.NotApplicable("no barcodes found")
	}

	return analysis.Success(model.Metadata{"zxing:Barcodes": barcodes})
}

// DecodeBarcodes runs the 2D readers and then every 1D symbology, which may yield several barcodes.
// Readers that find nothing are skipped.
func DecodeBarcodes(bmp *gozxing.BinaryBitmap) []model.Metadata {
	hints := map[gozxing.DecodeHintType]interface{}{gozxing.DecodeHintType_TRY_HARDER: true}
	var results []*gozxing.Result
	for _, reader := range []gozxing.Reader{qrcode.NewQRCodeReader(), datamatrix.NewDataMatrixReader()} {
		if result, err := reader.Decode(bmp, hints); err == nil {
			results = append(results, result)
		}
	}
	if found, err := multi.NewGenericMultipleBarcodeReader(oned.NewMultiFormatOneDReader(hints)).DecodeMultiple(bmp, hints); err == nil {
		results = append(results, found...)
	}
	barcodes := make([]model.Metadata, 0, len(results))
	seen := make(map[string]struct{}, len(results))
	for _, result := range results {
		format := result.GetBarcodeFormat().String()
		if _, dup := seen[format+"\x00"+result.GetText()]; dup {
			continue
		}
		seen[format+"\x00"+result.GetText()] = struct{}{}
		barcode := model.Metadata{"format": format, "data": result.GetText()}
		barcode.Set("bounding box", resultBoundingBox(result.GetResultPoints()))
		barcodes = append(barcodes, barcode)
	}

	return barcodes
}

// resultBoundingBox encloses the finder or end points zxing reports. 1D symbols report points on a single
// row, their box is one pixel high.
func resultBoundingBox(points []gozxing.ResultPoint) model.Metadata {
	if len(points) == 0 {
		return nil
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX, maxX = math.Min(minX, p.GetX()), math.Max(maxX, p.GetX())
		minY, maxY = math.Min(minY, p.GetY()), math.Max(maxY, p.GetY())
	}
	left, top := int(math.Round(minX)), int(math.Round(minY))

	return model.Metadata{
		"left":   left,
		"top":    top,
		"width":  max(int(math.Round(maxX))-left, 1),
		"height": max(int(math.Round(maxY))-top, 1),
	}
}
