// SPDX-License-Identifier: ice License 1.0

package analyzer

import (
	"context"
	"image"
	"image/color"
	"image/gif"
	_ "image/jpeg" // Register decoder.
	_ "image/png"  // Register decoder.
	"io"
	"math"
	"os"

	"github.com/cockroachdb/errors"
	_ "golang.org/x/image/bmp" // Register decoder.
	"golang.org/x/image/colornames"
	_ "golang.org/x/image/tiff" // Register decoder.
	_ "golang.org/x/image/webp" // Register decoder.

	"github.com/ice-blockchain/filemeta/analysis"
	"github.com/ice-blockchain/filemeta/memo"
	"github.com/ice-blockchain/filemeta/model"
)

const (
	channels = 3
	// A grey level is frequent when it covers at least this share of the pixels.
	frequentGreyShare = 0.005
	// Sobel magnitude, scaled back to 0..255, above which a pixel is an edge.
	edgeThreshold = 64
)

type (
	Color struct {
		frames memo.Value[[]image.Image]
		path   string
	}
	colorStats struct {
		sum          [3]float64
		greyLevels   [256]int
		greyErrorSum float64
		pixels       int
		usesAlpha    bool
	}
)

func NewColor(path string) *Color {
	return &Color{path: path}
}

// Frames decodes the image once per instance. Animated GIFs yield every frame.
func (c *Color) Frames() ([]image.Image, error) {
	return c.frames.Get(func() ([]image.Image, error) {
		f, err := os.Open(c.path)
		if err != nil {
			return nil, model.Categorize(errors.Wrapf(err, "failed to open %v", c.path), model.ErrEnvironment)
		}
		defer f.Close()
		_, format, err := image.DecodeConfig(f)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode %v", c.path)
		}
		if _, err = f.Seek(0, io.SeekStart); err != nil {
			return nil, errors.Wrapf(err, "failed to rewind %v", c.path)
		}
		if format == "gif" {
			anim, gErr := gif.DecodeAll(f)
			if gErr != nil {
				return nil, errors.Wrapf(gErr, "failed to decode %v", c.path)
			}
			frames := make([]image.Image, 0, len(anim.Image))
			for _, frame := range anim.Image {
				frames = append(frames, frame)
			}

			return frames, nil
		}
		img, _, err := image.Decode(f)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode %v", c.path)
		}

		return []image.Image{img}, nil
	})
}

func (c *Color) Routines() []analysis.Routine {
	return []analysis.Routine{{Name: "analyze_color_info", Run: c.analyze}}
}

func (c *Color) analyze(context.Context) analysis.Outcome {
	frames, err := c.Frames()
	if err != nil {
		if errors.Is(err, model.ErrEnvironment) {
			return analysis.Failed(err)
		}

		return analysis.NotApplicable("not decodable as an image: %v", err)
	}
	if len(frames) == 0 {
		return analysis.NotApplicable("image has no frames")
	}

	return analysis.Success(ColorInfo(frames))
}

// ColorInfo summarises pixel colours across frames. Grey shades, the grey error and the edge ratio are
// reported for still images only.
func ColorInfo(frames []image.Image) model.Metadata {
	var stats colorStats
	for _, frame := range frames {
		stats.add(frame)
	}
	if stats.pixels == 0 {
		return model.Metadata{}
	}
	n := float64(stats.pixels)
	average := [3]float64{round3(stats.sum[0] / n), round3(stats.sum[1] / n), round3(stats.sum[2] / n)}
	name, labeled := ClosestLabeledColor(average)
	md := model.Metadata{
		"Color:AverageRGB":             average,
		"Color:ClosestLabeledColor":    name,
		"Color:ClosestLabeledColorRGB": [3]int{int(labeled.R), int(labeled.G), int(labeled.B)},
		"Color:PercentFrequentColors":  round3(float64(stats.frequentGreyLevels()) / float64(len(stats.greyLevels))),
	}
	if stats.usesAlpha {
		md.Set("Color:UsesAlpha", true)
	}
	if len(frames) == 1 {
		md.Set("Color:NumberOfGreyShades", stats.greyShades())
		md.Set("Color:MeanSquareErrorFromGrey", round3(stats.greyErrorSum/n))
		md.Set("Color:EdgeRatio", round3(EdgeRatio(frames[0])))
	}

	return md
}

// ClosestLabeledColor is the SVG named colour nearest to rgb. Ties go to the alphabetically first name.
func ClosestLabeledColor(rgb [3]float64) (string, color.RGBA) {
	best, bestDist := "", math.Inf(1)
	for _, name := range colornames.Names {
		c := colornames.Map[name]
		dr, dg, db := rgb[0]-float64(c.R), rgb[1]-float64(c.G), rgb[2]-float64(c.B)
		if dist := dr*dr + dg*dg + db*db; dist < bestDist {
			best, bestDist = name, dist
		}
	}

	return best, colornames.Map[best]
}

// EdgeRatio is the share of pixels whose Sobel gradient on the grey plane exceeds edgeThreshold.
// Border pixels are never edges.
func EdgeRatio(img image.Image) float64 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return 0
	}
	grey := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			grey[y*w+x] = float64(greyOf(img.At(bounds.Min.X+x, bounds.Min.Y+y)))
		}
	}
	at := func(x, y int) float64 { return grey[y*w+x] }
	edges := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1) - at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1)
			gy := at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1) - at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1)
			if math.Hypot(gx, gy)/4 >= edgeThreshold {
				edges++
			}
		}
	}

	return float64(edges) / float64(w*h)
}

func greyOf(c color.Color) uint8 {
	px, _ := color.NRGBAModel.Convert(c).(color.NRGBA)
	grey, _ := color.GrayModel.Convert(color.NRGBA{R: px.R, G: px.G, B: px.B, A: math.MaxUint8}).(color.Gray)

	return grey.Y
}

func (s *colorStats) greyShades() int {
	shades := 0
	for _, count := range s.greyLevels {
		if count > 0 {
			shades++
		}
	}

	return shades
}

func (s *colorStats) frequentGreyLevels() int {
	frequent := 0
	for _, count := range s.greyLevels {
		if count > 0 && float64(count) >= frequentGreyShare*float64(s.pixels) {
			frequent++
		}
	}

	return frequent
}

func (s *colorStats) add(img image.Image) {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			px, _ := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if px.A != math.MaxUint8 {
				s.usesAlpha = true
			}
			r, g, b := float64(px.R), float64(px.G), float64(px.B)
			s.sum[0] += r
			s.sum[1] += g
			s.sum[2] += b
			s.greyLevels[greyOf(px)]++
			mean := (r + g + b) / channels
			s.greyErrorSum += ((r-mean)*(r-mean) + (g-mean)*(g-mean) + (b-mean)*(b-mean)) / channels
			s.pixels++
		}
	}
}

func round3(v float64) float64 {
	const scale = 1000

	return math.Round(v*scale) / scale
}
