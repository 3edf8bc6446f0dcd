// SPDX-License-Identifier: ice License 1.0

package analyzer

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ice-blockchain/filemeta/analysis"
	"github.com/ice-blockchain/filemeta/model"
	"github.com/ice-blockchain/filemeta/resources"
)

func helperScript(t *testing.T, body string) (script, calls string) {
	t.Helper()
	dir := t.TempDir()
	script, calls = filepath.Join(dir, "tool.sh"), filepath.Join(dir, "calls")
	content := fmt.Sprintf("#!/bin/sh\necho x >> %q\n%v\n", calls, body)
	require.NoError(t, os.WriteFile(script, []byte(content), 0o700)) //nolint:gosec // Test executable.

	return script, calls
}

func helperCalls(t *testing.T, calls string) int {
	t.Helper()
	b, err := os.ReadFile(calls)
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	require.NoError(t, err)

	return strings.Count(string(b), "\n")
}

func helperNoPath(string) (string, error) {
	return "", errors.New("not on PATH")
}

func helperFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func helperPNG(t *testing.T, img image.Image) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	return helperFile(t, "image.png", buf.String())
}

func helperUniform(c color.Color, w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}

	return img
}

func TestStatAndMimeType(t *testing.T) {
	t.Parallel()
	path := helperFile(t, "notes.png", "plain words, not a picture\n")

	stat := NewStat(path).Routines()[0].Run(context.Background())
	require.Equal(t, analysis.KindSuccess, stat.Kind)
	assert.Equal(t, model.Metadata{"File:FileSize": "27 bytes"}, stat.Metadata)

	mime := NewMimeType(path, "", ContentSniffer{}).Routines()[0].Run(context.Background())
	require.Equal(t, analysis.KindSuccess, mime.Kind)
	assert.Equal(t, "text/plain", mime.Metadata["File:MIMEType"])
	assert.Equal(t, "image/png", mime.Metadata["File:ExtensionMIMEType"])

	missing := NewStat(filepath.Join(t.TempDir(), "absent")).Routines()[0].Run(context.Background())
	require.Equal(t, analysis.KindFailed, missing.Kind)
	require.ErrorIs(t, missing.Err, model.ErrEnvironment)
}

func TestMimeTypeKnownSkipsSniffing(t *testing.T) {
	t.Parallel()
	m := NewMimeType(filepath.Join(t.TempDir(), "absent"), "video/mp4", ContentSniffer{})
	mime, err := m.MIME()
	require.NoError(t, err)
	assert.Equal(t, "video/mp4", mime)
	assert.Equal(t, "image/svg+xml", NormalizeMIME("Image/SVG+XML; charset=utf-8"))
}

func TestExifTool(t *testing.T) {
	t.Parallel()
	path := helperFile(t, "a.txt", "hello")
	script, calls := helperScript(t, `echo '[{"SourceFile":"a.txt","ExifTool:ExifToolVersion":12.7,"File:FileName":"a.txt","File:MIMEType":"text/plain","File:FileType":"TXT","XMP:Title":null}]'`)
	tools := NewTools(nil, &Config{ExifTool: ExifToolConfig{Path: script}})

	exif := NewExifTool(path, tools)
	outcome := exif.Routines()[0].Run(context.Background())
	require.Equal(t, analysis.KindSuccess, outcome.Kind)
	assert.Equal(t, model.Metadata{"File:FileType": "TXT"}, outcome.Metadata)

	data, err := exif.Data(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a.txt", data["SourceFile"])
	assert.Equal(t, 1, helperCalls(t, calls))

	_, err = NewExifTool(path, tools).Data(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, helperCalls(t, calls))
}

func TestExifToolOutputOnFailureIsStillParsed(t *testing.T) {
	t.Parallel()
	script, _ := helperScript(t, `echo '[{"File:FileType":"PNG","ExifTool:Error":"truncated"}]'; exit 1`)
	outcome := NewExifTool(helperFile(t, "a.png", "x"), NewTools(nil, &Config{ExifTool: ExifToolConfig{Path: script}})).
		Routines()[0].Run(context.Background())
	require.Equal(t, analysis.KindSuccess, outcome.Kind)
	assert.Equal(t, model.Metadata{"File:FileType": "PNG"}, outcome.Metadata)
}

func TestExifToolUnusableOutput(t *testing.T) {
	t.Parallel()
	script, _ := helperScript(t, `echo 'not json'`)
	outcome := NewExifTool(helperFile(t, "a", "x"), NewTools(nil, &Config{ExifTool: ExifToolConfig{Path: script}})).
		Routines()[0].Run(context.Background())
	assert.Equal(t, analysis.KindNotApplicable, outcome.Kind)
	assert.Contains(t, outcome.Reason, "unparsable")
}

func TestToolMissingWhenNotProvisioned(t *testing.T) {
	t.Parallel()
	tools := NewTools(nil, nil)
	tools.lookPath = helperNoPath
	path := helperFile(t, "a", "x")

	for _, c := range []analysis.Capability{NewExifTool(path, tools), NewFFProbe(path, tools), NewZbar(path, tools)} {
		outcome := c.Routines()[0].Run(context.Background())
		assert.Equal(t, analysis.KindToolMissing, outcome.Kind, c.Routines()[0].Name)
	}
}

func TestExifToolProvisionedThroughCache(t *testing.T) {
	t.Parallel()
	var archive bytes.Buffer
	gz := gzip.NewWriter(&archive)
	tw := tar.NewWriter(gz)
	body := `echo '[{"File:FileType":"TXT"}]'` + "\n"
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "Image-ExifTool-1.0/exiftool", Mode: 0o700, Size: int64(len(body)), Typeflag: tar.TypeReg}))
	_, err := tw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Image-ExifTool-1.0.tar.gz" {
			http.NotFound(w, r)

			return
		}
		_, _ = w.Write(archive.Bytes()) //nolint:errcheck // Test server.
	}))
	defer srv.Close()
	cache, err := resources.New(&resources.Config{RootDir: t.TempDir()})
	require.NoError(t, err)
	tools := NewTools(cache, &Config{ExifTool: ExifToolConfig{Version: "1.0", BaseURL: srv.URL + "/"}, Provision: true})
	tools.lookPath = func(name string) (string, error) {
		if name == "perl" {
			return "/bin/sh", nil
		}

		return helperNoPath(name)
	}

	argv, err := tools.ExifTool(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/bin/sh", cache.Path("Image-ExifTool-1.0", "exiftool")}, argv)

	outcome := NewExifTool(helperFile(t, "a", "x"), tools).Routines()[0].Run(context.Background())
	require.Equal(t, analysis.KindSuccess, outcome.Kind)
	assert.Equal(t, model.Metadata{"File:FileType": "TXT"}, outcome.Metadata)

	tools.cfg.ExifTool.Version = "2.0"
	_, err = tools.ExifTool(context.Background())
	require.ErrorIs(t, err, ErrToolMissing)
}

const probeReport = `{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720, "avg_frame_rate": "30/1", "duration": "2.000000"},
    {"index": 1, "codec_type": "audio", "codec_name": "aac", "sample_rate": "44100", "sample_fmt": "fltp", "channels": 2, "duration": "N/A"},
    {"index": 2, "codec_type": "data"}
  ],
  "format": {"format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "2.023000", "nb_streams": 3, "tags": {"encoder": "Lavf58"}}
}`

func TestFFProbeSummary(t *testing.T) {
	t.Parallel()
	script, calls := helperScript(t, "cat <<'JSON'\n"+probeReport+"\nJSON")
	probe := NewFFProbe(helperFile(t, "clip.mp4", "x"), NewTools(nil, &Config{FFmpeg: FFmpegConfig{ProbePath: script}}))

	outcome := probe.Routines()[0].Run(context.Background())
	require.Equal(t, analysis.KindSuccess, outcome.Kind)
	assert.Equal(t, model.Metadata{
		"FFProbe:Format":     "mov,mp4,m4a,3gp,3g2,mj2",
		"FFProbe:Duration":   2.023,
		"FFProbe:NumStreams": 3,
		"FFProbe:Streams": []model.Metadata{
			{"Format": "video/h264", "Width": 1280, "Height": 720, "Rate": "30/1", "Duration": 2.0},
			{"Format": "audio/aac", "Rate": "2/fltp/44100"},
			{"Format": "data/-"},
		},
	}, outcome.Metadata)

	res, err := probe.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Lavf58", res.Format.Tags["encoder"])
	assert.Equal(t, 1, helperCalls(t, calls))
}

func TestFFProbeUnprobeable(t *testing.T) {
	t.Parallel()
	for name, body := range map[string]string{
		"empty report": "echo '{}'",
		"failure":      "exit 1",
		"garbage":      "echo nope",
	} {
		script, _ := helperScript(t, body)
		outcome := NewFFProbe(helperFile(t, "a", "x"), NewTools(nil, &Config{FFmpeg: FFmpegConfig{ProbePath: script}})).
			Routines()[0].Run(context.Background())
		assert.Equal(t, analysis.KindNotApplicable, outcome.Kind, name)
	}
}

const zbarReportXML = `<barcodes xmlns='http://zbar.sourceforge.net/2008/barcode'>
<source href='a.png'>
<index num='0'>
<symbol type='QR-Code' quality='1' orientation='UP'><polygon points='+7,9 +7,359 +357,359 +357,9'/><data><![CDATA[first line
http://example.com/second]]></data></symbol>
<symbol type='I2/5' quality='12' orientation='UP'><data><![CDATA[29430622992369]]></data></symbol>
<symbol type='EAN-13' quality='1'><data format='base64' length='13'><![CDATA[NTkwMTIzNDEyMzQ1Nw==]]></data></symbol>
</index>
</source>
</barcodes>
`

func TestZbar(t *testing.T) {
	t.Parallel()
	script, calls := helperScript(t, "case \"$1\" in --xml) ;; *) exit 9 ;; esac\ncat <<'XML'\n"+zbarReportXML+"XML")
	outcome := NewZbar(helperFile(t, "a.png", "x"), NewTools(nil, &Config{Zbar: ZbarConfig{Path: script}})).
		Routines()[0].Run(context.Background())
	require.Equal(t, analysis.KindSuccess, outcome.Kind, outcome.Reason)
	assert.Equal(t, model.Metadata{"zbar:Barcodes": []model.Metadata{
		{
			"format":       "QRCODE",
			"data":         "first line\nhttp://example.com/second",
			"bounding box": model.Metadata{"left": 7, "top": 9, "width": 350, "height": 350},
		},
		{"format": "I25", "data": "29430622992369"},
		{"format": "EAN13", "data": "5901234123457"},
	}}, outcome.Metadata)
	assert.Equal(t, 1, helperCalls(t, calls))

	none, _ := helperScript(t, "exit 4")
	outcome = NewZbar(helperFile(t, "a.png", "x"), NewTools(nil, &Config{Zbar: ZbarConfig{Path: none}})).
		Routines()[0].Run(context.Background())
	assert.Equal(t, analysis.KindNotApplicable, outcome.Kind)

	garbage, _ := helperScript(t, "echo 'QR-Code:not xml'")
	outcome = NewZbar(helperFile(t, "a.png", "x"), NewTools(nil, &Config{Zbar: ZbarConfig{Path: garbage}})).
		Routines()[0].Run(context.Background())
	assert.Equal(t, analysis.KindNotApplicable, outcome.Kind)
}

func TestZbarSymbology(t *testing.T) {
	t.Parallel()
	for name, want := range map[string]string{
		"QR-Code":     "QRCODE",
		"I2/5":        "I25",
		"EAN-13":      "EAN13",
		"CODE-128":    "CODE128",
		"Codabar":     "CODABAR",
		"DataBar-Exp": "DATABAR_EXP",
		"PDF417":      "PDF417",
	} {
		assert.Equal(t, want, ZbarSymbology(name), name)
	}
}

func TestZxing(t *testing.T) {
	t.Parallel()
	matrix, err := qrcode.NewQRCodeWriter().Encode("http://www.wikipedia.com", gozxing.BarcodeFormat_QR_CODE, 200, 200, nil)
	require.NoError(t, err)
	outcome := NewZxing(NewColor(helperPNG(t, matrix))).Routines()[0].Run(context.Background())
	require.Equal(t, analysis.KindSuccess, outcome.Kind, outcome.Reason)
	barcodes, ok := outcome.Metadata["zxing:Barcodes"].([]model.Metadata)
	require.True(t, ok)
	require.Len(t, barcodes, 1)
	assert.Equal(t, "QR_CODE", barcodes[0]["format"])
	assert.Equal(t, "http://www.wikipedia.com", barcodes[0]["data"])
	box, ok := barcodes[0]["bounding box"].(model.Metadata)
	require.True(t, ok)
	assert.Positive(t, box["width"])
	assert.Positive(t, box["height"])

	blank := NewZxing(NewColor(helperPNG(t, helperUniform(color.White, 32, 32)))).Routines()[0].Run(context.Background())
	assert.Equal(t, analysis.KindNotApplicable, blank.Kind)

	notImage := NewZxing(NewColor(helperFile(t, "a.png", "not a png"))).Routines()[0].Run(context.Background())
	assert.Equal(t, analysis.KindNotApplicable, notImage.Kind)
}

func TestGeolocation(t *testing.T) {
	t.Parallel()
	script, calls := helperScript(t, `printf '%s\n' '[{"SourceFile":"a.jpg","Composite:GPSLatitude":"34 deg 44'"'"' 53.74\" N","Composite:GPSLongitude":"135 deg 34'"'"' 36.00\" E"}]'`)
	exif := NewExifTool(helperFile(t, "a.jpg", "x"), NewTools(nil, &Config{ExifTool: ExifToolConfig{Path: script}}))
	outcome := NewGeolocation(exif).Routines()[0].Run(context.Background())
	require.Equal(t, analysis.KindSuccess, outcome.Kind, outcome.Reason)
	assert.InDelta(t, 34.748261, outcome.Metadata["Composite:GPSLatitude"], 1e-6)
	assert.InDelta(t, 135.576667, outcome.Metadata["Composite:GPSLongitude"], 1e-6)

	exifOutcome := exif.Routines()[0].Run(context.Background())
	require.Equal(t, analysis.KindSuccess, exifOutcome.Kind)
	assert.Equal(t, 1, helperCalls(t, calls))

	noGPS, _ := helperScript(t, `echo '[{"SourceFile":"a.jpg","File:FileType":"JPEG"}]'`)
	outcome = NewGeolocation(NewExifTool(helperFile(t, "a.jpg", "x"), NewTools(nil, &Config{ExifTool: ExifToolConfig{Path: noGPS}}))).
		Routines()[0].Run(context.Background())
	assert.Equal(t, analysis.KindNotApplicable, outcome.Kind)
}

func TestParseCoordinate(t *testing.T) {
	t.Parallel()
	for in, want := range map[any]float64{
		"34 deg 44' 53.74\" N": 34.748261,
		"58 deg 10' 30\" S":    -58.175,
		"0 deg 30' 0.00\" W":   -0.5,
		"12 deg 0' 0\"":        12,
		"-33.8688":             -33.8688,
		float64(151.2093):      151.2093,
	} {
		got, ok := ParseCoordinate(in)
		require.True(t, ok, in)
		assert.InDelta(t, want, got, 1e-6, in)
	}
	for _, in := range []any{nil, "", "north", 42, "34 deg N"} {
		_, ok := ParseCoordinate(in)
		assert.False(t, ok, in)
	}
}

func TestColorInfo(t *testing.T) {
	t.Parallel()

	red := NewColor(helperPNG(t, helperUniform(color.NRGBA{R: 255, A: 255}, 4, 4))).Routines()[0].Run(context.Background())
	require.Equal(t, analysis.KindSuccess, red.Kind)
	assert.Equal(t, [3]float64{255, 0, 0}, red.Metadata["Color:AverageRGB"])
	assert.Equal(t, 1, red.Metadata["Color:NumberOfGreyShades"])
	assert.NotContains(t, red.Metadata, "Color:UsesAlpha")
	assert.InDelta(t, 14450.0, red.Metadata["Color:MeanSquareErrorFromGrey"], 0.001)
	assert.Equal(t, "red", red.Metadata["Color:ClosestLabeledColor"])
	assert.Equal(t, [3]int{255, 0, 0}, red.Metadata["Color:ClosestLabeledColorRGB"])
	assert.InDelta(t, 0.004, red.Metadata["Color:PercentFrequentColors"], 0.0001)
	assert.InDelta(t, 0.0, red.Metadata["Color:EdgeRatio"], 0.0001)

	grey := helperUniform(color.NRGBA{R: 10, G: 10, B: 10, A: 255}, 2, 2)
	grey.Set(0, 0, color.NRGBA{R: 200, G: 200, B: 200, A: 128})
	greyOutcome := NewColor(helperPNG(t, grey)).Routines()[0].Run(context.Background())
	require.Equal(t, analysis.KindSuccess, greyOutcome.Kind)
	assert.Equal(t, [3]float64{57.5, 57.5, 57.5}, greyOutcome.Metadata["Color:AverageRGB"])
	assert.Equal(t, 2, greyOutcome.Metadata["Color:NumberOfGreyShades"])
	assert.Equal(t, true, greyOutcome.Metadata["Color:UsesAlpha"])
	assert.InDelta(t, 0.0, greyOutcome.Metadata["Color:MeanSquareErrorFromGrey"], 0.001)
}

func TestColorInfoAnimated(t *testing.T) {
	t.Parallel()
	palette := color.Palette{color.Black, color.White}
	anim := &gif.GIF{}
	for _, idx := range []uint8{0, 1} {
		frame := image.NewPaletted(image.Rect(0, 0, 2, 2), palette)
		for i := range frame.Pix {
			frame.Pix[i] = idx
		}
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, 10)
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, anim))

	outcome := NewColor(helperFile(t, "a.gif", buf.String())).Routines()[0].Run(context.Background())
	require.Equal(t, analysis.KindSuccess, outcome.Kind)
	assert.Equal(t, [3]float64{127.5, 127.5, 127.5}, outcome.Metadata["Color:AverageRGB"])
	assert.NotContains(t, outcome.Metadata, "Color:NumberOfGreyShades")
	assert.NotContains(t, outcome.Metadata, "Color:MeanSquareErrorFromGrey")
	assert.NotContains(t, outcome.Metadata, "Color:EdgeRatio")
	assert.Equal(t, "gray", outcome.Metadata["Color:ClosestLabeledColor"])
	assert.InDelta(t, 0.008, outcome.Metadata["Color:PercentFrequentColors"], 0.0001)
}

func TestEdgeRatio(t *testing.T) {
	t.Parallel()
	split := helperUniform(color.Black, 8, 8)
	for y := 0; y < 8; y++ {
		for x := 4; x < 8; x++ {
			split.Set(x, y, color.White)
		}
	}
	outcome := NewColor(helperPNG(t, split)).Routines()[0].Run(context.Background())
	require.Equal(t, analysis.KindSuccess, outcome.Kind)
	assert.InDelta(t, 0.188, outcome.Metadata["Color:EdgeRatio"], 0.0001)
	assert.Equal(t, 2, outcome.Metadata["Color:NumberOfGreyShades"])
	assert.InDelta(t, 0.008, outcome.Metadata["Color:PercentFrequentColors"], 0.0001)

	assert.InDelta(t, 0.0, EdgeRatio(helperUniform(color.White, 2, 2)), 0.0001)
}

func TestColorInfoNotAnImage(t *testing.T) {
	t.Parallel()
	c := NewColor(helperFile(t, "a.png", "definitely not a png"))
	outcome := c.Routines()[0].Run(context.Background())
	assert.Equal(t, analysis.KindNotApplicable, outcome.Kind)
	_, err := c.Frames()
	require.Error(t, err)
}
