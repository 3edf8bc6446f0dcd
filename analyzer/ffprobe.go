// SPDX-License-Identifier: ice License 1.0

package analyzer

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	"github.com/tidwall/gjson"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/ice-blockchain/filemeta/analysis"
	"github.com/ice-blockchain/filemeta/memo"
	"github.com/ice-blockchain/filemeta/model"
)

type (
	FFProbe struct {
		tools *Tools
		probe memo.Value[*ProbeResult]
		path  string
	}
	ProbeResult struct {
		Format  *ProbeFormat   `json:"format"`
		Streams []*ProbeStream `json:"streams"`
	}
	ProbeFormat struct {
		Tags           map[string]string `json:"tags"`
		Filename       string            `json:"filename"`
		FormatName     string            `json:"format_name"`
		FormatLongName string            `json:"format_long_name"`
		Duration       string            `json:"duration"`
		Size           string            `json:"size"`
		BitRate        string            `json:"bit_rate"`
		NbStreams      int               `json:"nb_streams"`
	}
	ProbeStream struct {
		Tags          map[string]string `json:"tags"`
		CodecType     string            `json:"codec_type"`
		CodecName     string            `json:"codec_name"`
		Duration      string            `json:"duration"`
		SampleRate    string            `json:"sample_rate"`
		SampleFmt     string            `json:"sample_fmt"`
		AvgFrameRate  string            `json:"avg_frame_rate"`
		ChannelLayout string            `json:"channel_layout"`
		Width         int               `json:"width"`
		Height        int               `json:"height"`
		Index         int               `json:"index"`
		Channels      int               `json:"channels"`
	}
)

func NewFFProbe(path string, tools *Tools) *FFProbe {
	return &FFProbe{path: path, tools: tools}
}

// Probe runs ffprobe once per instance and returns its decoded format and stream report.
func (f *FFProbe) Probe(ctx context.Context) (*ProbeResult, error) {
	return f.probe.Get(func() (*ProbeResult, error) {
		bin, onPath, err := f.tools.FFProbe(ctx)
		if err != nil {
			return nil, err
		}
		var out []byte
		if onPath {
			res, pErr := ffmpeg.ProbeWithTimeout(f.path, f.tools.cfg.ToolTimeout, ffmpeg.KwArgs{})
			if pErr != nil {
				return nil, errors.Wrapf(pErr, "failed to probe %v", f.path)
			}
			out = []byte(res)
		} else if out, err = f.tools.run(ctx, bin, "-v", "0", "-show_format", "-show_streams", "-of", "json", f.path); err != nil {
			return nil, err
		}

		return parseProbeOutput(out)
	})
}

func (f *FFProbe) Routines() []analysis.Routine {
	return []analysis.Routine{{Name: "analyze_ffprobe", Run: f.analyze}}
}

func (f *FFProbe) analyze(ctx context.Context) analysis.Outcome {
	res, err := f.Probe(ctx)
	switch {
	case errors.Is(err, ErrToolMissing):
		return analysis.ToolMissing("ffprobe")
	case err != nil:
		return analysis.NotApplicable("ffprobe: %v", err)
	}

	return analysis.Success(res.Summary())
}

// Summary flattens the probe report into FFProbe:* keys.
func (r *ProbeResult) Summary() model.Metadata {
	md := model.Metadata{}
	if r.Format != nil {
		md.Set("FFProbe:Format", nonEmpty(r.Format.FormatName))
		if d, ok := parseDuration(r.Format.Duration); ok {
			md.Set("FFProbe:Duration", d)
		}
		md.Set("FFProbe:NumStreams", r.Format.NbStreams)
	}
	streams := make([]model.Metadata, 0, len(r.Streams))
	for _, s := range r.Streams {
		streams = append(streams, s.summary())
	}
	if len(streams) > 0 {
		md.Set("FFProbe:Streams", streams)
	}

	return md
}

func (s *ProbeStream) summary() model.Metadata {
	md := model.Metadata{"Format": fmt.Sprintf("%v/%v", orDash(s.CodecType), orDash(s.CodecName))}
	switch s.CodecType {
	case "video":
		md.Set("Width", s.Width)
		md.Set("Height", s.Height)
		md.Set("Rate", orDash(s.AvgFrameRate))
	case "audio":
		rate := "-"
		if r, err := strconv.ParseFloat(s.SampleRate, 64); err == nil {
			rate = strconv.Itoa(int(r))
		}
		channels := "-"
		if s.Channels > 0 {
			channels = strconv.Itoa(s.Channels)
		}
		md.Set("Rate", fmt.Sprintf("%v/%v/%v", channels, orDash(s.SampleFmt), rate))
	}
	if d, ok := parseDuration(s.Duration); ok {
		md.Set("Duration", d)
	}

	return md
}

func parseProbeOutput(out []byte) (*ProbeResult, error) {
	if !gjson.ValidBytes(out) {
		return nil, errors.Wrapf(errUnparsable, "ffprobe printed %q", truncate(out))
	}
	parsed := gjson.ParseBytes(out)
	if !parsed.Get("format").Exists() && !parsed.Get("streams").Exists() {
		return nil, errors.Wrap(errUnparsable, "ffprobe reported neither format nor streams")
	}
	var res ProbeResult
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &res,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to build probe decoder")
	}
	if err = dec.Decode(parsed.Value()); err != nil {
		return nil, errors.Wrap(err, "failed to decode ffprobe output")
	}

	return &res, nil
}

func parseDuration(s string) (float64, bool) {
	if s == "" || s == "N/A" {
		return 0, false
	}
	d, err := strconv.ParseFloat(s, 64)

	return d, err == nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}

func nonEmpty(s string) any {
	if s == "" {
		return nil
	}

	return s
}
