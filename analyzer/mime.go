// SPDX-License-Identifier: ice License 1.0

package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	gomime "github.com/cubewise-code/go-mime"
	"github.com/gabriel-vasile/mimetype"

	"github.com/ice-blockchain/filemeta/analysis"
	"github.com/ice-blockchain/filemeta/memo"
	"github.com/ice-blockchain/filemeta/model"
)

type (
	// Sniffer detects the media type of a file from its content.
	Sniffer interface {
		Sniff(path string) (string, error)
	}
	ContentSniffer struct{}
	MimeType       struct {
		sniffer Sniffer
		mime    memo.Value[string]
		path    string
	}
	Stat struct {
		path string
	}
)

// Sniff never looks at the file extension. Failures are environment errors.
func (ContentSniffer) Sniff(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", model.Categorize(errors.Wrapf(err, "failed to open %v for sniffing", path), model.ErrEnvironment)
	}
	defer f.Close()
	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return "", model.Categorize(errors.Wrapf(err, "failed to sniff %v", path), model.ErrEnvironment)
	}

	return NormalizeMIME(mt.String()), nil
}

// NormalizeMIME drops parameters ("; charset=utf-8") and lowercases the type.
func NormalizeMIME(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}

	return strings.ToLower(strings.TrimSpace(mime))
}

// NewMimeType reports known as the file's type when set, otherwise it sniffs lazily once.
func NewMimeType(path, known string, sniffer Sniffer) *MimeType {
	m := &MimeType{path: path, sniffer: sniffer}
	if known != "" {
		_, _ = m.mime.Get(func() (string, error) { return known, nil }) //nolint:errcheck // Seeding.
	}

	return m
}

func (m *MimeType) MIME() (string, error) {
	return m.mime.Get(func() (string, error) { return m.sniffer.Sniff(m.path) })
}

func (m *MimeType) Routines() []analysis.Routine {
	return []analysis.Routine{{Name: "analyze_mimetype", Run: m.analyze}}
}

func (m *MimeType) analyze(context.Context) analysis.Outcome {
	mime, err := m.MIME()
	if err != nil {
		return analysis.Failed(err)
	}
	md := model.Metadata{"File:MIMEType": mime}
	if ext := strings.ToLower(filepath.Ext(m.path)); ext != "" {
		if byExt := NormalizeMIME(gomime.TypeByExtension(ext)); byExt != "" && byExt != mime {
			md.Set("File:ExtensionMIMEType", byExt)
		}
	}

	return analysis.Success(md)
}

func NewStat(path string) *Stat {
	return &Stat{path: path}
}

func (s *Stat) Routines() []analysis.Routine {
	return []analysis.Routine{{Name: "analyze_os_stat", Run: s.analyze}}
}

func (s *Stat) analyze(context.Context) analysis.Outcome {
	info, err := os.Stat(s.path)
	if err != nil {
		return analysis.Failed(model.Categorize(errors.Wrapf(err, "failed to stat %v", s.path), model.ErrEnvironment))
	}

	return analysis.Success(model.Metadata{"File:FileSize": FormatSize(info.Size())})
}

func FormatSize(size int64) string {
	return strconv.FormatInt(size, 10) + " bytes"
}
