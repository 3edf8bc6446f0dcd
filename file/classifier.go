// SPDX-License-Identifier: ice License 1.0

package file

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/ice-blockchain/filemeta/analyzer"
	"github.com/ice-blockchain/filemeta/logger"
	"github.com/ice-blockchain/filemeta/model"
)

type (
	Classifier struct {
		sniffer analyzer.Sniffer
	}
)

func NewClassifier(sniffer analyzer.Sniffer) *Classifier {
	if sniffer == nil {
		sniffer = analyzer.ContentSniffer{}
	}

	return &Classifier{sniffer: sniffer}
}

// Classify sniffs the content of path and returns its category together with the normalized MIME type.
func (c *Classifier) Classify(path string) (model.Category, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return model.CategoryGeneric, "", model.Categorize(errors.Wrapf(err, "failed to stat %v", path), model.ErrEnvironment)
	}
	if !info.Mode().IsRegular() {
		return model.CategoryGeneric, "", model.Categorize(errors.Errorf("%v is not a regular file", path), model.ErrEnvironment)
	}
	mime, err := c.sniffer.Sniff(path)
	if err != nil {
		if !errors.Is(err, model.ErrEnvironment) {
			err = model.Categorize(err, model.ErrEnvironment)
		}

		return model.CategoryGeneric, "", err
	}
	mime = analyzer.NormalizeMIME(mime)

	return CategoryOf(mime), mime, nil
}

// CategoryOf maps a normalized MIME type to the handler category analysing it.
func CategoryOf(mime string) model.Category {
	major, _, _ := strings.Cut(mime, "/")
	switch {
	case major == "image", mime == "application/x-xcf":
		return model.CategoryImage
	case major == "audio":
		return model.CategoryAudio
	case major == "video":
		return model.CategoryVideo
	default:
		return model.CategoryGeneric
	}
}

// Create classifies path and builds the handler for its category. The sniffed type is reused by analyze_mimetype.
func Create(ctx context.Context, path string, env *Env) (Handler, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "context done before classification")
	}
	env = env.withDefaults()
	category, mime, err := NewClassifier(env.Sniffer).Classify(path)
	if err != nil {
		return nil, err
	}
	h, err := NewHandle(path)
	if err != nil {
		return nil, err
	}
	log.Emit(logger.VERBOSE, "%v classified as %v (%v)", h.path, category, mime)
	switch category {
	case model.CategoryImage:
		return newImage(h, mime, env), nil
	case model.CategoryAudio:
		return newAudio(h, mime, env), nil
	case model.CategoryVideo:
		return newVideo(h, mime, env), nil
	default:
		return newGeneric(h, mime, env, model.CategoryGeneric), nil
	}
}

// Digest is the hex sha256 of the file content.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", model.Categorize(errors.Wrapf(err, "failed to open %v", path), model.ErrEnvironment)
	}
	defer f.Close()
	h := sha256.New()
	if _, err = io.Copy(h, f); err != nil {
		return "", model.Categorize(errors.Wrapf(err, "failed to read %v", path), model.ErrEnvironment)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
