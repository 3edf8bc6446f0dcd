// SPDX-License-Identifier: ice License 1.0

package resources

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ulikunitz/xz"
)

func TarGz(ctx context.Context, archive, dir string) error {
	f, err := os.Open(archive)
	if err != nil {
		return errors.Wrapf(err, "failed to open %v", archive)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "%v is not gzip compressed", archive)
	}
	defer gz.Close()

	return untar(ctx, gz, dir)
}

func TarXz(ctx context.Context, archive, dir string) error {
	f, err := os.Open(archive)
	if err != nil {
		return errors.Wrapf(err, "failed to open %v", archive)
	}
	defer f.Close()
	xzr, err := xz.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "%v is not xz compressed", archive)
	}

	return untar(ctx, xzr, dir)
}

//nolint:gocognit,revive // .
func untar(ctx context.Context, r io.Reader, dir string) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return errors.Wrapf(err, "failed to resolve %v", dir)
	}
	tr := tar.NewReader(r)
	for {
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "extraction aborted")
		}
		hdr, nErr := tr.Next()
		if errors.Is(nErr, io.EOF) {
			return nil
		}
		if nErr != nil {
			return errors.Wrap(nErr, "corrupted tar stream")
		}
		target := filepath.Join(root, filepath.Clean(hdr.Name)) //nolint:gosec // Checked right below.
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return errors.Errorf("tar entry %q escapes %v", hdr.Name, root)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err = os.MkdirAll(target, 0o755); err != nil {
				return errors.Wrapf(err, "failed to create %v", target)
			}
		case tar.TypeReg:
			if err = writeFile(tr, target, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			link := filepath.Join(filepath.Dir(target), hdr.Linkname)
			if filepath.IsAbs(hdr.Linkname) || !strings.HasPrefix(link, root+string(os.PathSeparator)) {
				return errors.Errorf("tar symlink %q -> %q escapes %v", hdr.Name, hdr.Linkname, root)
			}
			if err = os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return errors.Wrapf(err, "failed to create %v", filepath.Dir(target))
			}
			_ = os.Remove(target)
			if err = os.Symlink(hdr.Linkname, target); err != nil {
				return errors.Wrapf(err, "failed to link %v", target)
			}
		default:
			continue
		}
	}
}

func writeFile(r io.Reader, target string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %v", filepath.Dir(target))
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode|0o600)
	if err != nil {
		return errors.Wrapf(err, "failed to create %v", target)
	}
	if _, err = io.Copy(out, r); err != nil { //nolint:gosec // Archives come from configured tool sources.
		out.Close()

		return errors.Wrapf(err, "failed to write %v", target)
	}

	return errors.Wrapf(out.Close(), "failed to close %v", target)
}
