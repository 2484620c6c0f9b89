package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"neunovapdf-backend/internal/domain/ports/adapter"
)

var _ adapter.Archiver = (*Zip)(nil)

// Zip writes deflate-compressed zip bundles.
type Zip struct{}

func NewZip() *Zip { return &Zip{} }

func (z *Zip) Archive(ctx context.Context, out string, files []string) (err error) {
	if len(files) == 0 {
		return fmt.Errorf("archive: no files")
	}
	f, err := os.OpenFile(out, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("archive: %w", cerr)
		}
		if err != nil {
			_ = os.Remove(out)
		}
	}()

	zw := zip.NewWriter(f)
	seen := make(map[string]bool, len(files))
	for _, p := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := filepath.Base(p)
		if seen[name] {
			return fmt.Errorf("archive: duplicate entry %q", name)
		}
		seen[name] = true
		if err := addFile(zw, p, name); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("archive %s: %w", name, err)
	}
	return nil
}
