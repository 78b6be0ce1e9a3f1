// Package ingest brings source trees into a session directory, from uploaded
// ZIP archives or GitHub repositories.
package ingest

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrArchiveTooLarge is returned when an archive or repository exceeds the
// configured size limit.
var ErrArchiveTooLarge = errors.New("archive exceeds size limit")

// ExtractZip extracts the ZIP archive at archivePath into destDir. Entries
// escaping destDir are rejected. The summed uncompressed size is capped at
// maxBytes.
func ExtractZip(archivePath, destDir string, maxBytes int64) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer r.Close()

	var total int64
	for _, f := range r.File {
		total += int64(f.UncompressedSize64)
		if maxBytes > 0 && total > maxBytes {
			return fmt.Errorf("%w: %d bytes uncompressed", ErrArchiveTooLarge, total)
		}
	}

	for _, f := range r.File {
		if err := extractEntry(f, destDir, maxBytes); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(f *zip.File, destDir string, maxBytes int64) error {
	name := filepath.FromSlash(f.Name)
	target := filepath.Join(destDir, name)

	// Reject entries that escape the destination (zip slip).
	rel, err := filepath.Rel(destDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("archive entry escapes destination: %s", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0755)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", f.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer dst.Close()

	// Cap the copy in case the header lies about the uncompressed size.
	limit := int64(f.UncompressedSize64) + 1
	if maxBytes > 0 && limit > maxBytes+1 {
		limit = maxBytes + 1
	}
	n, err := io.Copy(dst, io.LimitReader(src, limit))
	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	if n > int64(f.UncompressedSize64) {
		return fmt.Errorf("%w: entry %s larger than declared", ErrArchiveTooLarge, f.Name)
	}
	return nil
}
