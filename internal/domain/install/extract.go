package install

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/klauspost/compress/zip"
)

var ErrUnsafePath = errors.New("install: archive entry escapes the bundle directory")

// macOS resource-fork metadata added by Finder's "Compress".
var skipPatterns = []string{
	"__MACOSX/**",
	"**/._*",
	"**/.DS_Store",
}

func skipped(name string) bool {
	for _, pattern := range skipPatterns {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// target resolves an entry name inside dest.
func target(dest, name string) (string, error) {
	slashed := strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(slashed, "/") || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	for _, part := range strings.Split(slashed, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
		}
	}
	full := filepath.Join(dest, filepath.FromSlash(slashed))
	if full != dest && !strings.HasPrefix(full, dest+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return full, nil
}

// extract unpacks archive into dest: directories first, then files.
func extract(archive, dest string) (int, error) {
	reader, err := zip.OpenReader(archive)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer reader.Close()

	dest = filepath.Clean(dest)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return 0, err
	}

	var files []*zip.File
	for _, f := range reader.File {
		if skipped(f.Name) {
			continue
		}
		full, err := target(dest, f.Name)
		if err != nil {
			return 0, err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(full, 0o755); err != nil {
				return 0, err
			}
			continue
		}
		files = append(files, f)
	}

	for _, f := range files {
		full, _ := target(dest, f.Name)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return 0, err
		}
		if err := writeEntry(f, full); err != nil {
			return 0, fmt.Errorf("extract %s: %w", f.Name, err)
		}
	}
	return len(files), nil
}

func writeEntry(f *zip.File, full string) error {
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// Stats summarizes an extracted bundle.
type Stats struct {
	Files int64
	Bytes int64
}

func treeStats(root string) (Stats, error) {
	var files, size atomic.Int64
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files.Add(1)
		size.Add(info.Size())
		return nil
	})
	return Stats{Files: files.Load(), Bytes: size.Load()}, err
}
