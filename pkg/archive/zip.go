package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// ZipDirectory writes the contents of srcDir into destZip, replacing any existing archive.
// Entry names are relative to srcDir and use forward slashes. When destZip lies inside srcDir
// the archive and the directory holding it are left out.
func ZipDirectory(srcDir, destZip string) (err error) {
	info, err := os.Stat(srcDir)
	if err != nil {
		return fmt.Errorf("stat source directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", srcDir)
	}

	srcDir, err = filepath.Abs(srcDir)
	if err != nil {
		return fmt.Errorf("resolve source directory: %w", err)
	}
	destZip, err = filepath.Abs(destZip)
	if err != nil {
		return fmt.Errorf("resolve archive path: %w", err)
	}
	destDir := filepath.Dir(destZip)

	if err := os.Remove(destZip); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove existing archive: %w", err)
	}

	out, err := os.Create(destZip)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close archive: %w", closeErr)
		}
	}()

	zw := zip.NewWriter(out)
	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." || path == destZip {
			return nil
		}
		if d.IsDir() && path == destDir {
			return filepath.SkipDir
		}
		return addEntry(zw, path, filepath.ToSlash(rel), d)
	})
	if walkErr != nil {
		_ = zw.Close()
		return fmt.Errorf("add archive entries: %w", walkErr)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return nil
}

func addEntry(zw *zip.Writer, path, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	if d.IsDir() {
		header.Name += "/"
		header.Method = zip.Store
		_, err := zw.CreateHeader(header)
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = io.Copy(w, f)
	return err
}
