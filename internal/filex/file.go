// Package filex opens the local files handed to the send client.
package filex

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
)

// MaxThumbnailSize bounds the thumbnail read from disk.
const MaxThumbnailSize = 512 * 1024

// ErrNotRegular is returned for directories and other non-regular files.
var ErrNotRegular = errors.New("not a regular file")

// File is an open source file. It reads at arbitrary offsets, so the upload
// can encrypt any part of it without holding the whole file in memory.
type File struct {
	*os.File
	Name string
	MIME string
	Size int64
}

// Open opens path for sending. The MIME type comes from the extension, or
// from sniffing the first bytes when the extension is unknown.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !fi.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrNotRegular)
	}

	mt, err := detectMIME(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &File{File: f, Name: filepath.Base(path), MIME: mt, Size: fi.Size()}, nil
}

func detectMIME(f *os.File, path string) (string, error) {
	if mt := mime.TypeByExtension(filepath.Ext(path)); mt != "" {
		return mt, nil
	}

	head := make([]byte, 512)
	n, err := f.ReadAt(head, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return http.DetectContentType(head[:n]), nil
}

// ReadThumbnail loads a thumbnail image, refusing files over
// MaxThumbnailSize.
func ReadThumbnail(path string) ([]byte, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: %w", path, ErrNotRegular)
	}
	if fi.Size() > MaxThumbnailSize {
		return nil, fmt.Errorf("thumbnail %s is %d bytes, limit %d", path, fi.Size(), MaxThumbnailSize)
	}
	return os.ReadFile(path)
}
