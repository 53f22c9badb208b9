// Package files reads the file an initiator offers and writes the file a
// responder accepts.
package files

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/session"
)

const defaultType = "application/octet-stream"

// FileInfo holds information about a file to be sent
type FileInfo struct {
	// Path is the absolute path to the file
	Path string

	// Name is the filename (without directory)
	Name string

	// Size is the file size in bytes
	Size int64

	// Type is the MIME type of the file (e.g., "application/pdf", "text/plain")
	Type string
}

// Descriptor is the metadata announced to the responder.
func (f FileInfo) Descriptor() session.Descriptor {
	return session.Descriptor{Name: f.Name, Size: f.Size, Type: f.Type}
}

// ValidateFile checks that path is a readable regular file and describes it.
// Empty files are allowed.
func ValidateFile(path string) (FileInfo, error) {
	if path == "" {
		return FileInfo{}, errors.New("no file specified")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: failed to get absolute path: %w", path, err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, fmt.Errorf("%s: file does not exist", path)
		}
		return FileInfo{}, fmt.Errorf("%s: failed to stat file: %w", path, err)
	}
	if stat.IsDir() {
		return FileInfo{}, fmt.Errorf("%s: is a directory", path)
	}
	if !stat.Mode().IsRegular() {
		return FileInfo{}, fmt.Errorf("%s: not a regular file", path)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: cannot open file (check permissions): %w", path, err)
	}
	file.Close()

	return FileInfo{
		Path: absPath,
		Name: filepath.Base(absPath),
		Size: stat.Size(),
		Type: DetectType(absPath),
	}, nil
}

// DetectType guesses the MIME type from the extension.
func DetectType(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return defaultType
}

// Open returns the session source for info. The caller closes the returned
// closer once the transfer is over.
func Open(info FileInfo) (session.Source, io.Closer, error) {
	f, err := os.Open(info.Path)
	if err != nil {
		return session.Source{}, nil, fmt.Errorf("%s: %w", info.Name, err)
	}
	return session.Source{File: info.Descriptor(), Reader: f}, f, nil
}
