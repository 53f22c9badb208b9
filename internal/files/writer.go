package files

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/session"
)

const fallbackName = "download"

// FileWriter receives an accepted file into a hidden temporary file next to
// its destination. It implements session.Output.
type FileWriter struct {
	dir  string
	name string
	file *os.File

	ReceivedBytes int64
}

// NewFileWriter prepares dir and opens a temporary file for meta.
func NewFileWriter(dir string, meta session.Descriptor) (*FileWriter, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	file, err := os.CreateTemp(dir, ".tunneldrop-*.part")
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	return &FileWriter{dir: dir, name: SafeName(meta.Name), file: file}, nil
}

// Writers returns an output factory that writes into dir.
func Writers(dir string) func(session.Descriptor) (session.Output, error) {
	return func(meta session.Descriptor) (session.Output, error) {
		return NewFileWriter(dir, meta)
	}
}

func (w *FileWriter) Write(data []byte) (int, error) {
	if w.file == nil {
		return 0, os.ErrClosed
	}
	n, err := w.file.Write(data)
	w.ReceivedBytes += int64(n)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", w.name, err)
	}
	return n, nil
}

// Commit moves the finished file to a free name in the target directory and
// returns its path.
func (w *FileWriter) Commit() (string, error) {
	if w.file == nil {
		return "", os.ErrClosed
	}
	tmp := w.file.Name()
	if err := w.file.Close(); err != nil {
		w.file = nil
		os.Remove(tmp)
		return "", fmt.Errorf("close %s: %w", w.name, err)
	}
	w.file = nil

	dest := GetUniqueFilename(filepath.Join(w.dir, w.name))
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("save %s: %w", w.name, err)
	}
	return dest, nil
}

// Discard drops the partial file.
func (w *FileWriter) Discard() error {
	if w.file == nil {
		return nil
	}
	tmp := w.file.Name()
	closeErr := w.file.Close()
	w.file = nil
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return closeErr
}

// SafeName reduces a peer-supplied name to a plain file name.
func SafeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "/" || name == "." || name == ".." || name == "" {
		return fallbackName
	}
	return name
}

// GetUniqueFilename returns a unique filename by appending (1), (2), etc. if file exists
func GetUniqueFilename(filename string) string {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return filename
	}

	ext := filepath.Ext(filename)
	nameWithoutExt := filename[:len(filename)-len(ext)]

	for counter := 1; ; counter++ {
		newFilename := fmt.Sprintf("%s (%d)%s", nameWithoutExt, counter, ext)
		if _, err := os.Stat(newFilename); os.IsNotExist(err) {
			return newFilename
		}
	}
}
