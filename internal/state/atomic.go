package state

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// atomicWriter writes to a temp file in the target directory and renames
// it over the target on Commit, so readers never see a partial file.
type atomicWriter struct {
	path    string
	tmpPath string
	file    *os.File
}

func newAtomicWriter(path string) (*atomicWriter, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create directory")
	}
	tmp, err := os.CreateTemp(dir, ".vidrelay-*.tmp")
	if err != nil {
		return nil, errors.Wrap(err, "create temp file")
	}
	return &atomicWriter{path: path, tmpPath: tmp.Name(), file: tmp}, nil
}

func (w *atomicWriter) Write(p []byte) (int, error) { return w.file.Write(p) }

func (w *atomicWriter) Commit() error {
	if err := w.file.Sync(); err != nil {
		w.Abort()
		return errors.Wrap(err, "sync")
	}
	if err := w.file.Close(); err != nil {
		os.Remove(w.tmpPath)
		return errors.Wrap(err, "close")
	}
	if err := os.Rename(w.tmpPath, w.path); err != nil {
		os.Remove(w.tmpPath)
		return errors.Wrap(err, "rename")
	}
	return nil
}

func (w *atomicWriter) Abort() error {
	w.file.Close()
	return os.Remove(w.tmpPath)
}
