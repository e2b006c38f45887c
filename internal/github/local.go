package github

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalSource serves file content from a checked-out repository on disk.
// It lets the one-shot indexer run the same ingestion pipeline as the
// GitHub-backed path. The ref argument is ignored: the checkout is the ref.
type LocalSource struct {
	Root string
}

var _ ContentSource = (*LocalSource)(nil)

func (l *LocalSource) FetchContent(_ context.Context, _, _, path, _ string) (string, bool, error) {
	b, err := os.ReadFile(filepath.Join(l.Root, filepath.FromSlash(path)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(b), true, nil
}
