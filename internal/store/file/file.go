// Package file keeps labeled pairs in a JSON training file.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"dedupe/internal/domain"
)

const formatVersion = 1

type document struct {
	Version   int                  `json:"version"`
	Judgments []domain.LabeledPair `json:"judgments"`
}

// Store reads and writes the whole judgment sequence of one training file.
type Store struct {
	path string
}

func NewStore(path string) *Store { return &Store{path: path} }

// Load returns the stored judgments. A missing file is an empty history.
func (s *Store) Load(ctx context.Context) ([]domain.LabeledPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []domain.LabeledPair{}, nil
		}
		return nil, eris.Wrapf(err, "store: read %s", filepath.Base(s.path))
	}
	if len(data) == 0 {
		return []domain.LabeledPair{}, nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "store: decode %s", filepath.Base(s.path))
	}
	if doc.Judgments == nil {
		doc.Judgments = []domain.LabeledPair{}
	}
	return doc.Judgments, nil
}

// Save replaces the file with the given sequence. The write goes to a
// temporary file first so an interrupted save leaves the old file intact.
// It does not check ctx: saves run during shutdown and must still complete.
func (s *Store) Save(_ context.Context, judgments []domain.LabeledPair) error {
	if judgments == nil {
		judgments = []domain.LabeledPair{}
	}
	data, err := json.MarshalIndent(document{Version: formatVersion, Judgments: judgments}, "", "  ")
	if err != nil {
		return eris.Wrap(err, "store: encode judgments")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return eris.Wrap(err, "store: create training dir")
	}
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return eris.Wrapf(err, "store: create %s", filepath.Base(tmp))
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return eris.Wrapf(err, "store: write %s", filepath.Base(tmp))
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return eris.Wrapf(err, "store: sync %s", filepath.Base(tmp))
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return eris.Wrapf(err, "store: close %s", filepath.Base(tmp))
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return eris.Wrapf(err, "store: rename %s", filepath.Base(s.path))
	}
	return nil
}

func (s *Store) Close() error { return nil }
