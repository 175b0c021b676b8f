// Package store persists rag.VectorIndex values under a name.
package store

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/josinaldojr/doc-qa-rag/pkg/rag"
)

const (
	indexFile = "index.gob"
	metaFile  = "meta.json"
)

// Meta is written next to every index so it can be inspected without
// decoding the vectors.
type Meta struct {
	Name      string    `json:"name"`
	Model     string    `json:"model"`
	Dimension int       `json:"dimension"`
	Segments  int       `json:"segments"`
	CreatedAt time.Time `json:"created_at"`
}

// FileStore keeps each index in its own subdirectory of root.
type FileStore struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, rag.Errorf(rag.ErrConfiguration, "store", "storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, rag.Wrap(rag.ErrConfiguration, "store", fmt.Errorf("create %s: %w", root, err))
	}
	return &FileStore{root: root, locks: make(map[string]*sync.RWMutex)}, nil
}

func (s *FileStore) Root() string { return s.root }

func (s *FileStore) lock(name string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[name] = l
	}
	return l
}

func (s *FileStore) dir(name string) (string, error) {
	if !rag.ValidIndexName(name) {
		return "", rag.Errorf(rag.ErrValidation, "store", "invalid index name %q", name)
	}
	return filepath.Join(s.root, name), nil
}

func (s *FileStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	dir, err := s.dir(name)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

func (s *FileStore) Save(ctx context.Context, name string, idx *rag.VectorIndex) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if idx == nil {
		return errors.New("store: nil index")
	}
	dir, err := s.dir(name)
	if err != nil {
		return err
	}

	l := s.lock(name)
	l.Lock()
	defer l.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	if err := writeAtomic(filepath.Join(dir, indexFile), func(w io.Writer) error {
		return gob.NewEncoder(w).Encode(idx)
	}); err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	info := idx.Info(name)
	meta := Meta{
		Name:      info.Name,
		Model:     info.Model,
		Dimension: info.Dimension,
		Segments:  info.Segments,
		CreatedAt: idx.CreatedAt,
	}
	if err := writeAtomic(filepath.Join(dir, metaFile), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	}); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	return nil
}

func (s *FileStore) Open(ctx context.Context, name string) (rag.Searcher, error) {
	return s.Load(ctx, name)
}

// Load decodes the index stored under name.
func (s *FileStore) Load(ctx context.Context, name string) (*rag.VectorIndex, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.dir(name)
	if err != nil {
		return nil, err
	}

	l := s.lock(name)
	l.RLock()
	defer l.RUnlock()

	f, err := os.Open(filepath.Join(dir, indexFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, &rag.Error{Kind: rag.ErrIndexNotFound, Op: "store", Err: fmt.Errorf("index %q has no %s", name, indexFile)}
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var idx rag.VectorIndex
	if err := gob.NewDecoder(f).Decode(&idx); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Name(), err)
	}
	return &idx, nil
}

// List describes every index under root. Directories without meta.json
// fall back to decoding the index; directories without an index are skipped.
func (s *FileStore) List(ctx context.Context) ([]rag.IndexInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var out []rag.IndexInfo
	for _, e := range entries {
		if !e.IsDir() || !rag.ValidIndexName(e.Name()) {
			continue
		}
		b, err := os.ReadFile(filepath.Join(s.root, e.Name(), metaFile))
		if errors.Is(err, os.ErrNotExist) {
			idx, err := s.Load(ctx, e.Name())
			if errors.Is(err, rag.ErrIndexNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			out = append(out, idx.Info(e.Name()))
			continue
		}
		if err != nil {
			return nil, err
		}
		var m Meta
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("decode meta of %q: %w", e.Name(), err)
		}
		out = append(out, rag.IndexInfo{Name: e.Name(), Model: m.Model, Dimension: m.Dimension, Segments: m.Segments})
	}
	return out, nil
}

// grava num arquivo temporário e renomeia, para nunca deixar um índice pela metade
func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

var (
	_ rag.IndexStore  = (*FileStore)(nil)
	_ rag.IndexLister = (*FileStore)(nil)
)
