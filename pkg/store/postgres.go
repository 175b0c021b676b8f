package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/josinaldojr/doc-qa-rag/pkg/rag"
)

const pgSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS rag_index (
	name       TEXT PRIMARY KEY,
	model      TEXT NOT NULL,
	dimension  INT  NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS rag_segment (
	index_name TEXT   NOT NULL REFERENCES rag_index(name) ON DELETE CASCADE,
	position   INT    NOT NULL,
	segment_id TEXT   NOT NULL,
	seg_index  INT    NOT NULL DEFAULT 0,
	content    TEXT   NOT NULL,
	source     TEXT   NOT NULL DEFAULT '',
	title      TEXT   NOT NULL DEFAULT '',
	embedding  vector NOT NULL,
	PRIMARY KEY (index_name, position)
);
`

// PgStore keeps indexes in PostgreSQL with the pgvector extension.
type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

// EnsureSchema creates the extension and tables when missing.
func (s *PgStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PgStore) Exists(ctx context.Context, name string) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rag_index WHERE name = $1)`, name).Scan(&ok)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Save replaces every row of name in a single transaction.
func (s *PgStore) Save(ctx context.Context, name string, idx *rag.VectorIndex) error {
	if !rag.ValidIndexName(name) {
		return rag.Errorf(rag.ErrValidation, "store", "invalid index name %q", name)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM rag_index WHERE name = $1`, name); err != nil {
		return fmt.Errorf("delete %q: %w", name, err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO rag_index (name, model, dimension, created_at)
		VALUES ($1, $2, $3, $4)
	`, name, idx.Model, idx.Dimension, idx.CreatedAt); err != nil {
		return fmt.Errorf("insert index %q: %w", name, err)
	}

	batch := &pgx.Batch{}
	for i, seg := range idx.Segments {
		batch.Queue(`
			INSERT INTO rag_segment (index_name, position, segment_id, seg_index, content, source, title, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, name, i, seg.ID, seg.Index, seg.Content, seg.Source, seg.Title, pgvector.NewVector(idx.Vectors[i]))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert segments: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *PgStore) Open(ctx context.Context, name string) (rag.Searcher, error) {
	var model string
	var dim int
	err := s.db.QueryRow(ctx, `SELECT model, dimension FROM rag_index WHERE name = $1`, name).Scan(&model, &dim)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &rag.Error{Kind: rag.ErrIndexNotFound, Op: "store", Err: fmt.Errorf("index %q does not exist", name)}
	}
	if err != nil {
		return nil, err
	}
	return &pgSearcher{db: s.db, name: name, model: model, dimension: dim}, nil
}

func (s *PgStore) List(ctx context.Context) ([]rag.IndexInfo, error) {
	rows, err := s.db.Query(ctx, `
		SELECT i.name, i.model, i.dimension, count(sg.position)
		FROM rag_index i
		LEFT JOIN rag_segment sg ON sg.index_name = i.name
		GROUP BY i.name, i.model, i.dimension
		ORDER BY i.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rag.IndexInfo
	for rows.Next() {
		var info rag.IndexInfo
		if err := rows.Scan(&info.Name, &info.Model, &info.Dimension, &info.Segments); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

type pgSearcher struct {
	db        *pgxpool.Pool
	name      string
	model     string
	dimension int
}

func (p *pgSearcher) EmbeddingModel() string { return p.model }

// Search ordena pela distância de cosseno; empates ficam na ordem de inserção.
func (p *pgSearcher) Search(ctx context.Context, vec []float32, topK int) ([]rag.ScoredSegment, error) {
	if len(vec) != p.dimension {
		return nil, fmt.Errorf("index %q: query dimension %d, index dimension %d", p.name, len(vec), p.dimension)
	}
	if topK <= 0 {
		topK = 4
	}

	rows, err := p.db.Query(ctx, `
		SELECT segment_id, seg_index, content, source, title, 1 - (embedding <=> $2) AS score
		FROM rag_segment
		WHERE index_name = $1
		ORDER BY embedding <=> $2, position
		LIMIT $3
	`, p.name, pgvector.NewVector(vec), topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rag.ScoredSegment
	for rows.Next() {
		var h rag.ScoredSegment
		var score float64
		if err := rows.Scan(
			&h.ID,
			&h.Index,
			&h.Content,
			&h.Source,
			&h.Title,
			&score,
		); err != nil {
			return nil, err
		}
		h.Score = float32(score)
		out = append(out, h)
	}
	return out, rows.Err()
}

var (
	_ rag.IndexStore  = (*PgStore)(nil)
	_ rag.IndexLister = (*PgStore)(nil)
)
