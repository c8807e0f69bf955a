package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// vec0 tables are keyed by integer rowid, so document ids are mapped through
// document_vector_ids.
func (s *SQLStore) createVectorTables(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS document_vectors USING vec0(embedding float[%d])`, s.vecDims),
		`CREATE TABLE IF NOT EXISTS document_vector_ids (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			document_id TEXT NOT NULL UNIQUE
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create vector tables: %w", err)
		}
	}
	return nil
}

// VectorsEnabled reports whether the vec0 index is available.
func (s *SQLStore) VectorsEnabled() bool {
	return s.vectors
}

// VectorDimensions returns the embedding length the index accepts.
func (s *SQLStore) VectorDimensions() int {
	return s.vecDims
}

func vectorJSON(vec []float32) (string, error) {
	data, err := json.Marshal(vec)
	if err != nil {
		return "", fmt.Errorf("encode vector: %w", err)
	}
	return string(data), nil
}

// IndexDocumentVector stores or replaces the embedding of a document. An
// empty vector removes it.
func (s *SQLStore) IndexDocumentVector(ctx context.Context, documentID string, vec []float32) error {
	if !s.vectors {
		return ErrVectorsUnsupported
	}
	if len(vec) != 0 && len(vec) != s.vecDims {
		return fmt.Errorf("index vector for %s: got %d dimensions, want %d", documentID, len(vec), s.vecDims)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin vector index: %w", err)
	}
	defer tx.Rollback()

	if err := deleteVector(ctx, tx, documentID); err != nil {
		return err
	}
	if len(vec) == 0 {
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO document_vector_ids (document_id) VALUES (?)`, documentID); err != nil {
		return fmt.Errorf("map vector id for %s: %w", documentID, err)
	}
	var rowid int64
	if err := tx.QueryRowContext(ctx, `SELECT rowid FROM document_vector_ids WHERE document_id = ?`, documentID).Scan(&rowid); err != nil {
		return fmt.Errorf("read vector id for %s: %w", documentID, err)
	}
	encoded, err := vectorJSON(vec)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO document_vectors (rowid, embedding) VALUES (?, ?)`, rowid, encoded); err != nil {
		return fmt.Errorf("insert vector for %s: %w", documentID, err)
	}
	return tx.Commit()
}

// SimilarDocuments returns up to k documents nearest to vec, closest first.
func (s *SQLStore) SimilarDocuments(ctx context.Context, vec []float32, k int) ([]Neighbor, error) {
	if !s.vectors {
		return nil, ErrVectorsUnsupported
	}
	if len(vec) != s.vecDims {
		return nil, fmt.Errorf("similar documents: got %d dimensions, want %d", len(vec), s.vecDims)
	}
	if k <= 0 {
		return nil, nil
	}
	encoded, err := vectorJSON(vec)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT rowid, distance FROM document_vectors
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance`, encoded, k)
	if err != nil {
		return nil, fmt.Errorf("knn query: %w", err)
	}
	type hit struct {
		rowid    int64
		distance float64
	}
	var hits []hit
	for rows.Next() {
		var h hit
		if err := rows.Scan(&h.rowid, &h.distance); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan knn row: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]any, len(hits))
	for i, h := range hits {
		ids[i] = h.rowid
	}
	idRows, err := s.db.QueryContext(ctx, `SELECT rowid, document_id FROM document_vector_ids
		WHERE rowid IN (`+placeholders(len(ids))+`)`, ids...)
	if err != nil {
		return nil, fmt.Errorf("resolve vector ids: %w", err)
	}
	defer idRows.Close()
	byRow := make(map[int64]string, len(hits))
	for idRows.Next() {
		var rowid int64
		var docID string
		if err := idRows.Scan(&rowid, &docID); err != nil {
			return nil, fmt.Errorf("scan vector id: %w", err)
		}
		byRow[rowid] = docID
	}
	if err := idRows.Err(); err != nil {
		return nil, err
	}

	out := make([]Neighbor, 0, len(hits))
	for _, h := range hits {
		if docID, ok := byRow[h.rowid]; ok {
			out = append(out, Neighbor{DocumentID: docID, Distance: h.distance})
		}
	}
	return out, nil
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func deleteVector(ctx context.Context, tx execQuerier, documentID string) error {
	var rowid int64
	err := tx.QueryRowContext(ctx, `SELECT rowid FROM document_vector_ids WHERE document_id = ?`, documentID).Scan(&rowid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find vector for %s: %w", documentID, err)
	}
	for _, stmt := range []string{
		`DELETE FROM document_vectors WHERE rowid = ?`,
		`DELETE FROM document_vector_ids WHERE rowid = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, rowid); err != nil {
			return fmt.Errorf("delete vector for %s: %w", documentID, err)
		}
	}
	return nil
}

func clearVectors(ctx context.Context, tx execQuerier) error {
	for _, table := range []string{"document_vectors", "document_vector_ids"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}
