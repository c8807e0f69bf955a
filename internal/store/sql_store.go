package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/ncruces/go-sqlite3/driver"
)

// SQLStore is the database/sql implementation of Backend. SQLite (through
// the ncruces driver with sqlite-vec) and MySQL are supported.
type SQLStore struct {
	mu      sync.RWMutex
	db      *sql.DB
	dialect dialect
	vecDims int
	vectors bool
	now     func() int64
}

// DefaultVectorDimensions is the embedding size of the document vector index.
const DefaultVectorDimensions = 64

// Open connects to driver ("sqlite3" or "mysql") and creates the schema.
// For SQLite, ":memory:" gives a private in-memory database.
func Open(driver, dsn string) (*SQLStore, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.name, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if d.name == DriverSQLite {
		// every pooled connection would otherwise get its own :memory: database
		db.SetMaxOpenConns(1)
	}

	s := &SQLStore{
		db:      db,
		dialect: d,
		vecDims: DefaultVectorDimensions,
		now:     func() int64 { return time.Now().UnixMilli() },
	}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenMemory opens a private in-memory SQLite store.
func OpenMemory() (*SQLStore, error) {
	return Open(DriverSQLite, ":memory:")
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	if s.dialect.vectors {
		s.vectors = s.createVectorTables(ctx) == nil
	}
	return nil
}

// Driver returns the dialect name in use.
func (s *SQLStore) Driver() string {
	return s.dialect.name
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// =============================================================================
// Documents
// =============================================================================

var documentColumns = []string{
	"id", "title", "icon", "cover_image", "parent_id", "owner_id", "position",
	"is_expanded", "is_favorite", "is_archived", "is_published", "is_full_width", "is_locked",
	"font_style", "created_at", "updated_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*DocumentRecord, error) {
	var doc DocumentRecord
	var parentID sql.NullString
	var expanded, favorite, archived, published, fullWidth, locked int
	if err := row.Scan(
		&doc.ID, &doc.Title, &doc.Icon, &doc.CoverImage, &parentID, &doc.OwnerID, &doc.Position,
		&expanded, &favorite, &archived, &published, &fullWidth, &locked,
		&doc.FontStyle, &doc.CreatedAt, &doc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if parentID.Valid {
		doc.ParentID = parentID.String
	}
	doc.IsExpanded = expanded != 0
	doc.IsFavorite = favorite != 0
	doc.IsArchived = archived != 0
	doc.IsPublished = published != 0
	doc.IsFullWidth = fullWidth != 0
	doc.IsLocked = locked != 0
	return &doc, nil
}

func documentArgs(doc *DocumentRecord) []any {
	return []any{
		doc.ID, doc.Title, doc.Icon, doc.CoverImage, nullString(doc.ParentID), doc.OwnerID, doc.Position,
		boolToInt(doc.IsExpanded), boolToInt(doc.IsFavorite), boolToInt(doc.IsArchived),
		boolToInt(doc.IsPublished), boolToInt(doc.IsFullWidth), boolToInt(doc.IsLocked),
		doc.FontStyle, doc.CreatedAt, doc.UpdatedAt,
	}
}

// ListDocuments returns every document ordered by parent and position.
func (s *SQLStore) ListDocuments(ctx context.Context) ([]*DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+strings.Join(documentColumns, ", ")+`
		FROM documents ORDER BY position, created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := []*DocumentRecord{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// GetDocument returns nil, nil when the id is unknown.
func (s *SQLStore) GetDocument(ctx context.Context, id string) (*DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getDocument(ctx, s.db, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) getDocument(ctx context.Context, q querier, id string) (*DocumentRecord, error) {
	doc, err := scanDocument(q.QueryRowContext(ctx, `SELECT `+strings.Join(documentColumns, ", ")+`
		FROM documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

// CreateDocument inserts doc. Zero timestamps are set to now and an empty
// font style becomes "default".
func (s *SQLStore) CreateDocument(ctx context.Context, doc *DocumentRecord) (*DocumentRecord, error) {
	if doc == nil || doc.ID == "" {
		return nil, errors.New("create document: id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := *doc
	s.stampDocument(&rec)
	_, err := s.db.ExecContext(ctx, `INSERT INTO documents (`+strings.Join(documentColumns, ", ")+`)
		VALUES (`+placeholders(len(documentColumns))+`)`, documentArgs(&rec)...)
	if err != nil {
		return nil, fmt.Errorf("create document %s: %w", rec.ID, err)
	}
	return &rec, nil
}

func (s *SQLStore) stampDocument(doc *DocumentRecord) {
	now := s.now()
	if doc.CreatedAt == 0 {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt == 0 {
		doc.UpdatedAt = doc.CreatedAt
	}
	if doc.FontStyle == "" {
		doc.FontStyle = FontDefault
	}
}

// UpdateDocument writes the set fields and returns the stored document.
func (s *SQLStore) UpdateDocument(ctx context.Context, id string, fields DocumentFields) (*DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sets []string
	var args []any
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if fields.Title != nil {
		add("title", *fields.Title)
	}
	if fields.Icon != nil {
		add("icon", *fields.Icon)
	}
	if fields.CoverImage != nil {
		add("cover_image", *fields.CoverImage)
	}
	if fields.ParentID != nil {
		add("parent_id", nullString(*fields.ParentID))
	}
	if fields.Position != nil {
		add("position", *fields.Position)
	}
	if fields.IsExpanded != nil {
		add("is_expanded", boolToInt(*fields.IsExpanded))
	}
	if fields.IsFavorite != nil {
		add("is_favorite", boolToInt(*fields.IsFavorite))
	}
	if fields.IsArchived != nil {
		add("is_archived", boolToInt(*fields.IsArchived))
	}
	if fields.IsPublished != nil {
		add("is_published", boolToInt(*fields.IsPublished))
	}
	if fields.IsFullWidth != nil {
		add("is_full_width", boolToInt(*fields.IsFullWidth))
	}
	if fields.IsLocked != nil {
		add("is_locked", boolToInt(*fields.IsLocked))
	}
	if fields.FontStyle != nil {
		add("font_style", *fields.FontStyle)
	}
	add("updated_at", s.now())
	args = append(args, id)

	if _, err := s.db.ExecContext(ctx, `UPDATE documents SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return nil, fmt.Errorf("update document %s: %w", id, err)
	}
	doc, err := s.getDocument(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrNotFound
	}
	return doc, nil
}

// DeleteDocument removes the document, its blocks and its vector.
func (s *SQLStore) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM blocks WHERE document_id = ?`, id); err != nil {
		return fmt.Errorf("delete blocks of %s: %w", id, err)
	}
	if s.vectors {
		if err := deleteVector(ctx, tx, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// =============================================================================
// Blocks
// =============================================================================

var blockColumns = []string{"id", "document_id", "type", "content", "props", "position", "created_at", "updated_at"}

func scanBlock(row rowScanner) (*BlockRecord, error) {
	var b BlockRecord
	var props string
	if err := row.Scan(&b.ID, &b.DocumentID, &b.Type, &b.Content, &props, &b.Position, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	if props != "" {
		b.Props = json.RawMessage(props)
	}
	return &b, nil
}

func blockArgs(b *BlockRecord) []any {
	return []any{b.ID, b.DocumentID, b.Type, b.Content, propsText(b.Props), b.Position, b.CreatedAt, b.UpdatedAt}
}

func propsText(p json.RawMessage) string {
	if len(p) == 0 || string(p) == "null" {
		return "{}"
	}
	return string(p)
}

func (s *SQLStore) queryBlocks(ctx context.Context, where string, args ...any) ([]*BlockRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+strings.Join(blockColumns, ", ")+`
		FROM blocks `+where+` ORDER BY document_id, position, created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	out := []*BlockRecord{}
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListBlocks returns every block, grouped by document and ordered by position.
func (s *SQLStore) ListBlocks(ctx context.Context) ([]*BlockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryBlocks(ctx, "")
}

// ListDocumentBlocks returns one document's blocks in position order.
func (s *SQLStore) ListDocumentBlocks(ctx context.Context, documentID string) ([]*BlockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryBlocks(ctx, "WHERE document_id = ?", documentID)
}

// GetBlock returns a block, or nil, nil if it does not exist.
func (s *SQLStore) GetBlock(ctx context.Context, id string) (*BlockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getBlock(ctx, id)
}

func (s *SQLStore) getBlock(ctx context.Context, id string) (*BlockRecord, error) {
	b, err := scanBlock(s.db.QueryRowContext(ctx, `SELECT `+strings.Join(blockColumns, ", ")+`
		FROM blocks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get block %s: %w", id, err)
	}
	return b, nil
}

func (s *SQLStore) stampBlock(b *BlockRecord) {
	now := s.now()
	if b.CreatedAt == 0 {
		b.CreatedAt = now
	}
	if b.UpdatedAt == 0 {
		b.UpdatedAt = b.CreatedAt
	}
	if len(b.Props) == 0 {
		b.Props = json.RawMessage("{}")
	}
}

func validateBlock(b *BlockRecord) error {
	if b == nil || b.ID == "" {
		return errors.New("block id is required")
	}
	if b.DocumentID == "" {
		return fmt.Errorf("block %s: document id is required", b.ID)
	}
	if len(b.Props) > 0 && !json.Valid(b.Props) {
		return fmt.Errorf("block %s: props is not valid JSON", b.ID)
	}
	return nil
}

// CreateBlock inserts a block.
func (s *SQLStore) CreateBlock(ctx context.Context, block *BlockRecord) (*BlockRecord, error) {
	if err := validateBlock(block); err != nil {
		return nil, fmt.Errorf("create block: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := *block
	s.stampBlock(&rec)
	_, err := s.db.ExecContext(ctx, `INSERT INTO blocks (`+strings.Join(blockColumns, ", ")+`)
		VALUES (`+placeholders(len(blockColumns))+`)`, blockArgs(&rec)...)
	if err != nil {
		return nil, fmt.Errorf("create block %s: %w", rec.ID, err)
	}
	return &rec, nil
}

// UpdateBlock writes the set fields and returns the stored block.
func (s *SQLStore) UpdateBlock(ctx context.Context, id string, fields BlockFields) (*BlockRecord, error) {
	if fields.Props != nil && !json.Valid(fields.Props) {
		return nil, fmt.Errorf("update block %s: props is not valid JSON", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var sets []string
	var args []any
	if fields.Type != nil {
		sets = append(sets, "type = ?")
		args = append(args, *fields.Type)
	}
	if fields.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *fields.Content)
	}
	if fields.Props != nil {
		sets = append(sets, "props = ?")
		args = append(args, propsText(fields.Props))
	}
	if fields.Position != nil {
		sets = append(sets, "position = ?")
		args = append(args, *fields.Position)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, s.now(), id)

	if _, err := s.db.ExecContext(ctx, `UPDATE blocks SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return nil, fmt.Errorf("update block %s: %w", id, err)
	}
	b, err := s.getBlock(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrNotFound
	}
	return b, nil
}

// DeleteBlock removes a block.
func (s *SQLStore) DeleteBlock(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM blocks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete block %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertBlocks inserts or replaces every block in a single transaction.
func (s *SQLStore) UpsertBlocks(ctx context.Context, list []*BlockRecord) ([]*BlockRecord, error) {
	for _, b := range list {
		if err := validateBlock(b); err != nil {
			return nil, fmt.Errorf("upsert blocks: %w", err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	// created_at is kept from the first insert
	updateCols := []string{"document_id", "type", "content", "props", "position", "updated_at"}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO blocks (`+strings.Join(blockColumns, ", ")+`)
		VALUES (`+placeholders(len(blockColumns))+`) `+s.dialect.upsertTail(updateCols))
	if err != nil {
		return nil, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	out := make([]*BlockRecord, 0, len(list))
	now := s.now()
	for _, b := range list {
		rec := *b
		s.stampBlock(&rec)
		rec.UpdatedAt = now
		if _, err := stmt.ExecContext(ctx, blockArgs(&rec)...); err != nil {
			return nil, fmt.Errorf("upsert block %s: %w", rec.ID, err)
		}
		out = append(out, &rec)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit upsert: %w", err)
	}
	return out, nil
}

// =============================================================================
// Export / Import
// =============================================================================

// Export serializes every document and block to JSON.
func (s *SQLStore) Export(ctx context.Context) ([]byte, error) {
	docs, err := s.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("export documents: %w", err)
	}
	blocks, err := s.ListBlocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("export blocks: %w", err)
	}
	return json.Marshal(Snapshot{Documents: docs, Blocks: blocks})
}

// Import replaces all data with the contents of an Export payload.
func (s *SQLStore) Import(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("import unmarshal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"blocks", "documents"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if s.vectors {
		if err := clearVectors(ctx, tx); err != nil {
			return err
		}
	}

	for _, d := range snap.Documents {
		rec := *d
		s.stampDocument(&rec)
		if _, err := tx.ExecContext(ctx, `INSERT INTO documents (`+strings.Join(documentColumns, ", ")+`)
			VALUES (`+placeholders(len(documentColumns))+`)`, documentArgs(&rec)...); err != nil {
			return fmt.Errorf("import document %s: %w", rec.ID, err)
		}
	}
	for _, b := range snap.Blocks {
		if err := validateBlock(b); err != nil {
			return fmt.Errorf("import: %w", err)
		}
		rec := *b
		s.stampBlock(&rec)
		if _, err := tx.ExecContext(ctx, `INSERT INTO blocks (`+strings.Join(blockColumns, ", ")+`)
			VALUES (`+placeholders(len(blockColumns))+`)`, blockArgs(&rec)...); err != nil {
			return fmt.Errorf("import block %s: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}

// =============================================================================
// Helpers
// =============================================================================

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Compile-time interface checks
var (
	_ Repository  = (*SQLStore)(nil)
	_ VectorIndex = (*SQLStore)(nil)
)
