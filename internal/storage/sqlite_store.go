package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"go.uber.org/zap"

	apperrors "docqa/internal/errors"
	"docqa/internal/models"
)

func init() {
	sqlite_vec.Auto()
}

// SQLiteStore implements Store on SQLite with sqlite-vec KNN search.
//
// Each collection gets its own vec0 virtual table, created on first insert
// with that collection's embedding dimension. A query whose embedding does
// not match a collection's dimension fails for that collection only.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore creates a SQLite-backed collection store.
func NewSQLiteStore(dsn string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.initDB(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

// initDB creates the collection and document tables. Vector tables are
// created per collection on first insert, once the dimension is known.
func (s *SQLiteStore) initDB() error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		metadata TEXT NOT NULL,
		dim INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// serializeFloat32Vector converts a float32 slice to the byte format
// expected by sqlite-vec.
func serializeFloat32Vector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:(i+1)*4], math.Float32bits(v))
	}
	return buf
}

// ListCollections returns all collection names.
func (s *SQLiteStore) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM collections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan collection name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// GetOrCreateCollection fetches or creates a collection. Creating an
// existing collection leaves its stored metadata untouched.
func (s *SQLiteStore) GetOrCreateCollection(ctx context.Context, name string, meta models.CollectionMeta) (models.CollectionInfo, error) {
	if name == "" {
		return models.CollectionInfo{}, apperrors.InvalidInput("collection name is required")
	}

	metaJSON, err := json.Marshal(meta.ToMap())
	if err != nil {
		return models.CollectionInfo{}, fmt.Errorf("failed to encode collection metadata: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO collections (name, metadata) VALUES (?, ?)`,
		name, string(metaJSON)); err != nil {
		return models.CollectionInfo{}, fmt.Errorf("failed to create collection: %w", err)
	}

	return s.GetCollectionInfo(ctx, name)
}

// GetCollectionInfo returns a collection's metadata and document count.
func (s *SQLiteStore) GetCollectionInfo(ctx context.Context, name string) (models.CollectionInfo, error) {
	var metaJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT metadata FROM collections WHERE name = ?`, name).Scan(&metaJSON)
	if err == sql.ErrNoRows {
		return models.CollectionInfo{}, apperrors.NotFound("collection", name)
	}
	if err != nil {
		return models.CollectionInfo{}, fmt.Errorf("failed to fetch collection: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(metaJSON), &raw); err != nil {
		return models.CollectionInfo{}, fmt.Errorf("malformed collection metadata: %w", err)
	}

	count, err := s.Count(ctx, name)
	if err != nil {
		return models.CollectionInfo{}, err
	}

	return models.CollectionInfo{
		Name:     name,
		Metadata: models.CollectionMetaFromMap(raw),
		Count:    count,
	}, nil
}

// Count returns the number of documents in a collection.
func (s *SQLiteStore) Count(ctx context.Context, collection string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = ?`, collection).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

// AddDocuments inserts a document batch, creating the collection and its
// vector table when needed.
func (s *SQLiteStore) AddDocuments(ctx context.Context, collection string, docs []models.Document) error {
	if len(docs) == 0 {
		return apperrors.InvalidInput("documents are required")
	}

	if _, err := s.GetOrCreateCollection(ctx, collection, models.NewCollectionMeta(collection, "")); err != nil {
		return err
	}

	vecTable, err := s.ensureVecTable(ctx, collection, len(docs[0].Embedding))
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, doc := range docs {
		metaJSON, err := json.Marshal(doc.Metadata.ToMap())
		if err != nil {
			return fmt.Errorf("failed to encode document metadata: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (collection, id, content, metadata) VALUES (?, ?, ?, ?)`,
			collection, doc.ID, doc.Text, string(metaJSON)); err != nil {
			return fmt.Errorf("failed to insert document %s: %w", doc.ID, err)
		}

		embeddingBytes := serializeFloat32Vector(doc.Embedding)
		// #nosec G201 -- vecTable is derived from the collection rowid, not user input
		vecQuery := fmt.Sprintf(`INSERT INTO %s (id, embedding) VALUES (?, ?)`, vecTable)
		if _, err := tx.ExecContext(ctx, vecQuery, doc.ID, embeddingBytes); err != nil {
			return fmt.Errorf("failed to insert document vector %s: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("added documents",
		zap.String("collection", collection),
		zap.Int("count", len(docs)),
	)
	return nil
}

// vecTableName maps a collection to its vector table via the collections
// rowid, keeping arbitrary collection names out of SQL identifiers.
func (s *SQLiteStore) vecTableName(ctx context.Context, collection string) (string, error) {
	var rowid int64
	err := s.db.QueryRowContext(ctx,
		`SELECT rowid FROM collections WHERE name = ?`, collection).Scan(&rowid)
	if err == sql.ErrNoRows {
		return "", apperrors.NotFound("collection", collection)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve collection: %w", err)
	}
	return fmt.Sprintf("vec_chunks_%d", rowid), nil
}

// ensureVecTable creates the per-collection vec0 table on first insert and
// pins the collection's embedding dimension.
func (s *SQLiteStore) ensureVecTable(ctx context.Context, collection string, dim int) (string, error) {
	if dim <= 0 {
		return "", apperrors.InvalidInput("documents must carry embeddings")
	}

	vecTable, err := s.vecTableName(ctx, collection)
	if err != nil {
		return "", err
	}

	var storedDim int
	if err := s.db.QueryRowContext(ctx,
		`SELECT dim FROM collections WHERE name = ?`, collection).Scan(&storedDim); err != nil {
		return "", fmt.Errorf("failed to read collection dimension: %w", err)
	}

	if storedDim == 0 {
		// #nosec G201 -- table name derived from rowid
		createQuery := fmt.Sprintf(`
			CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(
				id TEXT PRIMARY KEY,
				embedding FLOAT[%d]
			)
		`, vecTable, dim)
		if _, err := s.db.ExecContext(ctx, createQuery); err != nil {
			return "", fmt.Errorf("failed to create vector table: %w", err)
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE collections SET dim = ? WHERE name = ?`, dim, collection); err != nil {
			return "", fmt.Errorf("failed to record collection dimension: %w", err)
		}
		return vecTable, nil
	}

	if storedDim != dim {
		return "", fmt.Errorf("embedding dimension %d does not match collection dimension %d", dim, storedDim)
	}
	return vecTable, nil
}

// Query performs KNN search within one collection using sqlite-vec.
func (s *SQLiteStore) Query(ctx context.Context, collection string, embedding []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return []Match{}, nil
	}

	vecTable, err := s.vecTableName(ctx, collection)
	if err != nil {
		return nil, err
	}

	count, err := s.Count(ctx, collection)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []Match{}, nil
	}
	if topK > count {
		topK = count
	}

	var storedDim int
	if err := s.db.QueryRowContext(ctx,
		`SELECT dim FROM collections WHERE name = ?`, collection).Scan(&storedDim); err != nil {
		return nil, fmt.Errorf("failed to read collection dimension: %w", err)
	}
	if storedDim != len(embedding) {
		return nil, fmt.Errorf("query dimension %d does not match collection dimension %d", len(embedding), storedDim)
	}

	embeddingBytes := serializeFloat32Vector(embedding)

	// sqlite-vec requires k to be part of the MATCH expression.
	// #nosec G201 -- table name derived from rowid
	query := fmt.Sprintf(`
		SELECT d.id, d.content, d.metadata, v.distance
		FROM %s v
		JOIN documents d ON d.id = v.id AND d.collection = ?
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, vecTable)

	rows, err := s.db.QueryContext(ctx, query, collection, embeddingBytes, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to perform vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []Match
	for rows.Next() {
		var id, content, metaJSON string
		var distance float32

		if err := rows.Scan(&id, &content, &metaJSON, &distance); err != nil {
			s.logger.Warn("failed to scan search row", zap.Error(err))
			continue
		}

		var raw map[string]any
		if err := json.Unmarshal([]byte(metaJSON), &raw); err != nil {
			s.logger.Warn("malformed document metadata",
				zap.String("collection", collection),
				zap.String("id", id),
			)
			raw = nil
		}

		results = append(results, Match{
			ID:       id,
			Text:     content,
			Distance: distance,
			Metadata: raw,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}
	return results, nil
}

var _ Store = (*SQLiteStore)(nil)
