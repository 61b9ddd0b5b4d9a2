// Package sqlitevec provides a SQLite-backed vector driver using sqlite-vec.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/papercomputeco/reel/pkg/vector"
)

// SQLiteVecDriver implements vector.VectorDriver using SQLite with sqlite-vec.
// Namespaces are a vec0 partition key so KNN scans stay inside one owner.
type SQLiteVecDriver struct {
	db         *sql.DB
	dimensions uint
	logger     *zap.Logger
}

// Config holds configuration for the SQLite vec driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions uint
}

// NewSQLiteVecDriver creates a new SQLite vector driver backed by sqlite-vec.
func NewSQLiteVecDriver(c Config, logger *zap.Logger) (*SQLiteVecDriver, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if c.Dimensions == 0 {
		return nil, fmt.Errorf("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Verify sqlite-vec is loaded
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	// vec0 virtual tables use integer rowids, so records live in a mapping
	// table keyed by the same rowid.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS vec_records (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			record_id TEXT NOT NULL UNIQUE,
			namespace TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			archived_at TEXT NOT NULL,
			first_turn INTEGER NOT NULL DEFAULT 0,
			last_turn INTEGER NOT NULL DEFAULT 0,
			content TEXT NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating records table: %w", err)
	}

	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vec_embeddings USING vec0(
			namespace text partition key,
			embedding float[%d] distance_metric=cosine
		)`,
		c.Dimensions,
	)
	if _, err := db.Exec(createVec); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vec0 table: %w", err)
	}

	logger.Info("sqlite-vec vector driver initialized",
		zap.String("db_path", c.DBPath),
		zap.Uint("dimensions", c.Dimensions),
		zap.String("vec_version", vecVersion),
	)

	return &SQLiteVecDriver{
		db:         db,
		dimensions: c.Dimensions,
		logger:     logger,
	}, nil
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// Upsert stores records in the namespace, replacing existing IDs.
func (d *SQLiteVecDriver) Upsert(ctx context.Context, namespace string, records []vector.Record) error {
	if err := vector.ValidateRecords(namespace, d.dimensions, records); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		var existingRowID int64
		err = tx.QueryRowContext(ctx,
			`SELECT rowid FROM vec_records WHERE record_id = ?`, r.ID,
		).Scan(&existingRowID)

		switch {
		case err == nil:
			// vec0 does not support UPDATE
			if _, err := tx.ExecContext(ctx, `DELETE FROM vec_embeddings WHERE rowid = ?`, existingRowID); err != nil {
				return fmt.Errorf("deleting old embedding for record %s: %w", r.ID, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM vec_records WHERE rowid = ?`, existingRowID); err != nil {
				return fmt.Errorf("deleting old record %s: %w", r.ID, err)
			}
		case errors.Is(err, sql.ErrNoRows):
		default:
			return fmt.Errorf("checking for existing record %s: %w", r.ID, err)
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO vec_records
				(record_id, namespace, conversation_id, owner_id, kind, archived_at, first_turn, last_turn, content)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, namespace, r.Metadata.ConversationID, r.Metadata.OwnerID, r.Metadata.Kind,
			r.Metadata.ArchivedAt.UTC().Format(time.RFC3339Nano),
			r.Metadata.FirstTurn, r.Metadata.LastTurn, r.Content,
		)
		if err != nil {
			return fmt.Errorf("inserting record %s: %w", r.ID, err)
		}

		rowID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("getting rowid for record %s: %w", r.ID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vec_embeddings(rowid, namespace, embedding) VALUES (?, ?, ?)`,
			rowID, namespace, serializeFloat32(r.Embedding),
		); err != nil {
			return fmt.Errorf("inserting embedding for record %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("added records to sqlite-vec",
		zap.String("namespace", namespace),
		zap.Int("count", len(records)),
	)

	return nil
}

// Query finds the topK most similar records of the namespace.
func (d *SQLiteVecDriver) Query(ctx context.Context, namespace string, embedding []float32, topK int) ([]vector.Match, error) {
	if namespace == "" {
		return nil, vector.ErrNamespaceRequired
	}
	if err := vector.CheckDimensions(d.dimensions, embedding); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []vector.Match{}, nil
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT
			r.record_id,
			r.content,
			r.conversation_id,
			r.owner_id,
			r.kind,
			r.archived_at,
			r.first_turn,
			r.last_turn,
			ve.distance
		FROM vec_embeddings ve
		INNER JOIN vec_records r ON r.rowid = ve.rowid
		WHERE ve.embedding MATCH ?
			AND ve.k = ?
			AND ve.namespace = ?
		ORDER BY ve.distance
	`, serializeFloat32(embedding), topK, namespace)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	matches := make([]vector.Match, 0, topK)
	for rows.Next() {
		var (
			m          vector.Match
			archivedAt string
			distance   float64
		)
		if err := rows.Scan(
			&m.ID, &m.Content,
			&m.Metadata.ConversationID, &m.Metadata.OwnerID, &m.Metadata.Kind,
			&archivedAt, &m.Metadata.FirstTurn, &m.Metadata.LastTurn,
			&distance,
		); err != nil {
			return nil, fmt.Errorf("scanning query result: %w", err)
		}

		m.Metadata.ArchivedAt, _ = time.Parse(time.RFC3339Nano, archivedAt)
		m.Score = vector.ScoreFromCosineDistance(distance)
		matches = append(matches, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}

	d.logger.Debug("queried sqlite-vec",
		zap.String("namespace", namespace),
		zap.Int("results", len(matches)),
	)

	return matches, nil
}

// DeleteConversation removes the conversation's records from the namespace.
func (d *SQLiteVecDriver) DeleteConversation(ctx context.Context, namespace, conversationID string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT rowid FROM vec_records WHERE namespace = ? AND conversation_id = ?`,
		namespace, conversationID,
	)
	if err != nil {
		return fmt.Errorf("querying rowids for deletion: %w", err)
	}

	var rowIDs []int64
	for rows.Next() {
		var rowID int64
		if err := rows.Scan(&rowID); err != nil {
			rows.Close()
			return fmt.Errorf("scanning rowid: %w", err)
		}
		rowIDs = append(rowIDs, rowID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating rowids: %w", err)
	}

	for _, rowID := range rowIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM vec_embeddings WHERE rowid = ?`, rowID); err != nil {
			return fmt.Errorf("deleting embedding rowid %d: %w", rowID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM vec_records WHERE rowid = ?`, rowID); err != nil {
			return fmt.Errorf("deleting record rowid %d: %w", rowID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("deleted conversation records from sqlite-vec",
		zap.String("namespace", namespace),
		zap.Int("count", len(rowIDs)),
	)

	return nil
}

func (d *SQLiteVecDriver) Dimensions() uint {
	return d.dimensions
}

// Close releases resources held by the driver.
func (d *SQLiteVecDriver) Close() error {
	return d.db.Close()
}
