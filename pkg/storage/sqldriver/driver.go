// Package sqldriver implements storage.Driver over database/sql. Statements
// are built with ent's dialect-aware SQL builder so the same code serves
// SQLite and PostgreSQL.
package sqldriver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/reel/pkg/storage"
)

const (
	conversationsTable = "conversations"
	turnsTable         = "turns"
)

var (
	conversationColumns = []string{
		"id", "owner_id", "title", "persona", "turn_count",
		"last_activity", "archived_once", "archived_turns", "created_at",
	}
	turnColumns = []string{"seq", "id", "conversation_id", "origin", "content", "created_at"}
)

// Driver implements storage.Driver for a SQL database.
type Driver struct {
	DB      *sql.DB
	dialect string
}

// New wraps db and creates the schema for the given ent dialect
// (dialect.SQLite or dialect.Postgres) when it is missing.
func New(ctx context.Context, db *sql.DB, dialectName string) (*Driver, error) {
	d := &Driver{DB: db, dialect: dialectName}

	if err := d.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return d, nil
}

func (d *Driver) build() *entsql.DialectBuilder {
	return entsql.Dialect(d.dialect)
}

func (d *Driver) CreateConversation(ctx context.Context, conv *storage.Conversation) error {
	if conv == nil {
		return errors.New("cannot store nil conversation")
	}
	conv.Prepare(time.Now().UTC())

	query, args := d.build().Insert(conversationsTable).
		Columns(conversationColumns...).
		Values(
			conv.ID, conv.OwnerID, conv.Title, conv.Persona, conv.TurnCount,
			conv.LastActivity, conv.ArchivedOnce, conv.ArchivedTurns, conv.CreatedAt,
		).
		Query()

	if _, err := d.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}
	return nil
}

func (d *Driver) GetConversation(ctx context.Context, id string) (*storage.Conversation, error) {
	query, args := d.build().Select(conversationColumns...).
		From(entsql.Table(conversationsTable)).
		Where(entsql.EQ("id", id)).
		Query()

	conv, err := scanConversation(d.DB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return conv, nil
}

func (d *Driver) ListConversations(ctx context.Context, ownerID string) ([]*storage.Conversation, error) {
	query, args := d.build().Select(conversationColumns...).
		From(entsql.Table(conversationsTable)).
		Where(entsql.EQ("owner_id", ownerID)).
		OrderBy(entsql.Desc("last_activity")).
		Query()

	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	result := make([]*storage.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		result = append(result, conv)
	}
	return result, rows.Err()
}

func (d *Driver) DeleteConversation(ctx context.Context, id string) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		query, args := d.build().Delete(turnsTable).Where(entsql.EQ("conversation_id", id)).Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("deleting turns: %w", err)
		}

		query, args = d.build().Delete(conversationsTable).Where(entsql.EQ("id", id)).Query()
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("deleting conversation: %w", err)
		}
		return requireRow(res, id)
	})
}

func (d *Driver) AppendTurn(ctx context.Context, turn *storage.Turn) error {
	if turn == nil {
		return errors.New("cannot store nil turn")
	}
	if !turn.Origin.Valid() {
		return errors.New("invalid turn origin: " + string(turn.Origin))
	}
	turn.Prepare(time.Now().UTC())

	return d.inTx(ctx, func(tx *sql.Tx) error {
		if err := d.exists(ctx, tx, turn.ConversationID); err != nil {
			return err
		}

		insert := d.build().Insert(turnsTable).
			Columns("id", "conversation_id", "origin", "content", "created_at").
			Values(turn.ID, turn.ConversationID, string(turn.Origin), turn.Content, turn.CreatedAt)

		if d.dialect == dialect.Postgres {
			query, args := insert.Returning("seq").Query()
			if err := tx.QueryRowContext(ctx, query, args...).Scan(&turn.Seq); err != nil {
				return fmt.Errorf("inserting turn: %w", err)
			}
			return nil
		}

		query, args := insert.Query()
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("inserting turn: %w", err)
		}
		turn.Seq, err = res.LastInsertId()
		return err
	})
}

func (d *Driver) RecentTurns(ctx context.Context, conversationID string, limit int) ([]*storage.Turn, error) {
	if limit < 0 {
		return d.Turns(ctx, conversationID)
	}

	selector := d.build().Select(turnColumns...).
		From(entsql.Table(turnsTable)).
		Where(entsql.EQ("conversation_id", conversationID)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("seq")).
		Limit(limit)

	turns, err := d.queryTurns(ctx, conversationID, selector)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (d *Driver) Turns(ctx context.Context, conversationID string) ([]*storage.Turn, error) {
	selector := d.build().Select(turnColumns...).
		From(entsql.Table(turnsTable)).
		Where(entsql.EQ("conversation_id", conversationID)).
		OrderBy("created_at", "seq")

	return d.queryTurns(ctx, conversationID, selector)
}

func (d *Driver) queryTurns(ctx context.Context, conversationID string, selector *entsql.Selector) ([]*storage.Turn, error) {
	if err := d.exists(ctx, d.DB, conversationID); err != nil {
		return nil, err
	}

	query, args := selector.Query()
	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	turns := make([]*storage.Turn, 0)
	for rows.Next() {
		var (
			t      storage.Turn
			origin string
		)
		if err := rows.Scan(&t.Seq, &t.ID, &t.ConversationID, &origin, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		t.Origin = storage.Origin(origin)
		t.CreatedAt = t.CreatedAt.UTC()
		turns = append(turns, &t)
	}
	return turns, rows.Err()
}

func (d *Driver) RecordExchange(ctx context.Context, conversationID string, delta int, at time.Time) (int, error) {
	var count int
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		query, args := d.build().Update(conversationsTable).
			Add("turn_count", delta).
			Set("last_activity", at.UTC()).
			Where(entsql.EQ("id", conversationID)).
			Query()

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("recording exchange: %w", err)
		}
		if err := requireRow(res, conversationID); err != nil {
			return err
		}

		query, args = d.build().Select("turn_count").
			From(entsql.Table(conversationsTable)).
			Where(entsql.EQ("id", conversationID)).
			Query()
		return tx.QueryRowContext(ctx, query, args...).Scan(&count)
	})
	return count, err
}

func (d *Driver) MarkArchived(ctx context.Context, conversationID string, through int) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		query, args := d.build().Update(conversationsTable).
			Set("archived_once", true).
			Where(entsql.EQ("id", conversationID)).
			Query()

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("marking conversation archived: %w", err)
		}
		if err := requireRow(res, conversationID); err != nil {
			return err
		}

		query, args = d.build().Update(conversationsTable).
			Set("archived_turns", through).
			Where(entsql.And(
				entsql.EQ("id", conversationID),
				entsql.LT("archived_turns", through),
			)).
			Query()

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("advancing archive watermark: %w", err)
		}
		return nil
	})
}

func (d *Driver) Close() error {
	return d.DB.Close()
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (d *Driver) exists(ctx context.Context, q queryRower, conversationID string) error {
	query, args := d.build().Select("id").
		From(entsql.Table(conversationsTable)).
		Where(entsql.EQ("id", conversationID)).
		Query()

	var id string
	err := q.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.NotFoundError{ID: conversationID}
	}
	return err
}

func (d *Driver) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.NotFoundError{ID: id}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*storage.Conversation, error) {
	var c storage.Conversation
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Title, &c.Persona, &c.TurnCount,
		&c.LastActivity, &c.ArchivedOnce, &c.ArchivedTurns, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.LastActivity = c.LastActivity.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}
