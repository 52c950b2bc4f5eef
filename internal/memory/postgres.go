package memory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresJournal persists ciphertext turns in PostgreSQL.
type PostgresJournal struct {
	pool *pgxpool.Pool
}

func NewPostgresJournal(ctx context.Context, databaseURL string) (*PostgresJournal, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresJournal{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS echo_turns (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			user_ciphertext BYTEA NOT NULL,
			assistant_ciphertext BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_echo_turns_created ON echo_turns (created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_echo_turns_session ON echo_turns (session_id);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (j *PostgresJournal) Append(ctx context.Context, t ConversationTurn) error {
	_, err := j.pool.Exec(ctx,
		`INSERT INTO echo_turns (id, session_id, user_ciphertext, assistant_ciphertext, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		t.ID,
		t.SessionID,
		t.UserText,
		t.AssistantText,
		t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

func (j *PostgresJournal) Remove(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := j.pool.Exec(ctx, `DELETE FROM echo_turns WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("remove turns: %w", err)
	}
	return nil
}

func (j *PostgresJournal) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := j.pool.Exec(ctx, `DELETE FROM echo_turns WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete session turns: %w", err)
	}
	return nil
}

func (j *PostgresJournal) DeleteAll(ctx context.Context) error {
	if _, err := j.pool.Exec(ctx, `DELETE FROM echo_turns`); err != nil {
		return fmt.Errorf("delete all turns: %w", err)
	}
	return nil
}

func (j *PostgresJournal) Load(ctx context.Context, limit int) ([]ConversationTurn, error) {
	query := `SELECT id, session_id, user_ciphertext, assistant_ciphertext, created_at
		FROM echo_turns ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := j.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var items []ConversationTurn
	for rows.Next() {
		var t ConversationTurn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.UserText, &t.AssistantText, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		t.CreatedAt = t.CreatedAt.UTC()
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}

	// Reverse into chronological order for replay.
	for i, k := 0, len(items)-1; i < k; i, k = i+1, k-1 {
		items[i], items[k] = items[k], items[i]
	}
	return items, nil
}

func (j *PostgresJournal) Close() error {
	j.pool.Close()
	return nil
}
