package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store against PostgreSQL via pgx/v5, using a
// pgxpool.Pool for connection pooling — grounded on the teacher's
// agent-session-store pattern in the wider example pack (pgxpool.Pool field,
// context-scoped Exec/Query calls). Schema migrations are managed
// separately via golang-migrate (see migrations/).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an already-configured pool. Callers typically build
// the pool with pgxpool.New(ctx, dsn) and run migrations before passing it
// here.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) AppendTurn(ctx context.Context, rec TurnRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO morgana_turns (conversation_id, seq, user_text, agent_text, active_agent_after, created_at)
		VALUES (
			$1,
			COALESCE((SELECT MAX(seq) FROM morgana_turns WHERE conversation_id = $1), 0) + 1,
			$2, $3, $4, $5
		)`,
		rec.ConversationID, rec.UserText, rec.AgentText, nullableString(rec.ActiveAgentAfter), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("persistence: append turn: %w", err)
	}
	return nil
}

func (s *PostgresStore) History(ctx context.Context, conversationID string, limit int) ([]TurnRecord, error) {
	query := `
		SELECT conversation_id, seq, user_text, agent_text, COALESCE(active_agent_after, ''), created_at
		FROM morgana_turns
		WHERE conversation_id = $1
		ORDER BY seq DESC`
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("persistence: history query: %w", err)
	}
	defer rows.Close()

	var out []TurnRecord
	for rows.Next() {
		var rec TurnRecord
		if err := rows.Scan(&rec.ConversationID, &rec.Seq, &rec.UserText, &rec.AgentText, &rec.ActiveAgentAfter, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("persistence: scan turn row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("persistence: history rows: %w", err)
	}

	// Reverse back to ascending Seq order — the DESC + LIMIT above is what
	// gets us "most recent N" cheaply; callers expect chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *PostgresStore) LastActiveAgent(ctx context.Context, conversationID string) (string, bool, error) {
	var active string
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(active_agent_after, '')
		FROM morgana_turns
		WHERE conversation_id = $1
		ORDER BY seq DESC
		LIMIT 1`, conversationID).Scan(&active)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("persistence: last active agent: %w", err)
	}
	return active, true, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// defaultConnectTimeout bounds the initial pool acquisition used by
// NewPool below.
const defaultConnectTimeout = 10 * time.Second

// NewPool builds a pgxpool.Pool for dsn and verifies connectivity with a
// bounded Ping, matching the teacher's fail-fast-at-startup convention.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("persistence: ping: %w", err)
	}
	return pool, nil
}
