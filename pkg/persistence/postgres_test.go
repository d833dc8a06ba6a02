package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestPostgres starts a disposable Postgres container and applies
// migrations against it, grounded on the teacher's test/util/database.go
// testcontainers convention (there built around ent; here pgxpool directly).
func setupTestPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping testcontainers-backed test in -short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("morgana_test"),
		postgres.WithUsername("morgana"),
		postgres.WithPassword("morgana"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, Migrate(dsn))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func TestPostgresStore_AppendAndHistoryRoundTrip(t *testing.T) {
	pool := setupTestPostgres(t)
	store := NewPostgresStore(pool)
	ctx := context.Background()

	require.NoError(t, store.AppendTurn(ctx, TurnRecord{
		ConversationID:   "c1",
		UserText:         "show my invoices",
		AgentText:        "here you go",
		ActiveAgentAfter: "",
		CreatedAt:        time.Now(),
	}))
	require.NoError(t, store.AppendTurn(ctx, TurnRecord{
		ConversationID:   "c1",
		UserText:         "cancel my plan",
		AgentText:        "please confirm",
		ActiveAgentAfter: "billing",
		CreatedAt:        time.Now(),
	}))

	history, err := store.History(ctx, "c1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.EqualValues(t, 1, history[0].Seq)
	require.EqualValues(t, 2, history[1].Seq)

	active, ok, err := store.LastActiveAgent(ctx, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "billing", active)
}

func TestPostgresStore_LastActiveAgentNoRowsReturnsFalse(t *testing.T) {
	pool := setupTestPostgres(t)
	store := NewPostgresStore(pool)

	_, ok, err := store.LastActiveAgent(context.Background(), "no-such-conversation")
	require.NoError(t, err)
	require.False(t, ok)
}
