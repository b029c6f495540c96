package audit

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("docmate_audit"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestLogger_LogAndRecent(t *testing.T) {
	pool := setupTestDB(t)
	core, logs := observer.New(zap.InfoLevel)
	l := NewLogger(pool, zap.New(core))

	ctx := context.Background()
	require.NoError(t, l.Migrate(ctx))
	require.NoError(t, l.Migrate(ctx), "migration is idempotent")

	base := time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)
	clientCtx := WithClient(ctx, "203.0.113.7", "docmate-cli")

	require.NoError(t, l.Log(clientCtx, Entry{
		UserID:        "user-1",
		OperationType: OperationUpdate,
		ResourceType:  ResourceProfile,
		ResourceID:    "user-1",
		Timestamp:     base,
		AdditionalData: map[string]any{
			"complete": true,
		},
	}))
	require.NoError(t, l.Log(ctx, Entry{
		UserID:        "user-1",
		OperationType: OperationRead,
		ResourceType:  ResourceProfile,
		ResourceID:    "user-1",
		Timestamp:     base.Add(time.Minute),
	}))
	require.NoError(t, l.Log(ctx, Entry{UserID: "user-2", OperationType: OperationDelete, ResourceType: ResourceProfile}))

	entries, err := l.Recent(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, OperationRead, entries[0].OperationType)
	assert.Empty(t, entries[0].IPAddress)

	assert.Equal(t, OperationUpdate, entries[1].OperationType)
	assert.Equal(t, ResourceProfile, entries[1].ResourceType)
	assert.Equal(t, "203.0.113.7", entries[1].IPAddress)
	assert.Equal(t, "docmate-cli", entries[1].UserAgent)
	assert.Equal(t, true, entries[1].AdditionalData["complete"])
	assert.True(t, entries[1].Timestamp.Equal(base))

	limited, err := l.Recent(ctx, "user-1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	assert.Equal(t, 3, logs.FilterMessage("Audit log entry").Len())
}

func TestWithClient(t *testing.T) {
	_, ok := clientFrom(context.Background())
	assert.False(t, ok)

	c, ok := clientFrom(WithClient(context.Background(), "10.0.0.1", "curl/8"))
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", c.ip)
	assert.Equal(t, "curl/8", c.userAgent)
}
