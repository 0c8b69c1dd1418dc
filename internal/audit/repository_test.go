package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupSQLite(t *testing.T) *SQLRepository {
	repo, err := Open(context.Background(), DriverSQLite, ":memory:")
	require.NoError(t, err)
	require.NoError(t, repo.RunMigrations())
	t.Cleanup(func() { repo.Close() })
	return repo
}

func exerciseRepository(t *testing.T, repo *SQLRepository) {
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)

	entries := []*Entry{
		{Actor: "staff", Action: "create", TargetType: "products", TargetID: "1", Payload: json.RawMessage(`{"name":"Desk"}`), CreatedAt: base},
		{Actor: "staff", Action: "update_status", TargetType: "orders", TargetID: "7", Payload: json.RawMessage(`{"order_status":"shipped"}`), CreatedAt: base.Add(time.Minute)},
		{Actor: "boss", Action: "delete", TargetType: "products", TargetID: "2", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		require.NoError(t, repo.Record(ctx, e))
		assert.NotEqual(t, uuid.Nil, e.ID)
	}

	all, err := repo.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "delete", all[0].Action, "newest first")
	assert.Equal(t, entries[2].ID, all[0].ID)
	assert.Nil(t, all[0].Payload)
	assert.True(t, base.Equal(all[2].CreatedAt), "got %s", all[2].CreatedAt)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(all[1].Payload, &payload))
	assert.Equal(t, "shipped", payload["order_status"])

	products, err := repo.List(ctx, ListFilter{TargetType: "products"})
	require.NoError(t, err)
	assert.Len(t, products, 2)

	byActor, err := repo.List(ctx, ListFilter{TargetType: "products", Actor: "staff"})
	require.NoError(t, err)
	require.Len(t, byActor, 1)
	assert.Equal(t, "1", byActor[0].TargetID)

	limited, err := repo.List(ctx, ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteRepository(t *testing.T) {
	exerciseRepository(t, setupSQLite(t))
}

func TestSQLiteRepository_MigrationsIdempotent(t *testing.T) {
	repo := setupSQLite(t)
	assert.NoError(t, repo.RunMigrations())
}

func TestSQLiteRepository_EmptyList(t *testing.T) {
	entries, err := setupSQLite(t).List(context.Background(), ListFilter{TargetType: "users"})
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "whatever")
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestPostgresRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("audit"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	repo, err := Open(ctx, DriverPostgres, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	require.NoError(t, repo.RunMigrations())

	exerciseRepository(t, repo)
}

type failingRepository struct{ recorded int }

func (f *failingRepository) Record(context.Context, *Entry) error {
	f.recorded++
	return errors.New("disk full")
}

func (f *failingRepository) List(context.Context, ListFilter) ([]Entry, error) { return nil, nil }

func TestTrail_FailureIsLoggedNotReturned(t *testing.T) {
	var buf bytes.Buffer
	repo := &failingRepository{}
	trail := NewTrail(repo, zerolog.New(&buf))

	trail.Record(context.Background(), "staff", "delete", "products", "3", nil)

	assert.Equal(t, 1, repo.recorded)
	assert.Contains(t, buf.String(), "audit record failed")
	assert.Contains(t, buf.String(), `"target_id":"3"`)
}

func TestTrail_RecordsAfterCancel(t *testing.T) {
	repo := setupSQLite(t)
	trail := NewTrail(repo, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	trail.Record(ctx, "staff", "create", "coupons", "9", json.RawMessage(`not json`))

	entries, err := trail.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "coupons", entries[0].TargetType)
	assert.Nil(t, entries[0].Payload)
}
