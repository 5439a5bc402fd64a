package database

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPostgresConfig() *PostgresConfig {
	cfg := DefaultPostgresConfig()
	if host := os.Getenv("TEST_POSTGRES_HOST"); host != "" {
		cfg.Host = host
	}
	if port, err := strconv.Atoi(os.Getenv("TEST_POSTGRES_PORT")); err == nil {
		cfg.Port = port
	}
	if user := os.Getenv("TEST_POSTGRES_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("TEST_POSTGRES_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if dbname := os.Getenv("TEST_POSTGRES_DATABASE"); dbname != "" {
		cfg.Database = dbname
	}
	return cfg
}

func TestDefaultPostgresConfig(t *testing.T) {
	cfg := DefaultPostgresConfig()

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "safeguard_members", cfg.Database)
	assert.EqualValues(t, 25, cfg.MaxConns)
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestPostgresConfig_DSN(t *testing.T) {
	cfg := &PostgresConfig{
		Host:     "db.internal",
		Port:     6432,
		User:     "members",
		Password: "secret",
		Database: "safeguard_members",
		SSLMode:  "require",
	}

	assert.Equal(t,
		"host=db.internal port=6432 user=members password=secret dbname=safeguard_members sslmode=require",
		cfg.DSN(),
	)
}

func TestPingTimeout(t *testing.T) {
	assert.Equal(t, 5*time.Second, pingTimeout(&PostgresConfig{}))
	assert.Equal(t, time.Second, pingTimeout(&PostgresConfig{ConnectTimeout: time.Second}))
}

func TestNewPostgres_Unreachable(t *testing.T) {
	cfg := &PostgresConfig{
		Host:           "127.0.0.1",
		Port:           1,
		User:           "nobody",
		Database:       "nothing",
		SSLMode:        "disable",
		MaxRetries:     1,
		RetryInterval:  10 * time.Millisecond,
		ConnectTimeout: 500 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := NewPostgres(ctx, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestNewPostgres_CancelledDuringRetry(t *testing.T) {
	cfg := &PostgresConfig{
		Host:           "127.0.0.1",
		Port:           1,
		SSLMode:        "disable",
		MaxRetries:     5,
		RetryInterval:  time.Hour,
		ConnectTimeout: 200 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewPostgres(ctx, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// Integration tests - run only when database is available

func TestPostgresDB_Integration(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=true to run")
	}

	ctx := context.Background()
	db, err := NewPostgres(ctx, testPostgresConfig())
	require.NoError(t, err)
	defer db.Close()

	require.NotNil(t, db.Pool())
	assert.NoError(t, db.Ping(ctx))
	assert.True(t, db.IsConnected(ctx))
	assert.NoError(t, db.HealthCheck(ctx))

	tx, err := db.BeginTx(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, "CREATE TEMP TABLE scratch (id INT) ON COMMIT DROP")
	require.NoError(t, err)
	tag, err := tx.Exec(ctx, "INSERT INTO scratch (id) VALUES (1), (2)")
	require.NoError(t, err)
	assert.EqualValues(t, 2, tag.RowsAffected())

	rows, err := tx.Query(ctx, "SELECT id FROM scratch ORDER BY id")
	require.NoError(t, err)
	var ids []int
	for rows.Next() {
		var id int
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	rows.Close()
	require.NoError(t, rows.Err())
	assert.Equal(t, []int{1, 2}, ids)
}
