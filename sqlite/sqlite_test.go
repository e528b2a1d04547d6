package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/fwojciec/egress"
	"github.com/fwojciec/egress/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDB_Open(t *testing.T) {
	t.Parallel()

	t.Run("migrates a new database", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)

		var count int
		err := db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM revisits").Scan(&count)
		require.NoError(t, err)
		assert.Zero(t, count)

		version, err := db.SchemaVersion()
		require.NoError(t, err)
		assert.Equal(t, 2, version)
	})

	t.Run("reopening keeps data and skips applied migrations", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "revisit.db")
		ctx := context.Background()

		first := sqlite.NewDB(path)
		require.NoError(t, first.Open())
		_, err := first.ExecContext(ctx, `INSERT INTO revisits (url, last_seen) VALUES ('https://a.example/', 'x')`)
		require.NoError(t, err)
		require.NoError(t, first.Close())

		second := sqlite.NewDB(path)
		require.NoError(t, second.Open())
		t.Cleanup(func() { second.Close() })

		var count int
		require.NoError(t, second.QueryRowContext(ctx, "SELECT COUNT(*) FROM revisits").Scan(&count))
		assert.Equal(t, 1, count)
	})

	t.Run("newer schema is rejected", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "revisit.db")
		db := sqlite.NewDB(path)
		require.NoError(t, db.Open())
		_, err := db.ExecContext(context.Background(), "PRAGMA user_version = 99")
		require.NoError(t, err)
		require.NoError(t, db.Close())

		err = sqlite.NewDB(path).Open()

		assert.Equal(t, egress.EINVALID, egress.ErrorCode(err))
	})

	t.Run("unreachable path is unavailable", func(t *testing.T) {
		t.Parallel()

		err := sqlite.NewDB("/nonexistent/path/db.sqlite").Open()

		assert.Equal(t, egress.EUNAVAILABLE, egress.ErrorCode(err))
	})

	t.Run("enables WAL mode for file-based databases", func(t *testing.T) {
		t.Parallel()

		db := sqlite.NewDB(filepath.Join(t.TempDir(), "test.db"))
		require.NoError(t, db.Open())
		t.Cleanup(func() { db.Close() })

		var journalMode string
		err := db.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&journalMode)
		require.NoError(t, err)
		assert.Equal(t, "wal", journalMode)
	})
}
