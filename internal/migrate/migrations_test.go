package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"slotswap/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	ctx := context.Background()
	v1, err := Migrate(ctx, conn)
	require.NoError(t, err)
	require.GreaterOrEqual(t, v1, 1)

	v2, err := Migrate(ctx, conn)
	require.NoError(t, err)
	require.Equal(t, v1, v2)

	for _, table := range []string{"parties", "api_keys", "slots", "proposals"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestMigrationsAreOrdered(t *testing.T) {
	ms, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, ms)
	for i := 1; i < len(ms); i++ {
		require.Less(t, ms[i-1].Version, ms[i].Version)
	}
}
