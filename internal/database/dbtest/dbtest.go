// Package dbtest opens migrated in-memory databases for tests.
package dbtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderhub/internal/config"
	"github.com/Additional-Code/orderhub/internal/database"
	"github.com/Additional-Code/orderhub/internal/migration"
)

// Open returns connections to a fresh sqlite database with every migration applied.
// The database is closed when the test ends.
func Open(t testing.TB) *database.Connections {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	cfg := config.Config{Database: config.Database{
		Driver:       "sqlite",
		WriterDSN:    dsn,
		MaxOpenConns: 1,
	}}

	conns, err := database.Open(cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conns.Close() })

	mig, err := migration.New(cfg, conns, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, mig.Up(context.Background()))

	return conns
}
