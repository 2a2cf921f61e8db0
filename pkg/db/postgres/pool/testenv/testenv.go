// Package testenv provides postgres databases for tests.
//
// Tests using this package run only when the environment variable
// MODELFLOW_TEST_DATABASE is set to a connection url of a disposable database.
package testenv

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v4/pgxpool"
	kpool "github.com/opst/modelflow/pkg/db/postgres/pool"
	"github.com/opst/modelflow/pkg/db/postgres/schema"
)

const EnvTestDatabase = "MODELFLOW_TEST_DATABASE"

// GetPool connects to the test database with the latest schema.
//
// Tables are cleaned up before returning and after t.
// When the database is not configured, t is skipped.
func GetPool(ctx context.Context, t *testing.T) kpool.Pool {
	t.Helper()

	url := os.Getenv(EnvTestDatabase)
	if url == "" {
		t.Skipf("%s is not set", EnvTestDatabase)
	}

	p, err := pgxpool.Connect(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(p.Close)

	pool := kpool.Wrap(p)
	if err := schema.New(pool).Upgrade(ctx); err != nil {
		t.Fatal(err)
	}

	ClearTables(ctx, pool, t)
	t.Cleanup(func() {
		ClearTables(context.Background(), pool, t)
	})
	return pool
}

func ClearTables(ctx context.Context, p kpool.Queryer, t *testing.T) {
	t.Helper()

	for _, command := range []string{
		`truncate "model" RESTART IDENTITY cascade`,
		// by cascade, all row in tables should be deleted.
	} {
		if _, err := p.Exec(ctx, command); err != nil {
			t.Errorf("fail to clean-up tables.: %v", err)
		}
	}
}
