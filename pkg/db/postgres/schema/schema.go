// Package schema upgrades the database schema.
//
// Schema versions are directories named by integers in the schema repository.
// Each of them has .sql files, which are applied in lexical order.
package schema

import (
	"cmp"
	"context"
	"embed"
	"errors"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	kpool "github.com/opst/modelflow/pkg/db/postgres/pool"
)

//go:embed sql
var embedded embed.FS

// Repository is the schema repository built in.
func Repository() fs.FS {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		panic(err)
	}
	return sub
}

type pgSchema struct {
	pool       kpool.Pool
	repository fs.FS
}

type Option func(*pgSchema) *pgSchema

// WithRepository replaces the schema repository.
func WithRepository(repository fs.FS) Option {
	return func(s *pgSchema) *pgSchema {
		s.repository = repository
		return s
	}
}

// New creates a new Schema.
func New(pool kpool.Pool, options ...Option) *pgSchema {
	s := &pgSchema{pool: pool, repository: Repository()}
	for _, opt := range options {
		s = opt(s)
	}
	return s
}

type version struct {
	Version int
	Root    string
}

func (v version) Apply(ctx context.Context, repository fs.FS, conn kpool.Queryer) error {
	return fs.WalkDir(repository, v.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".sql") {
			return nil
		}

		query, err := fs.ReadFile(repository, p)
		if err != nil {
			return err
		}
		_, err = conn.Exec(ctx, string(query))
		return err
	})
}

// Version returns the current schema version in the database.
//
// 0 means no schema has been applied.
func (s *pgSchema) Version(ctx context.Context) (int, error) {
	return currentVersion(ctx, s.pool)
}

func currentVersion(ctx context.Context, conn kpool.Queryer) (int, error) {
	var version *int
	if err := conn.QueryRow(
		ctx, `SELECT max("version") FROM "schema_version"`,
	).Scan(&version); err != nil {
		if pgerr := new(pgconn.PgError); errors.As(err, &pgerr) {
			if pgerr.Code == pgerrcode.UndefinedTable {
				return 0, nil
			}
		}
		return -1, err
	}
	if version == nil {
		return 0, nil
	}
	return *version, nil
}

// Latest returns the newest version in the repository.
func (s *pgSchema) Latest() (int, error) {
	vs, err := s.versions()
	if err != nil {
		return -1, err
	}
	if len(vs) == 0 {
		return 0, nil
	}
	return vs[len(vs)-1].Version, nil
}

// Upgrade applies versions newer than the current one, in a transaction.
func (s *pgSchema) Upgrade(ctx context.Context) error {
	schemaVersions, err := s.versions()
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// serialize upgraders.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('modelflow.schema'))`); err != nil {
		return err
	}

	// querying a missing table aborts the transaction.
	if _, err := tx.Exec(
		ctx, `CREATE TABLE IF NOT EXISTS "schema_version" ("version" int not null)`,
	); err != nil {
		return err
	}

	current, err := currentVersion(ctx, tx)
	if err != nil {
		return err
	}

	for _, v := range schemaVersions {
		if v.Version <= current {
			continue
		}
		if err := v.Apply(ctx, s.repository, tx); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM "schema_version"`); err != nil {
			return err
		}
		if _, err := tx.Exec(
			ctx, `INSERT INTO "schema_version" ("version") VALUES ($1)`, v.Version,
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// versions lookup the schema from the schema repository.
//
// # Returns
//
// - []version: The list of schema versions, sorted by version number.
//
// - error: The error if any.
func (s *pgSchema) versions() ([]version, error) {
	dir, err := fs.ReadDir(s.repository, ".")
	if err != nil {
		return nil, err
	}

	schemaVersions := make([]version, 0, len(dir))
	for _, entry := range dir {
		if !entry.IsDir() {
			continue
		}
		v, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		schemaVersions = append(schemaVersions, version{Version: v, Root: path.Clean(entry.Name())})
	}
	slices.SortFunc(
		schemaVersions,
		func(i, j version) int { return cmp.Compare(i.Version, j.Version) },
	)

	return schemaVersions, nil
}
