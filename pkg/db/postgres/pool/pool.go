// Package pool abstracts connection pools of pgx.
package pool

import (
	"context"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// something sending query with SQL.
//
// this is extracted interface from `pgxpool.Pool`, `pgxpool.Conn` and `pgx.Tx`
// When you need more details, see them.
type Queryer interface {
	// sending SQL Command which does not have any result rows.
	Exec(ctx context.Context, sql string, arguments ...interface{}) (commandTag pgconn.CommandTag, err error)

	// sending SQL Command which has result rows.
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)

	// sending SQL Command which has just single result row.
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// interface extracted from `pgx.Tx`
//
// this interface is JUST A SUBSET likes `pgx.Tx`
type Tx interface {
	Queryer

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// interface extracted from `*pgxpool.Pool`
//
// If you need to wrap `*pgxpool.Pool` as `Pool`, you can `Wrap` it.
type Pool interface {
	Queryer

	Begin(ctx context.Context) (Tx, error)
	Ping(ctx context.Context) error
	Close()
}

type pgxPool struct {
	base *pgxpool.Pool
}

var _ Pool = &pgxPool{}

func Wrap(p *pgxpool.Pool) Pool {
	return &pgxPool{base: p}
}

func (p *pgxPool) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.base.Begin(ctx)
	if tx == nil {
		return nil, err
	}
	return tx, err
}

func (p *pgxPool) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	return p.base.Exec(ctx, sql, arguments...)
}

func (p *pgxPool) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return p.base.Query(ctx, sql, args...)
}

func (p *pgxPool) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return p.base.QueryRow(ctx, sql, args...)
}

func (p *pgxPool) Ping(ctx context.Context) error {
	return p.base.Ping(ctx)
}

func (p *pgxPool) Close() {
	p.base.Close()
}
