package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	kdb "github.com/opst/modelflow/pkg/db"
	kpginstance "github.com/opst/modelflow/pkg/db/postgres/instance"
	kpgmodel "github.com/opst/modelflow/pkg/db/postgres/model"
	kpool "github.com/opst/modelflow/pkg/db/postgres/pool"
	kpgschema "github.com/opst/modelflow/pkg/db/postgres/schema"
	"github.com/opst/modelflow/pkg/domain/instance"
	"github.com/opst/modelflow/pkg/domain/model"
	xe "github.com/opst/modelflow/pkg/errors"
)

type modelflowDBPostgres struct {
	pool      kpool.Pool
	models    model.Interface
	instances instance.Interface
	schema    kdb.SchemaInterface
}

var _ kdb.Database = &modelflowDBPostgres{}

type Config struct {
	MaxConns int32
	Lease    time.Duration
}

type Option func(*Config) *Config

// WithMaxConns limits connections in the pool. Zero means the pgx default.
func WithMaxConns(n int32) Option {
	return func(c *Config) *Config {
		c.MaxConns = n
		return c
	}
}

// WithLease sets how long an instance picked by PickAndStep is kept from others.
// Zero means the default.
func WithLease(d time.Duration) Option {
	return func(c *Config) *Config {
		c.Lease = d
		return c
	}
}

func New(ctx context.Context, url string, options ...Option) (kdb.Database, error) {
	c := &Config{}
	for _, option := range options {
		c = option(c)
	}

	pconf, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	if 0 < c.MaxConns {
		pconf.MaxConns = c.MaxConns
	}

	pool, err := pgxpool.ConnectConfig(ctx, pconf)
	if err != nil {
		return nil, xe.Wrap(err)
	}

	p := kpool.Wrap(pool)
	return &modelflowDBPostgres{
		pool:      p,
		models:    kpgmodel.New(p),
		instances: kpginstance.New(p, kpginstance.WithLease(c.Lease)),
		schema:    kpgschema.New(p),
	}, nil
}

func (m *modelflowDBPostgres) Models() model.Interface {
	return m.models
}

func (m *modelflowDBPostgres) Instances() instance.Interface {
	return m.instances
}

func (m *modelflowDBPostgres) Schema() kdb.SchemaInterface {
	return m.schema
}

func (m *modelflowDBPostgres) Close() error {
	m.pool.Close()
	return nil
}
