package db

import (
	"context"

	"github.com/opst/modelflow/pkg/domain/instance"
	"github.com/opst/modelflow/pkg/domain/model"
)

type Database interface {
	Models() model.Interface
	Instances() instance.Interface
	Schema() SchemaInterface
	Close() error
}

type SchemaInterface interface {
	// Version is the schema version applied to the database.
	Version(ctx context.Context) (int, error)

	// Latest is the newest schema version known.
	Latest() (int, error)

	// Upgrade applies newer schema versions.
	Upgrade(ctx context.Context) error
}
