package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/opst/modelflow/pkg/domain"
)

// requested data is missing.
type Missing struct {
	Table    string
	Identity string
}

var _ error = Missing{}

func (m Missing) Error() string {
	return fmt.Sprintf("%s is not found in %s", m.Identity, m.Table)
}

func (m Missing) Unwrap() error {
	return domain.ErrMissing
}

// requested data conflicts with existing ones.
type Conflict struct {
	Table    string
	Identity string
	cause    error
}

var _ error = Conflict{}

func (c Conflict) Error() string {
	return fmt.Sprintf("%s conflicts in %s: %v", c.Identity, c.Table, c.cause)
}

func (c Conflict) Unwrap() []error {
	return []error{domain.ErrConflict, c.cause}
}

func NewConflict(table string, identity string, cause error) Conflict {
	return Conflict{Table: table, Identity: identity, cause: cause}
}

// AsConflict converts a unique violation into Conflict.
//
// Other errors are returned as they are.
func AsConflict(err error, table string, identity string) error {
	if pgerr := new(pgconn.PgError); errors.As(err, &pgerr) && pgerr.Code == pgerrcode.UniqueViolation {
		return Conflict{Table: table, Identity: identity, cause: err}
	}
	return err
}
