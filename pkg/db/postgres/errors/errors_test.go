package errors_test

import (
	"errors"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/opst/modelflow/pkg/domain"
	pgerrors "github.com/opst/modelflow/pkg/db/postgres/errors"
)

func TestAsConflict(t *testing.T) {
	t.Run("unique violation is conflict", func(t *testing.T) {
		cause := &pgconn.PgError{Code: pgerrcode.UniqueViolation}
		err := pgerrors.AsConflict(cause, "model", "m1")
		if !errors.Is(err, domain.ErrConflict) {
			t.Errorf("not a conflict: %v", err)
		}
		if pgerr := new(pgconn.PgError); !errors.As(err, &pgerr) {
			t.Errorf("cause is lost: %v", err)
		}
	})

	t.Run("other errors are kept", func(t *testing.T) {
		cause := &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}
		err := pgerrors.AsConflict(cause, "model", "m1")
		if errors.Is(err, domain.ErrConflict) || err != error(cause) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("missing is ErrMissing", func(t *testing.T) {
		if err := (pgerrors.Missing{Table: "model", Identity: "m1"}); !errors.Is(err, domain.ErrMissing) {
			t.Errorf("not missing: %v", err)
		}
	})
}
