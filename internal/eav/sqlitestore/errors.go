package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/kiln/internal/apperr"
)

// classify maps driver errors onto the storage taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return apperr.New(apperr.KindNotFound, op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.New(apperr.KindTimeout, op, err)
	}

	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return apperr.New(apperr.KindBusy, op, err)
		case sqlite3.ErrCorrupt, sqlite3.ErrNotADB:
			return apperr.New(apperr.KindCorruption, op, err)
		case sqlite3.ErrIoErr, sqlite3.ErrFull, sqlite3.ErrCantOpen:
			return apperr.New(apperr.KindIO, op, err)
		case sqlite3.ErrConstraint:
			switch se.ExtendedCode {
			case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
				return apperr.New(apperr.KindAlreadyExists, op, err)
			case sqlite3.ErrConstraintForeignKey:
				return apperr.New(apperr.KindNotFound, op, fmt.Errorf("referenced entity does not exist: %w", err))
			}
			return apperr.New(apperr.KindInvalid, op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
