package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"

	"github.com/starford/kiln/internal/apperr"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		kind      apperr.Kind
		retryable bool
	}{
		{"no rows", sql.ErrNoRows, apperr.KindNotFound, false},
		{"deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), apperr.KindTimeout, true},
		{"busy", sqlite3.Error{Code: sqlite3.ErrBusy}, apperr.KindBusy, true},
		{"locked", sqlite3.Error{Code: sqlite3.ErrLocked}, apperr.KindBusy, true},
		{"corrupt", sqlite3.Error{Code: sqlite3.ErrCorrupt}, apperr.KindCorruption, false},
		{"not a db", sqlite3.Error{Code: sqlite3.ErrNotADB}, apperr.KindCorruption, false},
		{"io", sqlite3.Error{Code: sqlite3.ErrIoErr}, apperr.KindIO, true},
		{"unique", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, apperr.KindAlreadyExists, false},
		{"check", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintCheck}, apperr.KindInvalid, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify("op", tc.err)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
			assert.Equal(t, tc.retryable, apperr.IsRetryable(err))
			assert.True(t, errors.Is(err, tc.err) || errors.As(err, new(sqlite3.Error)))
		})
	}

	assert.NoError(t, classify("op", nil))
	plain := errors.New("plain")
	assert.ErrorIs(t, classify("op", plain), plain)
	assert.Equal(t, apperr.KindUnknown, apperr.KindOf(classify("op", plain)))
}

func TestVectorCodec(t *testing.T) {
	vec := []float32{0, 1.5, -2.25}
	got, err := decodeVector(encodeVector(vec))
	assert.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.True(t, apperr.IsCorruption(err))
}
