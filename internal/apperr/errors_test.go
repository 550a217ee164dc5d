package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPredicates(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		corrupt   bool
		notFound  bool
	}{
		{"busy", New(KindBusy, "store: update", errors.New("database is locked")), true, false, false},
		{"io", New(KindIO, "store: read", errors.New("disk")), true, false, false},
		{"timeout", New(KindTimeout, "store: read", context.DeadlineExceeded), true, false, false},
		{"network", New(KindNetwork, "store: dial", errors.New("refused")), true, false, false},
		{"conflict", New(KindConflict, "store: write", nil), true, false, false},
		{"corruption", New(KindCorruption, "changetree: verify", errors.New("root mismatch")), false, true, false},
		{"not found", NotFound("store: get entity", "abc"), false, false, true},
		{"invalid", New(KindInvalid, "store: put", errors.New("empty path")), false, false, false},
		{"bare deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), true, false, false},
		{"plain", errors.New("boom"), false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
			assert.Equal(t, tt.corrupt, IsCorruption(tt.err))
			assert.Equal(t, tt.notFound, IsNotFound(tt.err))
		})
	}
}

func TestSentinelsMatchKinds(t *testing.T) {
	err := fmt.Errorf("noteservice: get: %w", NotFound("store: get entity", "x"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))

	assert.True(t, errors.Is(New(KindConflict, "op", nil), ErrConflict))
	assert.True(t, errors.Is(New(KindAlreadyExists, "op", nil), ErrAlreadyExists))
	assert.True(t, errors.Is(New(KindCorruption, "op", nil), ErrCorrupted))
}

func TestErrorMessage(t *testing.T) {
	err := New(KindBusy, "sqlitestore: update", errors.New("database is locked"))
	assert.Equal(t, "sqlitestore: update: busy: database is locked", err.Error())
	assert.Equal(t, "not_found", KindNotFound.String())
}
