package postgres

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", sql.ErrNoRows, store.ErrNotFound},
		{"unique violation", &pq.Error{Code: uniqueViolation, Detail: "Key (slug)=(hades) already exists."}, store.ErrConflict},
		{"foreign key violation", &pq.Error{Code: foreignKeyViolation}, store.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, translate(tt.err, "op"), tt.want)
		})
	}

	t.Run("other errors are wrapped", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := translate(cause, "create game")
		assert.ErrorIs(t, err, cause)
		assert.NotErrorIs(t, err, store.ErrNotFound)
		assert.NotErrorIs(t, err, store.ErrConflict)
	})
}

func TestExternalIDColumn(t *testing.T) {
	col, err := externalIDColumn(models.SourceRawg)
	assert.NoError(t, err)
	assert.Equal(t, "rawg_id", col)

	col, err = externalIDColumn(models.SourceIgdb)
	assert.NoError(t, err)
	assert.Equal(t, "igdb_id", col)

	_, err = externalIDColumn("STEAM")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
