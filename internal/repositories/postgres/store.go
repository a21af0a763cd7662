// Package postgres implements store.Store on postgres through sqlx and go-sqlbuilder.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/store"
)

const (
	gamesTable        = "games"
	tagsTable         = "tags"
	gameTagsTable     = "game_tags"
	similaritiesTable = "game_similarities"
	jobsTable         = "etl_jobs"
	jobLogsTable      = "etl_job_logs"
)

const (
	uniqueViolation     pq.ErrorCode = "23505"
	foreignKeyViolation pq.ErrorCode = "23503"
)

// querier is satisfied by both the database and a transaction on it.
type querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// Store is a postgres store.Store.
type Store struct {
	db     database.DB
	logger ectologger.Logger
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

// New creates a Store on an open database.
func New(db database.DB, logger ectologger.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// translate maps driver errors onto the store sentinels.
func translate(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%w: %s: %s", store.ErrConflict, what, pqErr.Detail)
		case foreignKeyViolation:
			return fmt.Errorf("%s: %s: %w", what, pqErr.Detail, store.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

// fail logs unexpected errors and returns the translated error. Not-found results are
// expected by callers and are not logged.
func (s *Store) fail(ctx context.Context, err error, what string, fields map[string]any) error {
	translated := translate(err, what)
	if !errors.Is(translated, store.ErrNotFound) {
		s.logger.WithContext(ctx).WithError(err).WithFields(fields).Errorf("Failed to %s", what)
	}
	return translated
}

func rowsAffected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
