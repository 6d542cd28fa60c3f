package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"eventsync/internal"
)

const DriverName = "sqlite3"

var ErrNoAccount = errors.New("account not configured")

// Storage keeps the little local state the pipeline needs between
// runs: the calendar account token and the run history. Event state is
// deliberately not stored; every run recomputes it from fresh fetches.
type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sql.DB) *Storage {
	s := &Storage{
		db: sqlx.NewDb(db, DriverName),
	}
	err := s.RunMigrations()
	if err != nil {
		panic(fmt.Sprintf("sqlite: running migrations: %v", err))
	}
	return s
}

func (s Storage) AddAccount(ctx context.Context, account *internal.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, auth) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET auth=?;
	`, account.ID(), account.Auth, account.Auth)
	return err
}

// Account loads the stored account for a platform. With several
// accounts on the same platform the most recently added wins.
func (s Storage) Account(ctx context.Context, platform string) (*internal.Account, error) {
	var acc Account
	err := s.db.GetContext(ctx, &acc, `
		SELECT id, auth FROM accounts
		WHERE id LIKE ?
		ORDER BY rowid DESC LIMIT 1
	`, platform+"/%")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNoAccount, platform)
	}
	if err != nil {
		return nil, err
	}
	return acc.Convert(), nil
}

func (s Storage) SaveRun(ctx context.Context, summary *internal.Summary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (started_at, finished_at, fetched, skipped, merged, created, updated, deleted, failed, failed_sources)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, summary.StartedAt, summary.FinishedAt,
		summary.Fetched, summary.Skipped, summary.Merged,
		summary.Created, summary.Updated, summary.Deleted, summary.Failed,
		joinSources(summary.FailedSources))
	return err
}

func (s Storage) RecentRuns(ctx context.Context, limit int) ([]*internal.Summary, error) {
	var runs []Run
	err := s.db.SelectContext(ctx, &runs, `
		SELECT started_at, finished_at, fetched, skipped, merged, created, updated, deleted, failed, failed_sources
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}

	res := make([]*internal.Summary, len(runs))
	for i, r := range runs {
		res[i] = r.Convert()
	}
	return res, nil
}
