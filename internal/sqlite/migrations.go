package sqlite

func (s Storage) RunMigrations() error {
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id VARCHAR NOT NULL PRIMARY KEY,
		auth TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL,
		fetched INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		merged INTEGER NOT NULL DEFAULT 0,
		created INTEGER NOT NULL DEFAULT 0,
		updated INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		failed_sources VARCHAR NOT NULL DEFAULT ""
	)`,
}
