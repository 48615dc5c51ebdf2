package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"poi-tiering/internal/infrastructure/repository"
	"poi-tiering/pkg/database"
)

// DBTest provides a real database for tests. It uses an SQLite file in the
// test's temp dir, or MySQL when DATABASE_URL_TEST is set.
type DBTest struct {
	T    *testing.T
	DB   *database.DB
	Repo *repository.SQLRepository
	UoW  *repository.SQLUnitOfWorkFactory
}

func NewDBTest(t *testing.T) *DBTest {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		db  *database.DB
		err error
	)
	if url := os.Getenv("DATABASE_URL_TEST"); url != "" {
		db, err = database.Open(ctx, database.MySQL{}, url, database.Options{})
	} else {
		db, err = database.Open(ctx, database.SQLite{}, "file:"+filepath.Join(t.TempDir(), "test.db"), database.Options{})
	}
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return &DBTest{
		T:    t,
		DB:   db,
		Repo: repository.NewSQLRepository(db),
		UoW:  repository.NewSQLUnitOfWorkFactory(db),
	}
}

// Count returns the number of rows in table.
func (d *DBTest) Count(table string) int {
	d.T.Helper()
	var n int
	if err := d.DB.Conn().QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		d.T.Fatalf("count %s: %v", table, err)
	}
	return n
}
