package migrations

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestApplyExecutesAllMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS programs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS sync_logs").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := Apply(context.Background(), db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplyStopsOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(".*").WillReturnError(errors.New("boom"))

	err = Apply(context.Background(), db)
	if err == nil || !strings.Contains(err.Error(), "0001_directory.up.sql") {
		t.Fatalf("expected error naming the failed file, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEveryUpHasDown(t *testing.T) {
	ups, err := upFiles()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ups) == 0 {
		t.Fatal("no migrations embedded")
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(files, "sql/"+down); err != nil {
			t.Fatalf("missing %s: %v", down, err)
		}
	}
}

func TestSyncedTablesCarryUpdatedAt(t *testing.T) {
	tables := []string{"users", "cooperatives", "members", "programs", "checklists", "coop_programs",
		"checklist_uploads", "amortization_schedules", "notifications"}
	var all strings.Builder
	ups, _ := upFiles()
	for _, up := range ups {
		body, err := fs.ReadFile(files, "sql/"+up)
		if err != nil {
			t.Fatalf("read %s: %v", up, err)
		}
		all.Write(body)
	}
	schema := all.String()
	for _, table := range tables {
		idx := strings.Index(schema, "CREATE TABLE IF NOT EXISTS "+table+" (")
		if idx < 0 {
			t.Fatalf("table %s not created", table)
		}
		end := strings.Index(schema[idx:], ");")
		if !strings.Contains(schema[idx:idx+end], "updated_at") {
			t.Fatalf("table %s has no updated_at column", table)
		}
	}
}
