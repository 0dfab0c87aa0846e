// Package testutil provides shared fixtures for service tests: an isolated
// in-memory database per test with the full schema applied.
package testutil

import (
	"fmt"
	"regexp"
	"sync/atomic"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/mentorhive/mentorhive/internal/migration"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

// sqlite has no row locks, so the postgres locking clauses used by the
// repositories are stripped before execution.
var rowLockClause = regexp.MustCompile(`(?i)\s*FOR UPDATE( SKIP LOCKED)?`)

func stripRowLocks(tx *gorm.DB) {
	sql := tx.Statement.SQL.String()
	stripped := rowLockClause.ReplaceAllString(sql, "")
	if stripped == sql {
		return
	}
	tx.Statement.SQL.Reset()
	tx.Statement.SQL.WriteString(stripped)
}

// NewDB opens a fresh in-memory database with the schema migrated.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	if err := db.Callback().Query().Before("gorm:query").Register("testutil:strip_row_locks", stripRowLocks); err != nil {
		t.Fatalf("register query callback: %v", err)
	}
	if err := db.Callback().Row().Before("gorm:row").Register("testutil:strip_row_locks", stripRowLocks); err != nil {
		t.Fatalf("register row callback: %v", err)
	}
	if err := db.Callback().Raw().Before("gorm:raw").Register("testutil:strip_row_locks", stripRowLocks); err != nil {
		t.Fatalf("register raw callback: %v", err)
	}

	if err := migration.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

// NewNode builds the snowflake generator used across tests.
func NewNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}
