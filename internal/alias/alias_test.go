package alias

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/quickdb/quickdb/internal/errs"
	"github.com/quickdb/quickdb/internal/pool"
	"github.com/quickdb/quickdb/internal/valuedomain"
	"github.com/quickdb/quickdb/internal/worker"
)

func sqliteConfig(t *testing.T, name string) DatabaseConfig {
	t.Helper()
	return DatabaseConfig{
		Alias:      name,
		Kind:       KindSqlite,
		Connection: SqliteConnection{Path: filepath.Join(t.TempDir(), "test.db"), CreateIfMissing: true},
		Pool:       pool.Config{MinConns: 1, MaxConns: 2, AcquireTimeoutSecs: 2, MaxRetries: 1, RetryIntervalMillis: 10},
		IDStrategy: valuedomain.AutoIncrement(),
	}
}

func TestAddDatabaseFirstAliasBecomesDefault(t *testing.T) {
	d := NewDirectory(nil)
	if err := d.AddDatabase(context.Background(), sqliteConfig(t, "primary")); err != nil {
		t.Fatalf("AddDatabase: %v", err)
	}
	a, err := d.Resolve("")
	if err != nil {
		t.Fatalf("Resolve default: %v", err)
	}
	if a.Name != "primary" || !a.IsDefault {
		t.Fatalf("expected primary to be default, got %+v", a)
	}
}

func TestAddDatabaseRejectsDuplicateAlias(t *testing.T) {
	d := NewDirectory(nil)
	cfg := sqliteConfig(t, "dup")
	if err := d.AddDatabase(context.Background(), cfg); err != nil {
		t.Fatalf("AddDatabase: %v", err)
	}
	err := d.AddDatabase(context.Background(), cfg)
	if errs.KindOf(err) != errs.KindAliasExists {
		t.Fatalf("expected AliasExists, got %v", err)
	}
}

func TestAddDatabaseRejectsWrongConnectionVariant(t *testing.T) {
	d := NewDirectory(nil)
	cfg := sqliteConfig(t, "bad")
	cfg.Connection = SQLConnection{Host: "localhost"}
	err := d.AddDatabase(context.Background(), cfg)
	if errs.KindOf(err) != errs.KindConfigError {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestResolveUnknownAliasFails(t *testing.T) {
	d := NewDirectory(nil)
	if _, err := d.Resolve("missing"); errs.KindOf(err) != errs.KindAliasNotFound {
		t.Fatalf("expected AliasNotFound, got %v", err)
	}
}

func TestSetDefaultAliasSwitchesDefault(t *testing.T) {
	d := NewDirectory(nil)
	if err := d.AddDatabase(context.Background(), sqliteConfig(t, "a")); err != nil {
		t.Fatalf("AddDatabase a: %v", err)
	}
	if err := d.AddDatabase(context.Background(), sqliteConfig(t, "b")); err != nil {
		t.Fatalf("AddDatabase b: %v", err)
	}
	if err := d.SetDefaultAlias("b"); err != nil {
		t.Fatalf("SetDefaultAlias: %v", err)
	}
	resolved, err := d.Resolve("")
	if err != nil || resolved.Name != "b" {
		t.Fatalf("expected default alias b, got %+v err=%v", resolved, err)
	}
	list := d.ListAliases()
	for _, info := range list {
		if info.Name == "a" && info.IsDefault {
			t.Fatalf("alias a should no longer be default")
		}
	}
}

func TestRemoveDatabaseDrainsWorkerAndPool(t *testing.T) {
	d := NewDirectory(nil)
	if err := d.AddDatabase(context.Background(), sqliteConfig(t, "gone")); err != nil {
		t.Fatalf("AddDatabase: %v", err)
	}
	if err := d.RemoveDatabase("gone"); err != nil {
		t.Fatalf("RemoveDatabase: %v", err)
	}
	if _, err := d.Resolve("gone"); errs.KindOf(err) != errs.KindAliasNotFound {
		t.Fatalf("expected AliasNotFound after removal, got %v", err)
	}
}

func TestRemoveDatabaseUnknownAliasFails(t *testing.T) {
	d := NewDirectory(nil)
	if err := d.RemoveDatabase("nope"); errs.KindOf(err) != errs.KindAliasNotFound {
		t.Fatalf("expected AliasNotFound, got %v", err)
	}
}

func TestSubmitRoundTripsThroughResolvedAlias(t *testing.T) {
	d := NewDirectory(nil)
	if err := d.AddDatabase(context.Background(), sqliteConfig(t, "rw")); err != nil {
		t.Fatalf("AddDatabase: %v", err)
	}
	a, err := d.Resolve("rw")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	resp := a.Submit(context.Background(), &worker.Request{Op: worker.OpServerVersion})
	if resp.Err != nil {
		t.Fatalf("Submit: %v", resp.Err)
	}
	if resp.Version == "" {
		t.Fatalf("expected non-empty sqlite server version")
	}
}

func TestCacheDisabledWhenConfigOmitted(t *testing.T) {
	d := NewDirectory(nil)
	if err := d.AddDatabase(context.Background(), sqliteConfig(t, "nocache")); err != nil {
		t.Fatalf("AddDatabase: %v", err)
	}
	stats, err := d.CacheStats("nocache")
	if err != nil {
		t.Fatalf("CacheStats: %v", err)
	}
	if stats.Entries != 0 || stats.Hits != 0 {
		t.Fatalf("expected zero-value stats for disabled cache, got %+v", stats)
	}
}
