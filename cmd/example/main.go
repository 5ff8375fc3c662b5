// Command example demonstrates quickdb's Facade against a local SQLite
// alias: registering a model, creating records, querying them back, and
// inspecting cache counters.
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/quickdb/quickdb"
)

func main() {
	ctx := context.Background()
	dbPath := filepath.Join(os.TempDir(), "quickdb-example.db")

	cacheCfg := quickdb.DefaultCacheConfig()

	err := quickdb.AddDatabase(ctx, quickdb.DatabaseConfig{
		Alias: "main",
		Kind:  quickdb.Sqlite,
		Connection: quickdb.SqliteConnection{
			Path:            dbPath,
			CreateIfMissing: true,
		},
		Pool: quickdb.PoolConfig{
			MinConns:            1,
			MaxConns:            4,
			AcquireTimeoutSecs:  5,
			MaxRetries:          3,
			RetryIntervalMillis: 100,
		},
		Cache:         &cacheCfg,
		IDStrategy:    quickdb.AutoIncrement(),
		QueueCapacity: 64,
	})
	if err != nil {
		slog.Error("add_database failed", "error", err)
		os.Exit(1)
	}

	meta := quickdb.ModelMeta{
		Collection: "users",
		Fields: []quickdb.FieldEntry{
			{Name: "id", Def: quickdb.FieldDefinition{Type: quickdb.IntegerField()}},
			{Name: "name", Def: quickdb.FieldDefinition{Type: quickdb.StringField(), Required: true}},
			{Name: "age", Def: quickdb.FieldDefinition{Type: quickdb.IntegerField()}},
		},
		IDField:    "id",
		IDStrategy: quickdb.AutoIncrement(),
	}
	if err := quickdb.RegisterModel(ctx, meta); err != nil {
		slog.Error("register_model failed", "error", err)
		os.Exit(1)
	}

	id, err := quickdb.Create(ctx, "users", quickdb.Record{
		"name": quickdb.NewString("ada"),
		"age":  quickdb.NewInt(30),
	}, "main")
	if err != nil {
		slog.Error("create failed", "error", err)
		os.Exit(1)
	}
	slog.Info("created user", "id", id)

	rec, found, err := quickdb.FindByID(ctx, "users", id, "main")
	if err != nil {
		slog.Error("find_by_id failed", "error", err)
		os.Exit(1)
	}
	slog.Info("find_by_id result", "found", found, "record", rec)

	stats, err := quickdb.CacheStats("main")
	if err != nil {
		slog.Error("cache_stats failed", "error", err)
		os.Exit(1)
	}
	slog.Info("cache stats", "hits", stats.Hits, "misses", stats.Misses, "entries", stats.Entries)
}

