package migrations

import "testing"

func TestMigrationsFSContainsBootstrapFiles(t *testing.T) {
	entries, err := MigrationsFS.ReadDir("postgres")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected up+down migration files, got %d entries", len(entries))
	}
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name()] = true
	}
	if !names["000001_quickdb_meta.up.sql"] || !names["000001_quickdb_meta.down.sql"] {
		t.Fatalf("missing expected migration files, got %v", names)
	}
}
