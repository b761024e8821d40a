package postgres

import (
	"strings"
	"testing"
)

func TestOrderedMigrations(t *testing.T) {
	migrations, err := orderedMigrations()
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if len(migrations) < 2 {
		t.Fatalf("expected at least 2 migrations, got %d", len(migrations))
	}
	for i := 1; i < len(migrations); i++ {
		if migrations[i-1].Name >= migrations[i].Name {
			t.Fatalf("migrations out of order: %s before %s", migrations[i-1].Name, migrations[i].Name)
		}
	}

	all := ""
	for _, m := range migrations {
		all += m.SQL
	}
	for _, table := range requiredTables {
		if !strings.Contains(all, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("no migration creates %s", table)
		}
	}
	if !strings.Contains(all, "PRIMARY KEY (user_id, day, section, step_id)") {
		t.Fatal("step completions are not keyed by section")
	}
}
