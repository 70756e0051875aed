package database

import (
	"testing"
	"testing/fstest"
)

func TestExtractVersion(t *testing.T) {
	tests := []struct {
		filename string
		want     int
	}{
		{"001_quotation_rows.up.sql", 1},
		{"012_add_index.up.sql", 12},
		{"initial.up.sql", 0},
		{"abc_initial.up.sql", 0},
	}
	for _, tt := range tests {
		if got := extractVersion(tt.filename); got != tt.want {
			t.Errorf("extractVersion(%q) = %d, want %d", tt.filename, got, tt.want)
		}
	}
}

func TestPendingMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"m/010_later.up.sql":   {Data: []byte("SELECT 1")},
		"m/002_second.up.sql":  {Data: []byte("SELECT 1")},
		"m/001_first.up.sql":   {Data: []byte("SELECT 1")},
		"m/001_first.down.sql": {Data: []byte("SELECT 1")},
		"m/notes.txt":          {Data: []byte("ignore")},
	}

	got, err := pendingMigrations(fsys, "m", map[int]bool{1: true})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"002_second.up.sql", "010_later.up.sql"}
	if len(got) != len(want) {
		t.Fatalf("pending = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pending[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	got, err := pendingMigrations(embeddedMigrations, "migrations", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 || got[0] != "001_quotation_rows.up.sql" {
		t.Errorf("embedded migrations = %v", got)
	}
}
