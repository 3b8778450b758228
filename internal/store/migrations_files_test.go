package store

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	migrationsDir := filepath.Join("..", "..", "db", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	byVersion := map[string]map[string]bool{}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		match := pattern.FindStringSubmatch(name)
		if match == nil {
			continue
		}
		version := match[1]
		direction := match[2]
		if byVersion[version] == nil {
			byVersion[version] = map[string]bool{}
		}
		if byVersion[version][direction] {
			t.Fatalf("duplicate %s migration file for version %s", direction, version)
		}
		byVersion[version][direction] = true
	}

	if len(byVersion) == 0 {
		t.Fatal("no migrations discovered")
	}

	for version, dirs := range byVersion {
		if !dirs["up"] || !dirs["down"] {
			t.Fatalf("version %s must include both up and down files", version)
		}
	}
}

func TestInitMigrationCreatesCoreTables(t *testing.T) {
	contents, err := os.ReadFile(filepath.Join("..", "..", "db", "migrations", "0001_init.up.sql"))
	if err != nil {
		t.Fatalf("read init migration: %v", err)
	}

	for _, table := range []string{"insights", "comments", "moderators", "refresh_sessions"} {
		if !regexp.MustCompile(`CREATE TABLE IF NOT EXISTS ` + table + `\b`).Match(contents) {
			t.Errorf("init migration missing table %s", table)
		}
	}

	// Counters must be born non-negative and stay that way.
	if !regexp.MustCompile(`views BIGINT NOT NULL DEFAULT 0 CHECK \(views >= 0\)`).Match(contents) {
		t.Error("views column missing non-negative check")
	}
	if !regexp.MustCompile(`likes BIGINT NOT NULL DEFAULT 0 CHECK \(likes >= 0\)`).Match(contents) {
		t.Error("likes column missing non-negative check")
	}
}
