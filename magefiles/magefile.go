//go:build mage

// Package main contains Mage build targets for the paper catalog service.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binDir         = "bin"
	migrationsPath = "migrations"
)

// commands lists the binaries built into bin/.
var commands = []string{"catalogctl", "migrate"}

// Default target to run when none is specified.
var Default = Build

// Build compiles every command into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	version := os.Getenv("VERSION")
	if version == "" {
		version = "dev"
	}
	for _, name := range commands {
		out := filepath.Join(binDir, name)
		ldflags := "-X main.version=" + version
		if err := sh.RunV("go", "build", "-ldflags", ldflags, "-o", out, "./cmd/"+name); err != nil {
			return fmt.Errorf("go build %s: %w", name, err)
		}
		fmt.Printf("Built %s\n", out)
	}
	return nil
}

// Test runs the unit tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "-count=1", "./...")
}

// Vet runs go vet.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Integration runs the tests tagged integration. They start a PostgreSQL
// container unless PAPERCATALOG_TEST_DB_URL is set.
func Integration() error {
	return sh.RunV("go", "test", "-tags", "integration", "-count=1", "./tests/integration/...")
}

// Check runs vet and the unit tests.
func Check() {
	mg.SerialDeps(Vet, Test)
}

// Migrate namespaces the schema targets.
type Migrate mg.Namespace

// Up applies all pending migrations using the configured database.
func (Migrate) Up() error {
	return runMigrate("-up")
}

// Down rolls back every migration.
func (Migrate) Down() error {
	return runMigrate("-down")
}

// Version prints the current schema version.
func (Migrate) Version() error {
	return runMigrate("-version")
}

func runMigrate(action string) error {
	return sh.RunV("go", "run", "./cmd/migrate", action, "-path", migrationsPath)
}

// Clean removes build output.
func Clean() error {
	return sh.Rm(binDir)
}
