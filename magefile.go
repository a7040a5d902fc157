//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Default target when running mage without arguments.
var Default = Build

// binaries maps output names to their main packages.
var binaries = map[string]string{
	"server":    "./cmd/server",
	"ledgerctl": "./cmd/ledgerctl",
}

// wirePackage holds the wireinject injector.
const wirePackage = "./internal/app"

// Build builds the server and ledgerctl binaries into bin/.
func Build() error {
	mg.Deps(Wire)
	for name, pkg := range binaries {
		fmt.Printf("Building %s...\n", name)
		if err := sh.Run("go", "build", "-o", filepath.Join("bin", name), pkg); err != nil {
			return fmt.Errorf("build %s: %w", name, err)
		}
	}
	return nil
}

// Wire regenerates internal/app/wire_gen.go.
func Wire() error {
	fmt.Println("Running wire...")
	if err := sh.Run("wire", "gen", wirePackage); err != nil {
		return fmt.Errorf("wire %s: %w", wirePackage, err)
	}
	return nil
}

// Test runs unit tests with the race detector. The ledger relies on
// per-account locking, so races are treated as failures.
func Test() error {
	fmt.Println("Running tests...")
	return sh.RunV("go", "test", "-race", "./...")
}

// TestCover runs tests with coverage into coverage.out.
func TestCover() error {
	fmt.Println("Running tests with coverage...")
	return sh.RunV("go", "test", "-race", "-covermode=atomic", "-coverprofile=coverage.out", "./...")
}

// TestPostgres runs the store contract against a live database named by
// CHATLEDGER_TEST_POSTGRES_DSN.
func TestPostgres() error {
	if os.Getenv("CHATLEDGER_TEST_POSTGRES_DSN") == "" {
		return fmt.Errorf("CHATLEDGER_TEST_POSTGRES_DSN is not set")
	}
	fmt.Println("Running postgres store tests...")
	return sh.RunV("go", "test", "-count=1", "-run", "Postgres", "./internal/adapter/outbound/postgres/...")
}

// Lint runs go vet and golangci-lint.
func Lint() error {
	fmt.Println("Running linters...")
	if err := sh.RunV("go", "vet", "./..."); err != nil {
		return err
	}
	return sh.RunV("golangci-lint", "run", "./...")
}

// Dev runs the server on the in-memory store.
func Dev() error {
	mg.Deps(Build)
	fmt.Println("Starting server with the memory driver...")
	env := map[string]string{"CHATLEDGER_DATABASE_DRIVER": "memory"}
	return sh.RunWithV(env, "./bin/server")
}

// Summarize runs the daily summary for the previous service day.
func Summarize() error {
	mg.Deps(Build)
	return sh.RunV("./bin/ledgerctl", "summarize")
}

// Reconcile re-checks unresolved card payments.
func Reconcile() error {
	mg.Deps(Build)
	return sh.RunV("./bin/ledgerctl", "payments", "reconcile")
}

// CI runs generation, lint and tests with coverage.
func CI() error {
	mg.SerialDeps(Wire, Lint, TestCover)
	return nil
}

// Clean removes build artifacts. wire_gen.go is kept because it is committed.
func Clean() error {
	fmt.Println("Cleaning...")
	if err := os.RemoveAll("bin"); err != nil {
		return err
	}
	_ = os.Remove("coverage.out")
	return nil
}

// Install installs development tools.
func Install() error {
	fmt.Println("Installing development tools...")
	tools := []string{
		"github.com/google/wire/cmd/wire@v0.7.0",
		"github.com/golangci/golangci-lint/cmd/golangci-lint@latest",
	}
	for _, tool := range tools {
		fmt.Printf("  Installing %s\n", tool)
		if err := sh.Run("go", "install", tool); err != nil {
			return fmt.Errorf("installing %s: %w", tool, err)
		}
	}
	return nil
}
