//go:build mage
// +build mage

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binary   = "bin/paygate"
	mainPkg  = "./cmd/server"
	wirePkg  = "./internal/app"
	coverOut = "coverage.out"
)

var Default = Build

// Build compiles the paygate binary into bin/.
func Build() error {
	mg.Deps(Generate)
	return sh.RunV("go", "build", "-o", binary, mainPkg)
}

// Generate regenerates the wire injector.
func Generate() error {
	return sh.RunV("wire", "gen", wirePkg)
}

type Test mg.Namespace

// Unit runs every package's tests.
func (Test) Unit() error {
	return sh.RunV("go", "test", "./...")
}

// Race runs the tests under the race detector. The reference locks and the
// circuit breakers are the interesting targets.
func (Test) Race() error {
	return sh.RunV("go", "test", "-race", "./internal/...")
}

// Cover writes a coverage profile and prints the per-function summary.
func (Test) Cover() error {
	if err := sh.RunV("go", "test", "-covermode=atomic", "-coverprofile="+coverOut, "./..."); err != nil {
		return err
	}
	return sh.RunV("go", "tool", "cover", "-func="+coverOut)
}

func Lint() error {
	return sh.RunV("golangci-lint", "run", "./...")
}

func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

func Tidy() error {
	return sh.RunV("go", "mod", "tidy")
}

// Clean removes the binary, the coverage profile and generated wire code.
func Clean() error {
	if err := os.RemoveAll("bin"); err != nil {
		return err
	}
	if err := os.Remove(coverOut); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	gen := filepath.Join(wirePkg, "wire_gen.go")
	if err := os.Remove(gen); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// CI is what the pipeline runs on every push.
func CI() {
	mg.SerialDeps(Tidy, Generate, Vet, Test.Race, Test.Cover)
}

// Dev builds and serves with the local config.
func Dev() error {
	mg.Deps(Build)
	return sh.RunV("./"+binary, "serve")
}

// Token issues a development API token for the tenant in $TENANT.
func Token() error {
	tenant := os.Getenv("TENANT")
	if tenant == "" {
		return fmt.Errorf("TENANT is required")
	}
	mg.Deps(Build)
	return sh.RunV("./"+binary, "token", "--tenant", tenant)
}

// Install fetches the code generation and lint tools.
func Install() error {
	for _, tool := range []string{
		"github.com/google/wire/cmd/wire@latest",
		"github.com/golangci/golangci-lint/cmd/golangci-lint@latest",
	} {
		if err := sh.RunV("go", "install", tool); err != nil {
			return fmt.Errorf("install %s: %w", tool, err)
		}
	}
	return nil
}
