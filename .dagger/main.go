// Reel CI/CD
//
// Package main provides reproducible builds and tests locally and in GitHub actions.
package main

import (
	"context"

	"dagger/reel/internal/dagger"
)

// Reel is the dagger module for the reel service pipeline
type Reel struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

// New creates a new Reel CI/CD module instance
func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", ".reel", "build", "tmp"]
	source *dagger.Directory,
) *Reel {
	return &Reel{
		Source: source,
	}
}

// goContainer returns a Debian Bookworm-based Go container with gcc,
// libsqlite3-dev, CGO enabled, and the project source mounted.
//
// sqlite-vec and go-sqlite3 both need cgo, so tests and lint share it.
func (r *Reel) goContainer() *dagger.Container {
	return dag.Container().
		From("golang:1.25-bookworm").
		WithExec([]string{"apt-get", "update"}).
		WithExec([]string{"apt-get", "install", "-y", "gcc", "libsqlite3-dev"}).
		WithEnvVariable("CGO_ENABLED", "1").
		WithEnvVariable("PATH", "/go/bin:$PATH", dagger.ContainerWithEnvVariableOpts{Expand: true}).
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build")).
		WithWorkdir("/src").
		WithDirectory("/src", r.Source)
}

// Test runs the reel unit tests with the race detector on.
func (r *Reel) Test(ctx context.Context) (string, error) {
	return r.goContainer().
		WithExec([]string{"go", "test", "-race", "./..."}).
		Stdout(ctx)
}
