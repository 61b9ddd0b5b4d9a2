package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dagger/reel/internal/dagger"
)

const versionPkg = "github.com/papercomputeco/reel/pkg/utils"

// Build and return directory of reel binaries
func (r *Reel) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	goarches := []string{"amd64", "arm64"}

	outputs := dag.Directory()

	// cgo is required for sqlite, so only linux targets are cross-built here
	golang := r.goContainer().
		WithExec([]string{"apt-get", "install", "-y", "gcc-aarch64-linux-gnu"})

	for _, goarch := range goarches {
		path := fmt.Sprintf("linux/%s/", goarch)

		build := golang.
			WithEnvVariable("GOOS", "linux").
			WithEnvVariable("GOARCH", goarch)
		if goarch == "arm64" {
			build = build.WithEnvVariable("CC", "aarch64-linux-gnu-gcc")
		}
		build = build.WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", path, "./cli/reel"})

		outputs = outputs.WithDirectory(path, build.Directory(path))
	}

	return outputs
}

// BuildRelease compiles versioned release binaries with embedded version info
func (r *Reel) BuildRelease(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	buildtime := time.Now().UTC().Format(time.RFC3339)

	ldflags := []string{
		"-s",
		"-w",
		fmt.Sprintf("-X '%s.Version=%s'", versionPkg, version),
		fmt.Sprintf("-X '%s.Sha=%s'", versionPkg, commit),
		fmt.Sprintf("-X '%s.Buildtime=%s'", versionPkg, buildtime),
	}

	return r.Build(ctx, strings.Join(ldflags, " "))
}
