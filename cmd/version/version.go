// Package versioncmder
package versioncmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/reel/pkg/utils"
)

type versionCommander struct {
	short bool
}

func NewVersionCmd() *cobra.Command {
	cmder := &versionCommander{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the reel version",
		Long:  "Print the version, commit and build time of this reel binary.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&cmder.short, "short", false, "Print only the version")

	return cmd
}

func (c *versionCommander) run(w io.Writer) error {
	if c.short {
		_, err := fmt.Fprintln(w, utils.Version)
		return err
	}
	_, err := fmt.Fprintf(w, "reel %s\ncommit: %s\nbuilt: %s\n", utils.Version, utils.Sha, utils.Buildtime)
	return err
}
