// Package reelcmder
package reelcmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/reel/cmd/reel/chat"
	configcmder "github.com/papercomputeco/reel/cmd/reel/config"
	servecmder "github.com/papercomputeco/reel/cmd/reel/serve"
	versioncmder "github.com/papercomputeco/reel/cmd/version"
)

const reelLongDesc string = `Reel is a conversational service with two kinds of memory: a short
window of recent turns and a long-term archive searched by similarity.

Run the server and talk to it using:
  reel serve      Run the API server
  reel chat       Chat with a running server
  reel config     Manage persistent configuration`

const reelShortDesc string = "Reel - conversations that remember"

func NewReelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "reel",
		Short:        reelShortDesc,
		Long:         reelLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .reel/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
