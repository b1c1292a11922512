// Package cli is the participant command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/dkeye/Mesh/internal/config"
	"github.com/dkeye/Mesh/internal/version"
)

type Dependencies struct {
	Config *config.Config
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "participant",
		Short: "Join peer-to-peer mesh meetings",
		Long:  "A participant for mesh meetings: media flows directly between peers while a hub relays signaling and keeps attendance, recordings and reports.",
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")

	rootCmd.PersistentFlags().StringVar(&deps.Config.Participant.HubURL, "hub", deps.Config.Participant.HubURL, "Hub base URL")

	rootCmd.AddCommand(NewStartCmd(deps))
	rootCmd.AddCommand(NewJoinCmd(deps))
	rootCmd.AddCommand(NewReportsCmd(deps))
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version.Full())
		},
	})

	return rootCmd
}
