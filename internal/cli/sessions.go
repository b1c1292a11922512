package cli

import (
	"github.com/spf13/cobra"

	"github.com/dkeye/Mesh/internal/adapters/storage"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/output"
)

func NewStartCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <community>",
		Short: "Start a session for a community",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(cmd.OutOrStdout())
			client := storage.NewClient(deps.Config.Participant.HubURL, nil)

			s, err := client.StartSession(cmd.Context(), domain.CommunityID(args[0]))
			if err != nil {
				return err
			}
			formatter.Info("session " + string(s.ID) + " started for " + string(s.Community))
			return nil
		},
	}
	return cmd
}

func NewReportsCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports <session>",
		Short: "List participant reports of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(cmd.OutOrStdout())
			client := storage.NewClient(deps.Config.Participant.HubURL, nil)

			reports, err := client.Reports(cmd.Context(), domain.SessionID(args[0]))
			if err != nil {
				return err
			}
			formatter.Reports(reports)
			return nil
		},
	}
	return cmd
}
