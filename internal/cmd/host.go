package cmd

import "github.com/spf13/cobra"

var hostCmd = &cobra.Command{
	Use:     "host",
	Aliases: []string{"h", "create"},
	Short:   "Create a room and wait for an opponent",
	Long: `Create a new room and wait for an opponent to join with its code.

Examples:
  gomoku host
  gomoku host --server play.example.com
  gomoku host --relay --turn turn.example.com --turn-user u --turn-pass p`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd.Context(), "")
	},
}

func init() {
	rootCmd.AddCommand(hostCmd)
}
