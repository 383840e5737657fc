package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"autocheck/internal/ipc"
)

func newReloadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Ask the daemon to re-read the profile and reschedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Reload()
				if err != nil {
					return fmt.Errorf("reload: %w", err)
				}
				if resp.Error != "" {
					return fmt.Errorf("reload: %s (previous schedule kept: %s)", resp.Error, resp.Schedule.Message)
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp.Schedule.Message)
				return nil
			})
		},
	}
}
