package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"autocheck/internal/config"
	"autocheck/internal/ipc"
	"autocheck/internal/notifications"
	"autocheck/internal/profile"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test WeCom notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, dialErr := ipc.Dial(cfg.SocketPath())
			if dialErr != nil {
				return testNotifyLocal(cmd, ctx, cfg)
			}
			defer client.Close()

			resp, err := client.TestNotification()
			if err != nil {
				return err
			}
			if resp == nil {
				return errors.New("missing notification response")
			}
			switch {
			case resp.Message != "":
				fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			case resp.Sent:
				fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			default:
				fmt.Fprintln(cmd.OutOrStdout(), "Notification not sent")
			}
			return nil
		},
	}
}

// testNotifyLocal sends the test message from this process when no daemon
// is running.
func testNotifyLocal(cmd *cobra.Command, ctx *commandContext, cfg *config.Config) error {
	snap, err := profileSnapshot(ctx)
	if err != nil {
		return err
	}
	return sendTestNotification(cmd.Context(), cmd, notifications.NewProvider(cfg, nil), snap.Settings.WeCom)
}

func sendTestNotification(ctx context.Context, cmd *cobra.Command, provider *notifications.Provider, creds profile.WeCom) error {
	out := cmd.OutOrStdout()
	if !notifications.Configured(creds) {
		fmt.Fprintln(out, "wecom credentials not configured; set them with `autocheck settings set wecom.corpid ...`")
		return nil
	}
	if err := provider.For(creds).TestNotification(ctx); err != nil {
		return fmt.Errorf("test notification: %w", err)
	}
	fmt.Fprintln(out, "Test notification sent")
	return nil
}
