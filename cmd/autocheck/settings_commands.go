package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"autocheck/internal/profile"
	"autocheck/internal/scheduler"
)

// settingSetter writes one settings key through the profile store.
type settingSetter func(store *profile.Store, value string) error

var settingSetters = map[string]settingSetter{
	"scheduletime": func(store *profile.Store, value string) error {
		hour, minute, ok := scheduler.ParseTime(strings.TrimSpace(value))
		if !ok {
			return fmt.Errorf("scheduletime: %s, got %q", scheduler.MessageInvalidTime, value)
		}
		return store.Save(map[string]any{profile.KeyScheduleTime: fmt.Sprintf("%02d:%02d", hour, minute)})
	},
	"debug": func(store *profile.Store, value string) error {
		enabled, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("debug: expected true or false, got %q", value)
		}
		return store.Save(map[string]any{profile.KeyDebug: enabled})
	},
	"wecom.corpid":  wecomSetter(func(w *profile.WeCom, v string) { w.CorpID = v }),
	"wecom.secret":  wecomSetter(func(w *profile.WeCom, v string) { w.Secret = v }),
	"wecom.agentid": wecomSetter(func(w *profile.WeCom, v string) { w.AgentID = profile.AgentID(v) }),
	"wecom.touser":  wecomSetter(func(w *profile.WeCom, v string) { w.ToUser = v }),
}

func wecomSetter(apply func(*profile.WeCom, string)) settingSetter {
	return func(store *profile.Store, value string) error {
		creds := profile.WeCom{ToUser: profile.DefaultToUser}
		return store.Update(profile.KeyWeCom, &creds, func() error {
			apply(&creds, strings.TrimSpace(value))
			return nil
		})
	}
}

func settingKeys() []string {
	keys := make([]string, 0, len(settingSetters))
	for key := range settingSetters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func newSettingsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change global profile settings",
	}

	var jsonOutput bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show schedule, notification and debug settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := profileSnapshot(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, snap.Settings)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Key", "Value"}, settingsRows(snap.Settings), nil))
			return nil
		},
	}
	showCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change a setting (" + strings.Join(settingKeys(), ", ") + ")",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.ToLower(strings.TrimSpace(args[0]))
			setter, ok := settingSetters[key]
			if !ok {
				return fmt.Errorf("unknown setting %q (valid: %s)", args[0], strings.Join(settingKeys(), ", "))
			}
			store, err := ctx.openProfile()
			if err != nil {
				return err
			}
			if err := setter(store, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", key)
			ctx.reloadDaemon(cmd)
			return nil
		},
	}

	cmd.AddCommand(showCmd, setCmd)
	return cmd
}

func settingsRows(settings profile.Settings) [][]string {
	return [][]string{
		{"scheduletime", settings.ScheduleTime},
		{"debug", strconv.FormatBool(settings.Debug)},
		{"wecom.corpid", settings.WeCom.CorpID},
		{"wecom.secret", maskSecret(settings.WeCom.Secret)},
		{"wecom.agentid", string(settings.WeCom.AgentID)},
		{"wecom.touser", settings.WeCom.Recipient()},
	}
}

func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:2] + strings.Repeat("*", len(secret)-4) + secret[len(secret)-2:]
}
