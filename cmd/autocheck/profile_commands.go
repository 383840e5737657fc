package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"autocheck/internal/profile"
)

func newAccountCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage check-in accounts",
	}

	var account profile.Account
	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add an account or replace the one with the same name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openProfile()
			if err != nil {
				return err
			}
			account.Name = args[0]
			if err := store.PutAccount(account); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved account %q\n", strings.TrimSpace(args[0]))
			ctx.reloadDaemon(cmd)
			return nil
		},
	}
	addCmd.Flags().StringVar(&account.ClassID, "class-id", "", "Class identifier submitted with each check-in")
	addCmd.Flags().StringVar(&account.Cookie, "cookie", "", "Session cookie header value")
	addCmd.Flags().StringVar(&account.Pwd, "pwd", "", "Password used to refresh an expired session")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := profileSnapshot(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(snap.Accounts) == 0 {
				fmt.Fprintln(out, "No accounts configured")
				return nil
			}
			rows := make([][]string, 0, len(snap.Accounts))
			for _, a := range snap.Accounts {
				rows = append(rows, []string{a.Name, a.ClassID, yesNo(a.Cookie != ""), yesNo(a.Pwd != "")})
			}
			fmt.Fprint(out, renderTable([]string{"Name", "Class", "Cookie", "Password"}, rows, nil))
			return nil
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openProfile()
			if err != nil {
				return err
			}
			if err := store.RemoveAccount(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed account %q\n", args[0])
			ctx.reloadDaemon(cmd)
			return nil
		},
	}

	cmd.AddCommand(addCmd, listCmd, removeCmd)
	return cmd
}

func newLocationCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "location",
		Short: "Manage check-in locations",
	}

	var location profile.Location
	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a location or replace the one with the same name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateCoordinate("lat", location.Lat, 90); err != nil {
				return err
			}
			if err := validateCoordinate("lng", location.Lng, 180); err != nil {
				return err
			}
			store, err := ctx.openProfile()
			if err != nil {
				return err
			}
			location.Name = args[0]
			if err := store.PutLocation(location); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved location %q\n", strings.TrimSpace(args[0]))
			ctx.reloadDaemon(cmd)
			return nil
		},
	}
	addCmd.Flags().StringVar(&location.Lat, "lat", "", "Latitude in decimal degrees")
	addCmd.Flags().StringVar(&location.Lng, "lng", "", "Longitude in decimal degrees")
	addCmd.Flags().StringVar(&location.Acc, "acc", "", "Reported accuracy (default "+profile.DefaultAccuracy+")")
	_ = addCmd.MarkFlagRequired("lat")
	_ = addCmd.MarkFlagRequired("lng")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List locations",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := profileSnapshot(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(snap.Locations) == 0 {
				fmt.Fprintln(out, "No locations configured")
				return nil
			}
			rows := make([][]string, 0, len(snap.Locations))
			for _, l := range snap.Locations {
				rows = append(rows, []string{l.Name, l.Lat, l.Lng, l.Acc})
			}
			fmt.Fprint(out, renderTable([]string{"Name", "Lat", "Lng", "Acc"}, rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight}))
			return nil
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openProfile()
			if err != nil {
				return err
			}
			if err := store.RemoveLocation(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed location %q\n", args[0])
			ctx.reloadDaemon(cmd)
			return nil
		},
	}

	cmd.AddCommand(addCmd, listCmd, removeCmd)
	return cmd
}

func newTaskCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage check-in tasks (account and location pairs)",
	}

	var disabled bool
	addCmd := &cobra.Command{
		Use:   "add <account> <location>",
		Short: "Add a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openProfile()
			if err != nil {
				return err
			}
			task := profile.Task{AccountName: args[0], LocationName: args[1], Enable: !disabled}
			if err := store.AddTask(task); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added task %s @ %s\n", strings.TrimSpace(args[0]), strings.TrimSpace(args[1]))
			ctx.reloadDaemon(cmd)
			return nil
		},
	}
	addCmd.Flags().BoolVar(&disabled, "disabled", false, "Add the task without enabling it")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks in run order",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := profileSnapshot(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(snap.Tasks) == 0 {
				fmt.Fprintln(out, "No tasks configured")
				return nil
			}
			fmt.Fprint(out, renderTable([]string{"#", "Account", "Location", "Enabled", "Problem"}, taskRows(snap),
				[]columnAlignment{alignRight}))
			return nil
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <number>",
		Short: "Remove a task by its list number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseTaskNumber(args[0])
			if err != nil {
				return err
			}
			store, err := ctx.openProfile()
			if err != nil {
				return err
			}
			if err := store.RemoveTask(index); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed task %d\n", index+1)
			ctx.reloadDaemon(cmd)
			return nil
		},
	}

	cmd.AddCommand(addCmd, listCmd, removeCmd,
		newTaskToggleCommand(ctx, "enable", true),
		newTaskToggleCommand(ctx, "disable", false),
	)
	return cmd
}

func newTaskToggleCommand(ctx *commandContext, verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <number>",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a task by its list number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseTaskNumber(args[0])
			if err != nil {
				return err
			}
			store, err := ctx.openProfile()
			if err != nil {
				return err
			}
			if err := store.SetTaskEnabled(index, enabled); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %d %sd\n", index+1, verb)
			ctx.reloadDaemon(cmd)
			return nil
		},
	}
}

func taskRows(snap profile.Snapshot) [][]string {
	accounts := make(map[string]bool, len(snap.Accounts))
	for _, a := range snap.Accounts {
		accounts[a.Name] = true
	}
	locations := make(map[string]bool, len(snap.Locations))
	for _, l := range snap.Locations {
		locations[l.Name] = true
	}
	rows := make([][]string, 0, len(snap.Tasks))
	for i, task := range snap.Tasks {
		var problems []string
		if !accounts[task.AccountName] {
			problems = append(problems, "account not found")
		}
		if !locations[task.LocationName] {
			problems = append(problems, "location not found")
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			task.AccountName,
			task.LocationName,
			yesNo(task.Enable),
			strings.Join(problems, ", "),
		})
	}
	return rows
}

// parseTaskNumber converts a 1-based list number into a task index.
func parseTaskNumber(arg string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid task number %q (see `autocheck task list`)", arg)
	}
	return n - 1, nil
}

func validateCoordinate(name, value string, limit float64) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fmt.Errorf("%s must be a decimal number, got %q", name, value)
	}
	if v < -limit || v > limit {
		return fmt.Errorf("%s %s is out of range", name, value)
	}
	return nil
}

func profileSnapshot(ctx *commandContext) (profile.Snapshot, error) {
	store, err := ctx.openProfile()
	if err != nil {
		return profile.Snapshot{}, err
	}
	return store.Snapshot()
}
