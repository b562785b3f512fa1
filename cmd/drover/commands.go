package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loykin/drover/pkg/client"
)

var version = "dev"

func newClient(f *APIFlags) *client.Client {
	cfg := client.DefaultConfig()
	if f.URL != "" {
		cfg.BaseURL = f.URL
	}
	if f.Timeout > 0 {
		cfg.Timeout = f.Timeout
	}
	return client.New(cfg)
}

func requireDaemon(ctx context.Context, c *client.Client, f *APIFlags) error {
	if !c.IsReachable(ctx) {
		url := f.URL
		if url == "" {
			url = client.DefaultConfig().BaseURL
		}
		return fmt.Errorf("daemon not reachable at %s - start it first with 'drover serve'", url)
	}
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func createStatusCommand(f *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-account scheduling state",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(f)
			if err := requireDaemon(cmd.Context(), c, f); err != nil {
				return err
			}
			st, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(st)
			return nil
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createQuotaCommand(f *QuotaFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Show window usage for one account and action type",
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.Account == "" || f.ActionType == "" {
				return fmt.Errorf("--account and --type are required")
			}
			c := newClient(&f.API)
			if err := requireDaemon(cmd.Context(), c, &f.API); err != nil {
				return err
			}
			q, err := c.Quota(cmd.Context(), f.Account, f.ActionType)
			if err != nil {
				return err
			}
			printJSON(q)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.Account, "account", "", "account id")
	cmd.Flags().StringVar(&f.ActionType, "type", "", "action type")
	addAPIFlags(cmd, &f.API)
	return cmd
}

func createCycleCommand(f *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Ask the daemon to start one scheduling cycle now",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(f)
			if err := requireDaemon(cmd.Context(), c, f); err != nil {
				return err
			}
			if err := c.TriggerCycle(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("cycle started")
			return nil
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createPauseCommand(f *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause scheduling (running cycle finishes first)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(f)
			if err := requireDaemon(cmd.Context(), c, f); err != nil {
				return err
			}
			if err := c.Pause(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("paused")
			return nil
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createResumeCommand(f *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume scheduling after pause",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(f)
			if err := requireDaemon(cmd.Context(), c, f); err != nil {
				return err
			}
			if err := c.Resume(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("resumed")
			return nil
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the drover version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("drover", version)
		},
	}
}
