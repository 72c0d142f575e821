package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/InnClaw/InnClaw/internal/config"
)

var exclusionsCmd = &cobra.Command{
	Use:   "exclusions",
	Short: "Manage conversations opted out of automated replies",
}

var exclusionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List excluded conversation ids",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if len(cfg.Engine.Exclusions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No exclusions configured.")
			return nil
		}
		for _, id := range cfg.Engine.Exclusions {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

var exclusionsAddCmd = &cobra.Command{
	Use:   "add <conversation-id>",
	Short: "Opt a conversation out of automated replies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		id := args[0]
		if cfg.Engine.Excluded(id) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s is already excluded\n", id)
			return nil
		}
		cfg.Engine.Exclusions = append(cfg.Engine.Exclusions, id)
		if err := config.Save(cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Excluded %s (takes effect next tick)\n", id)
		return nil
	},
}

var exclusionsRemoveCmd = &cobra.Command{
	Use:   "remove <conversation-id>",
	Short: "Opt a conversation back in to automated replies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		id := args[0]
		kept := cfg.Engine.Exclusions[:0]
		removed := false
		for _, e := range cfg.Engine.Exclusions {
			if e == id {
				removed = true
				continue
			}
			kept = append(kept, e)
		}
		if !removed {
			fmt.Fprintf(cmd.OutOrStdout(), "%s is not excluded\n", id)
			return nil
		}
		cfg.Engine.Exclusions = kept
		if err := config.Save(cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed exclusion for %s\n", id)
		return nil
	},
}

func init() {
	exclusionsCmd.AddCommand(exclusionsListCmd)
	exclusionsCmd.AddCommand(exclusionsAddCmd)
	exclusionsCmd.AddCommand(exclusionsRemoveCmd)
}
