package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/InnClaw/InnClaw/internal/cli.version=1.2.3"
	version = "1.0.0"
	logo    = "\n" +
		"  ___            ____ _\n" +
		" |_ _|_ __  _ __ / ___| | __ ___      __\n" +
		"  | || '_ \\| '_ \\ |   | |/ _` \\ \\ /\\ / /\n" +
		"  | || | | | | | | |___| | (_| |\\ V  V /\n" +
		" |___|_| |_|_| |_|\\____|_|\\__,_| \\_/\\_/\n"
)

var rootCmd = &cobra.Command{
	Use:   "innclaw",
	Short: "InnClaw - Automated guest conversation replies",
	Long:  color.CyanString(logo) + "\nAn automated conversation-reply engine for hotel front desks, written in Go.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(modeCmd)
	rootCmd.AddCommand(exclusionsCmd)
}
