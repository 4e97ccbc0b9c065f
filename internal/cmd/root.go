// Package cmd wires the h2team cobra command tree: run (facilitate a
// discussion), send (inject a one-off message), status (query a
// session), and attach (interactive passthrough to one agent).
package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root cobra command with all subcommands.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "h2team",
		Short: "Multi-agent terminal session orchestrator",
		Long:  "h2team drives multiple interactive CLI assistants, each running in its own terminal session, as a cooperative team: it dispatches prompts, enforces turn-taking, and steps aside whenever a human attaches directly to a session.",
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newSendCmd(),
		newStatusCmd(),
		newAttachCmd(),
	)

	return rootCmd
}
