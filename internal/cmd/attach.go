package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newAttachCmd() *cobra.Command {
	var useTmux bool
	var readOnly bool

	cmd := &cobra.Command{
		Use:   "attach <session>",
		Short: "Attach to a running session",
		Long:  "Attach the current terminal directly to a running session, handing control to a human. While attached, the orchestrator pauses dispatch to that session. Detach with the backend's own detach key (prefix+d for tmux).",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			ctx := context.Background()
			b := newBackend(useTmux)

			exists, err := b.SessionExists(ctx, name)
			if err != nil {
				return setupError(fmt.Errorf("check session %q: %w", name, err))
			}
			if !exists {
				return setupError(fmt.Errorf("session %q is not running", name))
			}

			if err := b.Attach(ctx, name, readOnly); err != nil {
				return setupError(fmt.Errorf("attach to %q: %w", name, err))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&useTmux, "tmux", true, "Drive the session through tmux (false targets a direct PTY backend)")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "Attach without the ability to send input")

	return cmd
}
