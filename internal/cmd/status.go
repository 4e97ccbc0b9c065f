package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// sessionStatus is what status prints: the backend-observed facts
// about a session, since a fresh CLI process has no access to any
// other invocation's in-memory controller state (pause flags, queues).
type sessionStatus struct {
	Name          string   `json:"name"`
	Exists        bool     `json:"exists"`
	ManualClients []string `json:"manual_clients"`
	ManuallyHeld  bool     `json:"manually_held"`
}

func newStatusCmd() *cobra.Command {
	var useTmux bool

	cmd := &cobra.Command{
		Use:   "status <session>",
		Short: "Show a session's status",
		Long:  "Query whether a session is running and whether a human client is currently attached to it, and print the result as JSON.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			ctx := context.Background()
			b := newBackend(useTmux)

			exists, err := b.SessionExists(ctx, name)
			if err != nil {
				return setupError(fmt.Errorf("check session %q: %w", name, err))
			}

			status := sessionStatus{Name: name, Exists: exists}
			if exists {
				clients, err := b.ListClients(ctx, name)
				if err != nil {
					return setupError(fmt.Errorf("list clients for %q: %w", name, err))
				}
				status.ManualClients = clients
				status.ManuallyHeld = len(clients) > 0
			}

			out, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal status: %w", err)
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().BoolVar(&useTmux, "tmux", true, "Drive the session through tmux (false targets a direct PTY backend)")
	return cmd
}
