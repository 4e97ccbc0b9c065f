package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/h2team/h2team/internal/activitylog"
	"github.com/h2team/h2team/internal/config"
)

func newSendCmd() *cobra.Command {
	var useTmux bool
	var file string
	var noSubmit bool

	cmd := &cobra.Command{
		Use:   "send <session> [message body...]",
		Short: "Send a message to a running session",
		Long:  "Inject text into a running session's input buffer and submit it, without going through a facilitated discussion. The message body can be provided as arguments or read from a file. If a human is currently attached, the command is queued rather than sent.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			var body string
			switch {
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return setupError(fmt.Errorf("read file: %w", err))
				}
				body = string(data)
			case len(args) > 1:
				body = strings.Join(args[1:], " ")
			default:
				return userError(fmt.Errorf("message body is required (provide as arguments or --file)"))
			}

			ctx := context.Background()
			b := newBackend(useTmux)

			exists, err := b.SessionExists(ctx, name)
			if err != nil {
				return setupError(fmt.Errorf("check session %q: %w", name, err))
			}
			if !exists {
				return setupError(fmt.Errorf("session %q is not running", name))
			}

			root, err := config.ResolveDir()
			if err != nil {
				return setupError(fmt.Errorf("resolve config dir: %w", err))
			}
			fileCfg, err := config.Load(root)
			if err != nil {
				return setupError(fmt.Errorf("load config: %w", err))
			}

			ctl := buildController(name, b, fileCfg.ForAgent(name), "", activitylog.Nop())
			sent, err := ctl.SendCommand(ctx, body, !noSubmit)
			if err != nil {
				return setupError(fmt.Errorf("send command: %w", err))
			}
			if !sent {
				status := ctl.Status()
				fmt.Printf("queued (paused: %s)\n", status.PauseReason)
				return nil
			}
			fmt.Println("sent")
			return nil
		},
	}

	cmd.Flags().BoolVar(&useTmux, "tmux", true, "Drive the session through tmux (false targets a direct PTY backend)")
	cmd.Flags().StringVar(&file, "file", "", "Read message body from file")
	cmd.Flags().BoolVar(&noSubmit, "no-submit", false, "Type the text without pressing Enter")

	return cmd
}
