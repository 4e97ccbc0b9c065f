package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/h2team/h2team/internal/activitylog"
	"github.com/h2team/h2team/internal/config"
	"github.com/h2team/h2team/internal/controller"
	"github.com/h2team/h2team/internal/convo"
	convoctx "github.com/h2team/h2team/internal/convo/context"
	"github.com/h2team/h2team/internal/orchestrator"
	"github.com/h2team/h2team/internal/transcript"
)

// agentFlags holds the resolved per-agent CLI overrides, one set per
// entry in agentNames.
type agentFlags struct {
	session          string
	executable       string
	startupTimeout   int
	initWait         float64
	bootstrap        string
	cwd              string
	systemPrompt     string
	systemPromptFile string
}

func newRunCmd() *cobra.Command {
	var (
		maxTurns         int
		historySize      int
		includeHistory   bool
		useTmux          bool
		autoStart        bool
		killExisting     bool
		cleanupAfter     bool
		startWith        string
		debugPrompts     bool
		debugPromptChars int
		logFile          string
		groupPrompt      string
		groupPromptFile  string
		natsURL          string
		natsSubject      string
	)

	flags := make(map[string]*agentFlags, len(agentNames))
	for _, name := range agentNames {
		flags[name] = &agentFlags{}
	}

	cmd := &cobra.Command{
		Use:   "run <topic>",
		Short: "Start a facilitated multi-agent discussion",
		Long: `Start a facilitated discussion between claude, gemini, and codex sessions.

By default each agent must already be running in its named tmux session;
pass --auto-start to launch any that are missing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic := args[0]
			ctx := context.Background()

			root, err := config.ResolveDir()
			if err != nil {
				return userError(fmt.Errorf("resolve config dir: %w", err))
			}

			configPath := filepath.Join(root, "config.yaml")
			var watcher *config.Watcher
			if _, statErr := os.Stat(configPath); statErr == nil {
				w, watchErr := config.WatchFile(configPath)
				if watchErr != nil {
					return setupError(fmt.Errorf("watch config: %w", watchErr))
				}
				w.OnError = func(err error) {
					fmt.Fprintf(os.Stderr, "[config] reload failed: %v\n", err)
				}
				watcher = w
				defer watcher.Close()
			}

			fileCfg, err := config.Load(root)
			if err != nil {
				return setupError(fmt.Errorf("load config: %w", err))
			}

			log := activitylog.Nop()
			var sink orchestrator.EventSink
			if natsURL != "" {
				publisher, pubErr := orchestrator.NewNatsPublisher(natsURL, natsSubject)
				if pubErr != nil {
					return setupError(fmt.Errorf("connect event sink: %w", pubErr))
				}
				defer publisher.Close()
				sink = publisher
			}
			orch := orchestrator.New(log, sink)
			orch.SetPromptDebug(debugPrompts, debugPromptChars)

			ctxMgr := convoctx.New(historySize)
			controllers := make(map[string]*controller.Controller, len(agentNames))

			for _, name := range agentNames {
				af := flags[name]
				agentCfg := resolveAgentConfig(fileCfg, name, af)

				sessionName := af.session
				if sessionName == "" {
					sessionName = name
				}

				b := newBackend(useTmux)
				ctl := buildController(sessionName, b, agentCfg, af.cwd, log)
				if err := ensureRunning(ctx, ctl, autoStart, killExisting, false); err != nil {
					return setupError(err)
				}

				controllers[name] = ctl
				orch.RegisterController(name, ctl)
				ctxMgr.RegisterParticipant(name, "agent")

				if agentCfg.HeartbeatIdleTimeout > 0 {
					go controller.RunHeartbeat(ctx, ctl, controller.HeartbeatConfig{
						IdleTimeout: agentCfg.HeartbeatIdleTimeout,
						Message:     agentCfg.HeartbeatMessage,
						Condition:   agentCfg.HeartbeatCondition,
					})
				}
			}

			if cleanupAfter {
				defer func() {
					for _, ctl := range controllers {
						_ = ctl.Backend.Kill(ctx, ctl.Name)
					}
				}()
			}

			if watcher != nil {
				go watchConfigReloads(ctx, watcher, fileCfg, controllers, flags)
			}

			if err := sendSystemPrompts(ctx, orch, groupPrompt, groupPromptFile, flags); err != nil {
				return setupError(err)
			}

			participants := orderParticipants(agentNames, startWith)

			mgr, err := convo.New(orch, participants, ctxMgr, nil, includeHistory)
			if err != nil {
				return setupError(err)
			}

			turns := mgr.FacilitateDiscussion(ctx, topic, maxTurns)

			fmt.Println()
			fmt.Println(transcript.Header)
			plain := make([]convoctx.Turn, len(turns))
			for i, t := range turns {
				plain[i] = t.Turn
				printTurnConsole(t.Turn)
				fmt.Println("-")
			}

			fmt.Println()
			fmt.Println(transcript.Trailer)
			summary := convoctx.SummarizeConversation(ctxMgr.History(), 400)
			if summary == "" {
				summary = "(no summary available)"
			}
			fmt.Println(summary)

			if logFile != "" {
				path, err := transcript.WriteFile(logFile, plain, summary)
				if err != nil {
					fmt.Fprintf(os.Stderr, "[error] %v\n", err)
				} else {
					fmt.Printf("\n[log] Conversation written to %s\n", path)
				}
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&maxTurns, "max-turns", 6, "Maximum number of turns to run")
	cmd.Flags().IntVar(&historySize, "history-size", 20, "Number of turns retained in shared context")
	cmd.Flags().BoolVar(&includeHistory, "include-history", true, "Include recent context in each prompt")
	cmd.Flags().BoolVar(&useTmux, "tmux", true, "Drive sessions through tmux (false spawns a direct PTY instead)")
	cmd.Flags().BoolVar(&autoStart, "auto-start", false, "Launch sessions automatically if they are not running")
	cmd.Flags().BoolVar(&killExisting, "kill-existing", false, "Kill existing sessions before starting")
	cmd.Flags().BoolVar(&cleanupAfter, "cleanup-after", false, "Kill sessions after the discussion completes")
	cmd.Flags().StringVar(&startWith, "start-with", "gemini", "Which agent speaks first")
	cmd.Flags().BoolVar(&debugPrompts, "debug-prompts", false, "Log prompt diagnostics before each dispatch")
	cmd.Flags().IntVar(&debugPromptChars, "debug-prompt-chars", 200, "Characters of each prompt to include in debug logs")
	cmd.Flags().StringVar(&logFile, "log-file", "", "Path (file or directory) to also persist the transcript to")
	cmd.Flags().StringVar(&groupPrompt, "group-system-prompt", "", "Optional system prompt sent to every agent before the discussion begins")
	cmd.Flags().StringVar(&groupPromptFile, "group-system-prompt-file", "", "Path to a briefing file; sends 'Read @<file>' to every agent before the discussion")
	cmd.Flags().StringVar(&natsURL, "nats-url", "", "NATS server URL to publish orchestration events to (disabled by default)")
	cmd.Flags().StringVar(&natsSubject, "nats-subject", "h2team.events", "NATS subject orchestration events are published on")

	cmd.Flags().Bool("no-history", false, "Alias for --include-history=false")
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if no, _ := cmd.Flags().GetBool("no-history"); no {
			includeHistory = false
		}
		return nil
	}

	for _, name := range agentNames {
		af := flags[name]
		cmd.Flags().StringVar(&af.session, name+"-session", "", fmt.Sprintf("Session name for %s (default: %s)", name, name))
		cmd.Flags().StringVar(&af.executable, name+"-executable", "", fmt.Sprintf("Executable used to start %s", name))
		cmd.Flags().IntVar(&af.startupTimeout, name+"-startup-timeout", 0, fmt.Sprintf("Seconds to wait for %s readiness when auto-starting", name))
		cmd.Flags().Float64Var(&af.initWait, name+"-init-wait", 0, fmt.Sprintf("Seconds to pause after spawning %s before sending the first input", name))
		cmd.Flags().StringVar(&af.bootstrap, name+"-bootstrap", "", fmt.Sprintf("Command to run before launching %s", name))
		cmd.Flags().StringVar(&af.cwd, name+"-cwd", "", fmt.Sprintf("Working directory for the %s session", name))
		cmd.Flags().StringVar(&af.systemPrompt, name+"-system-prompt", "", fmt.Sprintf("Additional system prompt sent only to %s before the discussion", name))
		cmd.Flags().StringVar(&af.systemPromptFile, name+"-system-prompt-file", "", fmt.Sprintf("Path to a briefing file sent only to %s (as 'Read @<file>')", name))
	}

	return cmd
}

// resolveAgentConfig merges the loaded file config for name with its
// CLI overrides and bootstrap wrapping. Used both at startup and by
// watchConfigReloads so a config.yaml edit re-applies the same merge.
func resolveAgentConfig(fileCfg *config.Config, name string, af *agentFlags) config.AgentConfig {
	agentCfg := fileCfg.ForAgent(name)
	if af.executable != "" {
		agentCfg.Executable = af.executable
	}
	if af.startupTimeout > 0 {
		agentCfg.StartupTimeout = secondsToDuration(af.startupTimeout)
	}
	if af.initWait > 0 {
		agentCfg.InitWait = secondsToDuration(int(af.initWait))
	}
	agentCfg.PauseOnManualClients = true

	command := agentCfg.Executable
	cmdArgs := agentCfg.ExecutableArgs
	if af.bootstrap != "" {
		shell := af.bootstrap + " && " + strings.TrimSpace(command+" "+strings.Join(cmdArgs, " "))
		command = "bash"
		cmdArgs = []string{"-lc", shell}
	}
	agentCfg.Executable = command
	agentCfg.ExecutableArgs = cmdArgs

	return agentCfg
}

// watchConfigReloads polls watcher for a freshly loaded config and,
// whenever it changes, re-merges and applies each agent's tunables to
// its already-running controller, so SPEC_FULL's "hot-reloads without
// restarting the orchestrator" holds for the run command and not just
// the config package's own API. Session identity (executable, args,
// working directory) was already used to spawn the session and is not
// re-applied; only the dynamic tunables on Controller.Config take
// effect (ready/loading markers, delays, drain-on-resume, and the
// like). Health-check thresholds and restart policy stay as they were
// when each controller was created.
func watchConfigReloads(ctx context.Context, watcher *config.Watcher, initial *config.Config, controllers map[string]*controller.Controller, flags map[string]*agentFlags) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	last := initial
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur := watcher.Current()
			if cur == last {
				continue
			}
			last = cur
			for name, ctl := range controllers {
				ctl.UpdateConfig(resolveAgentConfig(cur, name, flags[name]))
			}
			fmt.Fprintln(os.Stderr, "[config] reloaded, applied to running agents")
		}
	}
}

// orderParticipants rotates names so startWith speaks first, matching
// the original script's start_with handling.
func orderParticipants(names []string, startWith string) []string {
	idx := -1
	for i, n := range names {
		if strings.EqualFold(n, startWith) {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return append([]string(nil), names...)
	}
	out := make([]string, 0, len(names))
	out = append(out, names[idx:]...)
	out = append(out, names[:idx]...)
	return out
}

// sendSystemPrompts delivers the optional group and per-agent briefing
// prompts before the discussion begins, waiting for each to settle.
func sendSystemPrompts(ctx context.Context, orch *orchestrator.Orchestrator, groupPrompt, groupPromptFile string, flags map[string]*agentFlags) error {
	group := groupPrompt
	if group == "" && groupPromptFile != "" {
		group = "Read @" + groupPromptFile
	}

	for _, name := range agentNames {
		var prompts []string
		if group != "" {
			prompts = append(prompts, group)
		}
		af := flags[name]
		if af.systemPrompt != "" {
			prompts = append(prompts, af.systemPrompt)
		} else if af.systemPromptFile != "" {
			prompts = append(prompts, "Read @"+af.systemPromptFile)
		}

		for _, p := range prompts {
			if _, err := orch.DispatchCommand(ctx, name, p, true); err != nil {
				return fmt.Errorf("deliver pre-discussion prompt to %s: %w", name, err)
			}
			if ac, err := orch.Controller(name); err == nil {
				if sc, ok := ac.(convo.SpeakingController); ok {
					_, _ = sc.WaitForReady(ctx, 30*time.Second)
				}
			}
		}
	}
	return nil
}

// userError marks err as a user-error (exit code 2).
func userError(err error) error {
	return &cliError{err: err, code: 2}
}

// setupError marks err as a transport/setup failure (exit code 1).
func setupError(err error) error {
	return &cliError{err: err, code: 1}
}

type cliError struct {
	err  error
	code int
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

// ExitCode returns the process exit code for err, defaulting to 1 for
// any error not produced by userError/setupError.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ce *cliError
	if as, ok := err.(*cliError); ok {
		ce = as
		return ce.code
	}
	return 1
}
