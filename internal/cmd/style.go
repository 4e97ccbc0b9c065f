package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/muesli/termenv"

	convoctx "github.com/h2team/h2team/internal/convo/context"
	"github.com/h2team/h2team/internal/transcript"
)

// consoleProfile picks termenv's color profile for stdout once, the
// same way the teacher's terminal wrapper detects the real terminal's
// capabilities before styling anything.
var consoleProfile = termenv.NewOutput(os.Stdout)

// styleSpeaker highlights a turn's speaker name in the run summary,
// falling back to plain text automatically on a dumb terminal (ANSI
// profile detection is termenv's, not ours).
func styleSpeaker(name string) string {
	return consoleProfile.String(name).Bold().Foreground(consoleProfile.Color("6")).String()
}

// styleStatus colors a turn's status suffix: green for consensus,
// yellow for queued, red for conflict.
func styleStatus(label string) string {
	var color termenv.Color
	switch label {
	case "consensus":
		color = consoleProfile.Color("2")
	case "conflict":
		color = consoleProfile.Color("1")
	case "queued":
		color = consoleProfile.Color("3")
	default:
		return label
	}
	return consoleProfile.String(label).Foreground(color).String()
}

// formatTurnHeader renders "N: speaker [status]" with the speaker and
// each status flag colorized for an interactive terminal.
func formatTurnHeader(turnIndex int, speaker string, statuses []string) string {
	header := fmt.Sprintf("%d: %s", turnIndex, styleSpeaker(speaker))
	if len(statuses) == 0 {
		return header
	}
	styled := make([]string, len(statuses))
	for i, s := range statuses {
		styled[i] = styleStatus(s)
	}
	header += " ["
	for i, s := range styled {
		if i > 0 {
			header += " "
		}
		header += s
	}
	header += "]"
	return header
}

// printTurnConsole prints one turn to stdout with a colorized header
// line, leaving the rest of the block identical to transcript.FormatTurn
// so --log-file output (which calls transcript.Write directly) stays
// plain text.
func printTurnConsole(t convoctx.Turn) {
	var statuses []string
	if v, _ := t.Metadata["queued"].(bool); v {
		statuses = append(statuses, "queued")
	}
	if v, _ := t.Metadata["consensus"].(bool); v {
		statuses = append(statuses, "consensus")
	}
	if v, _ := t.Metadata["conflict"].(bool); v {
		statuses = append(statuses, "conflict")
	}

	plain := transcript.FormatTurn(t)
	lines := strings.SplitN(plain, "\n", 2)
	fmt.Println(formatTurnHeader(t.TurnIndex, t.Speaker, statuses))
	if len(lines) > 1 {
		fmt.Println(lines[1])
	}
}
