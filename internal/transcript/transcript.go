// Package transcript writes the optional plain-text discussion log:
// a conversation transcript followed by a shared-context summary
// trailer, the same two sections run_orchestrated_discussion.py
// prints to stdout and optionally persists to --log-file.
package transcript

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	convoctx "github.com/h2team/h2team/internal/convo/context"
)

// Header and Trailer bracket the transcript body, matching the
// original script's printed section markers byte-for-byte so existing
// tooling that greps for them keeps working.
const (
	Header  = "=== Conversation Transcript ==="
	Trailer = "=== Shared Context Summary ==="
)

// FormatTurn renders one turn the way format_turn does: a header line
// with status bits, then indented Prompt/Response blocks.
func FormatTurn(t convoctx.Turn) string {
	var status []string
	if v, _ := t.Metadata["queued"].(bool); v {
		status = append(status, "queued")
	}
	if v, _ := t.Metadata["consensus"].(bool); v {
		status = append(status, "consensus")
	}
	if v, _ := t.Metadata["conflict"].(bool); v {
		status = append(status, "conflict")
	}
	suffix := ""
	if len(status) > 0 {
		suffix = " [" + strings.Join(status, " ") + "]"
	}

	response := strings.TrimSpace(t.Response)
	responseBlock := "    (no response captured yet)"
	if response != "" {
		responseBlock = indent(response, "    ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d: %s%s\n", t.TurnIndex, t.Speaker, suffix)
	b.WriteString("  Prompt:\n")
	b.WriteString(indent(strings.TrimSpace(t.Prompt), "    "))
	b.WriteString("\n  Response:\n")
	b.WriteString(responseBlock)
	return b.String()
}

func indent(text, prefix string) string {
	if text == "" {
		return prefix
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

// Write renders the full transcript (header, one block per turn
// separated by a "-" marker, trailer, summary) to w.
func Write(w io.Writer, turns []convoctx.Turn, summary string) error {
	if _, err := fmt.Fprintln(w, Header); err != nil {
		return err
	}
	for _, t := range turns {
		if _, err := fmt.Fprintln(w, FormatTurn(t)); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, "-"); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, Trailer); err != nil {
		return err
	}
	if summary == "" {
		summary = "(no summary available)"
	}
	_, err := fmt.Fprintln(w, summary)
	return err
}

// WriteFile renders the transcript to path, creating parent
// directories as needed. If path has no extension, it is treated as a
// directory (created if missing) and the file is written as
// <path>/discussion.log, mirroring the original script's log-file
// handling.
func WriteFile(path string, turns []convoctx.Turn, summary string) (string, error) {
	target := path
	if filepath.Ext(target) == "" {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return "", fmt.Errorf("transcript: create log dir: %w", err)
		}
		target = filepath.Join(target, "discussion.log")
	} else if dir := filepath.Dir(target); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("transcript: create log dir: %w", err)
		}
	}

	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("transcript: create %s: %w", target, err)
	}
	defer f.Close()

	if err := Write(f, turns, summary); err != nil {
		return "", fmt.Errorf("transcript: write %s: %w", target, err)
	}
	return target, nil
}
