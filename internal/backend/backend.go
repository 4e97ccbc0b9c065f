// Package backend abstracts the terminal session transport an agent
// controller drives: a tmux session, a directly spawned PTY, or an
// in-memory fake for tests.
package backend

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned by operations addressed at a session
// that the backend has no record of.
var ErrSessionNotFound = errors.New("backend: session not found")

// ErrSessionExists is returned by Start when a session with the given
// name is already running.
var ErrSessionExists = errors.New("backend: session already exists")

// SessionSpec describes a session to start.
type SessionSpec struct {
	Name       string
	Command    string
	Args       []string
	WorkingDir string
	Env        map[string]string
	Rows, Cols int
}

// SessionBackend is the minimal surface an agent controller needs to
// drive a terminal session, regardless of what's underneath it.
type SessionBackend interface {
	// Start creates and launches a new session from spec. It is an
	// error to Start a session whose Name already exists.
	Start(ctx context.Context, spec SessionSpec) error

	// SessionExists reports whether a session with the given name is
	// currently alive.
	SessionExists(ctx context.Context, name string) (bool, error)

	// Kill terminates the session, if it exists. Killing a session
	// that does not exist is not an error.
	Kill(ctx context.Context, name string) error

	// SendText sends literal text to the session, chunked internally so
	// no single write exceeds the backend's safe chunk size.
	SendText(ctx context.Context, name, text string) error

	// SendEnter submits the current input line.
	SendEnter(ctx context.Context, name string) error

	// SendCtrlC sends an interrupt to the session's foreground process.
	SendCtrlC(ctx context.Context, name string) error

	// CaptureOutput returns the currently visible pane contents.
	CaptureOutput(ctx context.Context, name string) (string, error)

	// CaptureScrollback returns up to maxLines of scrollback history,
	// oldest first. maxLines <= 0 means no explicit limit.
	CaptureScrollback(ctx context.Context, name string, maxLines int) (string, error)

	// ListClients returns identifiers for anything currently attached
	// to the session (a human terminal, a monitoring tool). A non-empty
	// result is how manual takeover is detected.
	ListClients(ctx context.Context, name string) ([]string, error)

	// Attach connects the caller's own terminal to the session. If
	// readOnly is true, the caller observes but cannot send input.
	Attach(ctx context.Context, name string, readOnly bool) error
}

// MaxChunkBytes is the largest single write SendText will make to the
// underlying backend per call; longer text is split into chunks of at
// most this size and sent in literal mode to avoid overrunning the
// target program's input handling.
const MaxChunkBytes = 100

// ChunkText splits text into pieces no larger than MaxChunkBytes,
// preserving byte order. It never splits inside a UTF-8 rune.
func ChunkText(text string) []string {
	if text == "" {
		return nil
	}
	var chunks []string
	runes := []rune(text)
	var cur []rune
	curLen := 0
	for _, r := range runes {
		rl := len(string(r))
		if curLen+rl > MaxChunkBytes && curLen > 0 {
			chunks = append(chunks, string(cur))
			cur = cur[:0]
			curLen = 0
		}
		cur = append(cur, r)
		curLen += rl
	}
	if curLen > 0 {
		chunks = append(chunks, string(cur))
	}
	return chunks
}

// DefaultDialTimeout is a default timeout for Start/Attach-style
// operations; the backends in this package do not apply it themselves.
const DefaultDialTimeout = 5 * time.Second
