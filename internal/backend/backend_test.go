package backend

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestChunkText_SplitsAtMaxChunkBytes(t *testing.T) {
	text := strings.Repeat("a", MaxChunkBytes*2+5)
	chunks := ChunkText(text)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	var rebuilt strings.Builder
	for _, c := range chunks {
		if len(c) > MaxChunkBytes {
			t.Errorf("chunk length %d exceeds MaxChunkBytes", len(c))
		}
		rebuilt.WriteString(c)
	}
	if rebuilt.String() != text {
		t.Errorf("chunks do not reassemble to the original text")
	}
}

func TestChunkText_Empty(t *testing.T) {
	if chunks := ChunkText(""); chunks != nil {
		t.Errorf("expected nil chunks for empty text, got %v", chunks)
	}
}

func TestChunkText_PreservesMultibyteRunes(t *testing.T) {
	text := strings.Repeat("é", MaxChunkBytes) // 2 bytes each, forces a split boundary
	chunks := ChunkText(text)
	for _, c := range chunks {
		if !strings.HasPrefix(c, string([]rune(c)[0])) {
			t.Errorf("chunk %q does not start on a rune boundary", c)
		}
	}
	var rebuilt strings.Builder
	for _, c := range chunks {
		rebuilt.WriteString(c)
	}
	if rebuilt.String() != text {
		t.Errorf("multibyte chunks do not reassemble correctly")
	}
}

func newFakeSession(t *testing.T, f *Fake, name string) {
	t.Helper()
	if err := f.Start(context.Background(), SessionSpec{Name: name, Command: "bash"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func TestFake_StartAndSessionExists(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	if exists, _ := f.SessionExists(ctx, "agent1"); exists {
		t.Fatalf("expected session not to exist before Start")
	}
	newFakeSession(t, f, "agent1")
	if exists, _ := f.SessionExists(ctx, "agent1"); !exists {
		t.Fatalf("expected session to exist after Start")
	}
}

func TestFake_StartTwiceFails(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	newFakeSession(t, f, "agent1")
	err := f.Start(ctx, SessionSpec{Name: "agent1", Command: "bash"})
	if !errors.Is(err, ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}
}

func TestFake_KillMarksSessionGone(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	newFakeSession(t, f, "agent1")
	if err := f.Kill(ctx, "agent1"); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if exists, _ := f.SessionExists(ctx, "agent1"); exists {
		t.Fatalf("expected session gone after Kill")
	}
	// Killing an already-dead (or nonexistent) session is not an error.
	if err := f.Kill(ctx, "agent1"); err != nil {
		t.Errorf("Kill on already-dead session should be a no-op, got %v", err)
	}
}

func TestFake_SendTextRecordsChunks(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	newFakeSession(t, f, "agent1")

	if err := f.SendText(ctx, "agent1", "hello"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if err := f.SendEnter(ctx, "agent1"); err != nil {
		t.Fatalf("SendEnter: %v", err)
	}

	sent := f.Sent("agent1")
	if len(sent) != 2 || sent[0] != "hello" || sent[1] != "\n" {
		t.Fatalf("unexpected sent log: %v", sent)
	}
}

func TestFake_CaptureOutputReflectsFed(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	newFakeSession(t, f, "agent1")

	f.FeedOutput("agent1", "line one\n")
	f.FeedOutput("agent1", "line two\n")

	out, err := f.CaptureOutput(ctx, "agent1")
	if err != nil {
		t.Fatalf("CaptureOutput: %v", err)
	}
	if out != "line one\nline two\n" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFake_ListClientsReflectsManualTakeover(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	newFakeSession(t, f, "agent1")

	clients, err := f.ListClients(ctx, "agent1")
	if err != nil {
		t.Fatalf("ListClients: %v", err)
	}
	if len(clients) != 0 {
		t.Fatalf("expected no clients attached initially, got %v", clients)
	}

	f.SetClients("agent1", []string{"/dev/pts/3"})
	clients, err = f.ListClients(ctx, "agent1")
	if err != nil {
		t.Fatalf("ListClients: %v", err)
	}
	if len(clients) != 1 || clients[0] != "/dev/pts/3" {
		t.Fatalf("expected manual client attached, got %v", clients)
	}
}

func TestFake_OperationsOnUnknownSessionReturnErrSessionNotFound(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	if err := f.SendText(ctx, "ghost", "x"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("SendText on unknown session: got %v", err)
	}
	if _, err := f.CaptureOutput(ctx, "ghost"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("CaptureOutput on unknown session: got %v", err)
	}
	if _, err := f.ListClients(ctx, "ghost"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("ListClients on unknown session: got %v", err)
	}
}

// Compile-time checks that every backend satisfies SessionBackend; they
// live here rather than in the tmux/pty files themselves so failures are
// reported against this test package.
var (
	_ SessionBackend = (*TmuxBackend)(nil)
	_ SessionBackend = (*PTYBackend)(nil)
	_ SessionBackend = (*Fake)(nil)
)
