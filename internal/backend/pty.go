package backend

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/vito/midterm"
)

// ptySession owns one spawned child process and its virtual terminal.
type ptySession struct {
	mu         sync.Mutex
	cmd        *exec.Cmd
	ptm        *os.File
	vt         *midterm.Terminal
	scrollback *midterm.Terminal
	attached   int // count of live Attach calls, for manual-takeover detection
	lastOutput time.Time
}

// PTYBackend drives sessions by spawning each one directly under a PTY and
// rendering its output through an in-process virtual terminal, rather than
// shelling out to tmux.
type PTYBackend struct {
	mu       sync.Mutex
	sessions map[string]*ptySession
}

// NewPTYBackend returns an empty PTYBackend.
func NewPTYBackend() *PTYBackend {
	return &PTYBackend{sessions: make(map[string]*ptySession)}
}

func (b *PTYBackend) get(name string) (*ptySession, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[name]
	return s, ok
}

func (b *PTYBackend) Start(ctx context.Context, spec SessionSpec) error {
	b.mu.Lock()
	if _, exists := b.sessions[spec.Name]; exists {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionExists, spec.Name)
	}
	b.mu.Unlock()

	rows, cols := spec.Rows, spec.Cols
	if rows <= 0 {
		rows = 40
	}
	if cols <= 0 {
		cols = 120
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	if spec.WorkingDir != "" {
		cmd.Dir = spec.WorkingDir
	}
	if len(spec.Env) > 0 {
		cmd.Env = mergeEnv(os.Environ(), spec.Env)
	}

	ptm, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	sess := &ptySession{
		cmd:        cmd,
		ptm:        ptm,
		vt:         midterm.NewTerminal(rows, cols),
		scrollback: midterm.NewTerminal(rows, cols),
	}
	b.mu.Lock()
	b.sessions[spec.Name] = sess
	b.mu.Unlock()

	go sess.pipeOutput()
	return nil
}

// pipeOutput reads child PTY output into the virtual terminal buffers
// until the child exits or the PTY closes.
func (s *ptySession) pipeOutput() {
	buf := make([]byte, 4096)
	for {
		n, err := s.ptm.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.lastOutput = time.Now()
			s.vt.Write(buf[:n])
			s.scrollback.Write(buf[:n])
			s.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

func (b *PTYBackend) SessionExists(ctx context.Context, name string) (bool, error) {
	s, ok := b.get(name)
	if !ok {
		return false, nil
	}
	if s.cmd.ProcessState != nil {
		return false, nil
	}
	return s.cmd.Process != nil, nil
}

func (b *PTYBackend) Kill(ctx context.Context, name string) error {
	s, ok := b.get(name)
	if !ok {
		return nil
	}
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.ptm.Close()
	b.mu.Lock()
	delete(b.sessions, name)
	b.mu.Unlock()
	return nil
}

func (b *PTYBackend) sessionOrErr(name string) (*ptySession, error) {
	s, ok := b.get(name)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// writeWithTimeout writes p to the PTY master, giving up after timeout if
// the child is not reading its stdin (its kernel buffer is full).
func writeWithTimeout(w *os.File, p []byte, timeout time.Duration) error {
	type result struct{ err error }
	ch := make(chan result, 1)
	go func() {
		_, err := w.Write(p)
		ch <- result{err}
	}()
	select {
	case r := <-ch:
		return r.err
	case <-time.After(timeout):
		return fmt.Errorf("pty write timed out after %s", timeout)
	}
}

func (b *PTYBackend) SendText(ctx context.Context, name, text string) error {
	s, err := b.sessionOrErr(name)
	if err != nil {
		return err
	}
	for _, chunk := range ChunkText(text) {
		if err := writeWithTimeout(s.ptm, []byte(chunk), 3*time.Second); err != nil {
			return err
		}
	}
	return nil
}

func (b *PTYBackend) SendEnter(ctx context.Context, name string) error {
	s, err := b.sessionOrErr(name)
	if err != nil {
		return err
	}
	return writeWithTimeout(s.ptm, []byte("\r"), 3*time.Second)
}

func (b *PTYBackend) SendCtrlC(ctx context.Context, name string) error {
	s, err := b.sessionOrErr(name)
	if err != nil {
		return err
	}
	return writeWithTimeout(s.ptm, []byte{0x03}, 3*time.Second)
}

func (b *PTYBackend) CaptureOutput(ctx context.Context, name string) (string, error) {
	s, err := b.sessionOrErr(name)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return renderPlain(s.vt), nil
}

func (b *PTYBackend) CaptureScrollback(ctx context.Context, name string, maxLines int) (string, error) {
	s, err := b.sessionOrErr(name)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := renderPlain(s.scrollback)
	if maxLines <= 0 {
		return out, nil
	}
	lines := strings.Split(out, "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.Join(lines, "\n"), nil
}

func renderPlain(vt *midterm.Terminal) string {
	var sb strings.Builder
	for _, line := range vt.Content {
		for _, r := range line {
			if r == 0 {
				sb.WriteRune(' ')
			} else {
				sb.WriteRune(r)
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// ListClients reports one synthetic client identifier per live Attach
// call, since a direct PTY has no multiplexer-level client registry.
func (b *PTYBackend) ListClients(ctx context.Context, name string) ([]string, error) {
	s, err := b.sessionOrErr(name)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attached == 0 {
		return nil, nil
	}
	clients := make([]string, s.attached)
	for i := range clients {
		clients[i] = fmt.Sprintf("%s-attach-%d", name, i+1)
	}
	return clients, nil
}

func (b *PTYBackend) Attach(ctx context.Context, name string, readOnly bool) error {
	s, err := b.sessionOrErr(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.attached++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.attached--
		s.mu.Unlock()
	}()

	if readOnly {
		_, err := os.Stdout.WriteString(renderPlain(s.vt))
		return err
	}

	errc := make(chan error, 1)
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				if werr := writeWithTimeout(s.ptm, buf[:n], 3*time.Second); werr != nil {
					errc <- werr
					return
				}
			}
			if err != nil {
				errc <- nil
				return
			}
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
