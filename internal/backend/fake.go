package backend

import (
	"context"
	"strings"
	"sync"
)

// fakeSession is the in-memory state Fake tracks per session name.
type fakeSession struct {
	spec       SessionSpec
	alive      bool
	output     strings.Builder
	scrollback strings.Builder
	clients    []string
	sent       []string
}

// Fake is an in-memory SessionBackend for tests. It records every
// command sent and lets the test script canned output and client lists
// without shelling out to tmux or spawning real processes.
type Fake struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession

	// OutputFunc, when set, computes CaptureOutput's return value for a
	// session instead of the accumulated fed output.
	OutputFunc func(name string) string
}

// NewFake returns an empty Fake backend.
func NewFake() *Fake {
	return &Fake{sessions: make(map[string]*fakeSession)}
}

func (f *Fake) Start(ctx context.Context, spec SessionSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, exists := f.sessions[spec.Name]; exists {
		if s.alive {
			return ErrSessionExists
		}
		s.spec = spec
		s.alive = true
		return nil
	}
	f.sessions[spec.Name] = &fakeSession{spec: spec, alive: true}
	return nil
}

func (f *Fake) SessionExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[name]
	return ok && s.alive, nil
}

func (f *Fake) Kill(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[name]; ok {
		s.alive = false
	}
	return nil
}

func (f *Fake) SendText(ctx context.Context, name, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[name]
	if !ok {
		return ErrSessionNotFound
	}
	s.sent = append(s.sent, ChunkText(text)...)
	return nil
}

func (f *Fake) SendEnter(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[name]
	if !ok {
		return ErrSessionNotFound
	}
	s.sent = append(s.sent, "\n")
	return nil
}

func (f *Fake) SendCtrlC(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[name]
	if !ok {
		return ErrSessionNotFound
	}
	s.sent = append(s.sent, "^C")
	return nil
}

func (f *Fake) CaptureOutput(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[name]; !ok {
		return "", ErrSessionNotFound
	}
	if f.OutputFunc != nil {
		return f.OutputFunc(name), nil
	}
	return f.sessions[name].output.String(), nil
}

func (f *Fake) CaptureScrollback(ctx context.Context, name string, maxLines int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[name]
	if !ok {
		return "", ErrSessionNotFound
	}
	out := s.scrollback.String()
	if maxLines <= 0 {
		return out, nil
	}
	lines := strings.Split(out, "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.Join(lines, "\n"), nil
}

func (f *Fake) ListClients(ctx context.Context, name string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[name]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return append([]string(nil), s.clients...), nil
}

func (f *Fake) Attach(ctx context.Context, name string, readOnly bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[name]; !ok {
		return ErrSessionNotFound
	}
	return nil
}

// FeedOutput appends text to a session's current-pane and scrollback
// buffers, simulating output a real backend would have captured. Output
// fed to a session that has not been started yet is kept for it.
func (f *Fake) FeedOutput(name, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[name]
	if !ok {
		s = &fakeSession{}
		f.sessions[name] = s
	}
	s.output.WriteString(text)
	s.scrollback.WriteString(text)
}

// SetOutput replaces a session's current-pane contents outright. Output
// set for a session that has not been started yet is kept for it.
func (f *Fake) SetOutput(name, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[name]
	if !ok {
		s = &fakeSession{}
		f.sessions[name] = s
	}
	s.output.Reset()
	s.output.WriteString(text)
}

// SetClients sets the attached-client list a ListClients call reports,
// for simulating manual takeover.
func (f *Fake) SetClients(name string, clients []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[name]; ok {
		s.clients = clients
	}
}

// Sent returns every chunk/control-sequence SendText/SendEnter/SendCtrlC
// has recorded for a session, in order.
func (f *Fake) Sent(name string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[name]; ok {
		return append([]string(nil), s.sent...)
	}
	return nil
}
