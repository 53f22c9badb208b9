package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/transport"
)

// fakeClock only fires timers when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t.f)
		}
	}
	c.mu.Unlock()

	for _, f := range due {
		f()
	}
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// recSignaler records requests; replies are posted by the test.
type recSignaler struct {
	mu    sync.Mutex
	calls []string
	sigs  []transport.Signal
	meta  []Descriptor
}

func (r *recSignaler) record(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
	return nil
}

func (r *recSignaler) CreateRoom() error           { return r.record("create") }
func (r *recSignaler) JoinRoom(string) error       { return r.record("join") }
func (r *recSignaler) SendReceiverReady() error    { return r.record("ready") }
func (r *recSignaler) SendTransferComplete() error { return r.record("complete") }
func (r *recSignaler) SendCancel() error           { return r.record("cancel") }
func (r *recSignaler) Leave() error                { return r.record("leave") }

func (r *recSignaler) SendSignal(s transport.Signal) error {
	r.mu.Lock()
	r.sigs = append(r.sigs, s)
	r.mu.Unlock()
	return r.record("signal")
}

func (r *recSignaler) SendFileMetadata(d Descriptor) error {
	r.mu.Lock()
	r.meta = append(r.meta, d)
	r.mu.Unlock()
	return r.record("metadata")
}

func (r *recSignaler) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (r *recSignaler) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// fakeChannel is driven by the test through its captured handlers.
type fakeChannel struct {
	mu        sync.Mutex
	h         transport.Handlers
	initiator bool
	accepted  []transport.Signal
	sent      [][]byte
	open      bool
	destroyed bool

	// drain, when set, holds WaitForDrain until it is closed.
	drain chan struct{}
}

func (c *fakeChannel) AcceptRemoteSignal(s transport.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accepted = append(c.accepted, s)
	return nil
}

func (c *fakeChannel) Send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return transport.ErrNotOpen
	}
	c.sent = append(c.sent, append([]byte(nil), b...))
	return nil
}

func (c *fakeChannel) WaitForDrain(ctx context.Context) error {
	c.mu.Lock()
	drain := c.drain
	c.mu.Unlock()
	if drain == nil {
		return nil
	}
	select {
	case <-drain:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeChannel) holdDrain() chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drain = make(chan struct{})
	return c.drain
}

func (c *fakeChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeChannel) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyed = true
	c.open = false
	return nil
}

func (c *fakeChannel) connect() {
	c.mu.Lock()
	c.open = true
	c.mu.Unlock()
	c.h.EmitConnected()
}

func (c *fakeChannel) isDestroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

func (c *fakeChannel) sentBytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.sent {
		n += len(b)
	}
	return n
}

type fakeFactory struct {
	mu       sync.Mutex
	channels []*fakeChannel
}

func (f *fakeFactory) NewChannel(initiator bool, h transport.Handlers) (transport.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakeChannel{h: h, initiator: initiator}
	f.channels = append(f.channels, c)
	return c, nil
}

func (f *fakeFactory) last() *fakeChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.channels) == 0 {
		return nil
	}
	return f.channels[len(f.channels)-1]
}

func start(t *testing.T, s *Session) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-s.Done()
	})
	return cancel
}

func waitFor(t *testing.T, s *Session, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return cond(s.Snapshot()) }, 2*time.Second, time.Millisecond)
	return s.Snapshot()
}

func waitState(t *testing.T, s *Session, want State) Snapshot {
	t.Helper()
	return waitFor(t, s, func(snap Snapshot) bool { return snap.State == want })
}
