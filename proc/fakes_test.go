package proc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/cadence/sys"
)

const (
	testGuild   = snowflake.ID(100)
	testChannel = snowflake.ID(200)
	testUser    = snowflake.ID(300)
)

func init() {
	sys.SetSilentMode(true)
}

type fakeTransport struct {
	mu    sync.Mutex
	err   error
	conns []*fakeConn
}

func (f *fakeTransport) Connect(ctx context.Context, guildID, channelID snowflake.ID) (Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c := &fakeConn{channel: channelID, connected: true, played: make(chan *Track, 16)}
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakeTransport) last() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

type fakeConn struct {
	mu         sync.Mutex
	channel    snowflake.ID
	connected  bool
	onFinished func(error)
	played     chan *Track
	stops      int
	plays      int
	playErr    error
}

func (c *fakeConn) ChannelID() snowflake.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

func (c *fakeConn) Move(ctx context.Context, channelID snowflake.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channel = channelID
	return nil
}

func (c *fakeConn) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.Stop()
	return nil
}

func (c *fakeConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeConn) Play(t *Track, onFinished func(error)) error {
	c.mu.Lock()
	c.plays++
	err := c.playErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	c.Stop()
	c.mu.Lock()
	c.onFinished = onFinished
	c.mu.Unlock()
	c.played <- t
	return nil
}

// finish ends the active stream as if the source ran out.
func (c *fakeConn) finish(err error) {
	c.mu.Lock()
	cb := c.onFinished
	c.onFinished = nil
	c.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// drop marks the connection dead without stopping the stream, as when the
// gateway goes away before the voice state update arrives.
func (c *fakeConn) drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *fakeConn) setPlayErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playErr = err
}

func (c *fakeConn) playCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.plays
}

func (c *fakeConn) Stop() {
	c.mu.Lock()
	c.stops++
	c.mu.Unlock()
	c.finish(nil)
}

func (c *fakeConn) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onFinished != nil
}

func (c *fakeConn) waitPlayed(t *testing.T) *Track {
	t.Helper()
	select {
	case tr := <-c.played:
		return tr
	case <-time.After(2 * time.Second):
		t.Fatal("no track started playing")
		return nil
	}
}

func (c *fakeConn) expectIdle(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case tr := <-c.played:
		t.Fatalf("unexpected track started: %s", tr.DisplayTitle())
	case <-time.After(d):
	}
}

type fakeAgent struct {
	mu       sync.Mutex
	sessions map[string]bool
	replies  []string
	err      error
	queries  int
	checks   int
	// onActive runs on every IsActive call with the call count.
	onActive func(n int)
}

func newFakeAgent(replies ...string) *fakeAgent {
	return &fakeAgent{sessions: make(map[string]bool), replies: replies}
}

func (a *fakeAgent) CreateSession(ctx context.Context, id string, guildID snowflake.ID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions[id] = true
	return nil
}

func (a *fakeAgent) DeleteSession(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, id)
	return nil
}

func (a *fakeAgent) IsActive(ctx context.Context, id string) (bool, error) {
	a.mu.Lock()
	a.checks++
	n, hook, ok := a.checks, a.onActive, a.sessions[id]
	a.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return ok, nil
}

func (a *fakeAgent) RunQuery(ctx context.Context, id, keyword string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queries++
	if a.err != nil {
		return "", a.err
	}
	if len(a.replies) == 0 {
		return "", errors.New("no reply")
	}
	r := a.replies[0]
	if len(a.replies) > 1 {
		a.replies = a.replies[1:]
	}
	return r, nil
}

type fakeListener struct {
	idle     chan *Session
	mu       sync.Mutex
	autoplay []AutoplayEvent
}

func newFakeListener() *fakeListener {
	return &fakeListener{idle: make(chan *Session, 4)}
}

func (l *fakeListener) OnIdleTimeout(s *Session) { l.idle <- s }

func (l *fakeListener) OnAutoplay(s *Session, ev AutoplayEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.autoplay = append(l.autoplay, ev)
}

func (l *fakeListener) events() []AutoplayEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]AutoplayEvent(nil), l.autoplay...)
}

type testRig struct {
	manager   *Manager
	transport *fakeTransport
	agent     *fakeAgent
	listener  *fakeListener
	session   *Session
}

func newTestRig(t *testing.T, idle time.Duration) *testRig {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := &testRig{
		transport: &fakeTransport{},
		agent:     newFakeAgent(),
		listener:  newFakeListener(),
	}
	r.manager = NewManager(ctx, ManagerOptions{
		Transport:   r.transport,
		Agent:       r.agent,
		Listener:    r.listener,
		IdleTimeout: idle,
	})
	r.session = r.manager.GetOrCreate(testGuild)
	return r
}

func (r *testRig) connect(t *testing.T) *fakeConn {
	t.Helper()
	ch := testChannel
	if err := r.session.Connect(context.Background(), Requester{UserID: testUser, GuildID: testGuild, ChannelID: &ch}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = r.session.Disconnect(context.Background()) })
	return r.transport.last()
}

func testTrack(title string) *Track {
	return &Track{
		Requester: testUser,
		Title:     title,
		URL:       "https://www.youtube.com/watch?v=" + title,
		Source:    "https://cdn.example/" + title,
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
