package proc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/cadence/sys"
)

// Transport opens voice connections. The disgo implementation lives in transport.go.
type Transport interface {
	Connect(ctx context.Context, guildID, channelID snowflake.ID) (Conn, error)
}

// Conn is one live voice connection.
type Conn interface {
	ChannelID() snowflake.ID
	Move(ctx context.Context, channelID snowflake.ID) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
	// Play starts streaming t and returns once the stream is running.
	// onFinished is called exactly once, when the stream ends or is stopped.
	Play(t *Track, onFinished func(error)) error
	Stop()
	IsPlaying() bool
}

// Agent is the recommendation backend behind autoplay.
type Agent interface {
	CreateSession(ctx context.Context, sessionID string, guildID snowflake.ID) error
	DeleteSession(ctx context.Context, sessionID string) error
	IsActive(ctx context.Context, sessionID string) (bool, error)
	RunQuery(ctx context.Context, sessionID, keyword string) (string, error)
}

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Requester is the member issuing a command, as seen from their voice state.
type Requester struct {
	UserID snowflake.ID
	// GuildID is the guild of the requester's voice state.
	GuildID   snowflake.ID
	ChannelID *snowflake.ID
}

// Session is the playback state of one guild.
type Session struct {
	guildID snowflake.ID
	manager *Manager
	queue   *Queue

	// transition serializes Connect, Move and Disconnect.
	transition chan struct{}

	mu         sync.Mutex
	state      State
	conn       Conn
	loopCancel context.CancelCauseFunc
	loopDone   chan struct{}
	announce   snowflake.ID

	loopRunning  atomic.Bool
	autoplayBusy atomic.Bool
}

func newSession(m *Manager, guildID snowflake.ID) *Session {
	return &Session{
		guildID:    guildID,
		manager:    m,
		queue:      NewQueue(),
		transition: make(chan struct{}, 1),
	}
}

func (s *Session) lock(ctx context.Context) error {
	select {
	case s.transition <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) unlock() { <-s.transition }

func (s *Session) GuildID() snowflake.ID { return s.guildID }
func (s *Session) Queue() *Queue         { return s.queue }

// AgentSessionID names this guild's recommendation session.
func (s *Session) AgentSessionID() string { return "guild-" + s.guildID.String() }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) currentConn() Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Session) IsConnected() bool {
	s.mu.Lock()
	state, conn := s.state, s.conn
	s.mu.Unlock()
	return state == StateConnected && conn != nil && conn.IsConnected()
}

// ChannelID returns the bot's voice channel, or 0 when disconnected.
func (s *Session) ChannelID() snowflake.ID {
	if conn := s.currentConn(); conn != nil {
		return conn.ChannelID()
	}
	return 0
}

func (s *Session) LoopRunning() bool { return s.loopRunning.Load() }

// AnnounceChannel is where asynchronous notices (timeouts, autoplay) go.
func (s *Session) AnnounceChannel() snowflake.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.announce
}

func (s *Session) SetAnnounceChannel(id snowflake.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.announce = id
}

// IsSessionActive reports whether the recommendation session still exists.
func (s *Session) IsSessionActive(ctx context.Context) bool {
	ok, err := s.manager.agent.IsActive(ctx, s.AgentSessionID())
	return err == nil && ok
}

// IsValid reports whether queued work still has somewhere to go.
func (s *Session) IsValid(ctx context.Context) bool {
	return s.IsConnected() && s.LoopRunning() && s.IsSessionActive(ctx)
}

func (s *Session) checkRequester(r Requester) error {
	if r.ChannelID == nil {
		return ErrUserNotInVoiceChannel
	}
	if r.GuildID != s.guildID {
		return ErrUserNotInSameGuild
	}
	return nil
}

func (s *Session) Connect(ctx context.Context, r Requester) error {
	if err := s.checkRequester(r); err != nil {
		return err
	}
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	if s.IsConnected() {
		return ErrAlreadyConnected
	}

	s.mu.Lock()
	stale := s.conn
	s.state = StateConnecting
	s.conn = nil
	s.mu.Unlock()

	// The gateway dropped us without a Disconnect; tear the old loop down first.
	if stale != nil {
		s.stopLoop(context.Canceled)
		_ = stale.Disconnect(context.WithoutCancel(ctx))
	}
	s.queue.Clear()

	conn, err := s.manager.transport.Connect(ctx, s.guildID, *r.ChannelID)
	if err != nil {
		s.setDisconnected()
		sys.LogVoiceWarn(sys.MsgVoiceConnectFail, s.guildID, err)
		return ErrConnectFailed.Wrap(err)
	}

	if err := s.manager.agent.CreateSession(ctx, s.AgentSessionID(), s.guildID); err != nil {
		_ = conn.Disconnect(context.WithoutCancel(ctx))
		s.setDisconnected()
		return ErrAgentFailed.Wrap(err)
	}
	sys.LogDebug(sys.MsgAgentSessionCreated, s.AgentSessionID())

	s.mu.Lock()
	s.conn = conn
	s.state = StateConnected
	s.mu.Unlock()

	s.startLoop(conn)
	sys.LogVoice(sys.MsgVoiceConnected, conn.ChannelID(), s.guildID)
	return nil
}

func (s *Session) Move(ctx context.Context, r Requester) error {
	if err := s.checkRequester(r); err != nil {
		return err
	}
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	if !s.IsConnected() {
		return ErrNotConnected
	}
	conn := s.currentConn()
	from := conn.ChannelID()
	if from == *r.ChannelID {
		return ErrAlreadyConnected
	}

	if err := conn.Move(ctx, *r.ChannelID); err != nil {
		return ErrConnectFailed.Wrap(err)
	}
	s.stopLoop(errLoopRestart)
	s.startLoop(conn)
	sys.LogVoice(sys.MsgVoiceMoved, from, *r.ChannelID, s.guildID)
	return nil
}

func (s *Session) Disconnect(ctx context.Context) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	s.mu.Lock()
	conn, state := s.conn, s.state
	s.mu.Unlock()
	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}

	s.stopLoop(context.Canceled)
	s.queue.Clear()

	closeCtx := context.WithoutCancel(ctx)
	err := conn.Disconnect(closeCtx)
	if derr := s.manager.agent.DeleteSession(closeCtx, s.AgentSessionID()); derr != nil {
		sys.LogVoiceWarn(sys.MsgGenericError, derr)
	} else {
		sys.LogDebug(sys.MsgAgentSessionDeleted, s.AgentSessionID())
	}
	s.setDisconnected()
	sys.LogVoice(sys.MsgVoiceDisconnected, s.guildID)
	return err
}

// Enqueue adds t to the queue if the session is still valid. It holds the
// transition guard so a concurrent Disconnect cannot strand t in a dead queue.
func (s *Session) Enqueue(ctx context.Context, t *Track) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	if !s.IsValid(ctx) {
		return ErrSessionGone
	}
	return s.queue.Put(t)
}

func (s *Session) setDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateDisconnected
	s.conn = nil
}

// Skip stops the current track and returns it.
func (s *Session) Skip() (*Track, error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}
	t, gen := s.queue.currentGeneration()
	if t == nil {
		return nil, ErrNoTrackPlaying
	}
	s.stopTrack(gen)
	return t, nil
}

// SkipAt is Skip guarded by a queue fingerprint.
func (s *Session) SkipAt(fp string) (*Track, error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}
	t, gen, err := s.queue.currentAt(fp)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrNoTrackPlaying
	}
	s.stopTrack(gen)
	return t, nil
}

func (s *Session) stopTrack(gen uint64) {
	if conn := s.currentConn(); conn != nil {
		conn.Stop()
	}
	s.queue.FinishGeneration(gen)
}

// ResetTimer restarts the idle countdown when nothing is queued or playing.
func (s *Session) ResetTimer() bool {
	return s.queue.Put(nil) == nil
}
