package proc

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/cadence/sys"
	"golang.org/x/sync/errgroup"
)

// AutoplayStage is the progress of one autoplay attempt as shown to users.
type AutoplayStage int

const (
	AutoplayFetching AutoplayStage = iota
	AutoplayAdded
	AutoplayCancelled
	AutoplayFailed
)

func (s AutoplayStage) String() string {
	switch s {
	case AutoplayFetching:
		return "Fetching the Track... (Auto Play)"
	case AutoplayAdded:
		return "Added to the Queue (Auto Play)"
	case AutoplayCancelled:
		return "Cancelled Adding Track (Auto Play)"
	default:
		return "Failed Adding Track (Auto Play)"
	}
}

// AutoplayEvent reports one autoplay stage. Run is shared by every event of the same run.
type AutoplayEvent struct {
	Run   uint64
	Stage AutoplayStage
	Track *Track
	Err   error
}

// Listener receives notifications raised from background goroutines.
type Listener interface {
	OnIdleTimeout(s *Session)
	OnAutoplay(s *Session, ev AutoplayEvent)
}

type ManagerOptions struct {
	Transport   Transport
	Agent       Agent
	Autoplayer  *Autoplayer
	Listener    Listener
	IdleTimeout time.Duration
}

// Manager owns one Session per guild.
type Manager struct {
	ctx         context.Context
	transport   Transport
	agent       Agent
	autoplayer  *Autoplayer
	idleTimeout time.Duration

	mu       sync.RWMutex
	sessions map[snowflake.ID]*Session
	listener Listener
}

// NewManager creates a manager whose streaming loops live until ctx is done.
func NewManager(ctx context.Context, opts ManagerOptions) *Manager {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 300 * time.Second
	}
	return &Manager{
		ctx:         ctx,
		transport:   opts.Transport,
		agent:       opts.Agent,
		autoplayer:  opts.Autoplayer,
		idleTimeout: opts.IdleTimeout,
		listener:    opts.Listener,
		sessions:    make(map[snowflake.ID]*Session),
	}
}

func (m *Manager) SetListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = l
}

func (m *Manager) getListener() Listener {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listener
}

func (m *Manager) Get(guildID snowflake.ID) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[guildID]
}

func (m *Manager) GetOrCreate(guildID snowflake.ID) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[guildID]
	if !ok {
		s = newSession(m, guildID)
		m.sessions[guildID] = s
	}
	return s
}

func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Stats counts connected sessions and the tracks they hold, playing or pending.
func (m *Manager) Stats() (connected, tracks int) {
	for _, s := range m.Sessions() {
		if !s.IsConnected() {
			continue
		}
		connected++
		tracks += s.queue.Len()
		if s.queue.Current() != nil {
			tracks++
		}
	}
	return connected, tracks
}

// Shutdown disconnects every connected session in parallel and returns them.
func (m *Manager) Shutdown(ctx context.Context) []*Session {
	sys.LogVoice(sys.MsgVoiceShuttingDown)

	var (
		mu           sync.Mutex
		disconnected []*Session
		g            errgroup.Group
	)
	for _, s := range m.Sessions() {
		if s.State() != StateConnected {
			continue
		}
		g.Go(func() error {
			if err := s.Disconnect(ctx); err != nil && !IsUserState(err) {
				sys.LogVoiceWarn(sys.MsgGenericError, err)
			}
			mu.Lock()
			disconnected = append(disconnected, s)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return disconnected
}

// requestAutoplay starts an autoplay run unless one is already in flight for s.
func (m *Manager) requestAutoplay(s *Session) {
	if m.autoplayer == nil || !s.autoplayBusy.CompareAndSwap(false, true) {
		return
	}
	sys.SafeGo(func() {
		defer s.autoplayBusy.Store(false)
		_ = m.autoplayer.Run(m.ctx, s)
	})
}

// TriggerAutoplay asks for a suggestion right away, as when autoplay is switched on.
func (m *Manager) TriggerAutoplay(s *Session) {
	m.requestAutoplay(s)
}
