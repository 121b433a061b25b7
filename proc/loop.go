package proc

import (
	"context"
	"errors"

	"github.com/leeineian/cadence/sys"
)

// errLoopRestart cancels the streaming loop without dropping pending tracks.
var errLoopRestart = errors.New("streaming loop restart")

func (s *Session) startLoop(conn Conn) {
	ctx, cancel := context.WithCancelCause(s.manager.ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.loopCancel = cancel
	s.loopDone = done
	s.mu.Unlock()

	s.loopRunning.Store(true)
	sys.SafeGo(func() { s.run(ctx, conn, done) })
}

// stopLoop cancels the streaming loop with cause and waits for it to exit.
func (s *Session) stopLoop(cause error) {
	s.mu.Lock()
	cancel, done := s.loopCancel, s.loopDone
	s.loopCancel, s.loopDone = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel(cause)
	<-done
}

func (s *Session) run(ctx context.Context, conn Conn, done chan struct{}) {
	defer close(done)
	defer s.loopRunning.Store(false)
	defer s.teardown(ctx, conn)

	sys.LogDebug(sys.MsgVoiceLoopStarted, s.guildID)
	for s.step(ctx, conn) {
	}
	sys.LogDebug(sys.MsgVoiceLoopStopped, s.guildID)
}

// step plays one queue entry. It returns false when the loop should exit.
func (s *Session) step(ctx context.Context, conn Conn) bool {
	takeCtx, cancel := context.WithTimeout(ctx, s.manager.idleTimeout)
	track, err := s.queue.Take(takeCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		sys.LogVoice(sys.MsgVoiceIdleTimeout, s.guildID)
		s.loopRunning.Store(false)
		if l := s.manager.getListener(); l != nil {
			sys.SafeGo(func() { l.OnIdleTimeout(s) })
		}
		return false
	}

	if track == nil {
		s.queue.Finish()
		return true
	}

	gen := s.queue.Generation()
	sys.LogVoice(sys.MsgVoicePlaying, track.DisplayTitle(), track.Channel, track.DurationText())
	err = conn.Play(track, func(err error) {
		if err != nil {
			sys.LogError(sys.MsgVoiceTrackError, track.DisplayTitle(), err)
		}
		s.queue.FinishGeneration(gen)
	})
	played := err == nil
	if !played {
		sys.LogError(sys.MsgVoicePlayFail, track.DisplayTitle(), err)
		s.queue.FinishGeneration(gen)
	}

	if s.queue.Len() == 0 {
		if _, ok := s.queue.Autoplay(); ok {
			s.manager.requestAutoplay(s)
		}
	}

	if err := s.queue.Wait(ctx); err != nil {
		return false
	}

	if !conn.IsConnected() {
		sys.LogVoiceWarn(sys.MsgVoiceConnectionLost, s.guildID)
		return false
	}

	// A track that never started is not repeated.
	if played && s.queue.Loop() {
		_ = s.queue.Put(track)
	}
	return true
}

// teardown runs when the loop exits. A plain stop (idle timeout) leaves the
// queue alone; a cancel clears it, a restart only ends the active stream.
func (s *Session) teardown(ctx context.Context, conn Conn) {
	if ctx.Err() == nil {
		return
	}
	if conn.IsPlaying() {
		conn.Stop()
	}
	if errors.Is(context.Cause(ctx), errLoopRestart) {
		s.queue.Finish()
		return
	}
	s.queue.Clear()
}
