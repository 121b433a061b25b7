package proc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSession_ConnectRequiresVoiceState(t *testing.T) {
	r := newTestRig(t, time.Minute)
	ch := testChannel

	tests := []struct {
		name string
		req  Requester
		want error
	}{
		{"not in voice", Requester{UserID: testUser, GuildID: testGuild}, ErrUserNotInVoiceChannel},
		{"other guild", Requester{UserID: testUser, GuildID: testGuild + 1, ChannelID: &ch}, ErrUserNotInSameGuild},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.session.Connect(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Connect() error = %v, want %v", err, tt.want)
			}
			if r.session.State() != StateDisconnected {
				t.Errorf("State() = %s, want disconnected", r.session.State())
			}
		})
	}
}

func TestSession_Connect(t *testing.T) {
	r := newTestRig(t, time.Minute)
	r.connect(t)

	if !r.session.IsConnected() || r.session.State() != StateConnected {
		t.Fatal("session should be connected")
	}
	if !r.session.LoopRunning() {
		t.Error("the streaming loop should be running")
	}
	if !r.session.IsValid(context.Background()) {
		t.Error("a fresh session should be valid")
	}
	if r.session.ChannelID() != testChannel {
		t.Errorf("ChannelID() = %s, want %s", r.session.ChannelID(), testChannel)
	}

	ch := testChannel
	err := r.session.Connect(context.Background(), Requester{UserID: testUser, GuildID: testGuild, ChannelID: &ch})
	if !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect() error = %v, want ErrAlreadyConnected", err)
	}
}

func TestSession_ConnectFailure(t *testing.T) {
	r := newTestRig(t, time.Minute)
	r.transport.err = errors.New("gateway timeout")
	ch := testChannel

	err := r.session.Connect(context.Background(), Requester{UserID: testUser, GuildID: testGuild, ChannelID: &ch})
	if !errors.Is(err, ErrConnectFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectFailed", err)
	}
	if r.session.State() != StateDisconnected || r.session.LoopRunning() {
		t.Error("a failed connect must leave the session disconnected")
	}
}

func TestSession_PlaysInOrder(t *testing.T) {
	r := newTestRig(t, time.Minute)
	conn := r.connect(t)

	_ = r.session.Queue().Put(testTrack("a"))
	_ = r.session.Queue().Put(testTrack("b"))

	if got := conn.waitPlayed(t); got.Title != "a" {
		t.Errorf("first track = %s, want a", got.Title)
	}
	conn.expectIdle(t, 30*time.Millisecond)

	conn.finish(nil)
	if got := conn.waitPlayed(t); got.Title != "b" {
		t.Errorf("second track = %s, want b", got.Title)
	}
}

func TestSession_Skip(t *testing.T) {
	r := newTestRig(t, time.Minute)

	if _, err := r.session.Skip(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Skip() before connect error = %v, want ErrNotConnected", err)
	}

	conn := r.connect(t)
	if _, err := r.session.Skip(); !errors.Is(err, ErrNoTrackPlaying) {
		t.Errorf("Skip() on an idle session error = %v, want ErrNoTrackPlaying", err)
	}

	_ = r.session.Queue().Put(testTrack("a"))
	_ = r.session.Queue().Put(testTrack("b"))
	conn.waitPlayed(t)

	skipped, err := r.session.Skip()
	if err != nil {
		t.Fatalf("Skip() error = %v", err)
	}
	if skipped.Title != "a" {
		t.Errorf("Skip() = %s, want a", skipped.Title)
	}
	if got := conn.waitPlayed(t); got.Title != "b" {
		t.Errorf("after skip playing %s, want b", got.Title)
	}
}

func TestSession_SkipAtStaleFingerprint(t *testing.T) {
	r := newTestRig(t, time.Minute)
	conn := r.connect(t)

	_ = r.session.Queue().Put(testTrack("a"))
	conn.waitPlayed(t)
	stale := r.session.Queue().Fingerprint()
	_ = r.session.Queue().Put(testTrack("b"))

	if _, err := r.session.SkipAt(stale); !errors.Is(err, ErrQueueChanged) {
		t.Errorf("SkipAt(stale) error = %v, want ErrQueueChanged", err)
	}
	if cur := r.session.Queue().Current(); cur == nil || cur.Title != "a" {
		t.Error("a stale skip must not touch the playing track")
	}

	if _, err := r.session.SkipAt(r.session.Queue().Fingerprint()); err != nil {
		t.Errorf("SkipAt(fresh) error = %v", err)
	}
}

func TestSession_LoopRequeues(t *testing.T) {
	r := newTestRig(t, time.Minute)
	conn := r.connect(t)

	r.session.Queue().ToggleLoop()
	_ = r.session.Queue().Put(testTrack("a"))
	_ = r.session.Queue().Put(testTrack("b"))

	want := []string{"a", "b", "a", "b"}
	for i, title := range want {
		if got := conn.waitPlayed(t); got.Title != title {
			t.Fatalf("play %d = %s, want %s", i, got.Title, title)
		}
		conn.finish(nil)
	}
}

func TestSession_PlayErrorMovesOn(t *testing.T) {
	r := newTestRig(t, time.Minute)
	conn := r.connect(t)

	_ = r.session.Queue().Put(testTrack("broken"))
	_ = r.session.Queue().Put(testTrack("fine"))

	conn.waitPlayed(t)
	conn.finish(ErrDownloadFailed)
	if got := conn.waitPlayed(t); got.Title != "fine" {
		t.Errorf("after a failed stream playing %s, want fine", got.Title)
	}
}

func TestSession_Disconnect(t *testing.T) {
	r := newTestRig(t, time.Minute)
	if err := r.session.Disconnect(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Disconnect() before connect error = %v, want ErrNotConnected", err)
	}

	conn := r.connect(t)
	_ = r.session.Queue().Put(testTrack("a"))
	_ = r.session.Queue().Put(testTrack("b"))
	conn.waitPlayed(t)

	if err := r.session.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if r.session.State() != StateDisconnected || r.session.IsConnected() {
		t.Error("session should be disconnected")
	}
	if r.session.LoopRunning() {
		t.Error("the streaming loop should have stopped")
	}
	if r.session.Queue().Len() != 0 || r.session.Queue().Current() != nil {
		t.Error("disconnect should clear the queue")
	}
	if r.session.IsSessionActive(context.Background()) {
		t.Error("the agent session should be deleted")
	}
	if conn.IsConnected() {
		t.Error("the voice connection should be closed")
	}
}

func TestSession_Move(t *testing.T) {
	r := newTestRig(t, time.Minute)
	conn := r.connect(t)

	same := testChannel
	err := r.session.Move(context.Background(), Requester{UserID: testUser, GuildID: testGuild, ChannelID: &same})
	if !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("Move() to the same channel error = %v, want ErrAlreadyConnected", err)
	}

	_ = r.session.Queue().Put(testTrack("a"))
	_ = r.session.Queue().Put(testTrack("b"))
	conn.waitPlayed(t)

	other := testChannel + 1
	if err := r.session.Move(context.Background(), Requester{UserID: testUser, GuildID: testGuild, ChannelID: &other}); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if r.session.ChannelID() != other {
		t.Errorf("ChannelID() = %s, want %s", r.session.ChannelID(), other)
	}
	if !r.session.LoopRunning() {
		t.Error("the loop should be restarted after a move")
	}
	if got := conn.waitPlayed(t); got.Title != "b" {
		t.Errorf("after move playing %s, want b", got.Title)
	}
}

func TestSession_IdleTimeout(t *testing.T) {
	r := newTestRig(t, 50*time.Millisecond)
	r.connect(t)

	select {
	case s := <-r.listener.idle:
		if s != r.session {
			t.Error("idle timeout reported for the wrong session")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("idle timeout never fired")
	}
	eventually(t, func() bool { return !r.session.LoopRunning() }, "loop still running after idle timeout")
	if r.session.IsValid(context.Background()) {
		t.Error("a timed-out session is no longer valid")
	}
}

func TestSession_ResetTimer(t *testing.T) {
	r := newTestRig(t, 150*time.Millisecond)
	conn := r.connect(t)

	for range 4 {
		time.Sleep(60 * time.Millisecond)
		r.session.ResetTimer()
	}
	select {
	case <-r.listener.idle:
		t.Fatal("ResetTimer() did not postpone the idle timeout")
	default:
	}
	if !r.session.LoopRunning() {
		t.Fatal("loop should still be running")
	}

	_ = r.session.Queue().Put(testTrack("a"))
	conn.waitPlayed(t)
	if r.session.ResetTimer() {
		t.Error("ResetTimer() should be refused while a track plays")
	}
}

func TestManager_ShutdownAndStats(t *testing.T) {
	r := newTestRig(t, time.Minute)
	conn := r.connect(t)
	_ = r.session.Queue().Put(testTrack("a"))
	_ = r.session.Queue().Put(testTrack("b"))
	conn.waitPlayed(t)

	connected, tracks := r.manager.Stats()
	if connected != 1 || tracks != 2 {
		t.Errorf("Stats() = %d, %d; want 1, 2", connected, tracks)
	}

	got := r.manager.Shutdown(context.Background())
	if len(got) != 1 || got[0] != r.session {
		t.Fatalf("Shutdown() = %v, want the one connected session", got)
	}
	if r.session.IsConnected() {
		t.Error("session should be disconnected after shutdown")
	}
	if connected, _ := r.manager.Stats(); connected != 0 {
		t.Errorf("Stats() after shutdown = %d connected", connected)
	}
}

func TestSession_LoopSkipsFailedPlay(t *testing.T) {
	r := newTestRig(t, time.Minute)
	conn := r.connect(t)

	r.session.Queue().ToggleLoop()
	conn.setPlayErr(errors.New("encoder closed"))
	_ = r.session.Queue().Put(testTrack("broken"))

	eventually(t, func() bool { return conn.playCount() == 1 }, "the track was never started")
	time.Sleep(30 * time.Millisecond)
	if n := conn.playCount(); n != 1 {
		t.Fatalf("a track that failed to start was retried %d times", n-1)
	}
	if r.session.Queue().Len() != 0 {
		t.Error("a track that failed to start must not be re-queued")
	}

	conn.setPlayErr(nil)
	_ = r.session.Queue().Put(testTrack("fine"))
	if got := conn.waitPlayed(t); got.Title != "fine" {
		t.Errorf("playing %s, want fine", got.Title)
	}
}

func TestSession_LoopExitsOnLostConnection(t *testing.T) {
	r := newTestRig(t, time.Minute)
	conn := r.connect(t)

	r.session.Queue().ToggleLoop()
	_ = r.session.Queue().Put(testTrack("a"))
	conn.waitPlayed(t)

	conn.drop()
	conn.finish(nil)

	eventually(t, func() bool { return !r.session.LoopRunning() }, "the loop should stop once the connection is gone")
	if n := conn.playCount(); n != 1 {
		t.Errorf("played %d times on a dead connection, want 1", n)
	}

	ch := testChannel
	if err := r.session.Connect(context.Background(), Requester{UserID: testUser, GuildID: testGuild, ChannelID: &ch}); err != nil {
		t.Fatalf("reconnect error = %v", err)
	}
	if r.transport.count() != 2 || !r.session.LoopRunning() {
		t.Error("a reconnect should open a new connection and loop")
	}
}

func TestSession_EnqueueAfterDisconnect(t *testing.T) {
	r := newTestRig(t, time.Minute)
	r.connect(t)

	if err := r.session.Enqueue(context.Background(), testTrack("a")); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := r.session.Disconnect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.session.Enqueue(context.Background(), testTrack("late")); !errors.Is(err, ErrSessionGone) {
		t.Errorf("Enqueue() after disconnect error = %v, want ErrSessionGone", err)
	}
	if r.session.Queue().Len() != 0 {
		t.Error("a gone session must not receive tracks")
	}
}

func TestSession_ConnectClearsLeftovers(t *testing.T) {
	r := newTestRig(t, time.Minute)
	r.connect(t)
	if err := r.session.Disconnect(context.Background()); err != nil {
		t.Fatal(err)
	}
	_ = r.session.Queue().Put(testTrack("orphan"))

	conn := r.connect(t)
	conn.expectIdle(t, 30*time.Millisecond)
	if r.session.Queue().Len() != 0 {
		t.Error("a fresh connection should start with an empty queue")
	}
}

// expectSingleLoop fails if more than one streaming loop drains the queue.
func expectSingleLoop(t *testing.T, r *testRig) {
	t.Helper()
	conn := r.transport.last()
	_ = r.session.Queue().Put(testTrack("a"))
	_ = r.session.Queue().Put(testTrack("b"))
	if got := conn.waitPlayed(t); got.Title != "a" {
		t.Fatalf("first track = %s, want a", got.Title)
	}
	conn.expectIdle(t, 30*time.Millisecond)
}

func TestSession_ConcurrentConnect(t *testing.T) {
	r := newTestRig(t, time.Minute)
	t.Cleanup(func() { _ = r.session.Disconnect(context.Background()) })

	const n = 8
	ch := testChannel
	req := Requester{UserID: testUser, GuildID: testGuild, ChannelID: &ch}
	errs := make(chan error, n)

	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- r.session.Connect(context.Background(), req)
		}()
	}
	wg.Wait()
	close(errs)

	var ok, already int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyConnected):
			already++
		default:
			t.Errorf("Connect() error = %v", err)
		}
	}
	if ok != 1 || already != n-1 {
		t.Errorf("%d connects succeeded and %d were rejected, want 1 and %d", ok, already, n-1)
	}
	if got := r.transport.count(); got != 1 {
		t.Fatalf("transport opened %d connections, want 1", got)
	}
	expectSingleLoop(t, r)
}

func TestSession_ConnectRacingMove(t *testing.T) {
	r := newTestRig(t, time.Minute)
	t.Cleanup(func() { _ = r.session.Disconnect(context.Background()) })

	here, there := testChannel, testChannel+1
	var connectErr, moveErr error

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		connectErr = r.session.Connect(context.Background(), Requester{UserID: testUser, GuildID: testGuild, ChannelID: &here})
	}()
	go func() {
		defer wg.Done()
		moveErr = r.session.Move(context.Background(), Requester{UserID: testUser, GuildID: testGuild, ChannelID: &there})
	}()
	wg.Wait()

	if connectErr != nil {
		t.Fatalf("Connect() error = %v", connectErr)
	}
	if moveErr != nil && !errors.Is(moveErr, ErrNotConnected) {
		t.Errorf("Move() error = %v, want nil or ErrNotConnected", moveErr)
	}
	if got := r.transport.count(); got != 1 {
		t.Fatalf("transport opened %d connections, want 1", got)
	}
	expectSingleLoop(t, r)
}
