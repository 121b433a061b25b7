package proc

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestPresenceRotator_Statuses(t *testing.T) {
	r := newTestRig(t, time.Minute)
	p := NewPresenceRotator(nil, r.manager)

	got := p.statuses()
	if got[0] != "/voice play" {
		t.Errorf("first status = %q", got[0])
	}
	for _, s := range got {
		if strings.HasPrefix(s, "in ") || strings.HasPrefix(s, "Queue:") {
			t.Errorf("idle bot should not report %q", s)
		}
	}

	conn := r.connect(t)
	_ = r.session.Queue().Put(testTrack("a"))
	conn.waitPlayed(t)

	joined := strings.Join(p.statuses(), "|")
	if !strings.Contains(joined, "in 1 voice channel(s)") || !strings.Contains(joined, "Queue: 1 track(s)") {
		t.Errorf("statuses = %s", joined)
	}
}

func TestPresenceRotator_PickAvoidsRepeat(t *testing.T) {
	p := NewPresenceRotator(nil, NewManager(context.Background(), ManagerOptions{}))
	options := []string{"a", "b"}

	prev := p.pick(options)
	for range 20 {
		next := p.pick(options)
		if next == prev {
			t.Fatalf("pick() repeated %q", next)
		}
		prev = next
	}

	if got := p.pick([]string{prev}); got != prev {
		t.Errorf("a single option must still be picked, got %q", got)
	}
}

func TestPresenceInterval(t *testing.T) {
	for range 50 {
		d := presenceInterval()
		if d < 15*time.Second || d > 60*time.Second {
			t.Fatalf("presenceInterval() = %s", d)
		}
	}
}
