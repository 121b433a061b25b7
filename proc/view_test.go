package proc

import (
	"context"
	"errors"
	"testing"
)

func playingQueue(t *testing.T, titles ...string) *Queue {
	t.Helper()
	q := NewQueue()
	for _, title := range titles {
		_ = q.Put(testTrack(title))
	}
	if _, err := q.Take(context.Background()); err != nil {
		t.Fatal(err)
	}
	return q
}

func TestTrackCursor_Navigation(t *testing.T) {
	q := playingQueue(t, "now", "a", "b")
	c := NewTrackCursor(q.Snapshot(), 0)

	if c.Len() != 3 || !c.IsCurrent() || c.Track().Title != "now" {
		t.Fatalf("cursor at 0 = %+v", c.Track())
	}
	if c.Prev().Index != 0 {
		t.Error("Prev() at the start should clamp")
	}
	if got := c.Next().Track().Title; got != "a" {
		t.Errorf("Next() = %s, want a", got)
	}
	last := c.Last()
	if last.Track().Title != "b" || last.Next().Index != 2 {
		t.Error("Last() should point at b and Next() clamp there")
	}
	if last.First().Index != 0 {
		t.Error("First() should go back to 0")
	}
	if NewTrackCursor(q.Snapshot(), 99).Index != 2 {
		t.Error("out of range indexes clamp to the last track")
	}
}

func TestTrackCursor_Empty(t *testing.T) {
	c := NewTrackCursor(NewQueue().Snapshot(), 3)
	if c.Track() != nil || c.Len() != 0 || c.Index != 0 {
		t.Errorf("empty cursor = %+v", c)
	}
	if _, err := c.RemoveFrom(NewQueue(), testUser); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("RemoveFrom() error = %v, want ErrIndexOutOfRange", err)
	}
}

func TestTrackCursor_CanRemove(t *testing.T) {
	q := NewQueue()
	mine := testTrack("mine")
	theirs := testTrack("theirs")
	theirs.Requester = testUser + 1
	auto := testTrack("auto")
	auto.Requester = testUser + 1
	auto.Autoplay = true
	_ = q.Put(testTrack("now"))
	_ = q.Put(mine)
	_ = q.Put(theirs)
	_ = q.Put(auto)
	_, _ = q.Take(context.Background())
	snap := q.Snapshot()

	tests := []struct {
		index int
		want  bool
	}{
		{0, false},
		{1, true},
		{2, false},
		{3, true},
	}
	for _, tt := range tests {
		if got := NewTrackCursor(snap, tt.index).CanRemove(testUser); got != tt.want {
			t.Errorf("CanRemove(%d) = %v, want %v", tt.index, got, tt.want)
		}
	}

	if _, err := NewTrackCursor(snap, 2).RemoveFrom(q, testUser); !errors.Is(err, ErrMissingPermissions) {
		t.Errorf("removing another user's track error = %v, want ErrMissingPermissions", err)
	}
	removed, err := NewTrackCursor(snap, 3).RemoveFrom(q, testUser)
	if err != nil || removed.Title != "auto" {
		t.Fatalf("RemoveFrom(auto) = %v, %v", removed, err)
	}
	if _, err := NewTrackCursor(snap, 1).RemoveFrom(q, testUser); !errors.Is(err, ErrQueueChanged) {
		t.Errorf("RemoveFrom() with a stale snapshot error = %v, want ErrQueueChanged", err)
	}
}

func TestTrackCursor_NoCurrent(t *testing.T) {
	q := NewQueue()
	_ = q.Put(testTrack("a"))
	_ = q.Put(testTrack("b"))
	c := NewTrackCursor(q.Snapshot(), 0)

	if c.IsCurrent() || c.PendingIndex() != 0 {
		t.Error("without a playing track index 0 is the first pending track")
	}
	removed, err := c.RemoveFrom(q, testUser)
	if err != nil || removed.Title != "a" {
		t.Errorf("RemoveFrom() = %v, %v", removed, err)
	}
}
