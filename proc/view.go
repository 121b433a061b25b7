package proc

import (
	"github.com/disgoorg/snowflake/v2"
)

// TrackCursor walks a queue snapshot one track at a time. Index 0 is the
// track now playing when there is one, the pending tracks follow.
type TrackCursor struct {
	Snapshot Snapshot
	Index    int
}

func NewTrackCursor(snap Snapshot, index int) TrackCursor {
	c := TrackCursor{Snapshot: snap}
	c.Index = c.clamp(index)
	return c
}

func (c TrackCursor) tracks() []*Track {
	if c.Snapshot.Current == nil {
		return c.Snapshot.Pending
	}
	return append([]*Track{c.Snapshot.Current}, c.Snapshot.Pending...)
}

func (c TrackCursor) Len() int { return len(c.tracks()) }

func (c TrackCursor) clamp(i int) int {
	n := c.Len()
	if i >= n {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}

// Track returns the track under the cursor, nil for an empty queue.
func (c TrackCursor) Track() *Track {
	ts := c.tracks()
	if len(ts) == 0 {
		return nil
	}
	return ts[c.Index]
}

// IsCurrent reports whether the cursor points at the playing track.
func (c TrackCursor) IsCurrent() bool {
	return c.Snapshot.Current != nil && c.Index == 0
}

// PendingIndex converts the cursor to an index into the pending tracks.
func (c TrackCursor) PendingIndex() int {
	if c.Snapshot.Current != nil {
		return c.Index - 1
	}
	return c.Index
}

func (c TrackCursor) First() TrackCursor { return NewTrackCursor(c.Snapshot, 0) }
func (c TrackCursor) Last() TrackCursor  { return NewTrackCursor(c.Snapshot, c.Len()-1) }
func (c TrackCursor) Next() TrackCursor  { return NewTrackCursor(c.Snapshot, c.Index+1) }
func (c TrackCursor) Prev() TrackCursor  { return NewTrackCursor(c.Snapshot, c.Index-1) }

// CanRemove reports whether user may drop the track under the cursor. Anyone
// may drop autoplay picks; other tracks belong to their requester.
func (c TrackCursor) CanRemove(user snowflake.ID) bool {
	t := c.Track()
	if t == nil || c.IsCurrent() {
		return false
	}
	return t.Autoplay || t.Requester == 0 || t.Requester == user
}

// RemoveFrom removes the track under the cursor from q on behalf of user.
func (c TrackCursor) RemoveFrom(q *Queue, user snowflake.ID) (*Track, error) {
	if c.Track() == nil || c.IsCurrent() {
		return nil, ErrIndexOutOfRange
	}
	if !c.CanRemove(user) {
		return nil, ErrMissingPermissions
	}
	return q.RemoveAt(c.Snapshot.Fingerprint, c.PendingIndex())
}
