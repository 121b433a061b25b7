package home

import (
	"strconv"

	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/cadence/proc"
	"github.com/leeineian/cadence/sys"
)

func handleVoiceTrack(event *events.ApplicationCommandInteractionCreate) {
	_ = event.DeferCreateMessage(false)
	ctx, cancel := voiceContext()
	defer cancel()

	s, _, err := getConnectedState(ctx, event, true)
	if err != nil {
		editReplyError(event, err)
		return
	}
	editReply(event, trackViewCard(proc.NewTrackCursor(s.Queue().Snapshot(), 0), event.User().ID))
}

// handleTrackComponent serves the track view: voice-track:<fingerprint>:<index>:<action>.
// Navigation needs the queue to be unchanged since the view was drawn;
// Update redraws at the same position from a fresh snapshot.
func handleTrackComponent(event *events.ComponentInteractionCreate) {
	parts := splitCustomID(event.Data.CustomID(), trackComponentPrefix)
	if len(parts) != 3 {
		return
	}
	fp, action := parts[0], parts[2]
	index, err := strconv.Atoi(parts[1])
	if err != nil {
		return
	}

	ctx, cancel := voiceContext()
	defer cancel()

	mutating := action == "skip" || action == "remove"
	s, r, err := getConnectedState(ctx, event, !mutating)
	if err != nil {
		componentError(event, err)
		return
	}
	q := s.Queue()
	snap := q.Snapshot()

	if action == "update" {
		_ = event.UpdateMessage(trackViewCard(proc.NewTrackCursor(snap, index), r.UserID).Update())
		return
	}
	if snap.Fingerprint != fp {
		componentError(event, proc.ErrQueueChanged)
		return
	}
	c := proc.NewTrackCursor(snap, index)

	switch action {
	case "first":
		c = c.First()
	case "prev":
		c = c.Prev()
	case "next":
		c = c.Next()
	case "last":
		c = c.Last()
	case "skip":
		if !c.IsCurrent() {
			componentError(event, proc.ErrIndexOutOfRange)
			return
		}
		if _, err := s.SkipAt(fp); err != nil {
			componentError(event, err)
			return
		}
		c = proc.NewTrackCursor(q.Snapshot(), 0)
	case "remove":
		t, err := c.RemoveFrom(q, r.UserID)
		if err != nil {
			componentError(event, err)
			return
		}
		sys.LogVoice(sys.MsgVoiceTrackRemoved, s.GuildID(), t.DisplayTitle())
		c = proc.NewTrackCursor(q.Snapshot(), index)
	default:
		return
	}
	_ = event.UpdateMessage(trackViewCard(c, r.UserID).Update())
}
