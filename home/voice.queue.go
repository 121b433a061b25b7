package home

import (
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/cadence/proc"
	"github.com/leeineian/cadence/sys"
)

func handleVoiceQueue(event *events.ApplicationCommandInteractionCreate) {
	_ = event.DeferCreateMessage(false)
	ctx, cancel := voiceContext()
	defer cancel()

	s, _, err := getConnectedState(ctx, event, true)
	if err != nil {
		editReplyError(event, err)
		return
	}
	editReply(event, queueCard(s.Queue().Snapshot()))
}

func handleVoiceSkip(event *events.ApplicationCommandInteractionCreate) {
	_ = event.DeferCreateMessage(false)
	ctx, cancel := voiceContext()
	defer cancel()

	s, _, err := getConnectedState(ctx, event, false)
	if err != nil {
		editReplyError(event, err)
		return
	}
	t, err := s.Skip()
	if err != nil {
		editReplyError(event, err)
		return
	}
	editReply(event, trackCard(sys.MsgVoiceUISkipped, t))
}

func handleVoiceLoop(event *events.ApplicationCommandInteractionCreate) {
	_ = event.DeferCreateMessage(false)
	ctx, cancel := voiceContext()
	defer cancel()

	s, _, err := getConnectedState(ctx, event, false)
	if err != nil {
		editReplyError(event, err)
		return
	}
	msg := sys.MsgVoiceUILoopOff
	if s.Queue().ToggleLoop() {
		msg = sys.MsgVoiceUILoopOn
	}
	editReply(event, sys.NewCard(msg))
}

// handleQueueComponent serves the queue view buttons: voice-queue:<fingerprint>:<action>.
func handleQueueComponent(event *events.ComponentInteractionCreate) {
	parts := splitCustomID(event.Data.CustomID(), queueComponentPrefix)
	if len(parts) != 2 {
		return
	}
	fp, action := parts[0], parts[1]

	ctx, cancel := voiceContext()
	defer cancel()

	// Looking needs no shared channel, changing does.
	readOnly := action == "update" || action == "tracks"
	s, _, err := getConnectedState(ctx, event, readOnly)
	if err != nil {
		componentError(event, err)
		return
	}
	q := s.Queue()

	switch action {
	case "update":
	case "loop":
		if _, err := q.ToggleLoopAt(fp); err != nil {
			componentError(event, err)
			return
		}
	case "skip":
		if _, err := s.SkipAt(fp); err != nil {
			componentError(event, err)
			return
		}
	case "tracks":
		if err := q.Check(fp); err != nil {
			componentError(event, err)
			return
		}
		_ = event.UpdateMessage(trackViewCard(proc.NewTrackCursor(q.Snapshot(), 0), event.User().ID).Update())
		return
	default:
		return
	}
	_ = event.UpdateMessage(queueCard(q.Snapshot()).Update())
}
