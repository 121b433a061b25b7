package home

import (
	"context"
	"errors"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/cadence/proc"
	"github.com/leeineian/cadence/sys"
)

func handleVoicePlay(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	url := data.String("url")
	_ = event.DeferCreateMessage(false)
	ctx, cancel := voiceContext()
	defer cancel()

	s, r, err := getOrConnectState(ctx, event, false)
	if err != nil {
		editReplyError(event, err)
		return
	}
	track, err := acquirer.Resolve(ctx, r.UserID, url)
	if err != nil {
		editReplyError(event, err)
		return
	}
	editReply(event, enqueue(ctx, s, track))
}

func handleVoiceSearchTop(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	word := data.String("word")
	_ = event.DeferCreateMessage(false)
	ctx, cancel := voiceContext()
	defer cancel()

	s, r, err := getOrConnectState(ctx, event, false)
	if err != nil {
		editReplyError(event, err)
		return
	}
	candidate, err := acquirer.SearchTop(ctx, r.UserID, word)
	if err != nil {
		editReplyError(event, err)
		return
	}
	track, err := acquirer.Download(ctx, candidate)
	if err != nil {
		editReplyError(event, err)
		return
	}
	editReply(event, enqueue(ctx, s, track))
}

// enqueue adds a freshly acquired track, unless the session went away while
// it was being fetched.
func enqueue(ctx context.Context, s *proc.Session, track *proc.Track) *sys.Card {
	if err := s.Enqueue(ctx, track); err != nil {
		if errors.Is(err, proc.ErrSessionGone) {
			return trackCard(sys.MsgVoiceUICancelled, track)
		}
		logVoiceError(err)
		return sys.NewCard("❌ " + proc.UserMessage(err))
	}
	return trackCard(sys.MsgVoiceUIAdded, track)
}
