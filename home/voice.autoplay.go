package home

import (
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/cadence/sys"
)

// handleVoiceAutoplay switches autoplay off for an empty word; otherwise it
// follows the new word and fetches a suggestion right away.
func handleVoiceAutoplay(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	word := strings.TrimSpace(data.String("word"))
	_ = event.DeferCreateMessage(false)
	ctx, cancel := voiceContext()
	defer cancel()

	s, _, err := getConnectedState(ctx, event, false)
	if err != nil {
		editReplyError(event, err)
		return
	}
	s.SetAnnounceChannel(event.Channel().ID())

	if word == "" {
		s.Queue().DisableAutoplay()
		editReply(event, sys.NewCard(sys.MsgVoiceUIAutoplayOff))
		return
	}
	s.Queue().EnableAutoplay(word)
	voiceManager.TriggerAutoplay(s)
	editReply(event, sys.NewCard(fmt.Sprintf(sys.MsgVoiceUIAutoplayOn, word)))
}
