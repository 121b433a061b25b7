package home

import (
	"fmt"

	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/cadence/sys"
)

func handleVoiceConnect(event *events.ApplicationCommandInteractionCreate) {
	_ = event.DeferCreateMessage(false)
	ctx, cancel := voiceContext()
	defer cancel()

	s, _, err := getOrConnectState(ctx, event, true)
	if err != nil {
		editReplyError(event, err)
		return
	}
	editReply(event, sys.NewCard(fmt.Sprintf(sys.MsgVoiceUIConnected, s.ChannelID())))
}

func handleVoiceDisconnect(event *events.ApplicationCommandInteractionCreate) {
	_ = event.DeferCreateMessage(false)
	ctx, cancel := voiceContext()
	defer cancel()

	s, _, err := getConnectedState(ctx, event, false)
	if err != nil {
		editReplyError(event, err)
		return
	}
	if err := s.Disconnect(ctx); err != nil {
		editReplyError(event, err)
		return
	}
	editReply(event, sys.NewCard(sys.MsgVoiceUIDisconnect))
}
