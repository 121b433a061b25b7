package home

import (
	"context"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/cadence/proc"
	"github.com/leeineian/cadence/sys"
)

// Extraction and agent runs can take a while; Discord keeps a deferred
// interaction open for 15 minutes.
const voiceCommandTimeout = 3 * time.Minute

// interaction is what the command and component events have in common.
type interaction interface {
	GuildID() *snowflake.ID
	User() discord.User
	Client() *bot.Client
	Channel() discord.InteractionChannel
}

func voiceContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(sys.AppContext, voiceCommandTimeout)
}

// requesterOf reads the caller's voice state from the cache.
func requesterOf(event interaction) (proc.Requester, error) {
	guildID := event.GuildID()
	if guildID == nil {
		return proc.Requester{}, proc.ErrUserNotInGuild
	}
	r := proc.Requester{UserID: event.User().ID, GuildID: *guildID}
	if vs, ok := event.Client().Caches.VoiceState(*guildID, event.User().ID); ok {
		r.GuildID = vs.GuildID
		r.ChannelID = vs.ChannelID
	}
	return r, nil
}

// getConnectedState returns the caller's session when it is fully usable.
// Unless anyChannel is set the caller must share the bot's voice channel.
func getConnectedState(ctx context.Context, event interaction, anyChannel bool) (*proc.Session, proc.Requester, error) {
	r, err := requesterOf(event)
	if err != nil {
		return nil, r, err
	}
	s := voiceManager.Get(r.GuildID)
	if s == nil || !s.IsConnected() {
		return nil, r, proc.ErrNotConnected
	}
	if !s.LoopRunning() {
		return nil, r, proc.ErrNotRunningAudioLoop
	}
	if !s.IsSessionActive(ctx) {
		return nil, r, proc.ErrMissingSession
	}
	if !anyChannel && (r.ChannelID == nil || *r.ChannelID != s.ChannelID()) {
		return nil, r, proc.ErrUserNotInSameChannel
	}
	return s, r, nil
}

// getOrConnectState joins the caller's channel when needed: it connects a
// disconnected session and moves one that sits in another channel.
// With connectOnly an already joined channel is reported as an error.
func getOrConnectState(ctx context.Context, event interaction, connectOnly bool) (*proc.Session, proc.Requester, error) {
	r, err := requesterOf(event)
	if err != nil {
		return nil, r, err
	}
	if r.ChannelID == nil {
		return nil, r, proc.ErrUserNotInVoiceChannel
	}

	s := voiceManager.GetOrCreate(r.GuildID)
	switch {
	case !s.IsConnected():
		err = s.Connect(ctx, r)
	case *r.ChannelID != s.ChannelID():
		err = s.Move(ctx, r)
	case connectOnly:
		err = proc.ErrAlreadyConnected
	}
	if err != nil {
		return nil, r, err
	}
	s.SetAnnounceChannel(event.Channel().ID())
	return s, r, nil
}

func logVoiceError(err error) {
	if proc.IsUserState(err) {
		return
	}
	sys.LogVoiceWarn(sys.MsgGenericError, err)
}

// editReply replaces the deferred response of a command.
func editReply(event *events.ApplicationCommandInteractionCreate, card *sys.Card) {
	_, err := event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(), card.Update())
	if err != nil {
		sys.LogDebug(sys.MsgGenericError, err)
	}
}

func editReplyError(event *events.ApplicationCommandInteractionCreate, err error) {
	logVoiceError(err)
	editReply(event, sys.NewCard("❌ "+proc.UserMessage(err)))
}

// componentError answers a button press with a private error, leaving the view as it was.
func componentError(event *events.ComponentInteractionCreate, err error) {
	logVoiceError(err)
	_ = event.CreateMessage(sys.NewCard("❌ " + proc.UserMessage(err)).Create(true))
}
