package home

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/cadence/proc"
	"github.com/leeineian/cadence/sys"
)

// announcer posts background notices to each session's announce channel.
// Autoplay stages of one run edit the same message.
type announcer struct {
	client      *bot.Client
	idleTimeout time.Duration

	mu   sync.Mutex
	runs map[uint64]snowflake.ID
}

func newAnnouncer(client *bot.Client, idleTimeout time.Duration) *announcer {
	return &announcer{
		client:      client,
		idleTimeout: idleTimeout,
		runs:        make(map[uint64]snowflake.ID),
	}
}

func (a *announcer) send(s *proc.Session, card *sys.Card) (snowflake.ID, bool) {
	ch := s.AnnounceChannel()
	if ch == 0 {
		return 0, false
	}
	msg, err := a.client.Rest.CreateMessage(ch, card.Create(false))
	if err != nil {
		sys.LogDebug(sys.MsgGenericError, err)
		return 0, false
	}
	return msg.ID, true
}

func (a *announcer) OnIdleTimeout(s *proc.Session) {
	ctx, cancel := context.WithTimeout(sys.AppContext, 30*time.Second)
	defer cancel()
	if err := s.Disconnect(ctx); err != nil {
		logVoiceError(err)
		return
	}
	a.send(s, sys.NewCard(fmt.Sprintf(sys.MsgVoiceUITimeout, a.idleTimeout)))
}

func (a *announcer) OnAutoplay(s *proc.Session, ev proc.AutoplayEvent) {
	card := sys.NewCard("### " + ev.Stage.String())
	if ev.Track != nil {
		card = trackCard("### "+ev.Stage.String(), ev.Track)
	}
	if ev.Err != nil {
		card.AddBlock("-# " + proc.UserMessage(ev.Err))
	}

	a.mu.Lock()
	msgID, ok := a.runs[ev.Run]
	if ev.Stage != proc.AutoplayFetching {
		delete(a.runs, ev.Run)
	}
	a.mu.Unlock()

	if ok {
		if _, err := a.client.Rest.UpdateMessage(s.AnnounceChannel(), msgID, card.Update()); err == nil {
			return
		}
	}
	id, sent := a.send(s, card)
	if sent && ev.Stage == proc.AutoplayFetching {
		a.mu.Lock()
		a.runs[ev.Run] = id
		a.mu.Unlock()
	}
}

// handleVoiceStateUpdate ends sessions that lost their bot or their audience.
func handleVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	if voiceManager == nil {
		return
	}
	vs := event.VoiceState
	s := voiceManager.Get(vs.GuildID)
	if s == nil || s.State() != proc.StateConnected {
		return
	}
	client := event.Client()
	ctx, cancel := context.WithTimeout(sys.AppContext, 30*time.Second)
	defer cancel()

	if vs.UserID == client.ID() {
		if vs.ChannelID != nil {
			return
		}
		// Our own Disconnect also lands here; only the first caller gets through.
		if err := s.Disconnect(ctx); err != nil {
			logVoiceError(err)
			return
		}
		sys.LogVoice(sys.MsgVoiceExternalLeave, vs.GuildID)
		sendNotice(client, s, sys.MsgVoiceUIKicked)
		return
	}

	ch := s.ChannelID()
	if event.OldVoiceState.ChannelID == nil || *event.OldVoiceState.ChannelID != ch {
		return
	}
	if vs.ChannelID != nil && *vs.ChannelID == ch {
		return
	}
	if humansIn(client, vs.GuildID, ch) > 0 {
		return
	}
	sys.LogVoice(sys.MsgVoiceAllLeft, ch, vs.GuildID)
	if err := s.Disconnect(ctx); err != nil {
		logVoiceError(err)
		return
	}
	sendNotice(client, s, sys.MsgVoiceUIAllLeft)
}

func humansIn(client *bot.Client, guildID, channelID snowflake.ID) int {
	n := 0
	for state := range client.Caches.VoiceStates(guildID) {
		if state.ChannelID == nil || *state.ChannelID != channelID || state.UserID == client.ID() {
			continue
		}
		if m, ok := client.Caches.Member(guildID, state.UserID); ok && m.User.Bot {
			continue
		}
		n++
	}
	return n
}

func sendNotice(client *bot.Client, s *proc.Session, text string) {
	ch := s.AnnounceChannel()
	if ch == 0 {
		return
	}
	if _, err := client.Rest.CreateMessage(ch, sys.NewCard(text).Create(false)); err != nil {
		sys.LogDebug(sys.MsgGenericError, err)
	}
}

// shutdownVoice disconnects every session and tells each channel why.
func shutdownVoice(client *bot.Client) {
	if voiceManager == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, s := range voiceManager.Shutdown(ctx) {
		sendNotice(client, s, sys.MsgVoiceUIShutdown)
	}
}
