package proc

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/gateway"
	"github.com/leeineian/cadence/sys"
)

// ConfigKeyPresence toggles the rotating presence in bot_config.
const ConfigKeyPresence = "presence_visible"

func presenceInterval() time.Duration {
	return time.Duration(15+rand.Intn(46)) * time.Second
}

// PresenceRotator cycles the bot's activity through playback statistics.
type PresenceRotator struct {
	client  *bot.Client
	manager *Manager
	started time.Time
	last    string
}

func NewPresenceRotator(client *bot.Client, manager *Manager) *PresenceRotator {
	return &PresenceRotator{client: client, manager: manager, started: time.Now().UTC()}
}

// Run rotates until ctx is done.
func (p *PresenceRotator) Run(ctx context.Context) {
	for {
		next := presenceInterval()
		p.update(ctx, next)
		select {
		case <-time.After(next):
		case <-ctx.Done():
			return
		}
	}
}

func (p *PresenceRotator) update(ctx context.Context, next time.Duration) {
	if visible, err := sys.GetBotConfig(ctx, ConfigKeyPresence); err == nil && visible == "false" {
		_ = p.client.SetPresence(ctx, gateway.WithOnlineStatus(discord.OnlineStatusOnline))
		return
	}

	status := p.pick(p.statuses())
	if err := p.client.SetPresence(ctx,
		gateway.WithOnlineStatus(discord.OnlineStatusOnline),
		gateway.WithPlayingActivity(status),
	); err != nil {
		sys.LogDebug(sys.MsgGenericError, err)
		return
	}
	sys.LogDebug("Presence rotated to %q (next in %s)", status, next)
}

// statuses lists the candidates for the next presence. The first is always present.
func (p *PresenceRotator) statuses() []string {
	out := []string{"/voice play"}
	connected, queued := p.manager.Stats()
	if connected > 0 {
		out = append(out, fmt.Sprintf("in %d voice channel(s)", connected))
	}
	if queued > 0 {
		out = append(out, fmt.Sprintf("Queue: %d track(s)", queued))
	}
	uptime := time.Since(p.started)
	out = append(out, fmt.Sprintf("Uptime: %dh %dm", int(uptime.Hours()), int(uptime.Minutes())%60))
	if p.client != nil && p.client.Gateway != nil {
		if ping := p.client.Gateway.Latency(); ping > 0 {
			out = append(out, fmt.Sprintf("Ping: %dms", ping.Milliseconds()))
		}
	}
	return out
}

// pick chooses a random status other than the last one shown, when possible.
func (p *PresenceRotator) pick(options []string) string {
	var fresh []string
	for _, s := range options {
		if s != p.last {
			fresh = append(fresh, s)
		}
	}
	if len(fresh) == 0 {
		fresh = options
	}
	p.last = fresh[rand.Intn(len(fresh))]
	return p.last
}
