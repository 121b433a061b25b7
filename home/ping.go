package home

import (
	"fmt"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/cadence/sys"
)

const pingRefreshID = "ping_refresh"

func init() {
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "ping",
		Description: "Show the bot's latency",
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
	}, handlePing)

	sys.RegisterComponentHandler(pingRefreshID, handlePingRefresh)
}

func handlePing(event *events.ApplicationCommandInteractionCreate) {
	if err := event.CreateMessage(pingCard(event.Client(), "🏓").Create(false)); err != nil {
		sys.LogDebug("Failed to send ping: %v", err)
	}
}

func handlePingRefresh(event *events.ComponentInteractionCreate) {
	_ = event.UpdateMessage(pingCard(event.Client(), "🔁").Update())
}

func pingCard(client *bot.Client, icon string) *sys.Card {
	return sys.NewCard(fmt.Sprintf("# Pong! %s\n\n> **Latency:** %s", icon, gatewayLatency(client))).
		AddRow(discord.NewSecondaryButton("🔄 Refresh", pingRefreshID))
}

func gatewayLatency(client *bot.Client) string {
	if client == nil || client.Gateway == nil {
		return "n/a"
	}
	l := client.Gateway.Latency()
	if l <= 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.2f ms", float64(l.Microseconds())/1000)
}
