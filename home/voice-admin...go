package home

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/leeineian/cadence/proc"
	"github.com/leeineian/cadence/sys"
)

func init() {
	adminPerm := discord.PermissionAdministrator

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "voice-admin",
		Description:              "Voice player management (Admin Only)",
		DefaultMemberPermissions: omit.New(&adminPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "shutdown",
				Description: "Disconnect the player from every server",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "presence",
				Description: "Show or hide the rotating playback presence",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionBool{
						Name:        "visible",
						Description: "Enable or disable presence rotation",
						Required:    true,
					},
				},
			},
		},
	}, handleVoiceAdmin)
}

func handleVoiceAdmin(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil {
		return
	}
	switch *data.SubCommandName {
	case "shutdown":
		handleVoiceAdminShutdown(event)
	case "presence":
		handleVoiceAdminPresence(event, data)
	}
}

func handleVoiceAdminPresence(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	visible := data.Bool("visible")
	content := "✅ Presence rotation disabled!"
	if visible {
		content = "✅ Presence rotation enabled!"
	}
	if err := sys.SetBotConfig(sys.AppContext, proc.ConfigKeyPresence, strconv.FormatBool(visible)); err != nil {
		sys.LogError(sys.MsgGenericError, err)
		content = "❌ " + sys.ErrVoiceGeneric
	}
	_ = event.CreateMessage(sys.NewCard(content).Create(true))
}

func handleVoiceAdminShutdown(event *events.ApplicationCommandInteractionCreate) {
	if voiceManager == nil {
		_ = event.CreateMessage(sys.NewCard(sys.ErrVoiceGeneric).Create(true))
		return
	}

	sys.LogWarn(sys.MsgVoiceAdminShutdown, event.User().Username, event.User().ID)
	_ = event.DeferCreateMessage(true)

	ctx, cancel := context.WithTimeout(sys.AppContext, 30*time.Second)
	defer cancel()
	sessions := voiceManager.Shutdown(ctx)
	for _, s := range sessions {
		sendNotice(event.Client(), s, sys.MsgVoiceUIShutdown)
	}
	editReply(event, sys.NewCard(fmt.Sprintf(sys.MsgVoiceUIShutdownOK, len(sessions))))
}
