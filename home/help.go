package home

import (
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/cadence/sys"
)

func init() {
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "help",
		Description: "List the available commands",
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
	}, handleHelp)
}

func handleHelp(event *events.ApplicationCommandInteractionCreate) {
	card := sys.NewCard("### Help").AddBlock(helpText(sys.Commands()))
	if err := event.CreateMessage(card.Create(true)); err != nil {
		sys.LogDebug(sys.MsgGenericError, err)
	}
}

// helpText lists every slash command leaf with its description and options.
func helpText(cmds []discord.ApplicationCommandCreate) string {
	var b strings.Builder
	for _, cmd := range cmds {
		c, ok := cmd.(discord.SlashCommandCreate)
		if !ok {
			continue
		}
		writeHelp(&b, "/"+c.Name, c.Description, c.Options)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func writeHelp(b *strings.Builder, path, desc string, opts []discord.ApplicationCommandOption) {
	var params []discord.ApplicationCommandOption
	nested := false
	for _, o := range opts {
		switch o := o.(type) {
		case discord.ApplicationCommandOptionSubCommand:
			nested = true
			writeHelp(b, path+" "+o.Name, o.Description, o.Options)
		case discord.ApplicationCommandOptionSubCommandGroup:
			nested = true
			for _, sub := range o.Options {
				writeHelp(b, path+" "+o.Name+" "+sub.Name, sub.Description, sub.Options)
			}
		default:
			params = append(params, o)
		}
	}
	if nested {
		return
	}
	fmt.Fprintf(b, "`%s`\n> %s\n", path, desc)
	for _, p := range params {
		fmt.Fprintf(b, "> ・ %s: %s\n", p.OptionName(), p.OptionDescription())
	}
}
