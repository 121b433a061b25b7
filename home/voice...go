package home

import (
	"context"
	"log"
	"sync"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/cadence/proc"
	"github.com/leeineian/cadence/sys"
)

var (
	voiceOnce    sync.Once
	voiceManager *proc.Manager
	acquirer     *proc.Acquirer
)

func init() {
	sys.OnClientReady(func(ctx context.Context, client *bot.Client) {
		voiceOnce.Do(func() {
			if err := setupVoice(ctx, client); err != nil {
				sys.LogError(sys.MsgGenericError, err)
				return
			}
			sys.RegisterDaemon(sys.LogVoice, func(ctx context.Context) (bool, func(), func()) {
				rotator := proc.NewPresenceRotator(client, voiceManager)
				return true, func() { rotator.Run(ctx) }, func() { shutdownVoice(client) }
			})
		})
	})

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "voice",
		Description: "Voice System",
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "connect",
				Description: "Join your voice channel",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "disconnect",
				Description: "Leave the voice channel and clear the queue",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "play",
				Description: "Add a track from a URL",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "url",
						Description: "The URL to play",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "search-top",
				Description: "Add the best match for a search",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "word",
						Description: "What to search for",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "search-all",
				Description: "Browse search results and pick one",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "word",
						Description: "What to search for",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "skip",
				Description: "Skip the current track",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "loop",
				Description: "Toggle looping of the queue",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "queue",
				Description: "Show the queue",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "track",
				Description: "Browse the queue track by track",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "autoplay",
				Description: "Keep playing suggestions for a keyword (leave empty to stop)",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "word",
						Description: "Keyword the suggestions follow",
						Required:    false,
					},
				},
			},
		},
	}, handleVoice)

	sys.RegisterComponentHandler(queueComponentPrefix, handleQueueComponent)
	sys.RegisterComponentHandler(trackComponentPrefix, handleTrackComponent)
	sys.RegisterComponentHandler(searchComponentPrefix, handleSearchComponent)
	sys.RegisterVoiceStateUpdateHandler(handleVoiceStateUpdate)
}

func setupVoice(ctx context.Context, client *bot.Client) error {
	cfg := sys.GlobalConfig
	searcher, err := proc.NewSearcher(cfg)
	if err != nil {
		return err
	}
	acquirer = proc.NewAcquirer(proc.YtdlpExtractor{}, searcher, cfg.ExtractWorkers)
	agent := proc.NewMixAgent(proc.SQLiteHistory{}, searcher, proc.YtdlpMix{})

	voiceManager = proc.NewManager(ctx, proc.ManagerOptions{
		Transport:   proc.NewDisgoTransport(client),
		Agent:       agent,
		Autoplayer:  proc.NewAutoplayer(agent, acquirer, cfg.AutoplayRetries),
		Listener:    newAnnouncer(client, cfg.IdleTimeout),
		IdleTimeout: cfg.IdleTimeout,
	})
	return nil
}

func handleVoice(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil {
		return
	}
	if voiceManager == nil {
		_ = event.CreateMessage(sys.NewCard(sys.ErrVoiceGeneric).Create(true))
		return
	}

	subCmd := *data.SubCommandName
	switch subCmd {
	case "connect":
		handleVoiceConnect(event)
	case "disconnect":
		handleVoiceDisconnect(event)
	case "play":
		handleVoicePlay(event, data)
	case "search-top":
		handleVoiceSearchTop(event, data)
	case "search-all":
		handleVoiceSearchAll(event, data)
	case "skip":
		handleVoiceSkip(event)
	case "loop":
		handleVoiceLoop(event)
	case "queue":
		handleVoiceQueue(event)
	case "track":
		handleVoiceTrack(event)
	case "autoplay":
		handleVoiceAutoplay(event, data)
	default:
		log.Printf("Unknown voice subcommand: %s", subCmd)
	}
}
