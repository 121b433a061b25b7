package home

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/cadence/proc"
	"github.com/leeineian/cadence/sys"
)

const (
	queueComponentPrefix  = "voice-queue:"
	trackComponentPrefix  = "voice-track:"
	searchComponentPrefix = "voice-search:"

	queuePreviewSize = 10
)

func requesterText(t *proc.Track) string {
	if t.Autoplay || t.Requester == 0 {
		return sys.MsgVoiceUIAutoplay
	}
	return "<@" + t.Requester.String() + ">"
}

// trackBlock renders a track as title, channel and duration lines.
func trackBlock(t *proc.Track) string {
	return fmt.Sprintf("**%s**\n%s · `%s`\n-# %s", t.TitleMarkdown(), t.ChannelMarkdown(), t.DurationText(), requesterText(t))
}

// trackCard is the single-track notice used for added, skipped and autoplay messages.
func trackCard(heading string, t *proc.Track) *sys.Card {
	return sys.NewCard(heading + "\n" + trackBlock(t)).WithThumbnail(t.Thumbnail)
}

func flagsLine(snap proc.Snapshot) string {
	loop := "off"
	if snap.Loop {
		loop = "on"
	}
	autoplay := "off"
	if snap.AutoplayEnabled {
		autoplay = snap.Autoplay
	}
	return fmt.Sprintf("-# Loop: %s · %s: %s", loop, sys.MsgVoiceUIAutoplay, autoplay)
}

// --- Queue view ---

func queueCustomID(fp, action string) string {
	return queueComponentPrefix + fp + ":" + action
}

func queueCard(snap proc.Snapshot) *sys.Card {
	card := sys.NewCard(sys.MsgVoiceUIQueue)
	if snap.Current == nil && len(snap.Pending) == 0 {
		card.AddBlock(sys.MsgVoiceUIQueueEmpty)
	}
	if snap.Current != nil {
		card.AddBlock(sys.MsgVoiceUINowPlaying + "\n" + trackBlock(snap.Current))
		card.WithThumbnail(snap.Current.Thumbnail)
	}
	if len(snap.Pending) > 0 {
		var b strings.Builder
		b.WriteString(sys.MsgVoiceUIUpNext)
		for i, t := range snap.Pending {
			if i == queuePreviewSize {
				b.WriteString("\n" + fmt.Sprintf(sys.MsgVoiceUIMore, len(snap.Pending)-i))
				break
			}
			fmt.Fprintf(&b, "\n`%d.` %s · `%s`", i+1, t.TitleMarkdown(), t.DurationText())
		}
		card.AddBlock(b.String())
	}
	card.AddBlock(flagsLine(snap))

	fp := snap.Fingerprint
	loopLabel := "Loop: Off"
	if snap.Loop {
		loopLabel = "Loop: On"
	}
	skip := discord.NewButton(discord.ButtonStyleDanger, "Skip", queueCustomID(fp, "skip"), "", 0)
	if snap.Current == nil {
		skip = skip.WithDisabled(true)
	}
	tracks := discord.NewButton(discord.ButtonStyleSecondary, "Show Tracks", queueCustomID(fp, "tracks"), "", 0)
	if snap.Current == nil && len(snap.Pending) == 0 {
		tracks = tracks.WithDisabled(true)
	}
	card.AddRow(
		discord.NewButton(discord.ButtonStylePrimary, "Update", queueCustomID(fp, "update"), "", 0),
		discord.NewButton(discord.ButtonStyleSecondary, loopLabel, queueCustomID(fp, "loop"), "", 0),
		skip,
		tracks,
	)
	return card
}

// --- Track view ---

func trackCustomID(fp string, index int, action string) string {
	return trackComponentPrefix + fp + ":" + strconv.Itoa(index) + ":" + action
}

func trackViewCard(c proc.TrackCursor, user snowflake.ID) *sys.Card {
	fp := c.Snapshot.Fingerprint
	t := c.Track()
	if t == nil {
		return sys.NewCard(sys.MsgVoiceUIQueue + "\n" + sys.MsgVoiceUIQueueEmpty).
			AddRow(discord.NewButton(discord.ButtonStylePrimary, "Update", trackCustomID(fp, 0, "update"), "", 0))
	}

	heading := fmt.Sprintf(sys.MsgVoiceUITrack, c.Index+1, c.Len())
	if c.IsCurrent() {
		heading += "\n" + sys.MsgVoiceUINowPlaying
	}
	card := trackCard(heading, t).AddBlock(flagsLine(c.Snapshot))

	var action discord.ButtonComponent
	if c.IsCurrent() {
		action = discord.NewButton(discord.ButtonStyleDanger, "Skip", trackCustomID(fp, c.Index, "skip"), "", 0)
	} else {
		action = discord.NewButton(discord.ButtonStyleDanger, "Remove", trackCustomID(fp, c.Index, "remove"), "", 0)
		if !c.CanRemove(user) {
			action = action.WithDisabled(true)
		}
	}
	card.AddRow(
		discord.NewButton(discord.ButtonStylePrimary, "Update", trackCustomID(fp, c.Index, "update"), "", 0),
		action,
	)

	atStart, atEnd := c.Index == 0, c.Index >= c.Len()-1
	nav := []discord.ButtonComponent{
		discord.NewButton(discord.ButtonStyleSecondary, "First", trackCustomID(fp, c.Index, "first"), "", 0),
		discord.NewButton(discord.ButtonStyleSecondary, "Back", trackCustomID(fp, c.Index, "prev"), "", 0),
		discord.NewButton(discord.ButtonStyleSecondary, "Next", trackCustomID(fp, c.Index, "next"), "", 0),
		discord.NewButton(discord.ButtonStyleSecondary, "Last", trackCustomID(fp, c.Index, "last"), "", 0),
	}
	if atStart {
		nav[0], nav[1] = nav[0].WithDisabled(true), nav[1].WithDisabled(true)
	}
	if atEnd {
		nav[2], nav[3] = nav[2].WithDisabled(true), nav[3].WithDisabled(true)
	}
	return card.AddRow(nav[0], nav[1], nav[2], nav[3])
}

// splitCustomID strips prefix and splits the remainder on ':'.
func splitCustomID(customID, prefix string) []string {
	return strings.Split(strings.TrimPrefix(customID, prefix), ":")
}
