package sys

import (
	"strings"

	"github.com/disgoorg/disgo/discord"
)

// Card is a V2 component message: a single container of text blocks with an
// optional thumbnail on the first block and optional button rows at the end.
type Card struct {
	Blocks    []string
	Thumbnail string
	Rows      []discord.ActionRowComponent
}

// NewCard starts a card with a single text block.
func NewCard(text string) *Card {
	return &Card{Blocks: []string{text}}
}

func (c *Card) WithThumbnail(url string) *Card {
	c.Thumbnail = url
	return c
}

func (c *Card) AddBlock(text string) *Card {
	c.Blocks = append(c.Blocks, text)
	return c
}

func (c *Card) AddRow(components ...discord.InteractiveComponent) *Card {
	if len(components) > 0 {
		c.Rows = append(c.Rows, discord.NewActionRow(components...))
	}
	return c
}

// Container renders the card into a single V2 container.
func (c *Card) Container() discord.ContainerComponent {
	var parts []discord.ContainerSubComponent
	for i, b := range c.Blocks {
		if i > 0 {
			parts = append(parts, discord.NewSeparator(discord.SeparatorSpacingSizeSmall).WithDivider(true))
		}
		if i == 0 && c.Thumbnail != "" {
			parts = append(parts, discord.NewSection(discord.NewTextDisplay(b)).WithAccessory(discord.NewThumbnail(c.Thumbnail)))
			continue
		}
		parts = append(parts, discord.NewTextDisplay(b))
	}
	for _, r := range c.Rows {
		parts = append(parts, r)
	}
	return discord.NewContainer(parts...)
}

func (c *Card) Create(ephemeral bool) discord.MessageCreate {
	return discord.NewMessageCreate().WithIsComponentsV2(true).WithEphemeral(ephemeral).WithComponents(c.Container())
}

func (c *Card) Update() discord.MessageUpdate {
	return discord.NewMessageUpdate().WithIsComponentsV2(true).WithComponents(c.Container())
}

// TruncateCenter truncates a string keeping both the start and end.
func TruncateCenter(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	k := (maxLen - 3) / 2
	return string(r[:k]) + "..." + string(r[len(r)-k:])
}

// TruncateWithPreserve truncates text while keeping prefix and suffix intact.
func TruncateWithPreserve(text string, maxLen int, prefix, suffix string) string {
	fixed := len([]rune(prefix)) + len([]rune(suffix))
	if fixed >= maxLen-10 {
		return TruncateCenter(prefix+text+suffix, maxLen)
	}
	return prefix + TruncateCenter(text, maxLen-fixed) + suffix
}

// TruncateLabel cuts s to maxLen runes with a trailing ellipsis.
func TruncateLabel(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
