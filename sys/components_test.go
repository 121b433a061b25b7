package sys

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/disgoorg/disgo/discord"
)

func TestTruncateCenter(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"abcdefghijklmnop", 9, "abc...nop"},
		{"abcdef", 3, "abc"},
	}
	for _, tt := range tests {
		if got := TruncateCenter(tt.in, tt.max); got != tt.want {
			t.Errorf("TruncateCenter(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestTruncateWithPreserve(t *testing.T) {
	title := strings.Repeat("ラ", 200)
	got := TruncateWithPreserve(title, 128, "🎵 Now Playing ", " · Channel")

	if !strings.HasPrefix(got, "🎵 Now Playing ") || !strings.HasSuffix(got, " · Channel") {
		t.Errorf("prefix and suffix must survive, got %q", got)
	}
	if n := utf8.RuneCountInString(got); n > 128 {
		t.Errorf("result has %d runes, want at most 128", n)
	}
	if got := TruncateWithPreserve("Song", 128, "🎵 ", ""); got != "🎵 Song" {
		t.Errorf("short text should pass through, got %q", got)
	}
}

func TestTruncateLabel(t *testing.T) {
	if got := TruncateLabel("  Plastic Love  ", 80); got != "Plastic Love" {
		t.Errorf("TruncateLabel() = %q", got)
	}
	if got := TruncateLabel("abcdefghij", 6); got != "abc..." {
		t.Errorf("TruncateLabel() = %q, want abc...", got)
	}
}

func TestCard_Container(t *testing.T) {
	c := NewCard("### Queue").
		WithThumbnail("https://i/h.jpg").
		AddBlock("next up").
		AddRow(discord.NewSecondaryButton("Update", "voice-queue:abc:update")).
		AddRow()

	if len(c.Rows) != 1 {
		t.Errorf("an empty row should be skipped, got %d rows", len(c.Rows))
	}

	parts := c.Container().Components
	// section, separator, text, row
	if len(parts) != 4 {
		t.Fatalf("container has %d parts, want 4", len(parts))
	}
	if _, ok := parts[0].(discord.SectionComponent); !ok {
		t.Errorf("first block with a thumbnail should be a section, got %T", parts[0])
	}
	if _, ok := parts[1].(discord.SeparatorComponent); !ok {
		t.Errorf("blocks should be separated, got %T", parts[1])
	}
}

func TestCard_CreateAndUpdate(t *testing.T) {
	c := NewCard("### Added to the Queue")

	m := c.Create(true)
	if !m.Flags.Has(discord.MessageFlagIsComponentsV2) || !m.Flags.Has(discord.MessageFlagEphemeral) {
		t.Errorf("Create(true) flags = %v, want components v2 and ephemeral", m.Flags)
	}
	if len(m.Components) != 1 {
		t.Errorf("Create() has %d components, want the single container", len(m.Components))
	}
	if c.Create(false).Flags.Has(discord.MessageFlagEphemeral) {
		t.Error("Create(false) must not be ephemeral")
	}

	u := c.Update()
	if u.Flags == nil || !u.Flags.Has(discord.MessageFlagIsComponentsV2) {
		t.Error("Update() should keep the components v2 flag")
	}
	if u.Components == nil || len(*u.Components) != 1 {
		t.Error("Update() should replace the components with the container")
	}
}
