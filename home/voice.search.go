package home

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/cadence/proc"
	"github.com/leeineian/cadence/sys"
)

const searchViewTTL = 15 * time.Minute

// searchView is one /voice search-all result list, kept for its buttons.
type searchView struct {
	owner   snowflake.ID
	word    string
	items   []*proc.Track
	partial bool
	created time.Time
}

var (
	searchViewsMu sync.Mutex
	searchViews   = make(map[string]*searchView)
)

func storeSearchView(id string, v *searchView) {
	searchViewsMu.Lock()
	defer searchViewsMu.Unlock()
	for k, old := range searchViews {
		if time.Since(old.created) > searchViewTTL {
			delete(searchViews, k)
		}
	}
	searchViews[id] = v
}

func loadSearchView(id string) (*searchView, bool) {
	searchViewsMu.Lock()
	defer searchViewsMu.Unlock()
	v, ok := searchViews[id]
	if !ok || time.Since(v.created) > searchViewTTL {
		return nil, false
	}
	return v, true
}

func searchPageSize() int {
	if sys.GlobalConfig != nil && sys.GlobalConfig.SearchPageSize > 0 {
		return sys.GlobalConfig.SearchPageSize
	}
	return 5
}

func (v *searchView) pages() int {
	size := searchPageSize()
	return max(1, (len(v.items)+size-1)/size)
}

func (v *searchView) card(id string, page int) *sys.Card {
	size := searchPageSize()
	page = min(max(page, 0), v.pages()-1)
	start := page * size
	end := min(start+size, len(v.items))

	text := fmt.Sprintf(sys.MsgVoiceUISearch, v.word)
	var options []discord.StringSelectMenuOption
	for i := start; i < end; i++ {
		t := v.items[i]
		text += fmt.Sprintf("\n`%d.` %s · %s · `%s`", i+1, t.TitleMarkdown(), t.Channel, t.DurationText())
		opt := discord.NewStringSelectMenuOption(sys.TruncateLabel(fmt.Sprintf("%d. %s", i+1, t.DisplayTitle()), 100), strconv.Itoa(i))
		if t.Channel != "" {
			opt = opt.WithDescription(sys.TruncateLabel(t.Channel, 100))
		}
		options = append(options, opt)
	}
	footer := fmt.Sprintf(sys.MsgVoiceUISearchPage, page+1, v.pages())
	if v.partial {
		footer += " · " + sys.ErrVoiceSearchCount
	}

	card := sys.NewCard(text).AddBlock(footer)
	if len(options) > 0 {
		card.AddRow(discord.NewStringSelectMenu(searchComponentPrefix+id+":pick", sys.MsgVoiceUISearchPick, options...))
	}
	prev := discord.NewButton(discord.ButtonStyleSecondary, "Back", searchComponentPrefix+id+":page:"+strconv.Itoa(page-1), "", 0)
	next := discord.NewButton(discord.ButtonStyleSecondary, "Next", searchComponentPrefix+id+":page:"+strconv.Itoa(page+1), "", 0)
	if page == 0 {
		prev = prev.WithDisabled(true)
	}
	if page >= v.pages()-1 {
		next = next.WithDisabled(true)
	}
	return card.AddRow(prev, next)
}

func handleVoiceSearchAll(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	word := data.String("word")
	_ = event.DeferCreateMessage(false)
	ctx, cancel := voiceContext()
	defer cancel()

	_, r, err := getOrConnectState(ctx, event, false)
	if err != nil {
		editReplyError(event, err)
		return
	}

	count := 20
	if sys.GlobalConfig != nil {
		count = sys.GlobalConfig.SearchResults
	}
	page, err := acquirer.Search(ctx, r.UserID, word, count, "")
	if err != nil && !proc.IsIgnorable(err) {
		editReplyError(event, err)
		return
	}

	id := event.ID().String()
	v := &searchView{
		owner:   r.UserID,
		word:    word,
		items:   page.Items,
		partial: err != nil,
		created: time.Now(),
	}
	storeSearchView(id, v)
	editReply(event, v.card(id, 0))
}

func handleSearchComponent(event *events.ComponentInteractionCreate) {
	parts := splitCustomID(event.Data.CustomID(), searchComponentPrefix)
	if len(parts) < 2 {
		return
	}
	id, action := parts[0], parts[1]
	v, ok := loadSearchView(id)
	if !ok {
		_ = event.CreateMessage(sys.NewCard("❌ " + sys.ErrVoiceSearchExpired).Create(true))
		return
	}

	switch action {
	case "page":
		if len(parts) < 3 {
			return
		}
		page, _ := strconv.Atoi(parts[2])
		_ = event.UpdateMessage(v.card(id, page).Update())
	case "pick":
		if event.User().ID != v.owner {
			_ = event.CreateMessage(sys.NewCard("❌ " + sys.ErrVoiceSearchOwner).Create(true))
			return
		}
		values := event.StringSelectMenuInteractionData().Values
		if len(values) == 0 {
			return
		}
		i, err := strconv.Atoi(values[0])
		if err != nil || i < 0 || i >= len(v.items) {
			componentError(event, proc.ErrIndexOutOfRange)
			return
		}
		pickSearchResult(event, v.items[i])
	}
}

func pickSearchResult(event *events.ComponentInteractionCreate, candidate *proc.Track) {
	ctx, cancel := voiceContext()
	defer cancel()

	s, _, err := getConnectedState(ctx, event, false)
	if err != nil {
		componentError(event, err)
		return
	}
	_ = event.DeferUpdateMessage()

	var card *sys.Card
	track, err := acquirer.Download(ctx, candidate)
	if err != nil {
		logVoiceError(err)
		card = sys.NewCard("❌ " + proc.UserMessage(err))
	} else {
		card = enqueue(ctx, s, track)
	}
	if _, err := event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(), card.Update()); err != nil {
		sys.LogDebug(sys.MsgGenericError, err)
	}
}
