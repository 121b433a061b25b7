package proc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/cadence/sys"
)

// HistoryStore persists agent sessions and what each one already suggested.
type HistoryStore interface {
	CreateAgentSession(ctx context.Context, sessionID string, guildID snowflake.ID) error
	DeleteAgentSession(ctx context.Context, sessionID string) error
	AgentSessionExists(ctx context.Context, sessionID string) (bool, error)
	GetAgentHistory(ctx context.Context, sessionID string) ([]sys.AgentHistoryEntry, error)
	AddAgentHistory(ctx context.Context, sessionID string, e sys.AgentHistoryEntry) error
}

// SQLiteHistory is the HistoryStore backed by sys.DB.
type SQLiteHistory struct{}

func (SQLiteHistory) CreateAgentSession(ctx context.Context, id string, guildID snowflake.ID) error {
	return sys.CreateAgentSession(ctx, id, guildID)
}

func (SQLiteHistory) DeleteAgentSession(ctx context.Context, id string) error {
	return sys.DeleteAgentSession(ctx, id)
}

func (SQLiteHistory) AgentSessionExists(ctx context.Context, id string) (bool, error) {
	return sys.AgentSessionExists(ctx, id)
}

func (SQLiteHistory) GetAgentHistory(ctx context.Context, id string) ([]sys.AgentHistoryEntry, error) {
	return sys.GetAgentHistory(ctx, id)
}

func (SQLiteHistory) AddAgentHistory(ctx context.Context, id string, e sys.AgentHistoryEntry) error {
	return sys.AddAgentHistory(ctx, id, e)
}

// MixAgent recommends a song for a keyword: it searches the keyword, widens the
// pool with the radio mixes of the hits and picks the first candidate the
// session has not heard yet.
type MixAgent struct {
	Store     HistoryStore
	Searcher  Searcher
	Mixes     MixFetcher
	Hits      int
	MixSize   int
	Threshold float64
}

func NewMixAgent(store HistoryStore, searcher Searcher, mixes MixFetcher) *MixAgent {
	return &MixAgent{
		Store:     store,
		Searcher:  searcher,
		Mixes:     mixes,
		Hits:      3,
		MixSize:   20,
		Threshold: DefaultSimilarity,
	}
}

func (m *MixAgent) CreateSession(ctx context.Context, id string, guildID snowflake.ID) error {
	return m.Store.CreateAgentSession(ctx, id, guildID)
}

func (m *MixAgent) DeleteSession(ctx context.Context, id string) error {
	return m.Store.DeleteAgentSession(ctx, id)
}

func (m *MixAgent) IsActive(ctx context.Context, id string) (bool, error) {
	return m.Store.AgentSessionExists(ctx, id)
}

func (m *MixAgent) RunQuery(ctx context.Context, id, keyword string) (string, error) {
	if err := m.requireActive(ctx, id); err != nil {
		return "", err
	}

	page, err := m.Searcher.Search(ctx, keyword, m.Hits, "")
	if err != nil && !IsIgnorable(err) {
		return "", ErrAgentFailed.Wrap(err)
	}

	history, err := m.Store.GetAgentHistory(ctx, id)
	if err != nil {
		return "", ErrAgentFailed.Wrap(err)
	}

	candidates := append([]*Track(nil), page.Items...)
	if m.Mixes != nil && len(page.Items) > 0 {
		if seed := videoID(page.Items[0].URL); seed != "" {
			related, err := m.Mixes.FetchMix(ctx, seed, m.MixSize)
			if err != nil {
				sys.LogDebug(sys.MsgAgentMixFail, seed, err)
			}
			candidates = append(candidates, related...)
		}
	}

	pick := m.choose(candidates, history)
	if pick == nil {
		return "", ErrAgentFailed.Wrap(errors.New("every candidate was already suggested"))
	}

	// The session may have been torn down while we were searching.
	if err := m.requireActive(ctx, id); err != nil {
		return "", err
	}
	if err := m.Store.AddAgentHistory(ctx, id, sys.AgentHistoryEntry{
		VideoID: videoID(pick.URL),
		Title:   pick.Title,
		URL:     pick.URL,
		Channel: pick.Channel,
	}); err != nil {
		return "", ErrAgentFailed.Wrap(err)
	}
	sys.LogDebug(sys.MsgAgentPicked, pick.Title, pick.URL, keyword)

	out, err := json.Marshal(Suggestion{
		Title:      pick.Title,
		URL:        pick.URL,
		Channel:    pick.Channel,
		ChannelURL: pick.ChannelURL,
		Thumbnail:  pick.Thumbnail,
	})
	if err != nil {
		return "", ErrAgentFailed.Wrap(err)
	}
	return string(out), nil
}

func (m *MixAgent) requireActive(ctx context.Context, id string) error {
	ok, err := m.Store.AgentSessionExists(ctx, id)
	if err != nil {
		return ErrAgentFailed.Wrap(err)
	}
	if !ok {
		return ErrMissingSession
	}
	return nil
}

// choose returns the first candidate whose video id and title are both new to history.
func (m *MixAgent) choose(candidates []*Track, history []sys.AgentHistoryEntry) *Track {
	heard := make(map[string]bool, len(history))
	titles := make([]string, 0, len(history))
	for _, h := range history {
		heard[h.VideoID] = true
		if n := normalizeTitle(h.Title, h.Channel); n != "" {
			titles = append(titles, n)
		}
	}

	corpus := append([]string(nil), titles...)
	for _, c := range candidates {
		corpus = append(corpus, normalizeTitle(c.Title, c.Channel))
	}
	weights := idfWeights(corpus)

	for _, c := range candidates {
		id := videoID(c.URL)
		if id == "" || heard[id] {
			continue
		}
		n := normalizeTitle(c.Title, c.Channel)
		dup := false
		for _, t := range titles {
			if similarity(t, n, weights) >= m.Threshold {
				dup = true
				break
			}
		}
		if !dup {
			return c
		}
	}
	return nil
}
