package proc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/leeineian/cadence/sys"
)

// Suggestion is the JSON object the agent answers with.
type Suggestion struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	Channel    string `json:"channel"`
	ChannelURL string `json:"channel_url"`
	Thumbnail  string `json:"thumbnail"`
}

func (s Suggestion) Track() *Track {
	return &Track{
		Autoplay:   true,
		Title:      s.Title,
		URL:        s.URL,
		Channel:    s.Channel,
		ChannelURL: s.ChannelURL,
		Thumbnail:  s.Thumbnail,
	}
}

// ParseSuggestion decodes an agent reply, tolerating a surrounding markdown code fence.
func ParseSuggestion(text string) (Suggestion, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			text = text[i+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	if start, end := strings.IndexByte(text, '{'), strings.LastIndexByte(text, '}'); start >= 0 && end > start {
		text = text[start : end+1]
	}

	var s Suggestion
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return Suggestion{}, ErrAgentFailed.Wrap(err)
	}
	s.URL = strings.TrimSpace(s.URL)
	return s, nil
}

// Downloader resolves a metadata-only candidate into a playable track.
type Downloader interface {
	Download(ctx context.Context, candidate *Track) (*Track, error)
}

// Autoplayer keeps a session's queue non-empty with agent suggestions.
type Autoplayer struct {
	agent      Agent
	downloader Downloader
	retries    int
	runs       atomic.Uint64
}

func NewAutoplayer(agent Agent, downloader Downloader, retries int) *Autoplayer {
	if retries <= 0 {
		retries = 3
	}
	return &Autoplayer{agent: agent, downloader: downloader, retries: retries}
}

// Run makes up to retries attempts to enqueue one suggestion for s.
// It returns nil once a track is added or the session went away.
func (a *Autoplayer) Run(ctx context.Context, s *Session) error {
	keyword, ok := s.queue.Autoplay()
	if !ok || keyword == "" {
		return ErrInvalidAutoplayState
	}
	run := a.runs.Add(1)
	notify := func(stage AutoplayStage, t *Track, err error) {
		if l := s.manager.getListener(); l != nil {
			l.OnAutoplay(s, AutoplayEvent{Run: run, Stage: stage, Track: t, Err: err})
		}
	}

	var lastErr error
	for attempt := 1; attempt <= a.retries; attempt++ {
		if !s.IsValid(ctx) {
			return nil
		}
		if _, on := s.queue.Autoplay(); !on {
			return nil
		}

		s.ResetTimer()
		text, err := a.agent.RunQuery(ctx, s.AgentSessionID(), keyword)
		if err != nil {
			if errors.Is(err, ErrMissingSession) {
				return err
			}
			sys.LogAutoplay(sys.MsgAutoplaySuggestFail, attempt, a.retries, err)
			lastErr = err
			continue
		}
		suggestion, err := ParseSuggestion(text)
		if err != nil {
			sys.LogAutoplay(sys.MsgAutoplaySuggestFail, attempt, a.retries, err)
			lastErr = err
			continue
		}
		if suggestion.URL == "" {
			sys.LogAutoplay(sys.MsgAutoplayInvalidURL, attempt, a.retries)
			lastErr = ErrAgentFailed
			continue
		}

		candidate := suggestion.Track()
		if !s.IsValid(ctx) {
			notify(AutoplayCancelled, candidate, nil)
			return nil
		}
		notify(AutoplayFetching, candidate, nil)

		s.ResetTimer()
		track, err := a.downloader.Download(ctx, candidate)
		if err != nil {
			sys.LogAutoplay(sys.MsgAutoplayDownloadFail, attempt, a.retries, err)
			lastErr = err
			continue
		}
		track.Autoplay = true

		if err := s.Enqueue(ctx, track); err != nil {
			if !errors.Is(err, ErrSessionGone) {
				return err
			}
			sys.LogAutoplay(sys.MsgAutoplayCancelled, s.guildID)
			notify(AutoplayCancelled, track, nil)
			return nil
		}
		sys.LogAutoplay(sys.MsgAutoplayAdded, track.DisplayTitle(), s.guildID)
		notify(AutoplayAdded, track, nil)
		return nil
	}

	s.queue.DisableAutoplay()
	sys.LogAutoplay(sys.MsgAutoplayExhausted, a.retries, s.guildID)
	err := ErrAgentFailed.Wrap(lastErr)
	notify(AutoplayFailed, nil, err)
	return err
}
