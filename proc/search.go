package proc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/leeineian/cadence/sys"
	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
	"golang.org/x/time/rate"
)

// SearchPage is one page of keyword results. Items carry metadata only, no Source.
type SearchPage struct {
	Items         []*Track
	NextPageToken string
}

// Searcher finds candidate tracks for a keyword.
type Searcher interface {
	Search(ctx context.Context, query string, count int, pageToken string) (SearchPage, error)
}

// NewSearcher picks the backend named by cfg.SearchBackend.
func NewSearcher(cfg *sys.Config) (Searcher, error) {
	switch cfg.SearchBackend {
	case sys.SearchBackendAPI:
		if cfg.GoogleAPIKey == "" {
			return nil, ErrMissingCredentials
		}
		return NewAPISearcher(cfg.GoogleAPIKey, sys.HttpClient), nil
	case sys.SearchBackendYTMusic:
		return MusicSearcher{}, nil
	case sys.SearchBackendYTSearch:
		return VideoSearcher{}, nil
	default:
		return nil, fmt.Errorf(sys.MsgConfigInvalidBackend, cfg.SearchBackend)
	}
}

// --- YouTube Data API v3 ---

const youtubeSearchEndpoint = "https://www.googleapis.com/youtube/v3/search"

type APISearcher struct {
	Key      string
	Endpoint string
	Client   *http.Client
	limiter  *rate.Limiter
}

func NewAPISearcher(key string, client *http.Client) *APISearcher {
	return &APISearcher{
		Key:      key,
		Endpoint: youtubeSearchEndpoint,
		Client:   client,
		limiter:  rate.NewLimiter(rate.Limit(4), 10),
	}
}

type apiThumbnail struct {
	URL string `json:"url"`
}

type apiSearchResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string                  `json:"title"`
			ChannelID    string                  `json:"channelId"`
			ChannelTitle string                  `json:"channelTitle"`
			Thumbnails   map[string]apiThumbnail `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *APISearcher) Search(ctx context.Context, query string, count int, pageToken string) (SearchPage, error) {
	if a.Key == "" {
		return SearchPage{}, ErrMissingCredentials
	}
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return SearchPage{}, ErrSearchFailed.Wrap(err)
		}
	}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("maxResults", strconv.Itoa(count))
	params.Set("q", query)
	params.Set("key", a.Key)
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return SearchPage{}, ErrSearchFailed.Wrap(err)
	}
	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return SearchPage{}, ErrSearchFailed.Wrap(err)
	}
	defer resp.Body.Close()

	var body apiSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return SearchPage{}, ErrSearchFailed.Wrap(fmt.Errorf("status %d: %w", resp.StatusCode, err))
	}
	if body.Error != nil {
		return SearchPage{}, ErrSearchFailed.Wrap(errors.New(body.Error.Message))
	}

	page := SearchPage{NextPageToken: body.NextPageToken}
	for _, item := range body.Items {
		t := &Track{
			Title:   item.Snippet.Title,
			Channel: item.Snippet.ChannelTitle,
		}
		if item.ID.VideoID != "" {
			t.URL = watchURL(item.ID.VideoID)
		}
		if item.Snippet.ChannelID != "" {
			t.ChannelURL = "https://www.youtube.com/channel/" + item.Snippet.ChannelID
		}
		for _, key := range []string{"high", "medium", "default"} {
			if th, ok := item.Snippet.Thumbnails[key]; ok && th.URL != "" {
				t.Thumbnail = th.URL
				break
			}
		}
		page.Items = append(page.Items, t)
	}
	return finishPage(page, count)
}

// finishPage applies the shared result-count rules.
func finishPage(page SearchPage, count int) (SearchPage, error) {
	if len(page.Items) == 0 {
		return page, ErrSearchFailed.Wrap(errors.New("no results found"))
	}
	if len(page.Items) > count {
		page.Items = page.Items[:count]
	}
	if len(page.Items) < count {
		return page, ErrSearchCount.Wrap(fmt.Errorf("got %d of %d results", len(page.Items), count))
	}
	return page, nil
}

// --- YouTube Music (raitonoberu/ytmusic) ---

// MusicSearcher queries YouTube Music. Page tokens are page indexes.
type MusicSearcher struct{}

func (MusicSearcher) Search(ctx context.Context, query string, count int, pageToken string) (SearchPage, error) {
	pageIndex := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 0 {
			return SearchPage{}, ErrSearchFailed.Wrap(fmt.Errorf("bad page token %q", pageToken))
		}
		pageIndex = n
	}

	type result struct {
		page SearchPage
		err  error
	}
	done := make(chan result, 1)
	go func() {
		s := ytmusic.TrackSearch(query)
		var page SearchPage
		for i := 0; i <= pageIndex; i++ {
			r, err := s.Next()
			if err != nil {
				done <- result{err: err}
				return
			}
			if i < pageIndex {
				continue
			}
			for _, v := range r.Tracks {
				if v.VideoID == "" {
					continue
				}
				t := &Track{
					Title: v.Title,
					URL:   "https://music.youtube.com/watch?v=" + v.VideoID,
				}
				if len(v.Artists) > 0 {
					names := make([]string, 0, len(v.Artists))
					for _, a := range v.Artists {
						names = append(names, a.Name)
					}
					t.Channel = strings.Join(names, ", ")
				}
				page.Items = append(page.Items, t)
			}
			if len(r.Tracks) > 0 {
				page.NextPageToken = strconv.Itoa(pageIndex + 1)
			}
		}
		done <- result{page: page}
	}()

	select {
	case <-ctx.Done():
		return SearchPage{}, ErrSearchFailed.Wrap(ctx.Err())
	case r := <-done:
		if r.err != nil {
			return SearchPage{}, ErrSearchFailed.Wrap(r.err)
		}
		return finishPage(r.page, count)
	}
}

// --- YouTube web search (ppalone/ytsearch) ---

// VideoSearcher scrapes YouTube's result page. It has a single page.
type VideoSearcher struct{}

func (VideoSearcher) Search(ctx context.Context, query string, count int, pageToken string) (SearchPage, error) {
	if pageToken != "" {
		return SearchPage{}, ErrSearchFailed.Wrap(errors.New("no further pages"))
	}
	c := ytsearch.NewClient(nil)
	res, err := c.Search(ctx, query)
	if err != nil {
		return SearchPage{}, ErrSearchFailed.Wrap(err)
	}
	var page SearchPage
	for _, r := range res.Results {
		if r.VideoID == "" {
			continue
		}
		page.Items = append(page.Items, &Track{
			Title:    r.Title,
			URL:      watchURL(r.VideoID),
			Channel:  r.Channel,
			Duration: parseDurationColon(r.Duration),
		})
	}
	return finishPage(page, count)
}

// parseDurationColon parses "3:20" or "1:05:20".
func parseDurationColon(s string) time.Duration {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second
}
