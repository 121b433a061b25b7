package proc

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Track is one playable item. Only Requester and Source are needed to play it;
// everything else is display metadata and may be empty.
type Track struct {
	Requester  snowflake.ID
	Autoplay   bool
	Title      string
	URL        string
	Channel    string
	ChannelURL string
	Thumbnail  string
	Duration   time.Duration
	Source     string
	Headers    []string
}

// TrackKey identifies a track for dedup and queue fingerprints.
type TrackKey struct {
	Requester snowflake.ID
	Source    string
}

func (t *Track) Key() TrackKey {
	return TrackKey{Requester: t.Requester, Source: t.Source}
}

func (k TrackKey) String() string {
	return k.Requester.String() + "|" + k.Source
}

// Merge returns a copy of t where every empty field is taken from fallback.
func (t *Track) Merge(fallback *Track) *Track {
	out := *t
	out.Headers = append([]string(nil), t.Headers...)
	if fallback == nil {
		return &out
	}
	if out.Requester == 0 {
		out.Requester = fallback.Requester
	}
	out.Autoplay = out.Autoplay || fallback.Autoplay
	pick := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	pick(&out.Title, fallback.Title)
	pick(&out.URL, fallback.URL)
	pick(&out.Channel, fallback.Channel)
	pick(&out.ChannelURL, fallback.ChannelURL)
	pick(&out.Thumbnail, fallback.Thumbnail)
	pick(&out.Source, fallback.Source)
	if out.Duration == 0 {
		out.Duration = fallback.Duration
	}
	if len(out.Headers) == 0 {
		out.Headers = append([]string(nil), fallback.Headers...)
	}
	return &out
}

// TrackInfo is the subset of yt-dlp's info dict a track is built from.
type TrackInfo struct {
	Title       string            `json:"title"`
	WebpageURL  string            `json:"webpage_url"`
	Uploader    string            `json:"uploader"`
	UploaderURL string            `json:"uploader_url"`
	Thumbnail   string            `json:"thumbnail"`
	Duration    float64           `json:"duration"`
	URL         string            `json:"url"`
	HTTPHeaders map[string]string `json:"http_headers"`
	Cookies     string            `json:"cookies"`
}

func FromInfo(requester snowflake.ID, info TrackInfo) *Track {
	t := &Track{
		Requester:  requester,
		Title:      info.Title,
		URL:        info.WebpageURL,
		Channel:    info.Uploader,
		ChannelURL: info.UploaderURL,
		Thumbnail:  info.Thumbnail,
		Duration:   time.Duration(info.Duration * float64(time.Second)),
		Source:     info.URL,
	}

	keys := make([]string, 0, len(info.HTTPHeaders))
	for k := range info.HTTPHeaders {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		t.Headers = append(t.Headers, fmt.Sprintf("%s: %s", k, info.HTTPHeaders[k]))
	}
	if info.Cookies != "" {
		t.Headers = append(t.Headers, "Cookie: "+info.Cookies)
	}
	return t
}

func (t *Track) DisplayTitle() string {
	if t.Title == "" {
		return "Unknown"
	}
	return t.Title
}

func (t *Track) TitleMarkdown() string {
	if t.URL == "" {
		return t.DisplayTitle()
	}
	return fmt.Sprintf("[%s](%s)", escapeLinkText(t.DisplayTitle()), t.URL)
}

func (t *Track) ChannelMarkdown() string {
	channel := t.Channel
	if channel == "" {
		channel = "Unknown"
	}
	if t.ChannelURL == "" {
		return channel
	}
	return fmt.Sprintf("[%s](%s)", escapeLinkText(channel), t.ChannelURL)
}

// DurationText renders the duration as m:ss or h:mm:ss, "--:--" when unknown.
func (t *Track) DurationText() string {
	if t.Duration <= 0 {
		return "--:--"
	}
	total := int(t.Duration.Round(time.Second) / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func escapeLinkText(s string) string {
	return strings.NewReplacer("[", "\\[", "]", "\\]").Replace(s)
}
