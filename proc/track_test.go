package proc

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestFromInfo(t *testing.T) {
	info := TrackInfo{
		Title:      "Plastic Love",
		WebpageURL: "https://www.youtube.com/watch?v=3bNITQR4Uso",
		Uploader:   "Mariya Takeuchi",
		Duration:   467.5,
		URL:        "https://rr1.googlevideo.com/videoplayback",
		HTTPHeaders: map[string]string{
			"User-Agent": "Mozilla/5.0",
			"Accept":     "*/*",
		},
		Cookies: "a=b",
	}

	tr := FromInfo(testUser, info)
	if tr.Requester != testUser || tr.Source != info.URL || tr.URL != info.WebpageURL {
		t.Errorf("FromInfo() = %+v", tr)
	}
	if tr.Duration != 467500*time.Millisecond {
		t.Errorf("Duration = %s", tr.Duration)
	}
	want := []string{"Accept: */*", "User-Agent: Mozilla/5.0", "Cookie: a=b"}
	if fmt.Sprint(tr.Headers) != fmt.Sprint(want) {
		t.Errorf("Headers = %q, want %q", tr.Headers, want)
	}
	if tr.Autoplay {
		t.Error("extracted tracks are not autoplay picks")
	}
}

func TestTrack_Merge(t *testing.T) {
	resolved := &Track{Title: "Resolved", Source: "https://cdn/x", Duration: time.Minute}
	candidate := &Track{
		Requester: testUser,
		Autoplay:  true,
		Title:     "Candidate",
		Channel:   "Someone",
		Thumbnail: "https://img/x.jpg",
		Source:    "ignored",
	}

	got := resolved.Merge(candidate)
	if got.Title != "Resolved" || got.Source != "https://cdn/x" || got.Duration != time.Minute {
		t.Error("resolved fields must win")
	}
	if got.Channel != "Someone" || got.Thumbnail != "https://img/x.jpg" || got.Requester != testUser || !got.Autoplay {
		t.Errorf("empty fields should fall back to the candidate, got %+v", got)
	}
	if resolved.Channel != "" {
		t.Error("Merge() must not modify its receiver")
	}
}

func TestTrack_Display(t *testing.T) {
	tests := []struct {
		name     string
		track    Track
		title    string
		channel  string
		duration string
	}{
		{
			name:     "empty",
			title:    "Unknown",
			channel:  "Unknown",
			duration: "--:--",
		},
		{
			name:     "linked",
			track:    Track{Title: "A [Live]", URL: "https://y/1", Channel: "B", ChannelURL: "https://y/c", Duration: 3*time.Minute + 5*time.Second},
			title:    "[A \\[Live\\]](https://y/1)",
			channel:  "[B](https://y/c)",
			duration: "3:05",
		},
		{
			name:     "long",
			track:    Track{Title: "Mix", Channel: "DJ", Duration: time.Hour + 2*time.Minute + 3*time.Second},
			title:    "Mix",
			channel:  "DJ",
			duration: "1:02:03",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.track.TitleMarkdown(); got != tt.title {
				t.Errorf("TitleMarkdown() = %q, want %q", got, tt.title)
			}
			if got := tt.track.ChannelMarkdown(); got != tt.channel {
				t.Errorf("ChannelMarkdown() = %q, want %q", got, tt.channel)
			}
			if got := tt.track.DurationText(); got != tt.duration {
				t.Errorf("DurationText() = %q, want %q", got, tt.duration)
			}
		})
	}
}

func TestErrors(t *testing.T) {
	wrapped := fmt.Errorf("playing: %w", ErrDownloadFailed.Wrap(errors.New("HTTP 403")))

	if !errors.Is(wrapped, ErrDownloadFailed) {
		t.Error("a wrapped copy should still match its sentinel")
	}
	if errors.Is(wrapped, ErrExtractionFailed) {
		t.Error("different codes must not match")
	}
	if k, ok := KindOf(wrapped); !ok || k != KindPipeline {
		t.Errorf("KindOf() = %s, %v", k, ok)
	}
	if IsUserState(wrapped) {
		t.Error("pipeline errors are not user state")
	}
	if !IsUserState(ErrNotConnected) {
		t.Error("ErrNotConnected is user state")
	}
	if !IsIgnorable(ErrSearchCount.Wrap(errors.New("short page"))) || IsIgnorable(ErrSearchFailed) {
		t.Error("only the result count error is ignorable")
	}
	if got := UserMessage(wrapped); got != ErrDownloadFailed.Message {
		t.Errorf("UserMessage() = %q", got)
	}
	if got := UserMessage(errors.New("boom")); got == "" {
		t.Error("unknown errors still get a generic message")
	}
}
