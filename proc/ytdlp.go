package proc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"golang.org/x/sync/errgroup"
)

// Extractor turns a page URL into stream information.
type Extractor interface {
	Extract(ctx context.Context, url string) (TrackInfo, error)
}

// YtdlpExtractor shells out to yt-dlp for a single video.
type YtdlpExtractor struct{}

const ytdlpInfoTemplate = "%(.{title,webpage_url,uploader,uploader_url,thumbnail,duration,url,http_headers,cookies})j"

func (YtdlpExtractor) Extract(ctx context.Context, u string) (TrackInfo, error) {
	res, err := ytdlp.New().
		Print(ytdlpInfoTemplate).
		Format("bestaudio/best").
		NoPlaylist().
		NoWarnings().
		IgnoreConfig().
		Run(ctx, "--skip-download", u)

	if err != nil {
		stderr := ""
		if res != nil {
			stderr = res.Stderr
		}
		return TrackInfo{}, classifyYtdlpError(err, stderr)
	}

	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		return parseTrackInfo(line)
	}
	return TrackInfo{}, ErrExtractionFailed.Wrap(errors.New("yt-dlp printed no metadata"))
}

func parseTrackInfo(line string) (TrackInfo, error) {
	var info TrackInfo
	if err := json.Unmarshal([]byte(line), &info); err != nil {
		return TrackInfo{}, ErrExtractionFailed.Wrap(err)
	}
	if info.URL == "" {
		return TrackInfo{}, ErrExtractionFailed.Wrap(errors.New("no stream url"))
	}
	return info, nil
}

var downloadMarkers = []string{
	"http error",
	"unable to download",
	"video unavailable",
	"is not available",
	"private video",
	"sign in to confirm",
	"requested format is not available",
	"drm",
}

// classifyYtdlpError maps a yt-dlp failure to ErrDownloadFailed when the site
// refused the media, ErrExtractionFailed otherwise.
func classifyYtdlpError(err error, stderr string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrExtractionFailed.Wrap(err)
	}
	msg := strings.ToLower(stderr)
	for _, m := range downloadMarkers {
		if strings.Contains(msg, m) {
			return ErrDownloadFailed.Wrap(fmt.Errorf("%w: %s", err, firstLine(stderr)))
		}
	}
	if stderr != "" {
		return ErrExtractionFailed.Wrap(fmt.Errorf("%w: %s", err, firstLine(stderr)))
	}
	return ErrExtractionFailed.Wrap(err)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// MixFetcher lists videos related to a seed video.
type MixFetcher interface {
	FetchMix(ctx context.Context, videoID string, limit int) ([]*Track, error)
}

// YtdlpMix reads YouTube's auto-generated radio playlists for a video.
type YtdlpMix struct{}

func (YtdlpMix) FetchMix(ctx context.Context, id string, limit int) ([]*Track, error) {
	sources := []string{
		"https://music.youtube.com/watch?v=" + id + "&list=RDAMVM" + id,
		"https://www.youtube.com/watch?v=" + id + "&list=RD" + id,
	}
	results := make([][]*Track, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			entries, err := ytdlpFlatPlaylist(gctx, src, limit)
			if err != nil {
				return nil
			}
			results[i] = entries
			return nil
		})
	}
	_ = g.Wait()

	seen := map[string]bool{id: true}
	var out []*Track
	for _, entries := range results {
		for _, t := range entries {
			vid := videoID(t.URL)
			if vid == "" || seen[vid] {
				continue
			}
			seen[vid] = true
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no related videos for %s", id)
	}
	return out, nil
}

func ytdlpFlatPlaylist(ctx context.Context, u string, limit int) ([]*Track, error) {
	res, err := ytdlp.New().
		FlatPlaylist().
		Print("%(id)s\t%(title)s\t%(uploader)s\t%(duration)s").
		PlaylistItems(fmt.Sprintf("1-%d", limit)).
		NoWarnings().
		IgnoreConfig().
		Run(ctx, u)

	if err != nil {
		return nil, err
	}
	return parseFlatPlaylist(res.Stdout), nil
}

// parseFlatPlaylist reads "id\ttitle\tuploader\tduration" lines.
func parseFlatPlaylist(out string) []*Track {
	var tracks []*Track
	for _, l := range strings.Split(strings.TrimSpace(out), "\n") {
		ps := strings.Split(l, "\t")
		if len(ps) < 4 || ps[0] == "" {
			continue
		}
		t := &Track{
			URL:     watchURL(ps[0]),
			Title:   ps[1],
			Channel: ps[2],
		}
		if secs, err := strconv.ParseFloat(ps[3], 64); err == nil {
			t.Duration = time.Duration(secs * float64(time.Second))
		}
		tracks = append(tracks, t)
	}
	return tracks
}
