package proc

import (
	"context"
	"strings"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/cadence/sys"
	"golang.org/x/sync/semaphore"
)

// Acquirer turns URLs and keywords into playable tracks. Extraction runs on a
// bounded pool so a burst of requests cannot spawn unbounded yt-dlp processes.
type Acquirer struct {
	extractor Extractor
	searcher  Searcher
	sem       *semaphore.Weighted
}

func NewAcquirer(extractor Extractor, searcher Searcher, workers int) *Acquirer {
	if workers <= 0 {
		workers = 3
	}
	return &Acquirer{
		extractor: extractor,
		searcher:  searcher,
		sem:       semaphore.NewWeighted(int64(workers)),
	}
}

// Resolve extracts the stream behind url for requester.
func (a *Acquirer) Resolve(ctx context.Context, requester snowflake.ID, url string) (*Track, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, ErrExtractionFailed
	}
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return nil, ErrExtractionFailed.Wrap(err)
	}
	defer a.sem.Release(1)

	info, err := a.extractor.Extract(ctx, url)
	if err != nil {
		if _, ok := KindOf(err); ok {
			return nil, err
		}
		return nil, ErrExtractionFailed.Wrap(err)
	}
	return FromInfo(requester, info), nil
}

// Search returns metadata-only candidates for keyword, stamped with requester.
// An ErrSearchCount error still comes with a usable page.
func (a *Acquirer) Search(ctx context.Context, requester snowflake.ID, keyword string, count int, pageToken string) (SearchPage, error) {
	page, err := a.searcher.Search(ctx, keyword, count, pageToken)
	if err != nil && !IsIgnorable(err) {
		return SearchPage{}, err
	}
	for i, t := range page.Items {
		c := *t
		c.Requester = requester
		page.Items[i] = &c
	}
	sys.LogDebug(sys.MsgSearchQuery, keyword, len(page.Items))
	return page, err
}

// SearchTop returns the best candidate for keyword.
func (a *Acquirer) SearchTop(ctx context.Context, requester snowflake.ID, keyword string) (*Track, error) {
	page, err := a.Search(ctx, requester, keyword, 1, "")
	if err != nil && !IsIgnorable(err) {
		return nil, err
	}
	top := page.Items[0]
	sys.LogDebug(sys.MsgSearchResult, top.Title, top.Channel, top.URL)
	return top, nil
}

// Download resolves candidate.URL. Resolved fields win; anything the extractor
// left empty keeps the candidate's value.
func (a *Acquirer) Download(ctx context.Context, candidate *Track) (*Track, error) {
	t, err := a.Resolve(ctx, candidate.Requester, candidate.URL)
	if err != nil {
		return nil, err
	}
	return t.Merge(candidate), nil
}
