package proc

import (
	"math"
	"net/url"
	"regexp"
	"strings"
)

var (
	metadataBlockRegex = regexp.MustCompile(`[\(\[\{].*?[\)\]\}]`)
	camelCaseRegex     = regexp.MustCompile(`([a-z])([A-Z])`)
	videoIDRegex       = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
)

// DefaultSimilarity is the weighted Jaccard score at which two titles count as the same song.
const DefaultSimilarity = 0.7

// normalizeTitle reduces a video title to the words that identify the song:
// the channel name, trailing "(Official Video)" style blocks and punctuation are dropped.
func normalizeTitle(title, channel string) string {
	if title == "" {
		return ""
	}
	// "ArtistVEVO" -> "Artist VEVO"
	t := strings.ToLower(camelCaseRegex.ReplaceAllString(title, "${1} ${2}"))
	c := strings.ToLower(camelCaseRegex.ReplaceAllString(channel, "${1} ${2}"))

	for _, sep := range []string{"|", "//", " ─ ", " - "} {
		if !strings.Contains(t, sep) {
			continue
		}
		var kept []string
		for _, part := range strings.Split(t, sep) {
			part = strings.TrimSpace(part)
			if part == c || part == strings.ReplaceAll(c, " ", "") {
				continue
			}
			kept = append(kept, part)
		}
		if len(kept) > 0 {
			t = strings.Join(kept, " ")
		}
		break
	}

	for {
		t = strings.TrimSpace(t)
		all := metadataBlockRegex.FindAllStringIndex(t, -1)
		if len(all) == 0 || all[len(all)-1][1] != len(t) {
			break
		}
		t = t[:all[len(all)-1][0]]
	}

	if c != "" {
		t = strings.ReplaceAll(t, c, " ")
	}

	clean := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return ' '
	}, t)
	return strings.Join(strings.Fields(clean), " ")
}

// idfWeights returns log(1 + N/df) for every word of the corpus.
func idfWeights(corpus []string) map[string]float64 {
	if len(corpus) == 0 {
		return nil
	}
	df := make(map[string]int)
	for _, doc := range corpus {
		seen := make(map[string]bool)
		for _, w := range strings.Fields(doc) {
			if !seen[w] {
				df[w]++
				seen[w] = true
			}
		}
	}
	weights := make(map[string]float64, len(df))
	for w, n := range df {
		weights[w] = math.Log(1.0 + float64(len(corpus))/float64(n))
	}
	return weights
}

// similarity is the IDF-weighted Jaccard index of the word sets of a and b.
func similarity(a, b string, weights map[string]float64) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	inA := make(map[string]bool)
	for _, w := range strings.Fields(a) {
		inA[w] = true
	}
	union := make(map[string]bool, len(inA))
	inB := make(map[string]bool)
	for w := range inA {
		union[w] = true
	}
	for _, w := range strings.Fields(b) {
		inB[w] = true
		union[w] = true
	}

	// Words outside the corpus are rare by definition.
	unseen := math.Log(1.0 + float64(len(weights)))
	var inter, total float64
	for w := range union {
		wt := 1.0
		if weights != nil {
			if v, ok := weights[w]; ok {
				wt = v
			} else {
				wt = unseen
			}
		}
		if inA[w] && inB[w] {
			inter += wt
		}
		total += wt
	}
	if total == 0 {
		return 0
	}
	return inter / total
}

// videoID extracts the YouTube video id from watch, youtu.be, shorts and music URLs.
func videoID(raw string) string {
	raw = strings.TrimSpace(raw)
	if videoIDRegex.MatchString(raw) {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	path := strings.Trim(u.Path, "/")
	switch {
	case host == "youtu.be":
		return strings.Split(path, "/")[0]
	case strings.HasPrefix(path, "shorts/"), strings.HasPrefix(path, "embed/"), strings.HasPrefix(path, "live/"):
		return strings.Split(path, "/")[1]
	}
	return ""
}

func watchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}
