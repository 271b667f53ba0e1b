package youtube

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pamudu-ranasinghe/virtualme/tools"
)

// Feed reads the channel's Atom feed and the public timedtext captions.
type Feed struct {
	ChannelID    string
	FeedURL      string // overrides the youtube.com URL, used in tests
	TimedTextURL string // overrides the caption endpoint, used in tests
	HTTPClient   *http.Client
}

type atomFeed struct {
	Entries []entry `xml:"entry"`
}

type entry struct {
	Title     string `xml:"title"`
	VideoID   string `xml:"videoId"` // yt:videoId
	Published string `xml:"published"`
	Link      struct {
		Href string `xml:"href,attr"`
	} `xml:"link"`
	Media struct {
		Description string `xml:"description"`
	} `xml:"group"`
}

type transcript struct {
	Texts []struct {
		Value string `xml:",chardata"`
	} `xml:"text"`
}

func (f *Feed) feedURL() string {
	if f.FeedURL != "" {
		return f.FeedURL
	}
	return fmt.Sprintf("https://www.youtube.com/feeds/videos.xml?channel_id=%s", f.ChannelID)
}

func (f *Feed) timedTextURL(videoID string) string {
	if f.TimedTextURL != "" {
		return fmt.Sprintf("%s?lang=en&v=%s", f.TimedTextURL, videoID)
	}
	return fmt.Sprintf("https://video.google.com/timedtext?lang=en&v=%s", videoID)
}

func (f *Feed) http() *http.Client {
	if f.HTTPClient != nil {
		return f.HTTPClient
	}
	return http.DefaultClient
}

func (f *Feed) fetchEntries(ctx context.Context) ([]entry, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", f.feedURL(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("youtube feed returned status %d", resp.StatusCode)
	}
	var doc atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing youtube feed: %w", err)
	}
	return doc.Entries, nil
}

// SearchTool lists the latest videos, optionally filtered by keywords in
// title and description.
type SearchTool struct {
	Feed *Feed
}

func (t *SearchTool) Name() string { return tools.YouTubeSearch }

func (t *SearchTool) Invoke(ctx context.Context, args map[string]string) (string, error) {
	entries, err := t.Feed.fetchEntries(ctx)
	if err != nil {
		return "", err
	}
	limit := intArg(args, "limit", 5)

	keywords := splitKeywords(args["keywords"])
	var kept []entry
	for _, e := range entries {
		if len(keywords) == 0 {
			kept = append(kept, e)
			continue
		}
		haystack := strings.ToLower(e.Title + " " + e.Media.Description)
		for _, kw := range keywords {
			if strings.Contains(haystack, kw) {
				kept = append(kept, e)
				break
			}
		}
	}
	if len(kept) > limit {
		kept = kept[:limit]
	}

	if len(kept) == 0 {
		if len(keywords) > 0 {
			return fmt.Sprintf("no videos matching %v", keywords), nil
		}
		return "no videos in the feed", nil
	}
	var b strings.Builder
	b.WriteString("--- YOUTUBE: Videos ---\n")
	for _, e := range kept {
		desc := truncate(e.Media.Description, 300)
		fmt.Fprintf(&b, "- %s (video_id: %s, published: %s)\n  %s\n  %s\n", e.Title, e.VideoID, e.Published, e.Link.Href, desc)
	}
	return b.String(), nil
}

// TranscriptTool fetches caption text for a single video.
type TranscriptTool struct {
	Feed *Feed
}

func (t *TranscriptTool) Name() string { return tools.YouTubeTranscript }

func (t *TranscriptTool) Invoke(ctx context.Context, args map[string]string) (string, error) {
	videoID := strings.TrimSpace(args["video_id"])
	if videoID == "" {
		return "", fmt.Errorf("missing required argument: video_id")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", t.Feed.timedTextURL(videoID), nil)
	if err != nil {
		return "", err
	}
	resp, err := t.Feed.http().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("timedtext returned status %d", resp.StatusCode)
	}

	var tr transcript
	if err := xml.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("parsing transcript: %w", err)
	}
	if len(tr.Texts) == 0 {
		return "", fmt.Errorf("no captions available for video %s", videoID)
	}

	parts := make([]string, 0, len(tr.Texts))
	for _, t := range tr.Texts {
		if s := strings.TrimSpace(t.Value); s != "" {
			parts = append(parts, s)
		}
	}
	return fmt.Sprintf("--- YOUTUBE TRANSCRIPT: %s ---\n%s", videoID, strings.Join(parts, " ")), nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func intArg(args map[string]string, key string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(args[key])); err == nil && v > 0 {
		return v
	}
	return def
}

func splitKeywords(v string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
