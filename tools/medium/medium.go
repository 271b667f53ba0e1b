package medium

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"

	"github.com/pamudu-ranasinghe/virtualme/tools"
)

// Feed reads the owner's Medium RSS feed and extracts article bodies.
type Feed struct {
	Username   string
	FeedURL    string // overrides the medium.com URL, used in tests
	HTTPClient *http.Client
}

type rss struct {
	Channel struct {
		Items []item `xml:"item"`
	} `xml:"channel"`
}

type item struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	PubDate string `xml:"pubDate"`
	Encoded string `xml:"encoded"` // content:encoded carries the article body HTML
}

var tagRe = regexp.MustCompile(`<[^>]*>`)

func (f *Feed) feedURL() string {
	if f.FeedURL != "" {
		return f.FeedURL
	}
	return fmt.Sprintf("https://medium.com/feed/@%s", f.Username)
}

func (f *Feed) http() *http.Client {
	if f.HTTPClient != nil {
		return f.HTTPClient
	}
	return http.DefaultClient
}

func (f *Feed) fetchItems(ctx context.Context) ([]item, error) {
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
		return nil, fmt.Errorf("medium feed returned status %d", resp.StatusCode)
	}
	var doc rss
	if err := xml.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing medium feed: %w", err)
	}
	return doc.Channel.Items, nil
}

func preview(it item) string {
	text := strings.TrimSpace(tagRe.ReplaceAllString(it.Encoded, " "))
	text = strings.Join(strings.Fields(text), " ")
	return truncate(text, 200)
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

// ListTool lists the latest articles, optionally filtered by keywords.
type ListTool struct {
	Feed *Feed
}

func (t *ListTool) Name() string { return tools.MediumList }

func (t *ListTool) Invoke(ctx context.Context, args map[string]string) (string, error) {
	items, err := t.Feed.fetchItems(ctx)
	if err != nil {
		return "", err
	}
	limit := intArg(args, "limit", 5)

	keywords := splitKeywords(args["keywords"])
	if len(keywords) > 0 {
		type scored struct {
			it      item
			matches []string
		}
		var ranked []scored
		for _, it := range items {
			title := strings.ToLower(it.Title)
			body := strings.ToLower(it.Encoded)
			var matches []string
			for _, kw := range keywords {
				if strings.Contains(title, kw) {
					matches = append(matches, "title:"+kw)
				}
				if strings.Contains(body, kw) {
					matches = append(matches, "content:"+kw)
				}
			}
			if len(matches) > 0 {
				ranked = append(ranked, scored{it: it, matches: matches})
			}
		}
		sort.SliceStable(ranked, func(i, j int) bool { return len(ranked[i].matches) > len(ranked[j].matches) })
		if len(ranked) > limit {
			ranked = ranked[:limit]
		}
		if len(ranked) == 0 {
			return fmt.Sprintf("no articles matching %v", keywords), nil
		}
		var b strings.Builder
		b.WriteString("--- MEDIUM: Search Results ---\n")
		for _, s := range ranked {
			fmt.Fprintf(&b, "- %s (%s)\n  %s\n  matches: %s\n", s.it.Title, s.it.PubDate, s.it.Link, strings.Join(s.matches, ", "))
		}
		return b.String(), nil
	}

	if len(items) > limit {
		items = items[:limit]
	}
	if len(items) == 0 {
		return "no articles in the feed", nil
	}
	var b strings.Builder
	b.WriteString("--- MEDIUM: Latest Articles ---\n")
	for _, it := range items {
		fmt.Fprintf(&b, "- %s (%s)\n  %s\n  %s\n", it.Title, it.PubDate, it.Link, preview(it))
	}
	return b.String(), nil
}

// ReadTool fetches an article URL and extracts its readable body.
type ReadTool struct {
	Feed *Feed
}

func (t *ReadTool) Name() string { return tools.MediumRead }

func (t *ReadTool) Invoke(ctx context.Context, args map[string]string) (string, error) {
	link := strings.TrimSpace(args["url"])
	if link == "" {
		return "", fmt.Errorf("missing required argument: url")
	}
	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("invalid article url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", link, nil)
	if err != nil {
		return "", err
	}
	resp, err := t.Feed.http().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("article fetch returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	article, err := readability.FromReader(strings.NewReader(string(body)), u)
	if err != nil {
		return "", fmt.Errorf("extracting article body: %w", err)
	}
	return fmt.Sprintf("--- MEDIUM: %s ---\n%s", article.Title, article.TextContent), nil
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
