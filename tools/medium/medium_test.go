package medium

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss xmlns:content="http://purl.org/rss/1.0/modules/content/" version="2.0">
  <channel>
    <title>Stories by Pamudu</title>
    <item>
      <title>Building an AI Agent from Scratch</title>
      <link>https://medium.com/@pamudu1111/building-an-ai-agent</link>
      <pubDate>Mon, 04 Aug 2025 10:00:00 GMT</pubDate>
      <content:encoded><![CDATA[<p>How I built a planning agent with tool use.</p>]]></content:encoded>
    </item>
    <item>
      <title>Notes on Computer Vision</title>
      <link>https://medium.com/@pamudu1111/notes-on-computer-vision</link>
      <pubDate>Tue, 01 Jul 2025 10:00:00 GMT</pubDate>
      <content:encoded><![CDATA[<p>Defect detection on production lines.</p>]]></content:encoded>
    </item>
  </channel>
</rss>`

func TestListLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedXML))
	}))
	defer srv.Close()

	f := &Feed{Username: "pamudu1111", FeedURL: srv.URL}
	out, err := (&ListTool{Feed: f}).Invoke(context.Background(), map[string]string{"limit": "1"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !strings.Contains(out, "Building an AI Agent from Scratch") {
		t.Fatalf("expected latest article, got: %s", out)
	}
	if strings.Contains(out, "Notes on Computer Vision") {
		t.Fatalf("limit not applied: %s", out)
	}
}

func TestListFiltersByKeyword(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedXML))
	}))
	defer srv.Close()

	f := &Feed{Username: "pamudu1111", FeedURL: srv.URL}
	out, err := (&ListTool{Feed: f}).Invoke(context.Background(), map[string]string{"keywords": "vision"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !strings.Contains(out, "Notes on Computer Vision") {
		t.Fatalf("expected matching article, got: %s", out)
	}
	if strings.Contains(out, "Building an AI Agent") {
		t.Fatalf("unmatched article leaked into results: %s", out)
	}
}

func TestReadExtractsBody(t *testing.T) {
	page := `<!DOCTYPE html><html><head><title>Building an AI Agent</title></head>
<body><article><h1>Building an AI Agent</h1>
<p>This is the first paragraph about planning agents and how they decompose a query into tool calls before answering.</p>
<p>The second paragraph covers execution: each tool call runs independently so one failure never takes down the rest of the batch.</p>
<p>The third paragraph explains synthesis, where retrieved context is folded into a grounded, cited answer for the reader.</p>
</article></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer srv.Close()

	f := &Feed{Username: "pamudu1111"}
	out, err := (&ReadTool{Feed: f}).Invoke(context.Background(), map[string]string{"url": srv.URL + "/article"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !strings.Contains(out, "planning agents") {
		t.Fatalf("expected extracted body, got: %s", out)
	}
}

func TestReadRequiresURL(t *testing.T) {
	f := &Feed{Username: "pamudu1111"}
	if _, err := (&ReadTool{Feed: f}).Invoke(context.Background(), nil); err == nil {
		t.Fatalf("expected missing-url error")
	}
}

func TestPreviewTruncatesOnRuneBoundary(t *testing.T) {
	// a two-byte rune straddling the 200-byte cut
	it := item{Encoded: strings.Repeat("a", 199) + "é and more"}
	got := preview(it)
	if len(got) > 200 {
		t.Fatalf("preview longer than 200 bytes: %d", len(got))
	}
	if !utf8.ValidString(got) {
		t.Fatalf("preview contains invalid UTF-8: %q", got)
	}
	if got != strings.Repeat("a", 199) {
		t.Fatalf("expected the partial rune dropped, got %q", got[190:])
	}
}
